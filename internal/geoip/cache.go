// Кэш локаций: процессный map хост→Record с явным жизненным циклом
// Load/Flush и версионированным JSON-блобом на диске. Инвалидация — только
// сменой версии формата, записи внутри сессии не устаревают.
package geoip

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// cacheVersion входит в имя файла; смена версии отсекает старые блобы.
const cacheVersion = "v2"

// Record — минимальная запись о локации сервера.
type Record struct {
	Flag    string `json:"flag"`
	Country string `json:"country"`
	Code    string `json:"code"`
	City    string `json:"city,omitempty"`
	ISP     string `json:"isp,omitempty"`
}

// Cache безопасен для конкурентных чтений; при гонке записей по одному
// ключу побеждает последняя (значения по хосту идемпотентны).
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Record
	path    string // пустой путь — кэш только в памяти
	log     zerolog.Logger
}

// NewCache создаёт кэш; при пустом dir кэш не персистится.
func NewCache(dir string, log zerolog.Logger) *Cache {
	c := &Cache{
		entries: make(map[string]Record),
		log:     log.With().Str("component", "geocache").Logger(),
	}
	if dir != "" {
		c.path = filepath.Join(dir, "geo_cache_"+cacheVersion+".json")
	}
	return c
}

// Load читает блоб с диска. Отсутствие или порча файла — не ошибка:
// кэш просто начинает с нуля.
func (c *Cache) Load() {
	if c.path == "" {
		return
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	var entries map[string]Record
	if err := json.Unmarshal(data, &entries); err != nil {
		c.log.Warn().Err(err).Msg("corrupted geo cache file, starting empty")
		return
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	c.log.Debug().Int("entries", len(entries)).Msg("geo cache loaded")
}

// Get возвращает запись по точному строковому ключу хоста.
func (c *Cache) Get(host string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[host]
	return r, ok
}

// Set записывает запись; last-write-wins при гонках.
func (c *Cache) Set(host string, r Record) {
	c.mu.Lock()
	c.entries[host] = r
	c.mu.Unlock()
}

// Len возвращает число записей.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Flush сбрасывает кэш на диск через tmp+rename. Неудача записи не
// блокирует обработку: кэш целиком очищается и работа продолжается.
func (c *Cache) Flush() {
	if c.path == "" {
		return
	}
	c.mu.RLock()
	data, err := json.Marshal(c.entries)
	c.mu.RUnlock()
	if err != nil {
		return
	}
	tmp := c.path + ".tmp"
	if writeErr := os.WriteFile(tmp, data, 0o644); writeErr != nil {
		c.log.Warn().Err(writeErr).Msg("geo cache write failed, clearing cache")
		c.mu.Lock()
		c.entries = make(map[string]Record)
		c.mu.Unlock()
		return
	}
	if err := os.Rename(tmp, c.path); err != nil {
		c.log.Warn().Err(err).Msg("geo cache rename failed, clearing cache")
		c.mu.Lock()
		c.entries = make(map[string]Record)
		c.mu.Unlock()
	}
}
