// Пакет pipeline — пакетный оркестратор: импорт документа подписки,
// пакетная резолюция локаций, per-line разбор/мутация/кодирование и сборка
// итогового документа. Ни одна ошибка строки или хоста не фатальна:
// худший исход — строка проходит без изменений.
package pipeline

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"sub-rewrite/internal/geoip"
	"sub-rewrite/internal/link"
	"sub-rewrite/internal/rules"
	"sub-rewrite/internal/utils"
)

// Locator — пакетная резолюция локаций (обычно *geoip.Resolver).
type Locator interface {
	ResolveBatch(ctx context.Context, hosts []string) map[string]geoip.Record
}

// Stats — итоги одного прогона.
type Stats struct {
	Total       int // непустых строк во входе
	Rewritten   int // разобрано и перекодировано
	Passthrough int // прошло без изменений
}

// Processor обрабатывает документ подписки целиком. Каждая строка
// принадлежит только своему прогону; между строками нет общего
// изменяемого состояния, кроме read-through кэша локаций.
type Processor struct {
	registry *link.Registry
	locator  Locator
	log      zerolog.Logger
}

// New создаёт оркестратор.
func New(registry *link.Registry, locator Locator, log zerolog.Logger) *Processor {
	return &Processor{
		registry: registry,
		locator:  locator,
		log:      log.With().Str("component", "pipeline").Logger(),
	}
}

// ImportSubscription декодирует документ подписки: base64-обёртка
// снимается, plaintext возвращается как есть (никогда не пустая строка
// для непустого входа).
func ImportSubscription(doc string) string {
	return string(utils.AutoDecodeBase64([]byte(doc)))
}

// Process прогоняет документ: разбор → локации → правила → кодирование →
// сборка. Возвращает итоговый документ (base64 либо raw-строки при
// RawExport) и статистику.
func (p *Processor) Process(ctx context.Context, rawText string, opts rules.Options) (string, Stats) {
	text := ImportSubscription(rawText)

	type entry struct {
		line   string
		codec  link.Codec
		fields *link.Fields
	}

	var entries []entry
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		e := entry{line: line}
		if codec, ok := p.registry.Lookup(line); ok {
			fields, err := codec.Parse(line)
			if err != nil {
				p.log.Debug().Err(err).Msg("parse failed, passing line through")
			} else {
				e.codec = codec
				e.fields = fields
			}
		}
		entries = append(entries, e)
	}

	// Пакетная резолюция по дедуплицированному множеству хостов —
	// один сетевой заход на хост, сколько бы строк его ни использовало.
	var locations map[string]geoip.Record
	if opts.AddLocationFlag && p.locator != nil {
		hosts := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.fields != nil {
				hosts = append(hosts, e.fields.Address)
			}
		}
		locations = p.locator.ResolveBatch(ctx, hosts)
	}

	stats := Stats{Total: len(entries)}
	out := make([]string, 0, len(entries))
	index := 0
	for _, e := range entries {
		if e.fields == nil {
			out = append(out, e.line)
			stats.Passthrough++
			continue
		}
		var loc *geoip.Record
		if rec, ok := locations[e.fields.Address]; ok {
			loc = &rec
		}
		rules.Apply(e.fields, opts, loc, index)
		index++

		encoded := e.codec.Encode(e.fields)
		if encoded == "" {
			out = append(out, e.line)
			stats.Passthrough++
			continue
		}
		out = append(out, encoded)
		stats.Rewritten++
	}

	doc := strings.Join(out, "\n")
	if !opts.RawExport {
		doc = utils.EncodeBase64(doc)
	}
	p.log.Info().Int("total", stats.Total).Int("rewritten", stats.Rewritten).
		Int("passthrough", stats.Passthrough).Msg("document processed")
	return doc, stats
}
