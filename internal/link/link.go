// Пакет link определяет общую модель прокси-ссылки: разобранный набор
// полей, интерфейс кодека протокола и реестр диспетчеризации по схеме.
package link

import (
	"fmt"
	"strings"
)

// Fields — изменяемый набор полей одной прокси-ссылки.
// Кодеки протоколов переводят wire-формат в Fields и обратно; слой правил
// мутирует Fields между разбором и кодированием.
type Fields struct {
	Scheme  string
	Address string
	Port    int
	ID      string // UUID либо пароль

	Transport   string // tcp, ws, grpc, httpupgrade, ...
	Path        string
	ServiceName string
	HeaderType  string

	Security      string // "", none, tls, reality, xtls
	SNI           string
	HostHeader    string
	AllowInsecure bool
	ALPN          []string
	Fingerprint   string
	PublicKey     string // reality pbk
	ShortID       string // reality sid
	SpiderX       string // reality spx

	Flow       string
	Encryption string

	AlterID string // только VMess
	Method  string // шифр VMess (scy) либо Shadowsocks

	Name string // отображаемое имя (fragment / ps / remarks)

	// Выход слоя правил. Нулевые значения — правило не применялось.
	MuxConcurrency   int
	FragmentLength   string // "N-M"
	FragmentInterval string
	DNS              string

	// Протокол-специфичные остатки (SSR: protocol/obfs/params,
	// неизвестные query-параметры URI-схем). Переживают round-trip.
	Extra map[string]string
}

// SetExtra записывает параметр в Extra, создавая map при необходимости.
func (f *Fields) SetExtra(key, value string) {
	if f.Extra == nil {
		f.Extra = make(map[string]string)
	}
	f.Extra[key] = value
}

// ParseError — типизированная ошибка разбора одной ссылки.
// Оркестратор реагирует на неё пропуском строки без изменений.
type ParseError struct {
	Scheme string
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Scheme, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Scheme, e.Reason, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Codec — пара декодер/кодер одного протокола.
type Codec interface {
	// Scheme возвращает каноническую схему (без "://").
	Scheme() string
	// Aliases возвращает дополнительные схемы (например hy2 для hysteria2).
	Aliases() []string
	// Parse разбирает текст ссылки; ошибки возвращаются как *ParseError.
	Parse(s string) (*Fields, error)
	// Encode собирает текст ссылки из набора полей.
	Encode(f *Fields) string
}

// Registry — таблица диспетчеризации схема → кодек.
// Выбор кодека выполняется один раз на строку по префиксу до "://".
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry строит реестр из набора кодеков, включая их алиасы.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[string]Codec, len(codecs))}
	for _, c := range codecs {
		r.codecs[c.Scheme()] = c
		for _, a := range c.Aliases() {
			r.codecs[a] = c
		}
	}
	return r
}

// Lookup возвращает кодек для строки по её схеме.
func (r *Registry) Lookup(line string) (Codec, bool) {
	idx := strings.Index(line, "://")
	if idx <= 0 {
		return nil, false
	}
	c, ok := r.codecs[strings.ToLower(line[:idx])]
	return c, ok
}
