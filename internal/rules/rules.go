// Пакет rules — слой политики трансформаций: применяет выбранные
// пользователем опции к разобранному набору полей с учётом применимости к
// протоколу и транспорту. Неприменимая комбинация — no-op, не ошибка.
package rules

import (
	"strings"

	"sub-rewrite/internal/alias"
	"sub-rewrite/internal/geoip"
	"sub-rewrite/internal/link"
)

// Options — неизменяемая на время прогона конфигурация обработки.
type Options struct {
	EnableMux      bool
	MuxConcurrency int // [1,1024]

	EnableFragment   bool
	FragmentLength   string // диапазон "N-M"
	FragmentInterval string

	AllowInsecure bool
	EnableALPN    bool

	EnableCDNIP bool
	CustomCDN   string

	EnableDNS bool
	CustomDNS string

	// Master-switch переименования: включает резолюцию локаций и
	// перегенерацию имён.
	AddLocationFlag bool
	CustomBaseName  string

	// RawExport — строки без внешней base64-обёртки документа.
	RawExport bool
}

const (
	muxMin = 1
	muxMax = 1024

	defaultMuxConcurrency   = 8
	defaultFragmentLength   = "100-200"
	defaultFragmentInterval = "10-20"
)

// defaultALPN — фиксированный порядок предпочтения при override.
var defaultALPN = []string{"h2", "http/1.1"}

// Apply мутирует поля ссылки согласно опциям. Порядок правил фиксирован;
// каждое правило независимо закрыто своим флагом.
func Apply(f *link.Fields, opts Options, loc *geoip.Record, index int) {
	applyCDN(f, opts)
	applyMux(f, opts)
	applyFragment(f, opts)
	if opts.AllowInsecure {
		f.AllowInsecure = true
	}
	applyALPN(f, opts)
	if opts.EnableDNS && opts.CustomDNS != "" {
		f.DNS = opts.CustomDNS
	}
	if opts.AddLocationFlag {
		f.Name = alias.Generate(index, loc, opts.CustomBaseName)
	}
}

// applyCDN подменяет адрес на CDN-IP. Осмысленно только для ws/grpc:
// исходный адрес переезжает в Host/SNI, и только если те пусты.
func applyCDN(f *link.Fields, opts Options) {
	if !opts.EnableCDNIP || opts.CustomCDN == "" {
		return
	}
	if !transportSupportsCDN(f.Transport) {
		return
	}
	if f.HostHeader == "" {
		f.HostHeader = f.Address
	}
	if f.SNI == "" && f.Security != "" && f.Security != "none" {
		f.SNI = f.Address
	}
	f.Address = opts.CustomCDN
}

func transportSupportsCDN(transport string) bool {
	switch strings.ToLower(transport) {
	case "ws", "websocket", "grpc":
		return true
	}
	return false
}

func applyMux(f *link.Fields, opts Options) {
	if !opts.EnableMux {
		return
	}
	c := opts.MuxConcurrency
	if c == 0 {
		c = defaultMuxConcurrency
	}
	if c < muxMin {
		c = muxMin
	}
	if c > muxMax {
		c = muxMax
	}
	f.MuxConcurrency = c
}

// applyFragment включает фрагментацию. Для VMess (JSON-формат) требуется
// tls/reality; для query-param ссылок ограничения нет.
func applyFragment(f *link.Fields, opts Options) {
	if !opts.EnableFragment {
		return
	}
	if f.Scheme == "vmess" && f.Security != "tls" && f.Security != "reality" {
		return
	}
	length := opts.FragmentLength
	if length == "" {
		length = defaultFragmentLength
	}
	interval := opts.FragmentInterval
	if interval == "" {
		interval = defaultFragmentInterval
	}
	f.FragmentLength = length
	f.FragmentInterval = interval
}

func applyALPN(f *link.Fields, opts Options) {
	if !opts.EnableALPN {
		return
	}
	switch f.Security {
	case "tls", "reality", "xtls":
		f.ALPN = append([]string(nil), defaultALPN...)
	}
}
