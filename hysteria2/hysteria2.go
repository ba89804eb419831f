// Пакет hysteria2 — кодек ссылок Hysteria2.
// Поддерживает оба префикса: hysteria2:// и hy2://; исходная схема
// сохраняется при round-trip. Из правил трансформации к Hysteria2 применимы
// переименование, allow-insecure и ALPN (security всегда tls).
package hysteria2

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"sub-rewrite/internal/link"
	"sub-rewrite/internal/utils"
)

const maxURILength = 4096

// Codec — реализация link.Codec для Hysteria2.
type Codec struct{}

// NewCodec создаёт кодек Hysteria2.
func NewCodec() *Codec { return &Codec{} }

func (*Codec) Scheme() string    { return "hysteria2" }
func (*Codec) Aliases() []string { return []string{"hy2"} }

// Parse разбирает Hysteria2-ссылку в общий набор полей.
func (*Codec) Parse(s string) (*link.Fields, error) {
	if len(s) > maxURILength {
		return nil, &link.ParseError{Scheme: "hysteria2", Reason: "line too long"}
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, &link.ParseError{Scheme: "hysteria2", Reason: "invalid URL format", Cause: err}
	}
	if u.Scheme != "hysteria2" && u.Scheme != "hy2" {
		return nil, &link.ParseError{Scheme: "hysteria2", Reason: "invalid scheme (expected 'hysteria2' or 'hy2')"}
	}
	auth := u.User.Username()
	if pw, ok := u.User.Password(); ok {
		auth += ":" + pw
	}
	if auth == "" {
		return nil, &link.ParseError{Scheme: "hysteria2", Reason: "missing auth info"}
	}
	host, port, err := utils.ParseHostPort(u)
	if err != nil {
		return nil, &link.ParseError{Scheme: "hysteria2", Reason: err.Error()}
	}

	f := &link.Fields{
		Scheme:   u.Scheme,
		Address:  host,
		Port:     port,
		ID:       auth,
		Security: "tls", // Hysteria2 всегда поверх QUIC+TLS
		Name:     u.Fragment,
	}
	for key, vals := range u.Query() {
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		switch key {
		case "sni":
			f.SNI = v
		case "insecure":
			f.AllowInsecure = v == "1" || strings.EqualFold(v, "true")
		case "alpn":
			f.ALPN = link.SplitALPN(v)
		default:
			f.SetExtra(key, v)
		}
	}
	return f, nil
}

// Encode собирает Hysteria2-ссылку из набора полей.
func (*Codec) Encode(f *link.Fields) string {
	q := url.Values{}
	if f.SNI != "" {
		q.Set("sni", f.SNI)
	}
	if f.AllowInsecure {
		q.Set("insecure", "1")
	}
	if len(f.ALPN) > 0 {
		q.Set("alpn", strings.Join(f.ALPN, ","))
	}
	for k, v := range f.Extra {
		q.Set(k, v)
	}

	scheme := f.Scheme
	if scheme != "hy2" {
		scheme = "hysteria2"
	}
	var buf strings.Builder
	buf.WriteString(scheme)
	buf.WriteString("://")
	buf.WriteString(url.User(f.ID).String())
	buf.WriteString("@")
	buf.WriteString(net.JoinHostPort(f.Address, strconv.Itoa(f.Port)))
	if len(q) > 0 {
		buf.WriteString("?")
		buf.WriteString(q.Encode())
	}
	if f.Name != "" {
		buf.WriteString("#")
		buf.WriteString(url.PathEscape(f.Name))
	}
	return buf.String()
}
