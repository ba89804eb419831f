// Пакет trojan — кодек trojan:// ссылок. Идентификатор — пароль в userinfo,
// параметры транспорта и TLS — в query.
package trojan

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"sub-rewrite/internal/link"
	"sub-rewrite/internal/utils"
	"sub-rewrite/internal/validator"
)

const maxURILength = 4096

// Codec — реализация link.Codec для Trojan.
type Codec struct {
	ruleValidator validator.Validator
}

// NewCodec создаёт кодек Trojan с валидатором параметров.
func NewCodec(val validator.Validator) *Codec {
	if val == nil {
		val = validator.EmptyValidator{}
	}
	return &Codec{ruleValidator: val}
}

func (*Codec) Scheme() string    { return "trojan" }
func (*Codec) Aliases() []string { return nil }

// Parse разбирает Trojan-ссылку в общий набор полей.
func (c *Codec) Parse(s string) (*link.Fields, error) {
	if len(s) > maxURILength {
		return nil, &link.ParseError{Scheme: "trojan", Reason: "line too long"}
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme != "trojan" {
		return nil, &link.ParseError{Scheme: "trojan", Reason: "invalid URL format", Cause: err}
	}
	password := u.User.Username()
	if password == "" {
		return nil, &link.ParseError{Scheme: "trojan", Reason: "missing password"}
	}
	host, port, err := utils.ParseHostPort(u)
	if err != nil {
		return nil, &link.ParseError{Scheme: "trojan", Reason: err.Error()}
	}

	q := u.Query()
	if result := c.ruleValidator.Validate(utils.ParamsFromValues(q)); !result.Valid {
		return nil, &link.ParseError{Scheme: "trojan", Reason: result.Reason}
	}

	f := &link.Fields{
		Scheme:  "trojan",
		Address: host,
		Port:    port,
		ID:      password,
		Name:    u.Fragment,
	}
	link.ParseQueryParams(f, q)
	if f.Transport == "" {
		f.Transport = "tcp"
	}
	// Trojan шифруется всегда; отсутствие security означает tls.
	if f.Security == "" {
		f.Security = "tls"
	}
	return f, nil
}

// Encode собирает Trojan-ссылку из набора полей.
func (*Codec) Encode(f *link.Fields) string {
	q := link.BuildQueryParams(f)

	var buf strings.Builder
	buf.WriteString("trojan://")
	// пароль может содержать зарезервированные символы
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
