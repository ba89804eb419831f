// Пакет vless — кодек ссылок VLESS (стандартный URI с query-параметрами).
// Переводит ссылку в общий набор полей и обратно; reality-параметры
// (pbk/sid/spx) сохраняются при round-trip.
package vless

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"sub-rewrite/internal/link"
	"sub-rewrite/internal/utils"
	"sub-rewrite/internal/validator"
)

const maxURILength = 4096

// Codec — реализация link.Codec для VLESS.
type Codec struct {
	ruleValidator validator.Validator
}

// NewCodec создаёт кодек VLESS с валидатором параметров.
func NewCodec(val validator.Validator) *Codec {
	if val == nil {
		val = validator.EmptyValidator{}
	}
	return &Codec{ruleValidator: val}
}

func (*Codec) Scheme() string    { return "vless" }
func (*Codec) Aliases() []string { return nil }

// Parse разбирает VLESS-ссылку в общий набор полей.
func (c *Codec) Parse(s string) (*link.Fields, error) {
	if len(s) > maxURILength {
		return nil, &link.ParseError{Scheme: "vless", Reason: "line too long"}
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme != "vless" {
		return nil, &link.ParseError{Scheme: "vless", Reason: "invalid URL format", Cause: err}
	}
	id := u.User.Username()
	if id == "" {
		return nil, &link.ParseError{Scheme: "vless", Reason: "missing UUID"}
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, &link.ParseError{Scheme: "vless", Reason: "malformed UUID", Cause: err}
	}
	host, port, err := utils.ParseHostPort(u)
	if err != nil {
		return nil, &link.ParseError{Scheme: "vless", Reason: err.Error()}
	}

	q := u.Query()
	if result := c.ruleValidator.Validate(utils.ParamsFromValues(q)); !result.Valid {
		return nil, &link.ParseError{Scheme: "vless", Reason: result.Reason}
	}

	f := &link.Fields{
		Scheme:  "vless",
		Address: host,
		Port:    port,
		ID:      id,
		Name:    u.Fragment,
	}
	link.ParseQueryParams(f, q)
	if f.Transport == "" {
		f.Transport = "tcp"
	}
	return f, nil
}

// Encode собирает VLESS-ссылку из набора полей.
func (*Codec) Encode(f *link.Fields) string {
	q := link.BuildQueryParams(f)

	var buf strings.Builder
	buf.WriteString("vless://")
	buf.WriteString(f.ID)
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
