// Пакет ssr — кодек ShadowsocksR: ssr:// + URL-safe base64 блоба
// host:port:protocol:method:obfs:base64(password)/?params, где remarks и
// прочие строковые параметры сами закодированы URL-safe base64.
package ssr

import (
	"net/url"
	"strconv"
	"strings"

	"sub-rewrite/internal/link"
	"sub-rewrite/internal/utils"
)

const maxURILength = 8192

// Порядок query-параметров в кодируемом блобе фиксированный: так делают
// генераторы конфигов самого SSR.
var paramOrder = []string{"obfsparam", "protoparam", "remarks", "group"}

// Codec — реализация link.Codec для ShadowsocksR.
type Codec struct{}

// NewCodec создаёт кодек ShadowsocksR.
func NewCodec() *Codec { return &Codec{} }

func (*Codec) Scheme() string    { return "ssr" }
func (*Codec) Aliases() []string { return nil }

// Parse разбирает SSR-ссылку в общий набор полей.
func (*Codec) Parse(s string) (*link.Fields, error) {
	if len(s) > maxURILength {
		return nil, &link.ParseError{Scheme: "ssr", Reason: "line too long"}
	}
	if !strings.HasPrefix(strings.ToLower(s), "ssr://") {
		return nil, &link.ParseError{Scheme: "ssr", Reason: "not a ShadowsocksR link"}
	}
	blob := utils.DecodeBase64Tolerant(s[len("ssr://"):])
	if blob == "" {
		return nil, &link.ParseError{Scheme: "ssr", Reason: "invalid base64 payload"}
	}

	main, rawParams, _ := strings.Cut(blob, "/?")
	parts := strings.Split(main, ":")
	if len(parts) < 6 {
		return nil, &link.ParseError{Scheme: "ssr", Reason: "malformed host:port:protocol:method:obfs:password block"}
	}
	// host может содержать ':' (IPv6) — фиксированы только 5 последних полей
	host := strings.Join(parts[:len(parts)-5], ":")
	tail := parts[len(parts)-5:]

	port, err := strconv.Atoi(tail[0])
	if err != nil || !utils.IsValidPort(port) {
		return nil, &link.ParseError{Scheme: "ssr", Reason: "invalid port"}
	}
	if !utils.IsValidHost(host) {
		return nil, &link.ParseError{Scheme: "ssr", Reason: "invalid host"}
	}
	password := utils.DecodeBase64URL(tail[4])
	if password == "" {
		return nil, &link.ParseError{Scheme: "ssr", Reason: "invalid password encoding"}
	}

	f := &link.Fields{
		Scheme:    "ssr",
		Address:   host,
		Port:      port,
		ID:        password,
		Method:    tail[2],
		Transport: "tcp",
	}
	f.SetExtra("protocol", tail[1])
	f.SetExtra("obfs", tail[3])

	if rawParams != "" {
		q, err := url.ParseQuery(rawParams)
		if err == nil {
			for _, key := range paramOrder {
				v := q.Get(key)
				if v == "" {
					continue
				}
				decoded := utils.DecodeBase64URL(v)
				if key == "remarks" {
					f.Name = decoded
					continue
				}
				f.SetExtra(key, decoded)
			}
		}
	}
	return f, nil
}

// Encode собирает SSR-ссылку обратно в URL-safe base64 блоб.
func (*Codec) Encode(f *link.Fields) string {
	var b strings.Builder
	b.WriteString(f.Address)
	b.WriteString(":")
	b.WriteString(strconv.Itoa(f.Port))
	b.WriteString(":")
	b.WriteString(f.Extra["protocol"])
	b.WriteString(":")
	b.WriteString(f.Method)
	b.WriteString(":")
	b.WriteString(f.Extra["obfs"])
	b.WriteString(":")
	b.WriteString(utils.EncodeBase64URL(f.ID))
	b.WriteString("/?")

	params := make([]string, 0, len(paramOrder))
	for _, key := range paramOrder {
		var v string
		if key == "remarks" {
			v = f.Name
		} else {
			v = f.Extra[key]
		}
		if v == "" {
			continue
		}
		params = append(params, key+"="+utils.EncodeBase64URL(v))
	}
	b.WriteString(strings.Join(params, "&"))

	return "ssr://" + utils.EncodeBase64URL(strings.TrimSuffix(b.String(), "/?"))
}
