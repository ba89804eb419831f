// Пакет ss — кодек Shadowsocks. Принимает оба исторических формата:
// SIP002 (ss://userinfo@host:port?...#name) и legacy
// (ss://base64(method:password@host:port)#name). Кодирует всегда в SIP002
// с URL-safe userinfo без padding.
package ss

import (
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"sub-rewrite/internal/link"
	"sub-rewrite/internal/utils"
)

const (
	maxURILength      = 4096
	maxUserinfoLength = 1024
	maxPasswordBytes  = 256
)

var cipherRe = regexp.MustCompile(`^[a-zA-Z0-9_+-]+$`)

// Codec — реализация link.Codec для Shadowsocks.
type Codec struct{}

// NewCodec создаёт кодек Shadowsocks.
func NewCodec() *Codec { return &Codec{} }

func (*Codec) Scheme() string    { return "ss" }
func (*Codec) Aliases() []string { return nil }

// Parse разбирает Shadowsocks-ссылку, определяя формат эвристикой:
// если URI не парсится или в authority нет '@' — сначала пробуем legacy base64.
func (*Codec) Parse(s string) (*link.Fields, error) {
	if len(s) > maxURILength {
		return nil, &link.ParseError{Scheme: "ss", Reason: "line too long"}
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme != "ss" || u.User == nil {
		return parseLegacy(s)
	}
	return parseSIP002(u)
}

func parseSIP002(u *url.URL) (*link.Fields, error) {
	userinfo := u.User.String()
	if userinfo == "" || len(userinfo) > maxUserinfoLength {
		return nil, &link.ParseError{Scheme: "ss", Reason: "missing or too long userinfo"}
	}

	var cipher, password string
	if strings.Contains(userinfo, ":") {
		// SIP002 допускает нешифрованный percent-encoded userinfo
		cipher, password, _ = strings.Cut(utils.FullyDecode(userinfo), ":")
	} else {
		decoded, err := utils.DecodeUserInfo(userinfo)
		if err != nil {
			return nil, &link.ParseError{Scheme: "ss", Reason: "invalid base64 userinfo", Cause: err}
		}
		cipher, password, _ = strings.Cut(string(decoded), ":")
	}
	if err := checkCipherPassword(cipher, password); err != nil {
		return nil, err
	}

	host, port, err := utils.ParseHostPort(u)
	if err != nil {
		return nil, &link.ParseError{Scheme: "ss", Reason: err.Error()}
	}

	f := &link.Fields{
		Scheme:    "ss",
		Address:   host,
		Port:      port,
		ID:        password,
		Method:    cipher,
		Transport: "tcp",
		Name:      u.Fragment,
	}
	link.ParseQueryParams(f, u.Query())
	if f.Transport == "" {
		f.Transport = "tcp"
	}
	return f, nil
}

// parseLegacy обрабатывает ss://base64(method:password@host:port)#name.
func parseLegacy(s string) (*link.Fields, error) {
	if !strings.HasPrefix(strings.ToLower(s), "ss://") {
		return nil, &link.ParseError{Scheme: "ss", Reason: "not a Shadowsocks link"}
	}
	payload := s[len("ss://"):]
	var name string
	if idx := strings.IndexByte(payload, '#'); idx != -1 {
		name = utils.FullyDecode(payload[idx+1:])
		payload = payload[:idx]
	}
	decoded := utils.DecodeBase64Tolerant(payload)
	if decoded == "" {
		return nil, &link.ParseError{Scheme: "ss", Reason: "invalid legacy base64 payload"}
	}

	// method:password@host:port; пароль может содержать ':' — режем по последнему '@'
	at := strings.LastIndexByte(decoded, '@')
	if at <= 0 || at == len(decoded)-1 {
		return nil, &link.ParseError{Scheme: "ss", Reason: "invalid legacy format"}
	}
	cipher, password, ok := strings.Cut(decoded[:at], ":")
	if !ok {
		return nil, &link.ParseError{Scheme: "ss", Reason: "invalid cipher:password format"}
	}
	if err := checkCipherPassword(cipher, password); err != nil {
		return nil, err
	}
	host, portStr, err := net.SplitHostPort(decoded[at+1:])
	if err != nil {
		return nil, &link.ParseError{Scheme: "ss", Reason: "invalid host:port", Cause: err}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || !utils.IsValidPort(port) || !utils.IsValidHost(host) {
		return nil, &link.ParseError{Scheme: "ss", Reason: "invalid host or port"}
	}

	return &link.Fields{
		Scheme:    "ss",
		Address:   host,
		Port:      port,
		ID:        password,
		Method:    cipher,
		Transport: "tcp",
		Name:      name,
	}, nil
}

func checkCipherPassword(cipher, password string) error {
	if cipher == "" || password == "" || len(password) > maxPasswordBytes || !cipherRe.MatchString(cipher) {
		return &link.ParseError{Scheme: "ss", Reason: "invalid cipher or password"}
	}
	return nil
}

// Encode собирает SIP002-ссылку из набора полей. Query-параметры
// кодируются тем же общим отображением, что и при разборе: плагинные
// транспорт/TLS-поля (type/host/path/sni) переживают round-trip.
func (*Codec) Encode(f *link.Fields) string {
	newUser := utils.EncodeRawURBase64([]byte(f.Method + ":" + f.ID))
	q := link.BuildQueryParams(f)

	var buf strings.Builder
	buf.WriteString("ss://")
	buf.WriteString(newUser)
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
