// Отображение query-параметров URI-схем (vless/trojan/hysteria2) на общий
// набор полей и обратно. Неизвестные параметры переживают round-trip через
// Extra.
package link

import (
	"net/url"
	"strconv"
	"strings"
)

// ParseQueryParams раскладывает известные query-параметры по полям f.
func ParseQueryParams(f *Fields, q url.Values) {
	for key, vals := range q {
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		switch key {
		case "type":
			f.Transport = v
		case "security":
			f.Security = v
		case "encryption":
			f.Encryption = v
		case "sni", "peer":
			f.SNI = v
		case "host":
			f.HostHeader = v
		case "path":
			f.Path = v
		case "serviceName":
			f.ServiceName = v
		case "headerType":
			f.HeaderType = v
		case "alpn":
			f.ALPN = SplitALPN(v)
		case "fp":
			f.Fingerprint = v
		case "pbk":
			f.PublicKey = v
		case "sid":
			f.ShortID = v
		case "spx":
			f.SpiderX = v
		case "flow":
			f.Flow = v
		case "allowInsecure", "insecure":
			f.AllowInsecure = v == "1" || strings.EqualFold(v, "true")
		case "mux":
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				f.MuxConcurrency = n
			}
		case "fragment":
			f.FragmentLength, f.FragmentInterval = SplitFragment(v)
		case "dns":
			f.DNS = v
		default:
			f.SetExtra(key, v)
		}
	}
}

// BuildQueryParams собирает url.Values из полей f. Порядок ключей при
// кодировании определяется url.Values.Encode (алфавитный) — переупорядочивание
// параметров при round-trip допустимо по контракту.
func BuildQueryParams(f *Fields) url.Values {
	q := url.Values{}
	if f.Transport != "" && f.Transport != "tcp" {
		q.Set("type", f.Transport)
	}
	setNonEmpty(q, "security", f.Security)
	setNonEmpty(q, "encryption", f.Encryption)
	setNonEmpty(q, "sni", f.SNI)
	setNonEmpty(q, "host", f.HostHeader)
	setNonEmpty(q, "path", f.Path)
	setNonEmpty(q, "serviceName", f.ServiceName)
	setNonEmpty(q, "headerType", f.HeaderType)
	if len(f.ALPN) > 0 {
		q.Set("alpn", strings.Join(f.ALPN, ","))
	}
	setNonEmpty(q, "fp", f.Fingerprint)
	setNonEmpty(q, "pbk", f.PublicKey)
	setNonEmpty(q, "sid", f.ShortID)
	setNonEmpty(q, "spx", f.SpiderX)
	setNonEmpty(q, "flow", f.Flow)
	if f.AllowInsecure {
		q.Set("allowInsecure", "1")
	}
	if f.MuxConcurrency > 0 {
		q.Set("mux", strconv.Itoa(f.MuxConcurrency))
	}
	if f.FragmentLength != "" {
		q.Set("fragment", JoinFragment(f.FragmentLength, f.FragmentInterval))
	}
	setNonEmpty(q, "dns", f.DNS)
	for k, v := range f.Extra {
		q.Set(k, v)
	}
	return q
}

func setNonEmpty(q url.Values, key, val string) {
	if val != "" {
		q.Set(key, val)
	}
}

// SplitALPN разбирает список ALPN-идентификаторов через запятую.
func SplitALPN(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitFragment разбирает "<length>,<interval>"; обе части — диапазоны "N-M".
func SplitFragment(raw string) (string, string) {
	if idx := strings.IndexByte(raw, ','); idx != -1 {
		return raw[:idx], raw[idx+1:]
	}
	return raw, ""
}

// JoinFragment — обратная операция к SplitFragment.
func JoinFragment(length, interval string) string {
	if interval == "" {
		return length
	}
	return length + "," + interval
}
