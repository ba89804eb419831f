// Package utils содержит общие вспомогательные функции для обработки
// прокси-ссылок: декодирование base64 во всех встречающихся вариантах,
// валидация хостов и портов, работа с URL-параметрами.
//
//nolint:revive
package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ParamsFromValues конвертирует url.Values в map[string]string, беря первый элемент каждого ключа.
func ParamsFromValues(vals url.Values) map[string]string {
	if vals == nil {
		return map[string]string{}
	}
	m := make(map[string]string, len(vals))
	for k, vs := range vals {
		if len(vs) > 0 {
			m[k] = vs[0]
		}
	}
	return m
}

// EncodeRawURBase64 кодирует данные в base64 URL-safe без padding.
func EncodeRawURBase64(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// EncodeBase64 кодирует строку в стандартный base64 с padding.
func EncodeBase64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// DecodeBase64Tolerant — тотальный декодер: стандартный base64, при неудаче
// повторная попытка после замены URL-safe символов ('-'→'+', '_'→'/').
// При второй неудаче возвращает пустую строку, никогда не возвращает ошибку.
// Вызывающий обязан трактовать "" как «декодировать не удалось».
func DecodeBase64Tolerant(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if d, err := base64.StdEncoding.DecodeString(padBase64(s)); err == nil {
		return string(d)
	}
	swapped := strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if d, err := base64.StdEncoding.DecodeString(padBase64(swapped)); err == nil {
		return string(d)
	}
	return ""
}

// EncodeBase64URL кодирует строку в URL-safe base64 без хвостовых '='.
func EncodeBase64URL(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

// DecodeBase64URL декодирует URL-safe base64, нормализуя padding до
// кратности 4. Тотальная функция: при неудаче возвращает пустую строку.
func DecodeBase64URL(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if s == "" {
		return ""
	}
	d, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return ""
	}
	return string(d)
}

func padBase64(s string) string {
	if m := len(s) % 4; m != 0 {
		return s + strings.Repeat("=", 4-m)
	}
	return s
}

// === Регулярные выражения ===
var (
	// hostRegex валидирует доменные имена (включая Punycode xn--)
	hostRegex = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z0-9]([a-z0-9-]*[a-z0-9])?$|^xn--([a-z0-9-]+\.)+[a-z0-9-]+$`)
)

// AutoDecodeBase64 пытается декодировать весь входной буфер как base64.
// Если успешно — возвращает декодированные байты, иначе — исходные данные.
// Используется при импорте подписки: plaintext-документ проходит без
// изменений, а не превращается в пустую строку.
func AutoDecodeBase64(data []byte) []byte {
	trimmed := bytes.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' || r == ' ' {
			return -1
		}
		return r
	}, data)
	if len(trimmed) == 0 {
		return data
	}
	s := string(trimmed)
	if d, err := base64.StdEncoding.DecodeString(padBase64(s)); err == nil {
		return d
	}
	if d, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return d
	}
	return data
}

// DecodeUserInfo безопасно декодирует base64-закодированный userinfo,
// определяя тип кодировки по наличию символов и padding.
func DecodeUserInfo(s string) ([]byte, error) {
	isURLSafe := strings.ContainsAny(s, "-_")
	isPadded := strings.HasSuffix(s, "=")
	var enc *base64.Encoding
	switch {
	case isURLSafe && isPadded:
		enc = base64.URLEncoding
	case isURLSafe && !isPadded:
		enc = base64.RawURLEncoding
	case !isURLSafe && isPadded:
		enc = base64.StdEncoding
	default:
		enc = base64.RawStdEncoding
	}
	return enc.DecodeString(s)
}

// IsValidHost проверяет, что хост — это либо валидный домен,
// либо IP-адрес.
func IsValidHost(host string) bool {
	if host == "" {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return true
	}
	return hostRegex.MatchString(strings.ToLower(host))
}

// IsValidPort проверяет, что порт находится в диапазоне 1–65535.
func IsValidPort(port int) bool {
	return port > 0 && port <= 65535
}

// FullyDecode рекурсивно декодирует URL-encoded строки.
func FullyDecode(s string) string {
	for {
		decoded, err := url.QueryUnescape(s)
		if err != nil || decoded == s {
			return s
		}
		s = decoded
	}
}

// ParseHostPort извлекает и валидирует хост и порт из *url.URL.
func ParseHostPort(u *url.URL) (string, int, error) {
	host := u.Hostname()
	portStr := u.Port()
	if portStr == "" {
		return "", 0, fmt.Errorf("missing port")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port")
	}
	if !IsValidPort(port) {
		return "", 0, fmt.Errorf("port out of range")
	}
	if !IsValidHost(host) {
		return "", 0, fmt.Errorf("invalid host")
	}
	return host, port, nil
}
