// DNS-over-HTTPS: разрешение доменного имени в IPv4 перед опросом
// провайдеров. Потребляется первый A-ответ; любая неудача — не ошибка,
// резолюция продолжается по исходному имени.
package geoip

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultDoHEndpoint = "https://dns.google/resolve"
	dohTimeout         = 2 * time.Second
	typeA              = 1
)

type dohAnswer struct {
	Type int    `json:"type"`
	Data string `json:"data"`
}

type dohResponse struct {
	Status int         `json:"Status"`
	Answer []dohAnswer `json:"Answer"`
}

// resolveDoH возвращает первый A-адрес для name либо пустую строку.
func (r *Resolver) resolveDoH(ctx context.Context, name string) string {
	ctx, cancel := context.WithTimeout(ctx, dohTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("name", name)
	q.Set("type", "A")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.dohEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := r.client.Do(req)
	if err != nil {
		return ""
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return ""
	}

	var parsed dohResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Status != 0 {
		return ""
	}
	for _, a := range parsed.Answer {
		if a.Type == typeA && a.Data != "" {
			return a.Data
		}
	}
	return ""
}
