package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Describer генерирует короткое описание публикации через внешний
// текстовый API. При любой ошибке деградирует до детерминированного
// шаблона — публикация не зависит от доступности генератора.
type Describer struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

// NewDescriber создаёт генератор описаний; пустой endpoint означает
// «только шаблон».
func NewDescriber(endpoint string, log zerolog.Logger) *Describer {
	return &Describer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 8 * time.Second},
		log:      log.With().Str("component", "describe").Logger(),
	}
}

type describeRequest struct {
	Count     int    `json:"count"`
	Timestamp string `json:"timestamp"`
}

type describeResponse struct {
	Text string `json:"text"`
}

// Describe возвращает описание для count конфигов на момент ts.
func (d *Describer) Describe(ctx context.Context, count int, ts time.Time) string {
	fallback := fmt.Sprintf("%d configs · updated %s", count, ts.Format("2006-01-02 15:04"))
	if d.endpoint == "" {
		return fallback
	}

	body, err := json.Marshal(describeRequest{Count: count, Timestamp: ts.Format(time.RFC3339)})
	if err != nil {
		return fallback
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fallback
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Debug().Err(err).Msg("describe endpoint unavailable, using template")
		return fallback
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fallback
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fallback
	}
	var parsed describeResponse
	if err := json.Unmarshal(data, &parsed); err != nil || parsed.Text == "" {
		return fallback
	}
	return parsed.Text
}
