// Пакет publish — тонкие внешние коллабораторы: публикация документа
// подписки в gist и генерация описания. Ошибки публикации поднимаются
// вызывающему и не трогают уже вычисленный документ.
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

const defaultGistAPI = "https://api.github.com/gists"

// GistClient публикует текстовый документ как gist.
type GistClient struct {
	apiURL string
	token  string
	client *http.Client
	log    zerolog.Logger
}

// NewGistClient создаёт клиент с токеном доступа.
func NewGistClient(token string, log zerolog.Logger) *GistClient {
	return &GistClient{
		apiURL: defaultGistAPI,
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log.With().Str("component", "gist").Logger(),
	}
}

// WithAPIURL переопределяет эндпоинт (тесты).
func (g *GistClient) WithAPIURL(u string) *GistClient {
	g.apiURL = u
	return g
}

// Result — идентификатор и raw-ссылка опубликованного документа.
type Result struct {
	ID     string
	RawURL string
}

type gistFile struct {
	Content string `json:"content"`
	RawURL  string `json:"raw_url,omitempty"`
}

type gistPayload struct {
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Files       map[string]gistFile `json:"files"`
}

type gistResponse struct {
	ID    string              `json:"id"`
	Files map[string]gistFile `json:"files"`
}

// Publish создаёт gist либо обновляет существующий (existingID непустой).
func (g *GistClient) Publish(ctx context.Context, filename, content, description, existingID string) (Result, error) {
	payload := gistPayload{
		Description: description,
		Public:      false,
		Files:       map[string]gistFile{filename: {Content: content}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal gist payload: %w", err)
	}

	method := http.MethodPost
	url := g.apiURL
	if existingID != "" {
		method = http.MethodPatch
		url = g.apiURL + "/" + existingID
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("gist request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("gist API: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, err
	}
	var parsed gistResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Result{}, fmt.Errorf("gist response: %w", err)
	}

	res := Result{ID: parsed.ID}
	if f, ok := parsed.Files[filename]; ok {
		res.RawURL = f.RawURL
	}
	g.log.Info().Str("id", res.ID).Msg("document published")
	return res, nil
}
