// Пакет geoip — резолвер локаций серверов: кэш, DNS-over-HTTPS и
// последовательная цепочка геолокационных провайдеров с независимыми
// таймаутами. Пакетная резолюция идёт группами с паузой между группами —
// backpressure против rate-limit'ов сторонних сервисов.
package geoip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"sub-rewrite/internal/utils"
)

const (
	providerTimeout = 3500 * time.Millisecond
	maxProviderBody = 1 << 20 // 1 MB

	// Группы пакетной резолюции: размер и пауза между группами.
	batchGroupSize  = 3
	batchGroupDelay = 800 * time.Millisecond

	// Хосты короче трёх символов не бывают валидными целями.
	minHostLength = 3
)

// ErrNotFound — локацию определить не удалось; негативный результат
// не кэшируется, повторный запуск попробует снова.
var ErrNotFound = errors.New("geoip: location not found")

// Resolver выполняет резолюцию хост→Record. Одновременные запросы одного
// хоста схлопываются через singleflight; запросы к провайдерам проходят
// через общий rate-лимитер.
type Resolver struct {
	cache       *Cache
	client      *http.Client
	providers   []Provider
	countries   map[string]utils.CountryInfo
	limiter     *rate.Limiter
	sf          singleflight.Group
	dohEndpoint string
	log         zerolog.Logger
}

// Option настраивает Resolver.
type Option func(*Resolver)

// WithProviders заменяет цепочку провайдеров (тесты, конфигурация).
func WithProviders(ps []Provider) Option {
	return func(r *Resolver) { r.providers = ps }
}

// WithDoHEndpoint заменяет DoH-эндпоинт.
func WithDoHEndpoint(u string) Option {
	return func(r *Resolver) { r.dohEndpoint = u }
}

// WithHTTPClient заменяет HTTP-клиент.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// NewResolver создаёт резолвер поверх кэша и страновой таблицы.
func NewResolver(cache *Cache, countries map[string]utils.CountryInfo, log zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		cache:       cache,
		client:      &http.Client{Timeout: providerTimeout},
		providers:   DefaultProviders(),
		countries:   countries,
		limiter:     rate.NewLimiter(rate.Every(300*time.Millisecond), batchGroupSize),
		dohEndpoint: defaultDoHEndpoint,
		log:         log.With().Str("component", "geoip").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve возвращает локацию хоста. Приватные, loopback и слишком короткие
// хосты отклоняются сразу и никогда не уходят к провайдерам.
func (r *Resolver) Resolve(ctx context.Context, host string) (Record, error) {
	host = strings.TrimSpace(host)
	if !EligibleHost(host) {
		return Record{}, ErrNotFound
	}
	if rec, ok := r.cache.Get(host); ok {
		return rec, nil
	}

	v, err, _ := r.sf.Do(host, func() (interface{}, error) {
		// Перепроверка после входа в singleflight: ждавшие горутины
		// получают запись, положенную первой.
		if rec, ok := r.cache.Get(host); ok {
			return rec, nil
		}
		return r.resolveUncached(ctx, host)
	})
	if err != nil {
		return Record{}, err
	}
	return v.(Record), nil
}

func (r *Resolver) resolveUncached(ctx context.Context, host string) (Record, error) {
	target := host
	if net.ParseIP(host) == nil {
		if ip := r.resolveDoH(ctx, host); ip != "" {
			target = ip
		}
	}

	for _, p := range r.providers {
		if err := r.limiter.Wait(ctx); err != nil {
			return Record{}, err
		}
		rec, err := r.queryProvider(ctx, p, target)
		if err != nil {
			r.log.Debug().Str("provider", p.Name).Str("target", target).Err(err).Msg("provider miss")
			continue
		}
		rec.Code = strings.ToUpper(rec.Code)
		rec.Flag = utils.FlagFromCode(rec.Code)
		if rec.Country == "" {
			rec.Country = utils.CountryName(rec.Code, r.countries)
		}
		r.cache.Set(host, rec)
		if target != host {
			r.cache.Set(target, rec)
		}
		r.log.Debug().Str("host", host).Str("provider", p.Name).Str("code", rec.Code).Msg("resolved")
		return rec, nil
	}
	return Record{}, ErrNotFound
}

func (r *Resolver) queryProvider(ctx context.Context, p Provider, target string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	reqURL := strings.ReplaceAll(p.URL, "{target}", target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Record{}, err
	}
	req.Header.Set("User-Agent", "sub-rewrite/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return Record{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return Record{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return Record{}, err
	}
	return p.Parse(body, target)
}

// ResolveBatch резолвит дедуплицированный список хостов группами по
// batchGroupSize с паузой batchGroupDelay между группами. Неудача одного
// хоста не блокирует остальные; в результат попадают только успехи.
func (r *Resolver) ResolveBatch(ctx context.Context, hosts []string) map[string]Record {
	unique := dedupeEligible(hosts)
	results := make(map[string]Record, len(unique))
	if len(unique) == 0 {
		return results
	}

	var mu sync.Mutex
	for start := 0; start < len(unique); start += batchGroupSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(batchGroupDelay):
			}
		}
		end := start + batchGroupSize
		if end > len(unique) {
			end = len(unique)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, host := range unique[start:end] {
			host := host
			g.Go(func() error {
				rec, err := r.Resolve(gctx, host)
				if err != nil {
					return nil // неудача хоста не роняет группу
				}
				mu.Lock()
				results[host] = rec
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}

func dedupeEligible(hosts []string) []string {
	seen := make(map[string]struct{}, len(hosts))
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if !EligibleHost(h) {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// EligibleHost сообщает, можно ли вообще резолвить хост: отсекаются
// короткие/пустые имена, loopback, приватные и link-local адреса,
// а также заведомо локальные доменные суффиксы.
func EligibleHost(host string) bool {
	if len(host) < minHostLength {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
			ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified())
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".local") || strings.HasSuffix(lower, ".internal") {
		return false
	}
	return utils.IsValidHost(host)
}
