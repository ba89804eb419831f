package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"sub-rewrite/hysteria2"
	"sub-rewrite/internal/config"
	"sub-rewrite/internal/geoip"
	"sub-rewrite/internal/link"
	"sub-rewrite/internal/pipeline"
	"sub-rewrite/internal/publish"
	"sub-rewrite/internal/rules"
	"sub-rewrite/internal/utils"
	"sub-rewrite/internal/validator"
	"sub-rewrite/ss"
	"sub-rewrite/ssr"
	"sub-rewrite/trojan"
	"sub-rewrite/vless"
	"sub-rewrite/vmess"
)

const maxRequestBytes = 10 * 1024 * 1024 // 10 MB

// Rate limiting per client IP with TTL
var (
	ipLimiter    = make(map[string]*rate.Limiter)
	ipLastSeen   = make(map[string]time.Time)
	limiterMutex sync.Mutex
)

func getLimiter(ip string) *rate.Limiter {
	limiterMutex.Lock()
	defer limiterMutex.Unlock()
	ipLastSeen[ip] = time.Now()
	if limiter, exists := ipLimiter[ip]; exists {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Every(500*time.Millisecond), 3)
	ipLimiter[ip] = limiter
	return limiter
}

func cleanupLimiters() {
	ticker := time.NewTicker(2 * time.Minute)
	go func() {
		for range ticker.C {
			limiterMutex.Lock()
			now := time.Now()
			for ip, last := range ipLastSeen {
				if now.Sub(last) > 30*time.Minute {
					delete(ipLimiter, ip)
					delete(ipLastSeen, ip)
				}
			}
			limiterMutex.Unlock()
		}
	}()
}

// parseOptions читает опции обработки из query-параметров запроса.
func parseOptions(q url.Values) rules.Options {
	boolOpt := func(key string) bool {
		v := q.Get(key)
		return v == "1" || strings.EqualFold(v, "true")
	}
	opts := rules.Options{
		EnableMux:        boolOpt("mux"),
		EnableFragment:   boolOpt("fragment"),
		AllowInsecure:    boolOpt("insecure"),
		EnableALPN:       boolOpt("alpn"),
		EnableCDNIP:      boolOpt("cdn"),
		CustomCDN:        strings.TrimSpace(q.Get("cdn_ip")),
		EnableDNS:        boolOpt("dns"),
		CustomDNS:        strings.TrimSpace(q.Get("dns_server")),
		AddLocationFlag:  boolOpt("rename"),
		CustomBaseName:   strings.TrimSpace(q.Get("base_name")),
		RawExport:        boolOpt("raw"),
		FragmentLength:   strings.TrimSpace(q.Get("fragment_length")),
		FragmentInterval: strings.TrimSpace(q.Get("fragment_interval")),
	}
	if n, err := strconv.Atoi(q.Get("mux_concurrency")); err == nil {
		opts.MuxConcurrency = n
	}
	return opts
}

type server struct {
	processor *pipeline.Processor
	cache     *geoip.Cache
	gist      *publish.GistClient
	describer *publish.Describer
	filename  string
	log       zerolog.Logger
}

func (s *server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	clientIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		clientIP = r.RemoteAddr
	}
	if !getLimiter(clientIP).Allow() {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		http.Error(w, "empty input", http.StatusBadRequest)
		return
	}

	opts := parseOptions(r.URL.Query())
	doc, stats := s.processor.Process(r.Context(), string(body), opts)
	s.cache.Flush()

	if r.URL.Query().Get("publish") == "1" {
		if s.gist == nil {
			http.Error(w, "publishing is not configured", http.StatusServiceUnavailable)
			return
		}
		desc := s.describer.Describe(r.Context(), stats.Rewritten, time.Now())
		res, err := s.gist.Publish(r.Context(), s.filename, doc, desc, r.URL.Query().Get("gist_id"))
		if err != nil {
			s.log.Error().Err(err).Msg("publish failed")
			http.Error(w, fmt.Sprintf("publish failed: %v", err), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprintf(w, `{"id":%q,"raw_url":%q,"description":%q}`, res.ID, res.RawURL, desc)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	_, _ = w.Write([]byte(doc))
}

func main() {
	configPath := flag.String("config", "./config/settings.ini", "path to settings.ini")
	genCountries := flag.Bool("gen-countries", false, "regenerate config/countries.yaml and exit")
	flag.Parse()

	if *genCountries {
		if err := utils.GenerateCountries(); err != nil {
			fmt.Fprintf(os.Stderr, "generate countries: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("countries.yaml updated")
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	countries, err := utils.LoadCountries(cfg.Server.CountriesFile)
	if err != nil {
		log.Warn().Err(err).Msg("countries file unavailable, falling back to bare codes")
		countries = map[string]utils.CountryInfo{}
	}
	ruleSet := validator.DefaultRules()
	if cfg.Server.RulesFile != "" {
		loaded, err := validator.LoadRules(cfg.Server.RulesFile)
		if err != nil {
			log.Warn().Err(err).Msg("rules file unavailable, using built-in rules")
		} else {
			ruleSet = loaded
		}
	}

	if err := os.MkdirAll(cfg.Resolver.CacheDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("cannot create cache dir")
	}
	cache := geoip.NewCache(cfg.Resolver.CacheDir, log)
	cache.Load()
	resolver := geoip.NewResolver(cache, countries, log)

	registry := link.NewRegistry(
		vmess.NewCodec(validator.ForProtocol("vmess", ruleSet)),
		vless.NewCodec(validator.ForProtocol("vless", ruleSet)),
		trojan.NewCodec(validator.ForProtocol("trojan", ruleSet)),
		ss.NewCodec(),
		ssr.NewCodec(),
		hysteria2.NewCodec(),
	)
	processor := pipeline.New(registry, resolver, log)

	srv := &server{
		processor: processor,
		cache:     cache,
		describer: publish.NewDescriber(cfg.Publish.DescribeEndpoint, log),
		filename:  cfg.Publish.GistFilename,
		log:       log,
	}
	if cfg.Publish.GistToken != "" {
		srv.gist = publish.NewGistClient(cfg.Publish.GistToken, log)
	}

	cleanupLimiters()
	mux := http.NewServeMux()
	mux.HandleFunc("/rewrite", srv.handleRewrite)

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	cache.Flush()
	log.Info().Msg("server stopped")
}
