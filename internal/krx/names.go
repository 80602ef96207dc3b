package krx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/pkg/config"
	"github.com/wonny/krxscan/pkg/httputil"
	"github.com/wonny/krxscan/pkg/logger"
)

// NameService resolves ticker codes to company names. Names come from
// the Naver finance page and are cached on disk per calendar day.
type NameService struct {
	httpClient *httputil.Client
	baseURL    string
	cacheDir   string
	logger     *logger.Logger

	names map[string]string
}

// NewNameService creates a ticker name resolver
func NewNameService(httpClient *httputil.Client, dataCfg config.DataConfig, krxCfg config.KRXConfig, log *logger.Logger) *NameService {
	return &NameService{
		httpClient: httpClient,
		baseURL:    krxCfg.NaverBaseURL,
		cacheDir:   dataCfg.Dir,
		logger:     log,
		names:      make(map[string]string),
	}
}

func (s *NameService) cachePath(day time.Time) string {
	return filepath.Join(s.cacheDir, fmt.Sprintf("ticker_names_%s.json", market.DayKey(day)))
}

// Load reads today's name cache if present. Missing or corrupt caches
// start empty; names fill in lazily via Resolve.
func (s *NameService) Load(now time.Time) {
	data, err := os.ReadFile(s.cachePath(market.Day(now)))
	if err != nil {
		return
	}
	var names map[string]string
	if err := json.Unmarshal(data, &names); err != nil {
		s.logger.WithError(err).Warn("Ticker name cache corrupt, starting fresh")
		return
	}
	s.names = names
}

// save writes the cache atomically; failures are logged, not returned
func (s *NameService) save(now time.Time) {
	path := s.cachePath(market.Day(now))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.WithError(err).Warn("Create name cache dir failed")
		return
	}
	data, err := json.MarshalIndent(s.names, "", "  ")
	if err != nil {
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "_tmp_names_*.json")
	if err != nil {
		s.logger.WithError(err).Warn("Write name cache failed")
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return
	}
	if err := tmp.Close(); err != nil {
		return
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		s.logger.WithError(err).Warn("Finalize name cache failed")
	}
}

// Resolve returns names for the given tickers, fetching any misses.
// A ticker whose page cannot be parsed keeps its code as its name.
func (s *NameService) Resolve(ctx context.Context, tickers []string) map[string]string {
	out := make(map[string]string, len(tickers))
	fetched := 0
	for _, t := range tickers {
		if name, ok := s.names[t]; ok {
			out[t] = name
			continue
		}
		name, err := s.fetchName(ctx, t)
		if err != nil {
			s.logger.WithField("ticker", t).WithError(err).Debug("Ticker name lookup failed")
			out[t] = t
			continue
		}
		s.names[t] = name
		out[t] = name
		fetched++
	}
	if fetched > 0 {
		s.save(time.Now())
		s.logger.WithField("fetched", fetched).Debug("Ticker names fetched")
	}
	return out
}

// fetchName scrapes one company name from the Naver finance item page
func (s *NameService) fetchName(ctx context.Context, ticker string) (string, error) {
	itemURL := fmt.Sprintf("%s/item/main.naver?code=%s", strings.TrimRight(s.baseURL, "/"), ticker)
	resp, err := s.httpClient.Get(ctx, itemURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse item page: %w", err)
	}

	name := strings.TrimSpace(doc.Find("div.wrap_company h2 a").First().Text())
	if name == "" {
		// older page layout
		name = strings.TrimSpace(doc.Find("div.wrap_company h2").First().Text())
	}
	if name == "" {
		return "", fmt.Errorf("company name not found for %s", ticker)
	}
	return name, nil
}
