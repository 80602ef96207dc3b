package krx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/krxscan/internal/breadth"
	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/pkg/httputil"
	"github.com/wonny/krxscan/pkg/logger"
)

// IndexService fetches market index closing levels from the Naver daily
// index pages. Used only by the breadth gate, which is fail-open, so
// callers treat errors as "no index data".
type IndexService struct {
	httpClient *httputil.Client
	baseURL    string
	logger     *logger.Logger
}

// NewIndexService creates an index close fetcher
func NewIndexService(httpClient *httputil.Client, naverBaseURL string, log *logger.Logger) *IndexService {
	return &IndexService{httpClient: httpClient, baseURL: naverBaseURL, logger: log}
}

func indexCode(m market.Market) string {
	if m == market.KOSDAQ {
		return "KOSDAQ"
	}
	return "KOSPI"
}

// FetchSeries fetches at least `days` daily index closes, oldest last
// page first. The sise_index_day page serves six rows per page.
func (s *IndexService) FetchSeries(ctx context.Context, m market.Market, days int) ([]breadth.Point, error) {
	if days <= 0 {
		days = 130
	}
	code := indexCode(m)
	var points []breadth.Point

	// 6 rows per page; a couple of extra pages cover holidays
	maxPages := days/6 + 2
	for page := 1; page <= maxPages && len(points) < days; page++ {
		pageURL := fmt.Sprintf("%s/sise/sise_index_day.naver?code=%s&page=%d",
			strings.TrimRight(s.baseURL, "/"), code, page)
		pts, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("fetch index page %d: %w", page, err)
		}
		if len(pts) == 0 {
			break
		}
		points = append(points, pts...)
	}

	s.logger.WithFields(map[string]interface{}{
		"index":  code,
		"points": len(points),
	}).Debug("Fetched index series")
	return points, nil
}

func (s *IndexService) fetchPage(ctx context.Context, pageURL string) ([]breadth.Point, error) {
	resp, err := s.httpClient.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}

	var points []breadth.Point
	doc.Find("table.type_1 tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		dateText := strings.TrimSpace(cells.Eq(0).Text())
		closeText := strings.TrimSpace(cells.Eq(1).Text())
		d, err := parseNaverDate(dateText)
		if err != nil {
			return
		}
		c, err := strconv.ParseFloat(strings.ReplaceAll(closeText, ",", ""), 64)
		if err != nil || c <= 0 {
			return
		}
		points = append(points, breadth.Point{Date: d, Close: c})
	})
	return points, nil
}

// parseNaverDate parses the YYYY.MM.DD format used on the index pages
func parseNaverDate(s string) (time.Time, error) {
	t, err := time.Parse("2006.01.02", s)
	if err != nil {
		return time.Time{}, err
	}
	return market.Day(t), nil
}
