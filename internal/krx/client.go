package krx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/pkg/config"
	"github.com/wonny/krxscan/pkg/httputil"
	"github.com/wonny/krxscan/pkg/logger"
)

// Client fetches daily quotation data from the KRX data portal
// ⭐ SSOT: KRX 시장 데이터 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new KRX client
func NewClient(httpClient *httputil.Client, cfg config.KRXConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    cfg.BaseURL,
	}
}

// krxDailyResponse represents the KRX getJsonData response envelope
type krxDailyResponse struct {
	OutBlock1 []krxDailyRow `json:"OutBlock_1"`
}

// krxDailyRow is one stock's daily quotation row (all fields come back as strings)
type krxDailyRow struct {
	ISU_SRT_CD string `json:"ISU_SRT_CD"` // 종목코드 (단축)
	ISU_ABBRV  string `json:"ISU_ABBRV"`  // 종목명
	TDD_OPNPRC string `json:"TDD_OPNPRC"` // 시가
	TDD_HGPRC  string `json:"TDD_HGPRC"`  // 고가
	TDD_LWPRC  string `json:"TDD_LWPRC"`  // 저가
	TDD_CLSPRC string `json:"TDD_CLSPRC"` // 종가
	ACC_TRDVOL string `json:"ACC_TRDVOL"` // 거래량
	ACC_TRDVAL string `json:"ACC_TRDVAL"` // 거래대금
	MKTCAP     string `json:"MKTCAP"`     // 시가총액
	LIST_SHRS  string `json:"LIST_SHRS"`  // 상장주식수
}

// mktID maps a market to the KRX market code
func mktID(m market.Market) (string, error) {
	switch m {
	case market.KOSPI:
		return "STK", nil
	case market.KOSDAQ:
		return "KSQ", nil
	default:
		return "", fmt.Errorf("unsupported market: %s", m)
	}
}

// FetchDaily fetches the full daily quotation table for one market and date.
// Non-trading days come back with zero rows; callers walk back to the
// previous business day themselves.
// ⭐ SSOT: 전종목 일봉 조회는 이 함수에서만
func (c *Client) FetchDaily(ctx context.Context, m market.Market, date time.Time) (*market.DailySnapshot, error) {
	mktId, err := mktID(m)
	if err != nil {
		return nil, err
	}
	trdDd := date.Format("20060102")

	// pykrx uses the same bld for 전종목시세
	formData := url.Values{
		"bld":         {"dbms/MDC/STAT/standard/MDCSTAT01501"},
		"locale":      {"ko_KR"},
		"mktId":       {mktId},
		"trdDd":       {trdDd},
		"share":       {"1"},
		"money":       {"1"},
		"csvxls_isNo": {"false"},
	}

	c.logger.WithFields(map[string]interface{}{
		"market":     m.String(),
		"trade_date": trdDd,
	}).Debug("Fetching daily quotations from KRX")

	// Browser-like headers are required; KRX blocks bot requests
	headers := map[string]string{
		"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept":          "application/json, text/javascript, */*; q=0.01",
		"Accept-Language": "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7",
		"Origin":          "http://data.krx.co.kr",
		"Referer":         "http://data.krx.co.kr/contents/MDC/MDI/mdiLoader/index.cmd?menuId=MDC0201020101",
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/comm/bldAttendant/getJsonData.cmd"
	resp, err := c.httpClient.PostForm(ctx, endpoint, formData, headers)
	if err != nil {
		return nil, fmt.Errorf("KRX API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("KRX API returned status %d: %s", resp.StatusCode, string(body[:min(200, len(body))]))
	}

	var apiResp krxDailyResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		preview := string(body)
		if len(preview) > 500 {
			preview = preview[:500]
		}
		c.logger.WithField("response_preview", preview).Error("Failed to parse KRX response")
		return nil, fmt.Errorf("decode KRX response: %w", err)
	}

	snap := &market.DailySnapshot{
		Market:       m,
		Date:         market.Day(date),
		Source:       "krx",
		HasValue:     true,
		HasMarketCap: true,
		HasShares:    true,
	}
	dropped := 0
	for _, row := range apiResp.OutBlock1 {
		if row.ISU_SRT_CD == "" {
			dropped++
			continue
		}
		closePrice := parseKRXNumber(row.TDD_CLSPRC)
		if closePrice <= 0 {
			dropped++
			continue
		}
		snap.Bars = append(snap.Bars, market.Bar{
			Ticker:    market.NormalizeTicker(row.ISU_SRT_CD),
			Date:      snap.Date,
			Open:      float64(parseKRXNumber(row.TDD_OPNPRC)),
			High:      float64(parseKRXNumber(row.TDD_HGPRC)),
			Low:       float64(parseKRXNumber(row.TDD_LWPRC)),
			Close:     float64(closePrice),
			Volume:    parseKRXNumber(row.ACC_TRDVOL),
			Value:     float64(parseKRXNumber(row.ACC_TRDVAL)),
			MarketCap: float64(parseKRXNumber(row.MKTCAP)),
			Shares:    float64(parseKRXNumber(row.LIST_SHRS)),
		})
	}
	snap.DroppedRows = dropped

	c.logger.WithFields(map[string]interface{}{
		"market":  m.String(),
		"date":    trdDd,
		"rows":    len(snap.Bars),
		"dropped": dropped,
	}).Info("Fetched daily quotations from KRX")

	return snap, nil
}

// FetchCaps fetches the latest market caps for the given markets as a
// ticker keyed map. Tickers absent from the result carry no cap at all.
func (c *Client) FetchCaps(ctx context.Context, date time.Time, markets ...market.Market) (map[string]float64, error) {
	caps := make(map[string]float64)
	for _, m := range markets {
		snap, err := c.FetchDaily(ctx, m, date)
		if err != nil {
			return nil, fmt.Errorf("fetch %s caps: %w", m, err)
		}
		for _, b := range snap.Bars {
			caps[b.Ticker] = b.MarketCap
		}
	}
	return caps, nil
}

// parseKRXNumber parses KRX number format (with commas) to int64
func parseKRXNumber(s string) int64 {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
