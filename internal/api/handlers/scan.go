package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/wonny/krxscan/internal/breadth"
	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/internal/panelstore"
	"github.com/wonny/krxscan/internal/recorder"
	"github.com/wonny/krxscan/internal/runner"
	"github.com/wonny/krxscan/internal/scan"
	"github.com/wonny/krxscan/internal/scancache"
	"github.com/wonny/krxscan/internal/universe"
	"github.com/wonny/krxscan/pkg/logger"
)

// ScanHandler handles scan-related API endpoints
// ⭐ SSOT: 스캔 API 핸들러는 이 구조체에서만
type ScanHandler struct {
	runner   *runner.Runner
	store    *panelstore.Store
	selector *universe.Selector
	cache    *scancache.Cache
	recorder *recorder.Recorder // nil = /runs unavailable
	logger   *logger.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(
	run *runner.Runner,
	store *panelstore.Store,
	selector *universe.Selector,
	cache *scancache.Cache,
	rec *recorder.Recorder,
	log *logger.Logger,
) *ScanHandler {
	return &ScanHandler{
		runner:   run,
		store:    store,
		selector: selector,
		cache:    cache,
		recorder: rec,
		logger:   log,
	}
}

// Scan executes (or serves from cache) one scan
// GET /api/v1/scan?market=KOSPI&strategy=pullback_rr&top_n=200&...
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	req, err := parseScanRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.runner.Run(r.Context(), *req)
	if err != nil {
		var invalid *market.InvalidParamsError
		switch {
		case errors.As(err, &invalid):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, market.ErrDataUnavailable):
			respondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.WithError(err).Error("Scan failed")
			respondError(w, http.StatusInternalServerError, "Scan failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Levels returns the persisted levels projection for a signature
// GET /api/v1/levels?signature=<hex>
func (h *ScanHandler) Levels(w http.ResponseWriter, r *http.Request) {
	sig := r.URL.Query().Get("signature")
	if sig == "" {
		respondError(w, http.StatusBadRequest, "Missing 'signature' parameter")
		return
	}
	levels, ok := h.cache.GetLevels(sig)
	if !ok {
		respondError(w, http.StatusNotFound, "No levels for signature")
		return
	}
	respondJSON(w, http.StatusOK, levels)
}

// universeResponse is the /universe payload
type universeResponse struct {
	Info    universe.Info `json:"info"`
	Tickers []string      `json:"tickers"`
}

// Universe resolves the current scan universe without running a scan
// GET /api/v1/universe?market=KOSPI&top_n=200&rank_by=market_cap
func (h *ScanHandler) Universe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	m, err := market.Parse(q.Get("market"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	topN, err := intParam(q.Get("top_n"), 200)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'top_n' parameter")
		return
	}

	panel, err := h.store.LoadOrRebuild(m)
	if err != nil {
		if errors.Is(err, market.ErrDataUnavailable) {
			respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger.WithError(err).Error("Panel load failed")
		respondError(w, http.StatusInternalServerError, "Panel load failed")
		return
	}

	uniPanel, info, err := h.selector.Select(panel, topN, universe.RankBy(q.Get("rank_by")))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, universeResponse{Info: info, Tickers: uniPanel.Tickers()})
}

// strategyInfo describes one registered strategy
type strategyInfo struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Strategies lists the registered scan strategies
// GET /api/v1/strategies
func (h *ScanHandler) Strategies(w http.ResponseWriter, r *http.Request) {
	var out []strategyInfo
	for _, s := range scan.Registry(h.logger) {
		out = append(out, strategyInfo{Key: s.Key(), Name: s.Name()})
	}
	respondJSON(w, http.StatusOK, out)
}

// Runs returns recent scan history
// GET /api/v1/runs?limit=20
func (h *ScanHandler) Runs(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		respondError(w, http.StatusNotFound, "Scan history disabled")
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"), 20)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
		return
	}
	runs, err := h.recorder.Recent(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("History query failed")
		respondError(w, http.StatusInternalServerError, "History query failed")
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// parseScanRequest builds a runner request from query parameters.
// Unspecified strategy params keep their defaults.
func parseScanRequest(r *http.Request) (*runner.Request, error) {
	q := r.URL.Query()

	m, err := market.Parse(q.Get("market"))
	if err != nil {
		return nil, err
	}

	req := &runner.Request{
		Market:      m,
		Strategy:    q.Get("strategy"),
		RankBy:      universe.RankBy(q.Get("rank_by")),
		BreadthMode: breadth.Mode(q.Get("breadth")),
		Params:      scan.DefaultParams(),
		NoCache:     q.Get("no_cache") == "true" || q.Get("no_cache") == "1",
	}
	if req.Strategy == "" {
		req.Strategy = "pullback_rr"
	}
	if req.RankBy == "" {
		req.RankBy = universe.ByMarketCap
	}
	if req.TopN, err = intParam(q.Get("top_n"), 200); err != nil {
		return nil, errors.New("invalid 'top_n' parameter")
	}

	if err := overrideFloat(q.Get("tolerance"), &req.Params.Tolerance); err != nil {
		return nil, errors.New("invalid 'tolerance' parameter")
	}
	if err := overrideInt(q.Get("stop_lookback"), &req.Params.StopLookback); err != nil {
		return nil, errors.New("invalid 'stop_lookback' parameter")
	}
	if err := overrideFloat(q.Get("stop_buffer"), &req.Params.StopBuffer); err != nil {
		return nil, errors.New("invalid 'stop_buffer' parameter")
	}
	if err := overrideInt(q.Get("target_lookback"), &req.Params.TargetLookback); err != nil {
		return nil, errors.New("invalid 'target_lookback' parameter")
	}
	if err := overrideFloat(q.Get("min_rr"), &req.Params.MinRR); err != nil {
		return nil, errors.New("invalid 'min_rr' parameter")
	}
	if err := overrideInt(q.Get("ma5_up_days"), &req.Params.MA5UpDays); err != nil {
		return nil, errors.New("invalid 'ma5_up_days' parameter")
	}

	return req, nil
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func overrideFloat(s string, dst *float64) error {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func overrideInt(s string, dst *int) error {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
