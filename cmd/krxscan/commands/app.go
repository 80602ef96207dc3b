package commands

import (
	"fmt"

	"github.com/wonny/krxscan/internal/krx"
	"github.com/wonny/krxscan/internal/panelstore"
	"github.com/wonny/krxscan/internal/recorder"
	"github.com/wonny/krxscan/internal/runner"
	"github.com/wonny/krxscan/internal/scancache"
	"github.com/wonny/krxscan/internal/universe"
	"github.com/wonny/krxscan/pkg/config"
	"github.com/wonny/krxscan/pkg/httputil"
	"github.com/wonny/krxscan/pkg/logger"
)

// app bundles the wired components shared by the CLI commands
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	store      *panelstore.Store
	selector   *universe.Selector
	cache      *scancache.Cache
	downloader *krx.Downloader
	krxClient  *krx.Client
	index      *krx.IndexService
	names      *krx.NameService
	recorder   *recorder.Recorder // nil when history db cannot open
}

// newApp loads config and wires every component the commands share
// ⭐ SSOT: CLI 컴포넌트 조립은 여기서만
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	httpClient := httputil.New(log, cfg.KRX.Timeout, cfg.KRX.RatePerSec)
	krxClient := krx.NewClient(httpClient, cfg.KRX, log)

	a := &app{
		cfg:        cfg,
		log:        log,
		store:      panelstore.New(cfg.Data, log),
		selector:   universe.New(log),
		cache:      scancache.New(cfg.Data, log),
		downloader: krx.NewDownloader(krxClient, cfg.Data, cfg.KRX, log),
		krxClient:  krxClient,
		index:      krx.NewIndexService(httpClient, cfg.KRX.NaverBaseURL, log),
		names:      krx.NewNameService(httpClient, cfg.Data, cfg.KRX, log),
	}

	// history is optional; a failed open degrades, never blocks
	rec, err := recorder.Open(cfg.Data.HistoryDB, log)
	if err != nil {
		log.WithError(err).Warn("Scan history disabled")
	} else {
		a.recorder = rec
	}

	return a, nil
}

// runner builds the scan runner over the app's components
func (a *app) runner() *runner.Runner {
	return runner.New(a.store, a.selector, a.cache, a.recorder, a.index, a.krxClient, a.log)
}

// close releases held resources
func (a *app) close() {
	if a.recorder != nil {
		a.recorder.Close()
	}
}
