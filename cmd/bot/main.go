package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tgparkk/trading-bot-sub001/internal/api"
	"github.com/tgparkk/trading-bot-sub001/internal/broker"
	"github.com/tgparkk/trading-bot-sub001/internal/config"
	"github.com/tgparkk/trading-bot-sub001/internal/engine"
	"github.com/tgparkk/trading-bot-sub001/internal/execution"
	"github.com/tgparkk/trading-bot-sub001/internal/ledger"
	"github.com/tgparkk/trading-bot-sub001/internal/marketclock"
	"github.com/tgparkk/trading-bot-sub001/internal/metrics"
	"github.com/tgparkk/trading-bot-sub001/internal/notify"
	"github.com/tgparkk/trading-bot-sub001/internal/screener"
	"github.com/tgparkk/trading-bot-sub001/internal/store"
	"github.com/tgparkk/trading-bot-sub001/internal/strategy"
	"github.com/tgparkk/trading-bot-sub001/internal/supervisor"
	"github.com/tgparkk/trading-bot-sub001/internal/util"
	"github.com/tgparkk/trading-bot-sub001/internal/window"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	cfg.OverlayEnv()

	log := util.NewLogger(cfg.App.LogLevel)

	metricsSrv := metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cache broker.QuoteCacher
	if cfg.Storage.RedisAddr != "" {
		qc, err := store.NewQuoteCache(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisDB, log)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, quotes uncached")
		} else {
			cache = qc
			defer qc.Close()
		}
	}

	var persist broker.Persistence = store.NopPersistence{}
	if cfg.Storage.PostgresDSN != "" {
		pg, err := store.NewPostgres(ctx, cfg.Storage.PostgresDSN, log)
		if err != nil {
			log.Warn().Err(err).Msg("postgres unavailable, audit trail disabled")
		} else {
			persist = pg
			defer pg.Close()
		}
	}

	kis := broker.NewKISClient(cfg.Broker, cache, log)

	var feed broker.MarketDataFeed
	if cfg.Broker.WSURL != "" {
		feed = broker.NewWSFeed(cfg.Broker.WSURL, log)
	} else {
		log.Warn().Msg("no ws_url configured, using synthetic feed")
		feed = broker.NewStubFeed(time.Second)
	}

	var notifier broker.Notifier = notify.Nop{}
	if tg := notify.NewTelegram(cfg.Telegram, log); tg != nil {
		tg.Start(ctx)
		notifier = tg
	}

	clock, err := marketclock.New(cfg.Market, time.Local)
	if err != nil {
		log.Fatal().Err(err).Msg("market calendar")
	}

	windows := window.NewStore(cfg.Scalping.TickWindow)
	positions := ledger.New()
	stats := &ledger.Stats{}
	sizer := execution.NewSizer(cfg.Execution, cfg.Scalping.PositionSize, log)
	executor := execution.NewExecutor(kis, persist, log)

	registry, err := strategy.NewRegistry(
		strategy.NewBreakout(windows, cfg.Scalping.PriceChangeThreshold),
		strategy.NewMomentum(windows, cfg.Scalping.PriceChangeThreshold),
		strategy.NewGap(windows, kis, cfg.Scalping.PriceChangeThreshold),
		strategy.NewVWAP(windows, cfg.Scalping.PriceChangeThreshold),
		strategy.NewVolumeSpike(windows, cfg.Scalping.VolumeMultiplier),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("strategy registry")
	}
	scorer := strategy.NewScorer(registry, cfg.Screening.StrategyTimeout(), log)

	pacing := time.Duration(cfg.Supervisor.SweepPacingMs) * time.Millisecond
	scr := screener.New(kis, scorer, cfg.Screening, cfg.Broker.MarketType, pacing, log)
	universe := screener.NewUniverse()

	eng := engine.New(cfg.Scalping, feed, windows, positions, sizer, executor, kis, notifier, stats, log)

	sup, err := supervisor.New(supervisor.Deps{
		Cfg:       cfg.Supervisor,
		ScreenCfg: cfg.Screening,
		ExecCfg:   cfg.Execution,
		Clock:     clock,
		Feed:      feed,
		Transport: kis,
		Screener:  scr,
		Universe:  universe,
		Scorer:    scorer,
		Engine:    eng,
		Windows:   windows,
		Positions: positions,
		Stats:     stats,
		Sizer:     sizer,
		Executor:  executor,
		Notifier:  notifier,
		Persist:   persist,
		Log:       log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("supervisor")
	}

	dashboard := api.New(sup, positions, universe, windows, feed, log)
	apiSrv := dashboard.Serve(cfg.App.APIAddr)
	log.Info().Str("addr", cfg.App.APIAddr).Msg("api up")

	if err := sup.Run(ctx); err != nil {
		log.Error().Err(err).Msg("supervisor exited")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		log.Warn().Err(err).Msg("api shutdown")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		log.Warn().Err(err).Msg("metrics shutdown")
	}
	log.Info().Msg("bye")
}
