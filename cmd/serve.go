package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sinain-hud/core/internal/buffer"
	"github.com/sinain-hud/core/internal/config"
	"github.com/sinain-hud/core/internal/escalation"
	"github.com/sinain-hud/core/internal/fanout"
	"github.com/sinain-hud/core/internal/hub"
	"github.com/sinain-hud/core/internal/httpapi"
	"github.com/sinain-hud/core/internal/model"
	"github.com/sinain-hud/core/internal/profiler"
	"github.com/sinain-hud/core/internal/providers"
	"github.com/sinain-hud/core/internal/rpcclient"
	"github.com/sinain-hud/core/internal/situation"
	"github.com/sinain-hud/core/internal/tick"
	"github.com/sinain-hud/core/internal/tracing"
)

const (
	feedBufferCapacity  = buffer.DefaultFeedCap
	senseBufferCapacity = buffer.DefaultSenseCap
	ingressRPS          = 20.0
	ingressBurst        = 40
	defaultWSPort       = 18790
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the hub: tick engine, escalation, and both socket/HTTP surfaces",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

// lazyBroadcaster breaks the construction cycle between the escalation
// orchestrator (which needs a Broadcaster) and the fan-out server
// (which needs the orchestrator as its DirectSender): the orchestrator
// is built first against this proxy, and target is assigned once the
// server exists.
type lazyBroadcaster struct {
	target *fanout.Server
}

func (l *lazyBroadcaster) Broadcast(item model.FeedItem) {
	if l.target != nil {
		l.target.Broadcast(item)
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("serve: config load failed", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := buffer.NewFeedBuffer(feedBufferCapacity)
	sense := buffer.NewSenseBuffer(senseBufferCapacity)
	prof := profiler.New()
	tracer := tracing.NewTracer()

	journal, jerr := tracing.NewJournal(config.ExpandHome(cfg.TraceDir))
	if jerr != nil {
		logger.Warn("serve: trace journal disabled", "error", jerr)
		journal = nil
	}

	situationWriter := situation.New(config.ExpandHome(cfg.SituationMDPath), cfg.SituationMDEnabled)

	modelClient := providers.NewClient("tick", os.Getenv("OPENAI_API_KEY"), modelAPIBase())

	rpc := rpcclient.New(rpcclient.Config{
		WSURL:        cfg.OpenClaw.GatewayWSURL,
		GatewayToken: cfg.OpenClaw.GatewayToken,
		HookURL:      cfg.OpenClaw.HookURL,
		HookToken:    cfg.OpenClaw.HookToken,
	}, logger)

	broadcastProxy := &lazyBroadcaster{}
	orch := escalation.New(feed, broadcastProxy, rpc, rpc, cfg.OpenClaw.SessionKey, logger)
	orch.SetMode(cfg.Escalation.Mode, cfg.Escalation.CooldownMS)

	state := hub.New(orch, rpc, prof, logger)
	fan := fanout.New(state, state, orch, prof, logger)
	broadcastProxy.target = fan

	modeSwitch := hub.NewModeSwitch(ctx, cfg, orch, rpc, logger)

	engineCfg := tick.Config{
		DebounceMS:     cfg.Agent.DebounceMS,
		MaxIntervalMS:  cfg.Agent.MaxIntervalMS,
		CooldownMS:     cfg.Agent.CooldownMS,
		ContextAgeMS:   cfg.Agent.MaxAgeMS,
		Richness:       model.RichnessStandard,
		Model:          cfg.Agent.Model,
		FallbackModels: cfg.Agent.FallbackModels,
		MaxTokens:      cfg.Agent.MaxTokens,
		Temperature:    cfg.Agent.Temperature,
		PushToFeed:     true,
	}
	engine := tick.New(engineCfg, feed, sense, tracer, journal, modelClient, situationWriter, orch, fan, logger)

	ingress := httpapi.New(feed, sense, prof, tracer, modeSwitch, engine, fan, state, ingressRPS, ingressBurst, logger)

	mux := http.NewServeMux()
	ingress.RegisterRoutes(mux)
	mux.Handle("/ws", fan.Handler())

	addr := ":" + strconv.Itoa(wsPortOrDefault(cfg.WSPort))
	srv := &http.Server{Addr: addr, Handler: mux}

	prof.Start(func() int64 { return time.Now().UnixMilli() })
	defer prof.Stop()

	if cfg.Agent.Enabled {
		engine.Start(ctx)
		defer engine.Stop()
	}

	go fan.Start(ctx)

	go func() {
		if werr := config.Watch(ctx, cfgPath, cfg, modeSwitch.OnEdge, modeSwitch.OnReload, logger); werr != nil {
			logger.Warn("serve: config watch stopped", "error", werr)
		}
	}()

	go func() {
		logger.Info("serve: listening", "addr", addr)
		if serr := srv.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
			logger.Error("serve: http server failed", "error", serr)
		}
	}()

	<-ctx.Done()
	logger.Info("serve: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	modeSwitch.Stop()
	if journal != nil {
		journal.Close()
	}
}

func modelAPIBase() string {
	if v := os.Getenv("OPENAI_API_BASE"); v != "" {
		return v
	}
	return "https://api.openai.com/v1"
}

func wsPortOrDefault(port int) int {
	if port <= 0 {
		return defaultWSPort
	}
	return port
}
