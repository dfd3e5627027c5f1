package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domshift/mover"
	"github.com/hazyhaar/domshift/render"
	"github.com/hazyhaar/domshift/sink"
	"github.com/hazyhaar/domshift/store"
	"github.com/hazyhaar/domshift/watch"
)

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to domshift.yaml")
	listen := fs.String("listen", "", "listen address, overrides the config")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.Parse(args)

	logger := newLogger(*logLevel)

	cfg := render.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = render.LoadConfigFile(*configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	var rules *mover.FileConfig
	if cfg.RulesFile != "" {
		var err error
		if rules, err = mover.LoadConfigFile(cfg.RulesFile); err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
	}

	var st *store.Store
	if cfg.DBPath != "" {
		var err error
		if st, err = store.Open(cfg.DBPath); err != nil {
			return err
		}
		defer st.Close()
	}

	events, err := eventSinks(cfg, st, logger)
	if err != nil {
		return err
	}
	defer events.Close()

	metrics := render.NewMetrics()
	opts := render.Options{
		Rules:    rules,
		Sanitize: cfg.Sanitize,
		FromDOM:  cfg.FromDOM,
		Widths:   cfg.Widths,
		Height:   cfg.Height,
		Metrics:  metrics,
		Logger:   logger,
	}
	if events.Len() > 0 {
		opts.Sink = events
	}
	rd, err := render.New(opts)
	if err != nil {
		return err
	}

	if cfg.RuleSet != "" {
		reload := func(ctx context.Context) error {
			err := loadRuleSet(ctx, st, cfg.RuleSet, rd)
			metrics.ObserveReload(err)
			return err
		}
		if err := reload(ctx); err != nil {
			logger.Warn("serve: initial rule set load failed", "rule_set", cfg.RuleSet, "error", err)
		}
		w := watch.New(st.DB, watch.Options{
			Interval: cfg.ReloadInterval,
			Detector: store.RuleSetVersion(cfg.RuleSet),
			Logger:   logger,
		})
		go w.OnChange(ctx, reload)
	}

	if cfg.MCP {
		srv := mcp.NewServer(&mcp.Implementation{Name: "domshift", Version: version}, nil)
		render.RegisterMCP(srv, rd, logger)
		go func() {
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("serve: mcp stdio stopped", "error", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           render.Routes(rd, cfg, metrics, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("serve: listening", "addr", cfg.Listen, "rules", rd.RuleCount(), "sinks", events.Len())
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("serve: shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}

func loadRuleSet(ctx context.Context, st *store.Store, name string, rd *render.Renderer) error {
	rs, err := st.GetRuleSet(ctx, name)
	if err != nil {
		return err
	}
	if rs == nil {
		return fmt.Errorf("rule set %q not found", name)
	}
	cfg, err := rs.Config()
	if err != nil {
		return err
	}
	return rd.SetConfig(cfg)
}

// eventSinks builds the fan-out of configured event destinations.
func eventSinks(cfg *render.Config, st *store.Store, logger *slog.Logger) (*sink.Router, error) {
	var sinks []sink.Sink
	if cfg.LogEvents {
		sinks = append(sinks, sink.NewEventLog(st))
	}
	if cfg.NATS.URL != "" {
		n, err := sink.NewNATS(sink.NATSConfig{URL: cfg.NATS.URL, Prefix: cfg.NATS.Prefix})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, n)
	}
	for _, url := range cfg.Webhooks {
		sinks = append(sinks, sink.NewWebhook(url, sink.WithWebhookLogger(logger)))
	}
	return sink.NewRouter(logger, sinks...), nil
}
