package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/domshift/browser"
	"github.com/hazyhaar/domshift/idgen"
	"github.com/hazyhaar/domshift/mover"
	"github.com/hazyhaar/domshift/sink"
	"github.com/hazyhaar/domshift/store"
)

func runLive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	rulesPath := fs.String("rules", "", "YAML rule file")
	pageURL := fs.String("url", "", "page to open")
	in := fs.String("in", "", "HTML file to load instead of a URL")
	fromDOM := fs.Bool("from-dom", false, "also apply data-move-* attributes")
	height := fs.Int("height", 800, "viewport height")
	pause := fs.Duration("pause", 2*time.Second, "time spent at each width")
	headful := fs.Bool("headful", false, "show the browser window")
	remote := fs.String("remote", "", "WebSocket URL of a running Chrome")
	block := fs.String("block", "", "resource types to block, comma separated")
	dbPath := fs.String("db", "", "persist placements in this database")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	var widths widthList
	fs.Var(&widths, "width", "viewport width, repeatable (default 375,1280)")
	fs.Parse(args)

	logger := newLogger(*logLevel)
	if *pageURL == "" && *in == "" {
		return fmt.Errorf("live: -url or -in is required")
	}
	if len(widths) == 0 {
		widths = widthList{375, 1280}
	}

	file := &mover.FileConfig{}
	if *rulesPath != "" {
		var err error
		if file, err = mover.LoadConfigFile(*rulesPath); err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
	}
	logger = newLogger(levelFor(*logLevel, file.Options.Debug))

	bcfg := browser.Config{RemoteURL: *remote, Headful: *headful, Logger: logger}
	if *block != "" {
		bcfg.ResourceBlocking = strings.Split(*block, ",")
	}
	mgr := browser.NewManager(bcfg)
	if _, err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	tab, err := browser.OpenTab(ctx, mgr, *pageURL, browser.TabOptions{})
	if err != nil {
		return err
	}
	defer tab.Close()
	if *in != "" {
		html, err := readInput(*in)
		if err != nil {
			return err
		}
		if err := tab.SetContent(ctx, string(html)); err != nil {
			return err
		}
	}

	tree := browser.NewTree(ctx, tab)
	vp, err := browser.NewMedia(ctx, tab)
	if err != nil {
		return err
	}
	if _, err := vp.SetViewport(ctx, int(widths[0]), *height); err != nil {
		return err
	}

	opts := mover.Options{Visibility: browser.NewVisibility(tree), Logger: logger}
	file.Apply(&opts)
	opts.Animator = browser.NewFlipAnimator(tree, opts.AnimationDuration, opts.Easing)
	if *dbPath != "" {
		st, err := store.Open(*dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		opts.Persistence = st
	}

	rules := file.ToRules()
	if *fromDOM {
		declared, err := mover.FromDOM(tree, idgen.Sequence("dom-"))
		if err != nil {
			return err
		}
		rules = append(rules, declared...)
	}

	eng, err := mover.New(tree, vp, rules, opts)
	if err != nil {
		return err
	}
	att := sink.Attach(eng, sink.NewStdout(), sink.WithLogger(logger))
	defer att.Close()

	if err := eng.Init(ctx); err != nil {
		return err
	}
	defer eng.Destroy(context.Background())

	for _, w := range widths {
		n, err := vp.SetViewport(ctx, int(w), *height)
		if err != nil {
			return err
		}
		logger.Info("live: viewport set", "width", w, "listeners", n, "placed", eng.Stats().Placed)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(*pause):
		}
	}
	return nil
}
