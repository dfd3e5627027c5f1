package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hazyhaar/domshift/mover"
	"github.com/hazyhaar/domshift/render"
)

func runRender(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	rulesPath := fs.String("rules", "", "YAML rule file")
	in := fs.String("in", "-", "HTML input file, - for stdin")
	out := fs.String("out", "", "directory for one HTML file per width; empty prints JSON")
	height := fs.Float64("height", 800, "viewport height")
	sanitize := fs.Bool("sanitize", false, "sanitize the input first")
	fromDOM := fs.Bool("from-dom", false, "also apply data-move-* attributes")
	logLevel := fs.String("log-level", "warn", "log level: debug, info, warn, error")
	var widths widthList
	fs.Var(&widths, "width", "viewport width, repeatable (default 375,768,1280)")
	fs.Parse(args)

	logger := newLogger(*logLevel)

	var rules *mover.FileConfig
	if *rulesPath != "" {
		var err error
		if rules, err = mover.LoadConfigFile(*rulesPath); err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
		logger = newLogger(levelFor(*logLevel, rules.Options.Debug))
	} else if !*fromDOM {
		return fmt.Errorf("render: -rules or -from-dom is required")
	}

	html, err := readInput(*in)
	if err != nil {
		return err
	}

	rd, err := render.New(render.Options{
		Rules:    rules,
		Sanitize: *sanitize,
		FromDOM:  *fromDOM,
		Height:   *height,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	results, err := rd.Render(ctx, string(html), widths)
	if err != nil {
		return err
	}

	if *out == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(render.RenderResponse{Results: results})
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}
	for _, res := range results {
		name := filepath.Join(*out, strconv.FormatFloat(res.Width, 'f', -1, 64)+".html")
		if err := os.WriteFile(name, []byte(res.HTML), 0o644); err != nil {
			return err
		}
		for _, msg := range res.Errors {
			logger.Warn("render: rule error", "width", res.Width, "error", msg)
		}
		fmt.Fprintf(os.Stderr, "%s: %d placed\n", name, len(res.Placements))
	}
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
