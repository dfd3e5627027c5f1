// Command domshift relocates DOM elements between containers as the
// viewport crosses media query breakpoints.
//
// Usage:
//
//	domshift render -rules rules.yaml -in page.html -width 375 -width 1280
//	domshift serve -config domshift.yaml
//	domshift live -rules rules.yaml -url https://example.com -width 375 -width 1280
//	domshift rules -db domshift.db put home rules.yaml
//	domshift events -db domshift.db -type move -limit 20
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
)

const version = "0.1.0"

const usage = `usage: domshift <command> [flags]

commands:
  render   apply rules to an HTML file at one or more widths
  serve    run the HTTP (and optional MCP) render service
  live     drive the engine on a real page in Chrome
  rules    manage rule sets stored in the database
  events   list or prune the event log`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "render":
		err = runRender(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "live":
		err = runLive(ctx, args)
	case "rules":
		err = runRules(ctx, args)
	case "events":
		err = runEvents(ctx, args)
	case "version":
		fmt.Println(version)
	case "-h", "-help", "--help", "help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "domshift: unknown command %q\n\n%s\n", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("domshift: fatal", "command", cmd, "error", err)
		os.Exit(1)
	}
}

// newLogger installs a JSON logger on stderr as the default.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return logger
}

// levelFor lowers level to debug when a rule file asks for engine
// diagnostics.
func levelFor(level string, debug bool) string {
	if debug {
		return "debug"
	}
	return level
}

// widthList is a repeatable -width flag that also takes "375,768".
type widthList []float64

func (w *widthList) String() string {
	parts := make([]string, len(*w))
	for i, v := range *w {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (w *widthList) Set(s string) error {
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid width %q", p)
		}
		*w = append(*w, v)
	}
	return nil
}
