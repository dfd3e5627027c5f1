package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/domshift/render"
	"github.com/hazyhaar/domshift/store"
)

func TestWidthList(t *testing.T) {
	var w widthList
	require.NoError(t, w.Set("375, 768"))
	require.NoError(t, w.Set("1280"))
	assert.Equal(t, widthList{375, 768, 1280}, w)
	assert.Equal(t, "375,768,1280", w.String())
	assert.Error(t, w.Set("wide"))
	assert.Error(t, w.Set("-1"))
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, "warn", levelFor("warn", false))
	assert.Equal(t, "debug", levelFor("warn", true))
}

func TestLoadRuleSet(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "domshift.db"))
	require.NoError(t, err)
	defer st.Close()

	rd, err := render.New(render.Options{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)

	assert.ErrorContains(t, loadRuleSet(ctx, st, "home", rd), "not found")

	_, err = st.PutRuleSet(ctx, "home", []byte(`
rules:
  - media: "width>=768"
    target: "#side"
    items:
      - selector: "#x"
`))
	require.NoError(t, err)
	require.NoError(t, loadRuleSet(ctx, st, "home", rd))
	assert.Equal(t, 1, rd.RuleCount())
}

func TestEventSinks(t *testing.T) {
	cfg := render.DefaultConfig()
	r, err := eventSinks(cfg, nil, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())

	cfg.Webhooks = []string{"http://127.0.0.1:1/a", "http://127.0.0.1:1/b"}
	r, err = eventSinks(cfg, nil, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
}
