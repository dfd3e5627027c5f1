package watch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/hazyhaar/domshift/dbopen"
)

func setUserVersion(t *testing.T, db *sql.DB, v int) {
	t.Helper()
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v))
	require.NoError(t, err)
}

type harness struct {
	db     *sql.DB
	clock  *clocktesting.FakeClock
	w      *Watcher
	calls  atomic.Int32
	fail   atomic.Bool
	cancel context.CancelFunc
}

func start(t *testing.T, debounce time.Duration) *harness {
	t.Helper()
	h := &harness{
		db:    dbopen.OpenMemory(t),
		clock: clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0)),
	}
	h.w = New(h.db, Options{
		Interval: 100 * time.Millisecond,
		Debounce: debounce,
		Detector: PragmaUserVersion,
		Clock:    h.clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)
	go h.w.OnChange(ctx, func(context.Context) error {
		h.calls.Add(1)
		if h.fail.Load() {
			return errors.New("reload failed")
		}
		return nil
	})
	require.Eventually(t, h.clock.HasWaiters, time.Second, time.Millisecond)
	return h
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	before := h.w.Stats().Checks
	h.clock.Step(100 * time.Millisecond)
	require.Eventually(t, func() bool { return h.w.Stats().Checks > before }, time.Second, time.Millisecond)
}

func TestDetectors(t *testing.T) {
	db := dbopen.OpenMemory(t)
	ctx := context.Background()

	v, err := PragmaDataVersion(ctx, db)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v, int64(0))

	setUserVersion(t, db, 42)
	v, err = PragmaUserVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = db.Exec(`CREATE TABLE "odd""name" (ts INTEGER)`)
	require.NoError(t, err)
	det := MaxColumn(`odd"name`, "ts")
	v, err = det(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, v)
	_, err = db.Exec(`INSERT INTO "odd""name" VALUES (100), (7)`)
	require.NoError(t, err)
	v, err = det(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)
}

func TestOnChangeFiresOnce(t *testing.T) {
	h := start(t, 0)
	h.tick(t)
	assert.Zero(t, h.calls.Load())

	setUserVersion(t, h.db, 1)
	h.tick(t)
	require.Eventually(t, func() bool { return h.w.Stats().Reloads == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), h.w.Version())

	h.tick(t)
	assert.Equal(t, int32(1), h.calls.Load())
}

func TestOnChangeDebounces(t *testing.T) {
	h := start(t, 300*time.Millisecond)
	for i := 1; i <= 3; i++ {
		setUserVersion(t, h.db, i)
		h.tick(t)
		require.Eventually(t, func() bool { return h.w.Stats().ChangesDetected == int64(i) }, time.Second, time.Millisecond)
	}
	assert.Zero(t, h.calls.Load())

	h.clock.Step(300 * time.Millisecond)
	require.Eventually(t, func() bool { return h.w.Stats().Reloads == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(3), h.w.Version())
	assert.Equal(t, int32(1), h.calls.Load())
}

func TestFailedReloadRetries(t *testing.T) {
	h := start(t, 0)
	h.fail.Store(true)
	setUserVersion(t, h.db, 5)
	h.tick(t)
	require.Eventually(t, func() bool { return h.w.Stats().Errors == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, h.w.Version())

	// Every poll retries until the action succeeds.
	h.fail.Store(false)
	setUserVersion(t, h.db, 6)
	h.tick(t)
	require.Eventually(t, func() bool { return h.w.Version() == 6 }, time.Second, time.Millisecond)
}
