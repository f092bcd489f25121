package directory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gimpelhq/gimpel/pkg/db"
	"github.com/gimpelhq/gimpel/pkg/logger"
	"github.com/gimpelhq/gimpel/pkg/models"
)

func newTestDirectory(t *testing.T) (*Directory, db.Service) {
	t.Helper()

	log := logger.NewTestLogger()

	store, err := db.New(&db.Config{Path: filepath.Join(t.TempDir(), "gimpel.db")}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewDirectory(store, log), store
}

func TestRegisterAssignsIDAndStatus(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	sat, err := dir.Register(ctx, &models.SatelliteRegisterRequest{
		Hostname:  "edge-01",
		IPAddress: "10.0.0.4",
		OS:        "linux",
		Arch:      "amd64",
	})
	require.NoError(t, err)
	require.NotEmpty(t, sat.ID)
	require.Equal(t, models.SatelliteStatusRegistered, sat.Status)
	require.False(t, sat.RegisteredAt.IsZero())

	got, err := dir.Get(ctx, sat.ID)
	require.NoError(t, err)
	require.Equal(t, sat.ID, got.ID)
	require.Equal(t, "edge-01", got.Hostname)
}

func TestRegisterAssignsDistinctIDs(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	a, err := dir.Register(ctx, &models.SatelliteRegisterRequest{Hostname: "edge-01"})
	require.NoError(t, err)

	b, err := dir.Register(ctx, &models.SatelliteRegisterRequest{Hostname: "edge-01"})
	require.NoError(t, err)

	require.NotEqual(t, a.ID, b.ID)

	count, err := dir.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestTouchUpdatesStatusAndLastSeen(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	sat, err := dir.Register(ctx, &models.SatelliteRegisterRequest{Hostname: "edge-01"})
	require.NoError(t, err)

	seen := time.Now().Add(time.Minute)

	got, err := dir.Touch(ctx, sat.ID, models.SatelliteStatusOnline, seen)
	require.NoError(t, err)
	require.Equal(t, models.SatelliteStatusOnline, got.Status)
	require.WithinDuration(t, seen, got.LastSeenAt, time.Second)
}

func TestTouchDefaultsSeenAtToNow(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	sat, err := dir.Register(ctx, &models.SatelliteRegisterRequest{Hostname: "edge-01"})
	require.NoError(t, err)

	got, err := dir.Touch(ctx, sat.ID, models.SatelliteStatusOnline, time.Time{})
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), got.LastSeenAt, time.Second)
}

func TestTouchRejectsInvalidStatus(t *testing.T) {
	dir, _ := newTestDirectory(t)
	ctx := context.Background()

	sat, err := dir.Register(ctx, &models.SatelliteRegisterRequest{Hostname: "edge-01"})
	require.NoError(t, err)

	_, err = dir.Touch(ctx, sat.ID, models.SatelliteStatus("rebooting"), time.Now())
	require.ErrorIs(t, err, models.ErrInvalidStatus)
}

func TestTouchUnknownSatellite(t *testing.T) {
	dir, _ := newTestDirectory(t)

	_, err := dir.Touch(context.Background(), "no-such-id", models.SatelliteStatusOnline, time.Now())
	require.ErrorIs(t, err, models.ErrSatelliteNotFound)
}

func TestSweepDowngradesSilentSatellites(t *testing.T) {
	dir, store := newTestDirectory(t)
	ctx := context.Background()

	now := time.Now()

	fresh := &models.Satellite{
		ID:         "fresh",
		Status:     models.SatelliteStatusOnline,
		LastSeenAt: now,
	}
	stale := &models.Satellite{
		ID:         "stale",
		Status:     models.SatelliteStatusOnline,
		LastSeenAt: now.Add(-3 * time.Minute),
	}
	gone := &models.Satellite{
		ID:         "gone",
		Status:     models.SatelliteStatusOnline,
		LastSeenAt: now.Add(-10 * time.Minute),
	}

	for _, sat := range []*models.Satellite{fresh, stale, gone} {
		require.NoError(t, store.CreateSatellite(ctx, sat))
	}

	dir.sweep(ctx, 2*time.Minute)

	got, err := dir.Get(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, models.SatelliteStatusOnline, got.Status)

	got, err = dir.Get(ctx, "stale")
	require.NoError(t, err)
	require.Equal(t, models.SatelliteStatusUnknown, got.Status)

	got, err = dir.Get(ctx, "gone")
	require.NoError(t, err)
	require.Equal(t, models.SatelliteStatusOffline, got.Status)
}

func TestSweepKeepsLastSeenTimestamp(t *testing.T) {
	dir, store := newTestDirectory(t)
	ctx := context.Background()

	lastSeen := time.Now().Add(-10 * time.Minute)

	require.NoError(t, store.CreateSatellite(ctx, &models.Satellite{
		ID:         "gone",
		Status:     models.SatelliteStatusOnline,
		LastSeenAt: lastSeen,
	}))

	dir.sweep(ctx, 2*time.Minute)

	got, err := dir.Get(ctx, "gone")
	require.NoError(t, err)
	require.Equal(t, models.SatelliteStatusOffline, got.Status)
	require.WithinDuration(t, lastSeen, got.LastSeenAt, time.Second)
}

func TestRunSweeperStopsOnContextCancel(t *testing.T) {
	dir, _ := newTestDirectory(t)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- dir.RunSweeper(ctx, &SweeperConfig{Interval: 10 * time.Millisecond})
	}()

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
