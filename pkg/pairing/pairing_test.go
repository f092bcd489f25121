package pairing

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gimpelhq/gimpel/pkg/db"
	"github.com/gimpelhq/gimpel/pkg/logger"
	"github.com/gimpelhq/gimpel/pkg/models"
)

func newTestManager(t *testing.T) (*Manager, db.Service) {
	t.Helper()

	log := logger.NewTestLogger()

	store, err := db.New(&db.Config{Path: filepath.Join(t.TempDir(), "gimpel.db")}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewManager(store, log), store
}

func TestCreateIssuesWellFormedToken(t *testing.T) {
	mgr, _ := newTestManager(t)

	p, err := mgr.Create(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, p.Token, tokenLength)

	for _, c := range p.Token {
		require.Contains(t, tokenAlphabet, string(c))
	}

	require.Equal(t, p.Token[:4]+"-****", p.DisplayToken)
	require.WithinDuration(t, p.CreatedAt.Add(DefaultTTL), p.ExpiresAt, time.Second)
	require.False(t, p.Used)
}

func TestCreateHonorsCustomTTL(t *testing.T) {
	mgr, _ := newTestManager(t)

	p, err := mgr.Create(context.Background(), 30*time.Second)
	require.NoError(t, err)
	require.WithinDuration(t, p.CreatedAt.Add(30*time.Second), p.ExpiresAt, time.Second)
}

func TestFullTokenReturnedOnlyFromCreate(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.Create(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, created.Token)

	listed, err := mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Empty(t, listed[0].Token)
	require.True(t, strings.HasSuffix(listed[0].DisplayToken, "-****"))

	active, err := mgr.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Empty(t, active[0].Token)
}

func TestRedeemRegistersSatellite(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.Create(ctx, 0)
	require.NoError(t, err)

	// Dashed, lowercase input must normalize to the stored token.
	presented := strings.ToLower(created.Token[:4] + "-" + created.Token[4:])

	sat, err := mgr.Redeem(ctx, &models.PairingRedeemRequest{
		Token:    presented,
		Hostname: "edge-01",
		IP:       "10.0.0.4",
		OS:       "linux",
		Arch:     "arm64",
	})
	require.NoError(t, err)
	require.NotEmpty(t, sat.ID)
	require.Equal(t, models.SatelliteStatusRegistered, sat.Status)

	got, err := store.GetSatellite(ctx, sat.ID)
	require.NoError(t, err)
	require.Equal(t, "edge-01", got.Hostname)

	p, err := store.GetPairingByToken(ctx, created.Token)
	require.NoError(t, err)
	require.True(t, p.Used)
	require.Equal(t, sat.ID, p.AssignedAgent)
	require.Equal(t, "edge-01", p.AgentHostname)
}

func TestRedeemSecondAttemptFails(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.Create(ctx, 0)
	require.NoError(t, err)

	req := &models.PairingRedeemRequest{Token: created.Token, Hostname: "edge-01"}

	_, err = mgr.Redeem(ctx, req)
	require.NoError(t, err)

	_, err = mgr.Redeem(ctx, req)
	require.ErrorIs(t, err, models.ErrPairingAlreadyUsed)
}

func TestRedeemExpiredToken(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.Create(ctx, time.Nanosecond)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	_, err = mgr.Redeem(ctx, &models.PairingRedeemRequest{Token: created.Token})
	require.ErrorIs(t, err, models.ErrPairingExpired)
}

func TestRedeemUnknownToken(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.Redeem(context.Background(), &models.PairingRedeemRequest{Token: "ZZZZ9999"})
	require.ErrorIs(t, err, models.ErrPairingNotFound)
}

func TestListActiveExcludesUsedAndExpired(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Create(ctx, time.Nanosecond)
	require.NoError(t, err)

	used, err := mgr.Create(ctx, 0)
	require.NoError(t, err)

	live, err := mgr.Create(ctx, 0)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	_, err = mgr.Redeem(ctx, &models.PairingRedeemRequest{Token: used.Token, Hostname: "edge-01"})
	require.NoError(t, err)

	active, err := mgr.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, live.ID, active[0].ID)

	all, err := mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}
