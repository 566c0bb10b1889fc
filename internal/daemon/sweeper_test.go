package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/optimizer"
)

func seedMedia(t *testing.T, d *testDaemon, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		m := &domain.Media{Name: "m"}
		m.SetValue(domain.PropertyFile, "/media/m.jpg")
		m.SetValue(domain.PropertySize, 100+i)
		// SaveSilently: quedan sin procesar, como tras un lote abortado
		require.NoError(t, d.media.SaveSilently(context.Background(), m))
		ids = append(ids, m.ID)
	}
	return ids
}

func TestSweeper_ProcessesPending(t *testing.T) {
	d := newTestDaemon(t)
	ids := seedMedia(t, d, 3)

	report := d.sweeper.SweepOnce(context.Background())
	require.NotNil(t, report)

	assert.Equal(t, ids, d.opt.Calls())
	assert.Equal(t, 3, report.Applied)

	// Segundo sweep: ya no queda nada pendiente
	assert.Nil(t, d.sweeper.SweepOnce(context.Background()))
	assert.Len(t, d.opt.Calls(), 3)

	total, err := d.db.LogRepo.CountTotal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestSweeper_AbortBacksOff(t *testing.T) {
	d := newTestDaemon(t)
	seedMedia(t, d, 3)

	d.opt.CompressFn = func(context.Context, domain.Asset) (*optimizer.Result, error) {
		return nil, &optimizer.APIError{Status: domain.APIStatusRequestLimitReached, Message: "slow down"}
	}

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	d.sweeper.now = func() time.Time { return now }

	report := d.sweeper.SweepOnce(context.Background())
	require.NotNil(t, report)
	assert.True(t, report.Aborted())
	assert.Len(t, d.opt.Calls(), 1)
	assert.Equal(t, now.Add(30*time.Minute), d.sweeper.PausedUntil())

	// Dentro del cooldown no se llama
	now = now.Add(10 * time.Minute)
	assert.Nil(t, d.sweeper.SweepOnce(context.Background()))
	assert.Len(t, d.opt.Calls(), 1)

	// Pasado el cooldown se reintenta
	d.opt.CompressFn = nil
	now = now.Add(21 * time.Minute)
	report = d.sweeper.SweepOnce(context.Background())
	require.NotNil(t, report)
	assert.Equal(t, 3, report.Applied)
	assert.True(t, d.sweeper.PausedUntil().IsZero())
}

func TestSweeper_SkippedMediaNotRetried(t *testing.T) {
	d := newTestDaemon(t)
	ids := seedMedia(t, d, 2)

	d.opt.CompressFn = func(_ context.Context, a domain.Asset) (*optimizer.Result, error) {
		if a.AssetID() == ids[0] {
			return nil, &optimizer.APIError{Status: domain.APIStatusFileTooLarge}
		}
		return &optimizer.Result{Success: true}, nil
	}

	report := d.sweeper.SweepOnce(context.Background())
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Skipped)

	assert.Nil(t, d.sweeper.SweepOnce(context.Background()))
	assert.Len(t, d.opt.Calls(), 2)
}

func TestSweeper_DetachedGuardDoesNothing(t *testing.T) {
	d := newTestDaemon(t)
	seedMedia(t, d, 1)

	d.media.Detach()
	assert.Nil(t, d.sweeper.SweepOnce(context.Background()))
	assert.Empty(t, d.opt.Calls())
}

func TestSweeper_StartStop(t *testing.T) {
	d := newTestDaemon(t)
	seedMedia(t, d, 2)

	d.sweeper.Start()
	require.Eventually(t, func() bool { return len(d.opt.Calls()) == 2 }, 2*time.Second, 10*time.Millisecond)
	d.sweeper.Stop()

	stats, err := d.sweeper.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats["sweeps"])
	assert.Equal(t, 2, stats["media_kraked"])
	assert.Equal(t, 2, stats["calls_apply"])
}

func TestSweeper_RetriesChangedKrakedLeftByAbort(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	hero := &domain.Media{Name: "hero"}
	hero.SetValue(domain.PropertyFile, "/media/hero.jpg")
	hero.SetValue(domain.PropertySize, 5000)
	res, err := d.media.Save(ctx, []*domain.Media{hero})
	require.NoError(t, err)
	hero = res.Media[0]
	heroID := hero.ID
	require.Equal(t, []int64{heroID}, d.opt.Calls())

	// Nuevo archivo para hero en un lote que se aborta antes de llegar a él
	d.opt.CompressFn = func(context.Context, domain.Asset) (*optimizer.Result, error) {
		return nil, &optimizer.APIError{Status: domain.APIStatusRequestLimitReached}
	}
	fresh := &domain.Media{Name: "fresh"}
	fresh.SetValue(domain.PropertyFile, "/media/fresh.jpg")
	fresh.SetValue(domain.PropertySize, 10)
	hero.SetValue(domain.PropertySize, 9000)

	res, err = d.media.Save(ctx, []*domain.Media{fresh, hero})
	require.NoError(t, err)
	require.True(t, res.Report.Aborted())
	freshID := res.Media[0].ID
	require.Len(t, d.opt.Calls(), 2)

	pending, err := d.db.LogRepo.CountByOutcome(ctx, domain.OutcomePending)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	d.opt.CompressFn = nil
	report := d.sweeper.SweepOnce(ctx)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, []int64{heroID, freshID}, d.opt.Calls()[2:])

	assert.Nil(t, d.sweeper.SweepOnce(ctx))
	assert.Len(t, d.opt.Calls(), 4)
}
