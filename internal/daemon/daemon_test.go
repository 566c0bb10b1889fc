package daemon

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elsanchez/krakguard/internal/coordinator"
	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/krak"
	"github.com/elsanchez/krakguard/internal/optimizer"
	"github.com/elsanchez/krakguard/internal/pipeline"
	"github.com/elsanchez/krakguard/internal/repository/sqlite"
	"github.com/elsanchez/krakguard/pkg/client"
)

// MockOptimizer implementa optimizer.Optimizer para tests
type MockOptimizer struct {
	CompressFn func(ctx context.Context, asset domain.Asset) (*optimizer.Result, error)

	mu    sync.Mutex
	calls []int64
}

func (m *MockOptimizer) Compress(ctx context.Context, asset domain.Asset) (*optimizer.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, asset.AssetID())
	m.mu.Unlock()
	if m.CompressFn != nil {
		return m.CompressFn(ctx, asset)
	}
	return &optimizer.Result{Success: true, OriginalSize: 1000, KrakedSize: 400}, nil
}

func (m *MockOptimizer) Calls() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.calls...)
}

type markingApplier struct {
	writer optimizer.MediaWriter
}

func (a *markingApplier) Save(ctx context.Context, asset domain.Asset, result *optimizer.Result, _ bool) error {
	m := asset.(*domain.Media)
	m.SetValue(domain.PropertyKrakStatus, time.Now().UTC().Format(time.RFC3339))
	m.SetValue(domain.PropertySize, result.KrakedSize)
	return a.writer.SaveSilently(ctx, m)
}

type testDaemon struct {
	db      *sqlite.Database
	media   *pipeline.MediaService
	opt     *MockOptimizer
	sweeper *Sweeper
	server  *Server
}

func newTestDaemon(t *testing.T) *testDaemon {
	t.Helper()

	db, err := sqlite.NewDatabase(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	classifier := krak.NewStatusClassifier(nil)
	media := pipeline.NewMediaService(db.MediaRepo, db.LogRepo, "", zerolog.Nop())
	opt := &MockOptimizer{}

	coord, err := coordinator.New(classifier, opt, &markingApplier{writer: media},
		coordinator.Options{Enabled: true}, zerolog.Nop(), nil)
	require.NoError(t, err)
	media.Attach(coord)

	sweeper := NewSweeper(db.MediaRepo, db.LogRepo, coord, media,
		SweeperOptions{Interval: time.Hour, Cooldown: 30 * time.Minute, BatchSize: 10}, zerolog.Nop())

	handlers := NewHandlers(media, db.MediaRepo, db.LogRepo, sweeper, classifier)
	server := NewServer(filepath.Join(t.TempDir(), "krak.sock"), handlers, zerolog.Nop())

	return &testDaemon{db: db, media: media, opt: opt, sweeper: sweeper, server: server}
}

func (d *testDaemon) dispatch(t *testing.T, action string, payload interface{}) Response {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = b
	}
	return d.server.Dispatch(context.Background(), &Request{Action: action, Payload: raw})
}

func imagePayload(name string, size int) map[string]interface{} {
	return map[string]interface{}{
		"name": name,
		"properties": map[string]interface{}{
			domain.PropertyFile:   "/media/" + name + ".jpg",
			domain.PropertyWidth:  "640",
			domain.PropertyHeight: 480,
			domain.PropertySize:   size,
		},
	}
}

func TestDispatch_Ping(t *testing.T) {
	d := newTestDaemon(t)

	resp := d.dispatch(t, "ping", nil)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"message":"pong"}`, string(resp.Data))
}

func TestDispatch_UnknownAction(t *testing.T) {
	d := newTestDaemon(t)

	resp := d.dispatch(t, "explode", nil)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown action")
}

func TestDispatch_SaveGetHistory(t *testing.T) {
	d := newTestDaemon(t)

	resp := d.dispatch(t, "save", map[string]interface{}{
		"media": []interface{}{imagePayload("hero", 1000)},
	})
	require.True(t, resp.Success, resp.Error)

	var saved pipeline.SaveResult
	require.NoError(t, json.Unmarshal(resp.Data, &saved))
	require.Len(t, saved.Media, 1)
	require.NotNil(t, saved.Report)
	assert.Equal(t, 1, saved.Report.Applied)

	id := saved.Media[0].ID
	assert.Equal(t, []int64{id}, d.opt.Calls())

	resp = d.dispatch(t, "get", map[string]int64{"id": id})
	require.True(t, resp.Success, resp.Error)
	var got struct {
		KrakStatus domain.KrakStatus `json:"krak_status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, domain.StatusKraked, got.KrakStatus)

	resp = d.dispatch(t, "history", map[string]int64{"media_id": id})
	require.True(t, resp.Success, resp.Error)
	var hist struct {
		Entries []domain.KrakLogEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &hist))
	require.Len(t, hist.Entries, 1)
	assert.Equal(t, domain.OutcomeApply, hist.Entries[0].Outcome)
}

func TestDispatch_ValidationErrors(t *testing.T) {
	d := newTestDaemon(t)

	tests := []struct {
		action  string
		payload interface{}
		wantErr string
	}{
		{"save", map[string]interface{}{"media": []interface{}{}}, "media is required"},
		{"get", map[string]int64{"id": 0}, "id is required"},
		{"get", map[string]int64{"id": 404}, "not found"},
		{"uninstall", map[string]string{}, "package is required"},
	}

	for _, tt := range tests {
		t.Run(tt.action+"/"+tt.wantErr, func(t *testing.T) {
			resp := d.dispatch(t, tt.action, tt.payload)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.wantErr)
		})
	}
}

func TestDispatch_UninstallDetachesGuard(t *testing.T) {
	d := newTestDaemon(t)

	resp := d.dispatch(t, "uninstall", map[string]string{"package": "Other"})
	require.True(t, resp.Success)
	assert.JSONEq(t, `{"package":"Other","detached":false}`, string(resp.Data))

	resp = d.dispatch(t, "uninstall", map[string]string{"package": pipeline.DefaultPackageName})
	require.True(t, resp.Success)
	assert.Contains(t, string(resp.Data), `"detached":true`)

	resp = d.dispatch(t, "save", map[string]interface{}{"media": []interface{}{imagePayload("a", 1)}})
	require.True(t, resp.Success)
	assert.Empty(t, d.opt.Calls())

	resp = d.dispatch(t, "stats", nil)
	require.True(t, resp.Success)
	var stats map[string]int
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, 0, stats["guard_attached"])
	assert.Equal(t, 1, stats["media_krakable"])
}

func TestServer_RoundTripWithClient(t *testing.T) {
	d := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.server.Start(ctx))
	defer d.server.Stop()

	c := client.NewClient(d.server.socketPath)
	require.NoError(t, c.Ping())

	res, err := c.Save([]client.Media{{
		Name: "hero",
		Properties: map[string]interface{}{
			domain.PropertyFile:   "/media/hero.png",
			domain.PropertyHeight: 100,
			domain.PropertyWidth:  100,
			domain.PropertySize:   2048,
		},
	}})
	require.NoError(t, err)
	require.Len(t, res.Media, 1)
	require.NotNil(t, res.Report)
	assert.Equal(t, "completed", res.Report.State)

	list, err := c.List(10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "kraked", list[0].KrakStatus)

	history, err := c.History(0, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats["calls_apply"])

	_, err = c.Get(9999)
	assert.Error(t, err)
}
