package coordinator

import (
	"context"
	"sync"

	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/optimizer"
)

// MockOptimizer implementa optimizer.Optimizer para tests y registra cada llamada
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
	return &optimizer.Result{Success: true, OriginalSize: 100, KrakedSize: 60}, nil
}

func (m *MockOptimizer) Calls() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.calls...)
}

type appliedCall struct {
	ID      int64
	Changed bool
}

// MockApplier implementa optimizer.Applier para tests
type MockApplier struct {
	SaveFn func(ctx context.Context, asset domain.Asset, result *optimizer.Result, changed bool) error

	mu      sync.Mutex
	applied []appliedCall
}

func (m *MockApplier) Save(ctx context.Context, asset domain.Asset, result *optimizer.Result, changed bool) error {
	if m.SaveFn != nil {
		if err := m.SaveFn(ctx, asset, result, changed); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.applied = append(m.applied, appliedCall{ID: asset.AssetID(), Changed: changed})
	m.mu.Unlock()
	return nil
}

func (m *MockApplier) Applied() []appliedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]appliedCall(nil), m.applied...)
}

// classifierFunc adapts a function to Classifier.
type classifierFunc func(domain.Asset) domain.KrakStatus

func (f classifierFunc) Classify(a domain.Asset) domain.KrakStatus { return f(a) }

func apiErr(status domain.APIStatus) error {
	return &optimizer.APIError{Status: status, Message: status.String()}
}
