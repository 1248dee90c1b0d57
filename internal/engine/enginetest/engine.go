// Package enginetest provides a configurable in-memory Engine for tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/tyvekbio/cellseek/internal/engine"
)

// Engine is a fake model server. Zero value returns empty results; set the
// Fn fields to script behavior. Call counts are tracked per method and safe
// for concurrent use.
type Engine struct {
	mu sync.Mutex

	GeneOrderFn     func(ctx context.Context) ([]string, error)
	EmbeddingsFn    func(ctx context.Context, x [][]float64) ([][]float64, error)
	SearchNearestFn func(ctx context.Context, queries [][]float64, k int) ([]engine.Neighbor, error)
	ExtractFn       func(ctx context.Context, workDir string) ([][]float64, error)

	GeneOrderCalls int
	EmbedCalls     int
	SearchCalls    int
	ExtractCalls   int
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) GeneOrder(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	e.GeneOrderCalls++
	fn := e.GeneOrderFn
	e.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx)
}

func (e *Engine) Embeddings(ctx context.Context, x [][]float64) ([][]float64, error) {
	e.mu.Lock()
	e.EmbedCalls++
	fn := e.EmbeddingsFn
	e.mu.Unlock()
	if fn == nil {
		return make([][]float64, len(x)), nil
	}
	return fn(ctx, x)
}

func (e *Engine) SearchNearest(ctx context.Context, queries [][]float64, k int) ([]engine.Neighbor, error) {
	e.mu.Lock()
	e.SearchCalls++
	fn := e.SearchNearestFn
	e.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, queries, k)
}

func (e *Engine) ExtractEmbeddings(ctx context.Context, workDir string) ([][]float64, error) {
	e.mu.Lock()
	e.ExtractCalls++
	fn := e.ExtractFn
	e.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, workDir)
}

func (e *Engine) Ready(ctx context.Context) error { return nil }

// Calls returns the total number of model calls made.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.GeneOrderCalls + e.EmbedCalls + e.SearchCalls + e.ExtractCalls
}
