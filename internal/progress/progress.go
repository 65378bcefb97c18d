// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package progress renders terminal progress bars for single- and
// multi-file transfers, backed by github.com/cheggaaa/pb/v3.
package progress

import (
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/salva/fastdbfs/internal/dbfs"
)

const barTemplate = `{{ string . "path" | rndcolor }} {{ counters . }} {{ bar . }} {{ percent . }} {{ speed . }}`

// Single renders one progress bar for a single-file get/put and returns a
// dbfs.ProgressFunc that drives it.
func Single(path string, total int64) (dbfs.ProgressFunc, func()) {
	bar := pb.New64(total)
	bar.Set(pb.Bytes, true)
	bar.SetTemplateString(barTemplate)
	bar.Set("path", path)
	bar.Start()

	var mu sync.Mutex
	var last int64
	return func(_ string, done, _ int64) {
			mu.Lock()
			defer mu.Unlock()
			if delta := done - last; delta > 0 {
				bar.Add64(delta)
				last = done
			}
		}, func() {
			bar.Finish()
		}
}

// Multi renders one bar per in-flight file for rget/rput, created lazily as
// new paths are reported and finished when each path completes.
type Multi struct {
	pool *pb.Pool
	mu   sync.Mutex
	bars map[string]*pb.ProgressBar
}

// NewMulti starts an (initially empty) bar pool.
func NewMulti() (*Multi, error) {
	pool, err := pb.StartPool()
	if err != nil {
		return nil, err
	}
	return &Multi{pool: pool, bars: map[string]*pb.ProgressBar{}}, nil
}

// Func returns the dbfs.ProgressFunc to pass to RGet/RPut.
func (m *Multi) Func() dbfs.ProgressFunc {
	return func(path string, done, total int64) {
		m.mu.Lock()
		bar, ok := m.bars[path]
		if !ok {
			bar = pb.New64(total)
			bar.Set(pb.Bytes, true)
			bar.SetTemplateString(barTemplate)
			bar.Set("path", path)
			m.pool.Add(bar)
			bar.Start()
			m.bars[path] = bar
		}
		m.mu.Unlock()

		bar.SetCurrent(done)
		if total > 0 && done >= total {
			bar.Finish()
		}
	}
}

// Close stops every bar and the pool.
func (m *Multi) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, bar := range m.bars {
		bar.Finish()
	}
	m.pool.Stop()
}
