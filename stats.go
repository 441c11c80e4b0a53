// stats.go: background occupancy sampler
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package bufpool

import (
	"context"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// occupancySampler periodically snapshots every pool's slice occupancy and
// publishes it through the package's Prometheus gauges. One runs per
// Manager; it never touches the hot allocate/release path.
type occupancySampler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	interval time.Duration
	pools    []*Pool

	timeCache   *timecache.TimeCache
	lastSampled atomic64

	stopOnce sync.Once
}

// atomic64 avoids importing sync/atomic's typed wrapper twice in this file
// purely for a single timestamp; kept as a thin int64 holder updated under
// the sampler's own single goroutine, so no synchronization is needed
// beyond what the ticker already serializes.
type atomic64 struct{ v int64 }

func newOccupancySampler(pools []*Pool, interval time.Duration) *occupancySampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &occupancySampler{
		ctx:       ctx,
		cancel:    cancel,
		interval:  interval,
		pools:     pools,
		timeCache: timecache.NewWithResolution(time.Millisecond),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *occupancySampler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *occupancySampler) sampleOnce() {
	s.lastSampled.v = s.timeCache.CachedTime().UnixNano()
	for _, p := range s.pools {
		sampleOccupancy(p.BufferSize(), p.ElementsCount())
	}
}

// Stop halts the sampling goroutine and releases the time cache. Safe to
// call more than once.
func (s *occupancySampler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.timeCache.Stop()
	})
}
