// hostenv.go: host resource abstraction used to size pools automatically
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package bufpool

import "runtime"

// HostEnvironment abstracts the host resource queries a Manager consults
// while sizing its pools: the heap ceiling on every construction, and the
// processor count when SlicesPerPool is left at zero. Swappable in tests so
// sizing decisions don't depend on the machine actually running the suite.
type HostEnvironment interface {
	// AvailableProcessors returns the number of logical CPUs usable by the
	// process, used to pick a default SlicesPerPool (one ring per CPU
	// keeps per-slice contention low without over-fragmenting memory).
	AvailableProcessors() int

	// MaxHeapBytes returns a ceiling on heap memory the allocator should
	// assume is available, used together with HeapFraction to cap total
	// pool capacity.
	MaxHeapBytes() uint64
}

// DefaultHostEnvironment implements HostEnvironment using the runtime
// package.
type DefaultHostEnvironment struct{}

func (DefaultHostEnvironment) AvailableProcessors() int {
	return runtime.GOMAXPROCS(0)
}

func (DefaultHostEnvironment) MaxHeapBytes() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.Sys > 0 {
		return m.Sys
	}
	return 1 << 30 // 1GB fallback when Sys hasn't been populated yet
}
