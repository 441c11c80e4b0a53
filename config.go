// config.go: configuration parsing utilities
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package bufpool

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize converts size strings like "64KB", "4MB" to bytes. Supports
// case-insensitive input and both single-letter (K, M, G) and two-letter
// (KB, MB, GB) suffixes, plus plain byte counts.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	if val, err := strconv.ParseInt(s, 10, 64); err == nil {
		return val, nil
	}

	s = strings.ToUpper(s)

	var multiplier int64
	var numStr string

	switch {
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = s[:len(s)-2]
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = s[:len(s)-1]
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = s[:len(s)-1]
	default:
		return 0, fmt.Errorf("unknown size suffix in %q (supported: KB/K, MB/M, GB/G)", s)
	}

	val, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size number in %q: %v", s, err)
	}

	result := val * multiplier
	if result < 0 {
		return 0, fmt.Errorf("size %q too large", s)
	}
	return result, nil
}

// Config holds the tunables for a Manager. All fields are optional; zero
// values are replaced by sensible defaults in NewWithConfig.
type Config struct {
	// BaseBufferSize is the size, in bytes, of the smallest size class.
	// Each subsequent class is the previous one multiplied by 2^GrowthFactor.
	BaseBufferSize int `json:"base_buffer_size"`

	// BaseBufferSizeStr is a human-readable alternative to BaseBufferSize
	// (e.g. "4KB"). When set it takes precedence.
	BaseBufferSizeStr string `json:"base_buffer_size_str"`

	// NumberOfPools is the total number of size classes, including the
	// base one (>= 1).
	NumberOfPools int `json:"number_of_pools"`

	// GrowthFactor is the exponent applied between consecutive size
	// classes: class size = previous class size * 2^GrowthFactor. Must
	// itself be a power of two when NumberOfPools > 1.
	GrowthFactor int `json:"growth_factor"`

	// SlicesPerPool is the number of independent rings each size class is
	// striped across.
	SlicesPerPool int `json:"slices_per_pool"`

	// HeapFraction bounds total pool capacity as a fraction of available
	// heap, consulted via the Manager's HostEnvironment.
	HeapFraction float64 `json:"heap_fraction"`

	// SkipBufferWaitLoop disables the short spin-wait that Poll/Offer
	// perform while a concurrent counterpart is mid-publish, returning a
	// miss immediately instead. Off by default.
	SkipBufferWaitLoop bool `json:"skip_buffer_wait_loop"`

	// TrackDisposalSites enables capturing the caller's file:line on Dispose
	// so that use-after-dispose panics can report where the buffer was
	// released. Adds overhead; intended for debugging, not production.
	TrackDisposalSites bool `json:"track_disposal_sites"`

	// ErrorCallback is invoked when a non-fatal internal error occurs
	// (e.g. a background probe sample failing).
	ErrorCallback func(operation string, err error) `json:"-"`

	// Probe receives allocation/release events for external monitoring.
	// Defaults to a Prometheus-backed probe if nil.
	Probe Probe

	// HostEnvironment supplies CPU/heap information used to size pools:
	// MaxHeapBytes is always consulted to size each slice, and
	// AvailableProcessors is consulted when SlicesPerPool is left at zero.
	// Defaults to DefaultHostEnvironment.
	HostEnvironment HostEnvironment
}

func (c *Config) baseBufferSize() (int, error) {
	if c.BaseBufferSizeStr != "" {
		n, err := ParseSize(c.BaseBufferSizeStr)
		if err != nil {
			return 0, fmt.Errorf("invalid BaseBufferSizeStr: %w", err)
		}
		return int(n), nil
	}
	if c.BaseBufferSize != 0 {
		return c.BaseBufferSize, nil
	}
	return 4096, nil
}

func (c *Config) growthFactor() int {
	if c.GrowthFactor != 0 {
		return c.GrowthFactor
	}
	return 2
}

func (c *Config) reportError(operation string, err error) {
	if c.ErrorCallback != nil {
		c.ErrorCallback(operation, err)
	}
}
