// bufpooldemo exercises a Manager end to end and serves its Prometheus
// metrics over HTTP.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/agilira/bufpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		baseSize     = flag.String("base-size", "4KB", "smallest size class, e.g. 4KB")
		numberOfPool = flag.Int("pools", 3, "number of size classes")
		growth       = flag.Int("growth", 2, "growth exponent between size classes")
		slices       = flag.Int("slices", 0, "rings per size class (0 = one per CPU)")
		workers      = flag.Int("workers", 8, "concurrent allocate/release workers")
		duration     = flag.Duration("duration", 10*time.Second, "how long to run the workload")
		metricsAddr  = flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	)
	flag.Parse()

	m, err := bufpool.NewWithConfig(&bufpool.Config{
		BaseBufferSizeStr: *baseSize,
		NumberOfPools:     *numberOfPool,
		GrowthFactor:      *growth,
		SlicesPerPool:     *slices,
		ErrorCallback: func(op string, err error) {
			log.Printf("bufpool error [%s]: %v", op, err)
		},
	})
	if err != nil {
		log.Fatalf("failed to build allocator: %v", err)
	}
	defer m.Close()

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("serving metrics on %s/metrics", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	fmt.Printf("running %d workers against %d size classes for %s\n", *workers, *numberOfPool, *duration)
	runWorkload(m, *workers, *duration)

	stats := m.Stats()
	fmt.Println("final occupancy:")
	for _, ps := range stats.PoolStats {
		fmt.Printf("  size=%d elements=%d bytes=%d slices=%d\n",
			ps.BufferSize, ps.ElementsCount, ps.SizeBytes, ps.SlicesPerPool)
	}
}

func runWorkload(m *bufpool.Manager, workers int, d time.Duration) {
	deadline := time.Now().Add(d)
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func(worker int) {
			defer wg.Done()
			j := 0
			for time.Now().Before(deadline) {
				size := 1 + (j % (m.MaxPooledBufferSize() * 2))
				buf, err := m.Allocate(size)
				if err != nil {
					log.Printf("worker %d: allocate failed: %v", worker, err)
					continue
				}
				if _, err := buf.Put(make([]byte, buf.Remaining())); err != nil {
					log.Printf("worker %d: put failed: %v", worker, err)
				}
				m.Release(buf)
				j++
			}
		}(i)
	}
	wg.Wait()
}
