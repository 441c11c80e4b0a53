// example_test.go: Executable examples for godoc
//
// These examples appear in the generated documentation and are executable.
// Run with: go test -run Example

package bufpool_test

import (
	"fmt"
	"log"

	"github.com/agilira/bufpool"
)

// ExampleNewWithDefaults demonstrates the recommended way to create a
// production allocator.
func ExampleNewWithDefaults() {
	m, err := bufpool.NewWithDefaults()
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	buf, err := m.Allocate(1024)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Release(buf)

	if _, err := buf.Put([]byte("hello")); err != nil {
		log.Printf("Warning: failed to write: %v", err)
	}

	fmt.Println("Allocator created with production defaults")
	// Output: Allocator created with production defaults
}

// ExampleNew demonstrates controlling just the size-class ladder.
func ExampleNew() {
	m, err := bufpool.New(4096, 3, 2)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	fmt.Printf("Largest size class: %d\n", m.MaxPooledBufferSize())
	// Output: Largest size class: 65536
}

// ExampleNewDebug demonstrates enabling disposal-site tracking for
// development.
func ExampleNewDebug() {
	m, err := bufpool.NewDebug()
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	fmt.Println("Allocator created with disposal-site tracking")
	// Output: Allocator created with disposal-site tracking
}

// ExampleNewWithConfig demonstrates full configuration control.
func ExampleNewWithConfig() {
	m, err := bufpool.NewWithConfig(&bufpool.Config{
		BaseBufferSizeStr: "4KB",
		NumberOfPools:     3,
		GrowthFactor:      2,
		SlicesPerPool:     4,
		HeapFraction:      0.10,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	fmt.Println("Allocator created with custom configuration")
	// Output: Allocator created with custom configuration
}

// ExampleManager_Allocate demonstrates basic allocation and release.
func ExampleManager_Allocate() {
	m, err := bufpool.NewWithDefaults()
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	buf, err := m.Allocate(11)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Release(buf)

	n, err := buf.Put([]byte("hello world"))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Wrote %d bytes\n", n)
	// Output: Wrote 11 bytes
}

// ExampleManager_Allocate_oversize demonstrates that requests above the
// largest configured size class are served by a composite buffer spanning
// several segments, transparently.
func ExampleManager_Allocate_oversize() {
	m, err := bufpool.NewWithDefaults()
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	big := m.MaxPooledBufferSize() * 2
	buf, err := m.Allocate(big)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Release(buf)

	fmt.Printf("Composite capacity covers request: %t\n", buf.Capacity() >= big)
	// Output: Composite capacity covers request: true
}

// ExampleManager_Reallocate demonstrates resizing a buffer in place.
func ExampleManager_Reallocate() {
	m, err := bufpool.NewWithDefaults()
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	buf, err := m.Allocate(100)
	if err != nil {
		log.Fatal(err)
	}

	grown, err := m.Reallocate(buf, 200)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Release(grown)

	fmt.Printf("New limit: %d\n", grown.Limit())
	// Output: New limit: 200
}

// ExampleManager_Stats demonstrates ad-hoc occupancy inspection.
func ExampleManager_Stats() {
	m, err := bufpool.NewWithDefaults()
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	stats := m.Stats()
	fmt.Printf("Size classes: %d\n", len(stats.PoolStats))
	// Output: Size classes: 3
}
