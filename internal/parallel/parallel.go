// Package parallel splits kernel loops across goroutines for the CPU backend.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns defaults based on GOMAXPROCS.
//
// Kernels iterate over (batch, channel) planes, so a chunk of one plane is
// already enough work to amortize goroutine startup.
func DefaultConfig() Config {
	n := runtime.GOMAXPROCS(0)
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1,
	}
}

// Sequential returns a config that runs everything on the calling goroutine.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}
}

// WorkerPanic carries a panic raised inside a worker goroutine back to the
// goroutine that called For or ForRange.
type WorkerPanic struct {
	Value any
}

func (p WorkerPanic) Error() string {
	return fmt.Sprintf("parallel worker panic: %v", p.Value)
}

// Unwrap exposes the original panic value when it was an error.
func (p WorkerPanic) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	ForRange(n, func(start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	}, cfg)
}

// ForRange executes f over contiguous chunks covering [0, n).
// Use it when each worker needs its own scratch buffer.
//
// All workers finish before ForRange returns. If any worker panics, the first
// panic is re-raised on the calling goroutine as a WorkerPanic.
func ForRange(n int, f func(start, end int), cfg Config) {
	if n <= 0 {
		return
	}
	workers := cfg.NumWorkers
	if !cfg.Enabled || workers <= 1 || n < 2*max(cfg.MinChunkSize, 1) {
		f(0, n)
		return
	}

	chunkSize := max((n+workers-1)/workers, cfg.MinChunkSize, 1)

	var (
		wg       sync.WaitGroup
		once     sync.Once
		panicked any
	)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					once.Do(func() { panicked = r })
				}
			}()
			f(s, e)
		}(start, end)
	}
	wg.Wait()

	if panicked != nil {
		panic(WorkerPanic{Value: panicked})
	}
}

// ForBatch is optimized for the batch*channels iteration pattern of CNN kernels.
func ForBatch(batch, channels int, f func(b, c int), cfg Config) {
	n := batch * channels
	For(n, func(k int) {
		f(k/channels, k%channels)
	}, cfg)
}
