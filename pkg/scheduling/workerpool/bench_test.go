package workerpool

import (
	"context"
	"testing"
)

// BenchmarkTaskExecution measures the overhead of task submission and execution
func BenchmarkTaskExecution(b *testing.B) {
	pool := New(4, 1000)
	defer func() { <-pool.Shutdown() }()

	task := TaskFunc(func(ctx context.Context) error {
		// Minimal work
		return nil
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = pool.Submit(task)
		}
	})
}

// BenchmarkDirectHandOff measures submission without a queue buffer
func BenchmarkDirectHandOff(b *testing.B) {
	pool := New(4, 0)
	defer func() { <-pool.Shutdown() }()

	task := TaskFunc(func(ctx context.Context) error { return nil })

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = pool.Submit(task)
	}
}
