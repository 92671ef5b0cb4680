package watermark_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ypk/contentguard/internal/watermark"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	p := watermark.NewPool(2, 4, time.Second)
	p.Start(context.Background())
	defer p.Stop()

	var mu sync.Mutex
	ran := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Do(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				ran++
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("Do() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if ran != 10 {
		t.Errorf("ran = %d, want 10", ran)
	}
}

func TestPoolPropagatesJobError(t *testing.T) {
	p := watermark.NewPool(1, 1, time.Second)
	p.Start(context.Background())
	defer p.Stop()

	wantErr := errors.New("stamp failed")
	err := p.Do(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Do() error = %v, want %v", err, wantErr)
	}
}

func TestPoolSaturationReturnsOverloaded(t *testing.T) {
	p := watermark.NewPool(1, 1, 50*time.Millisecond)
	p.Start(context.Background())
	defer p.Stop()

	release := make(chan struct{})
	running := make(chan struct{})

	// Occupy the single worker.
	go p.Do(context.Background(), func(ctx context.Context) error {
		close(running)
		<-release
		return nil
	})
	<-running

	// Fill the single queue slot.
	go p.Do(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})

	// The queue slot may take a moment to be occupied. Each polling
	// submission carries its own short deadline so one that wins the
	// slot times out instead of waiting on the parked worker.
	deadline := time.After(2 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		err := p.Do(ctx, func(ctx context.Context) error { return nil })
		cancel()
		if errors.Is(err, watermark.ErrOverloaded) {
			break
		}
		select {
		case <-deadline:
			close(release)
			t.Fatal("saturated pool never returned ErrOverloaded")
		default:
		}
	}
	close(release)
}

func TestPoolDoHonorsContextWhileWaiting(t *testing.T) {
	p := watermark.NewPool(1, 1, time.Minute)
	p.Start(context.Background())
	defer p.Stop()

	release := make(chan struct{})
	running := make(chan struct{})
	go p.Do(context.Background(), func(ctx context.Context) error {
		close(running)
		<-release
		return nil
	})
	<-running
	go p.Do(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Do(ctx, func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want context.DeadlineExceeded", err)
	}
	close(release)
}
