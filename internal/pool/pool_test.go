package pool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEagerBuildsAllHandles(t *testing.T) {
	var built atomic.Int64
	p, err := New(context.Background(), Options{Component: "tts", Size: 3, Devices: []string{"cuda:0", "cuda:1"}},
		func(_ context.Context, device string) (string, error) {
			built.Add(1)
			return device, nil
		}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built.Load() != 3 {
		t.Fatalf("expected 3 eager handles, got %d", built.Load())
	}
	if p.Built() != 3 {
		t.Fatalf("expected Built()=3, got %d", p.Built())
	}
}

func TestEagerInitFailure(t *testing.T) {
	initErr := errors.New("device out of memory")
	_, err := New(context.Background(), Options{Component: "tts", Size: 2, Devices: []string{"cuda:7"}},
		func(_ context.Context, _ string) (int, error) {
			return 0, initErr
		}, newLogger())
	if err == nil {
		t.Fatal("expected init error")
	}
	var ie *InitError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InitError, got %T", err)
	}
	if ie.Device != "cuda:7" {
		t.Fatalf("expected device in error, got %q", ie.Device)
	}
}

func TestLazyBuildsOnFirstAcquire(t *testing.T) {
	var built atomic.Int64
	p, err := New(context.Background(), Options{Component: "asr", Size: 2, LazyLoad: true},
		func(_ context.Context, _ string) (int, error) {
			return int(built.Add(1)), nil
		}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built.Load() != 0 {
		t.Fatalf("expected no handles before first acquire, got %d", built.Load())
	}
	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if built.Load() != 1 {
		t.Fatalf("expected one handle after first acquire, got %d", built.Load())
	}
	lease.Release()

	// A released handle is reused, not rebuilt.
	lease, err = p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lease.Release()
	if built.Load() != 1 {
		t.Fatalf("expected handle reuse, got %d builds", built.Load())
	}
}

func TestLazyInitFailureSurfacedToCaller(t *testing.T) {
	calls := 0
	p, err := New(context.Background(), Options{Component: "mos", Size: 1, LazyLoad: true, Devices: []string{"cuda:0"}},
		func(_ context.Context, _ string) (int, error) {
			calls++
			if calls == 1 {
				return 0, errors.New("cuda OOM")
			}
			return 42, nil
		}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Acquire(context.Background()); err == nil {
		t.Fatal("expected init error on first acquire")
	}
	// The slot returns unbuilt; a later acquire retries the factory.
	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	defer lease.Release()
	if lease.Handle != 42 {
		t.Fatalf("expected rebuilt handle, got %d", lease.Handle)
	}
}

func TestConcurrentHoldersBounded(t *testing.T) {
	const size = 3
	const callers = 10
	p, err := New(context.Background(), Options{Component: "tts", Size: size},
		func(_ context.Context, _ string) (struct{}, error) {
			return struct{}{}, nil
		}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var active, peak, completed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.With(context.Background(), func(struct{}) error {
				n := active.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				active.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("with: %v", err)
				return
			}
			completed.Add(1)
		}()
	}
	wg.Wait()

	if peak.Load() > size {
		t.Fatalf("expected at most %d concurrent holders, saw %d", size, peak.Load())
	}
	if completed.Load() != callers {
		t.Fatalf("expected all %d callers to complete, got %d", callers, completed.Load())
	}
	if p.InUse() != 0 {
		t.Fatalf("expected all handles released, %d in use", p.InUse())
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	p, err := New(context.Background(), Options{Component: "speaker", Size: 1},
		func(_ context.Context, _ string) (struct{}, error) {
			return struct{}{}, nil
		}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	p, err := New(context.Background(), Options{Component: "tts", Size: 1},
		func(_ context.Context, _ string) (struct{}, error) {
			return struct{}{}, nil
		}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	lease.Release()
	lease.Release()
	if p.InUse() != 0 {
		t.Fatalf("expected zero in use after double release, got %d", p.InUse())
	}
}
