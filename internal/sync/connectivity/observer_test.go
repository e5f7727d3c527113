// Package connectivity tests for the connectivity observer and probe.
package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

// TestNewObserver verifies the initial state.
func TestNewObserver(t *testing.T) {
	if !NewObserver(nil, true).Online() {
		t.Error("Online() = false, want true")
	}
	if NewObserver(nil, false).Online() {
		t.Error("Online() = true, want false")
	}
}

// TestObserver_SetOnlineBeforeStart verifies SetOnline sets state without handlers.
func TestObserver_SetOnlineBeforeStart(t *testing.T) {
	o := NewObserver(nil, true)
	called := false
	o.OnOffline(func(string) { called = true })

	o.SetOnline(false)
	if o.Online() {
		t.Error("Online() = true after SetOnline(false)")
	}
	if called {
		t.Error("handlers must not run before Start")
	}
}

// TestObserver_handlers verifies handlers run once per event with the notice.
func TestObserver_handlers(t *testing.T) {
	src := NewManualSource()
	o := NewObserver(src, true)
	got := make(chan string, 8)
	o.OnOnline(func(context.Context) { got <- "online" })
	o.OnOffline(func(notice string) { got <- notice })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer o.Stop()

	src.Emit(false)
	waitFor(t, got, OfflineNotice)
	if o.Online() {
		t.Error("Online() = true after offline event")
	}

	src.Emit(true)
	waitFor(t, got, "online")
	if !o.Online() {
		t.Error("Online() = false after online event")
	}

	// Manual events flow through the same loop.
	o.SetOnline(false)
	waitFor(t, got, OfflineNotice)
	o.SetOnline(true)
	waitFor(t, got, "online")

	select {
	case extra := <-got:
		t.Errorf("unexpected extra handler call %q", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestObserver_sequentialHandlers verifies handlers never run concurrently.
func TestObserver_sequentialHandlers(t *testing.T) {
	src := NewManualSource()
	o := NewObserver(src, false)

	var inFlight, maxInFlight, calls int32
	var wg sync.WaitGroup
	wg.Add(6)
	handler := func(context.Context) {
		defer wg.Done()
		n := atomic.AddInt32(&inFlight, 1)
		if n > atomic.LoadInt32(&maxInFlight) {
			atomic.StoreInt32(&maxInFlight, n)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&calls, 1)
		atomic.AddInt32(&inFlight, -1)
	}
	o.OnOnline(handler)
	o.OnOnline(handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer o.Stop()

	for i := 0; i < 3; i++ {
		src.Emit(true)
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Errorf("max concurrent handlers = %d, want 1", maxInFlight)
	}
	if calls != 6 {
		t.Errorf("handler calls = %d, want 6 (two handlers, three events)", calls)
	}
}

// TestObserver_StartStop verifies lifecycle idempotence.
func TestObserver_StartStop(t *testing.T) {
	o := NewObserver(NewManualSource(), true)
	ctx := context.Background()

	o.Start(ctx)
	o.Start(ctx)
	if !o.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	o.Stop()
	o.Stop()
	if o.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

type fakeChecker struct {
	mu  sync.Mutex
	err error
}

func (f *fakeChecker) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeChecker) Reachable(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// TestDefaultProbeConfig verifies default configuration.
func TestDefaultProbeConfig(t *testing.T) {
	config := DefaultProbeConfig()
	if config.Interval != 5*time.Second || config.Timeout != 3*time.Second {
		t.Errorf("config = %+v", config)
	}
}

// TestProbe_CheckEmitsOnTransitionsOnly verifies event emission.
func TestProbe_CheckEmitsOnTransitionsOnly(t *testing.T) {
	checker := &fakeChecker{}
	p := NewProbe(checker, &ProbeConfig{Interval: time.Hour, Timeout: time.Second})
	ctx := context.Background()

	if !p.Check(ctx) {
		t.Fatal("Check() = false, want true")
	}
	expectNoEvent(t, p)

	p.Check(ctx)
	expectNoEvent(t, p)

	checker.set(errors.New("connection refused"))
	if p.Check(ctx) {
		t.Fatal("Check() = true, want false")
	}
	expectEvent(t, p, false)

	checker.set(nil)
	p.Check(ctx)
	expectEvent(t, p, true)
}

// TestProbe_feedsObserver verifies the probe drives an observer end to end.
func TestProbe_feedsObserver(t *testing.T) {
	checker := &fakeChecker{}
	p := NewProbe(checker, &ProbeConfig{Interval: 10 * time.Millisecond, Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := NewObserver(p, p.Check(ctx))
	got := make(chan string, 8)
	o.OnOnline(func(context.Context) { got <- "online" })
	o.OnOffline(func(string) { got <- "offline" })

	o.Start(ctx)
	p.Start(ctx)
	defer o.Stop()
	defer p.Stop()

	checker.set(errors.New("down"))
	waitFor(t, got, "offline")
	checker.set(nil)
	waitFor(t, got, "online")
}

func expectNoEvent(t *testing.T, p *Probe) {
	t.Helper()
	select {
	case ev := <-p.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func expectEvent(t *testing.T, p *Probe, online bool) {
	t.Helper()
	select {
	case ev := <-p.Events():
		if ev.Online != online {
			t.Fatalf("event online = %v, want %v", ev.Online, online)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}
}
