package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/hostelhub/client/internal/logging"
)

// Checker reports whether the remote API can be reached. *api.Client satisfies it.
type Checker interface {
	Reachable(ctx context.Context) error
}

// ProbeConfig holds probe timing.
type ProbeConfig struct {
	Interval time.Duration // How often to check (default: 5 seconds)
	Timeout  time.Duration // Limit for a single check (default: 3 seconds)
}

// DefaultProbeConfig returns default probe configuration.
func DefaultProbeConfig() *ProbeConfig {
	return &ProbeConfig{
		Interval: 5 * time.Second,
		Timeout:  3 * time.Second,
	}
}

// Probe polls a Checker and emits an Event only when reachability changes.
type Probe struct {
	checker  Checker
	interval time.Duration
	timeout  time.Duration
	events   chan Event

	mu        sync.Mutex
	known     bool
	online    bool
	isRunning bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewProbe creates a Probe.
func NewProbe(checker Checker, config *ProbeConfig) *Probe {
	if config == nil {
		config = DefaultProbeConfig()
	}
	return &Probe{
		checker:  checker,
		interval: config.Interval,
		timeout:  config.Timeout,
		events:   make(chan Event, 1),
		stopCh:   make(chan struct{}),
	}
}

// Events implements Source.
func (p *Probe) Events() <-chan Event {
	return p.events
}

// Check probes once and returns the result. The first check only records the
// state; later checks that see a change emit an Event.
func (p *Probe) Check(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	online := p.checker.Reachable(checkCtx) == nil

	p.mu.Lock()
	changed := p.known && p.online != online
	p.known = true
	p.online = online
	p.mu.Unlock()

	if changed {
		logging.Debug("Reachability changed", map[string]interface{}{"online": online})
		select {
		case p.events <- Event{Online: online}:
		case <-ctx.Done():
		case <-p.stopCh:
		}
	}
	return online
}

// Start begins periodic checks.
func (p *Probe) Start(ctx context.Context) {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop stops periodic checks.
func (p *Probe) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}

func (p *Probe) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// ManualSource is a Source driven by hand.
type ManualSource struct {
	events chan Event
}

// NewManualSource creates a ManualSource.
func NewManualSource() *ManualSource {
	return &ManualSource{events: make(chan Event, 16)}
}

// Events implements Source.
func (m *ManualSource) Events() <-chan Event {
	return m.events
}

// Emit sends an event. It blocks once 16 events are pending.
func (m *ManualSource) Emit(online bool) {
	m.events <- Event{Online: online}
}
