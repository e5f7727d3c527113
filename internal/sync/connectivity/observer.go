// Package connectivity tracks whether the remote API is reachable and tells
// interested parties when that changes.
package connectivity

import (
	"context"
	"sync"

	"github.com/kimhsiao/hostelhub/client/internal/logging"
)

// OfflineNotice is shown to the user when connectivity is lost.
const OfflineNotice = "You are offline. Changes will sync when online."

// Event is a platform connectivity signal.
type Event struct {
	Online bool
}

// Source delivers connectivity events, such as a Probe or a ManualSource.
type Source interface {
	Events() <-chan Event
}

// OnlineHandler runs when connectivity returns.
type OnlineHandler func(ctx context.Context)

// OfflineHandler runs when connectivity is lost, with the notice to show.
type OfflineHandler func(notice string)

// Observer consumes connectivity events and invokes handlers.
// All handlers run sequentially on the observer's single event goroutine,
// once per event. The observer neither debounces nor polls.
type Observer struct {
	source Source
	manual chan Event

	mu              sync.RWMutex
	online          bool
	isRunning       bool
	onlineHandlers  []OnlineHandler
	offlineHandlers []OfflineHandler

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewObserver creates an Observer reading from source, which may be nil when
// only SetOnline is used.
func NewObserver(source Source, initiallyOnline bool) *Observer {
	return &Observer{
		source: source,
		manual: make(chan Event, 16),
		online: initiallyOnline,
		stopCh: make(chan struct{}),
	}
}

// OnOnline registers fn to run on every online event.
func (o *Observer) OnOnline(fn OnlineHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onlineHandlers = append(o.onlineHandlers, fn)
}

// OnOffline registers fn to run on every offline event.
func (o *Observer) OnOffline(fn OfflineHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.offlineHandlers = append(o.offlineHandlers, fn)
}

// Online reports the last known connectivity state.
func (o *Observer) Online() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.online
}

// SetOnline injects a manual event. While the observer is running the event
// is delivered like any other; before Start it only sets the initial state.
func (o *Observer) SetOnline(online bool) {
	o.mu.Lock()
	if !o.isRunning {
		o.online = online
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	select {
	case o.manual <- Event{Online: online}:
	case <-o.stopCh:
	}
}

// IsRunning returns whether the observer is running.
func (o *Observer) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.isRunning
}

// Start begins delivering events. Handlers receive ctx.
func (o *Observer) Start(ctx context.Context) {
	o.mu.Lock()
	if o.isRunning {
		o.mu.Unlock()
		return
	}
	o.isRunning = true
	o.mu.Unlock()

	var sourceCh <-chan Event
	if o.source != nil {
		sourceCh = o.source.Events()
	}

	o.wg.Add(1)
	go o.loop(ctx, sourceCh)

	logging.Debug("Connectivity observer started", map[string]interface{}{"online": o.Online()})
}

// Stop stops the observer and waits for a running handler to return.
func (o *Observer) Stop() {
	o.mu.Lock()
	if !o.isRunning {
		o.mu.Unlock()
		return
	}
	o.isRunning = false
	o.mu.Unlock()

	close(o.stopCh)
	o.wg.Wait()

	logging.Debug("Connectivity observer stopped", nil)
}

func (o *Observer) loop(ctx context.Context, sourceCh <-chan Event) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case ev, ok := <-sourceCh:
			if !ok {
				sourceCh = nil
				continue
			}
			o.handle(ctx, ev)
		case ev := <-o.manual:
			o.handle(ctx, ev)
		}
	}
}

func (o *Observer) handle(ctx context.Context, ev Event) {
	o.mu.Lock()
	was := o.online
	o.online = ev.Online
	onlineHandlers := append([]OnlineHandler(nil), o.onlineHandlers...)
	offlineHandlers := append([]OfflineHandler(nil), o.offlineHandlers...)
	o.mu.Unlock()

	logging.Info("Connectivity changed", map[string]interface{}{
		"was_online": was,
		"is_online":  ev.Online,
	})

	if ev.Online {
		for _, h := range onlineHandlers {
			h(ctx)
		}
		return
	}
	for _, h := range offlineHandlers {
		h(OfflineNotice)
	}
}
