// Package app builds the client core from configuration and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/kimhsiao/hostelhub/client/internal/api"
	"github.com/kimhsiao/hostelhub/client/internal/auth"
	"github.com/kimhsiao/hostelhub/client/internal/config"
	"github.com/kimhsiao/hostelhub/client/internal/crypto"
	"github.com/kimhsiao/hostelhub/client/internal/db"
	"github.com/kimhsiao/hostelhub/client/internal/logging"
	"github.com/kimhsiao/hostelhub/client/internal/push"
	"github.com/kimhsiao/hostelhub/client/internal/storage"
	"github.com/kimhsiao/hostelhub/client/internal/store"
	syncpkg "github.com/kimhsiao/hostelhub/client/internal/sync"
	"github.com/kimhsiao/hostelhub/client/internal/sync/connectivity"
	"github.com/kimhsiao/hostelhub/client/internal/sync/queue"
	"github.com/kimhsiao/hostelhub/client/internal/users"
)

// Options adjust how an App is assembled.
type Options struct {
	// ForceOffline keeps the app offline; writes go to the queue.
	ForceOffline bool

	// Prompter answers the push permission question. Nil means denied.
	Prompter push.PermissionPrompter

	// Notice receives user-visible notices such as the offline message.
	Notice func(string)

	// Storage replaces the sqlite store, mainly for tests.
	Storage storage.Storage
}

// App holds every component of the client and the wiring between them.
type App struct {
	Config   *config.Config
	Storage  storage.Storage
	Client   *api.Client
	Session  *auth.Session
	Queue    *queue.Queue
	Observer *connectivity.Observer
	Probe    *connectivity.Probe
	Engine   *syncpkg.Engine
	Hostels  *store.HostelStore
	Users    *users.Service
	Push     *push.Manager

	db           *db.DB
	forceOffline bool
	notice       func(string)

	mu      sync.Mutex
	running bool
}

// New assembles an App from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		Config:       cfg,
		forceOffline: opts.ForceOffline,
		notice:       opts.Notice,
	}
	if a.notice == nil {
		a.notice = func(msg string) { logging.Warn(msg) }
	}

	st := opts.Storage
	if st == nil {
		database, err := db.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		a.db = database
		st = db.NewKVStore(database)
	}
	if cfg.Storage.EncryptionKey != "" {
		sealed, err := crypto.NewSealedStorage(st, cfg.Storage.EncryptionKey,
			storage.KeyToken, storage.KeyPushSubscription)
		if err != nil {
			a.Close()
			return nil, err
		}
		st = sealed
	}
	a.Storage = st

	a.Client = api.NewClient(cfg.API.BaseURL, api.WithTimeout(cfg.APITimeout()))

	session, err := auth.NewSession(a.Client, st)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Session = session

	a.Queue = queue.New(st)
	a.Probe = connectivity.NewProbe(a.Client, &connectivity.ProbeConfig{
		Interval: cfg.ProbeInterval(),
		Timeout:  cfg.ProbeTimeout(),
	})

	var source connectivity.Source = a.Probe
	if a.forceOffline {
		source = nil
	}
	a.Observer = connectivity.NewObserver(source, !a.forceOffline)

	a.Hostels = store.NewHostelStore(a.Client, a.Observer, a.Queue)
	a.Engine = syncpkg.NewEngine(a.Queue, a.Client, a.Hostels)
	a.Users = users.NewService(a.Client, a.Session.User)
	a.Push = push.NewManager(push.Config{
		ServiceURL:     cfg.Push.ServiceURL,
		VAPIDPublicKey: cfg.Push.VAPIDPublicKey,
		Origin:         cfg.Push.Origin,
	}, a.Client, st, opts.Prompter)

	a.Observer.OnOnline(a.resync)
	a.Observer.OnOffline(a.notice)

	return a, nil
}

// resync runs on the observer goroutine for every online event.
func (a *App) resync(ctx context.Context) {
	result, err := a.Engine.Resync(ctx)
	if err != nil {
		logging.Error("Resync failed", err)
		return
	}
	logging.Info("Resync finished", map[string]interface{}{
		"replayed": result.Replayed,
		"failed":   result.Failed,
		"duration": result.Duration.String(),
	})
}

// Start determines the initial connectivity state with one probe.
// It does not replay the queue; an online event or an explicit Resync does.
func (a *App) Start(ctx context.Context) bool {
	online := false
	if !a.forceOffline {
		online = a.Probe.Check(ctx)
	}
	a.Observer.SetOnline(online)
	if !online {
		logging.Debug("Starting offline", map[string]interface{}{"forced": a.forceOffline})
	}
	return online
}

// Watch starts the observer and, unless offline is forced, the probe.
// Both stop when ctx ends or Close is called.
func (a *App) Watch(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.running = true

	a.Observer.Start(ctx)
	if !a.forceOffline {
		a.Probe.Start(ctx)
	}
}

// Online reports whether the remote API is considered reachable.
func (a *App) Online() bool {
	return a.Observer.Online()
}

// ForcedOffline reports whether the app was built with ForceOffline.
func (a *App) ForcedOffline() bool {
	return a.forceOffline
}

// Close stops background loops and releases storage.
func (a *App) Close() error {
	a.mu.Lock()
	running := a.running
	a.running = false
	a.mu.Unlock()

	if running {
		a.Probe.Stop()
		a.Observer.Stop()
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
