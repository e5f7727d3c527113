// Package push subscribes the client to push notifications and receives them.
package push

import (
	"context"
	"crypto/ecdh"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kimhsiao/hostelhub/client/internal/crypto"
	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
	"github.com/kimhsiao/hostelhub/client/internal/logging"
	"github.com/kimhsiao/hostelhub/client/internal/models"
	"github.com/kimhsiao/hostelhub/client/internal/storage"
)

// Permission is the user's answer to the notification prompt.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// PermissionPrompter asks the user whether notifications may be shown.
type PermissionPrompter interface {
	Prompt(ctx context.Context) (Permission, error)
}

// PrompterFunc adapts a function to PermissionPrompter.
type PrompterFunc func(ctx context.Context) (Permission, error)

// Prompt implements PermissionPrompter.
func (f PrompterFunc) Prompt(ctx context.Context) (Permission, error) {
	return f(ctx)
}

// Registrar tells the API about subscriptions. *api.Client satisfies it.
type Registrar interface {
	Subscribe(ctx context.Context, sub models.PushSubscription) error
	Unsubscribe(ctx context.Context, endpoint string) error
}

// Config holds push settings.
type Config struct {
	ServiceURL     string // push service root; endpoints are ServiceURL/<device id>
	VAPIDPublicKey string // application server key, URL-safe base64
	Origin         string // base for relative notification URLs
}

// Messages for push failures.
const (
	MsgUnsupported   = "Push notifications are not supported"
	MsgNotPermitted  = "Notification permission was not granted"
	MsgNotSubscribed = "Not subscribed to push notifications"
)

var b64 = base64.RawURLEncoding

// Manager owns the device's push subscription. The subscription, including
// its private key, is persisted under storage.KeyPushSubscription.
type Manager struct {
	cfg       Config
	registrar Registrar
	store     storage.Storage
	prompter  PermissionPrompter

	mu         sync.Mutex
	permission Permission
}

// NewManager creates a Manager. prompter may be nil, in which case permission
// can never be granted.
func NewManager(cfg Config, registrar Registrar, store storage.Storage, prompter PermissionPrompter) *Manager {
	return &Manager{
		cfg:        cfg,
		registrar:  registrar,
		store:      store,
		prompter:   prompter,
		permission: PermissionDefault,
	}
}

// Supported reports whether a push service is configured and the application
// server key is a valid P-256 point.
func (m *Manager) Supported() bool {
	if m.cfg.ServiceURL == "" {
		return false
	}
	raw, err := decodeKey(m.cfg.VAPIDPublicKey)
	if err != nil {
		return false
	}
	_, err = crypto.ParseP256PublicKey(raw)
	return err == nil
}

// Permission returns the last permission answer.
func (m *Manager) Permission() Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permission
}

// RequestPermission asks the user for permission to show notifications.
func (m *Manager) RequestPermission(ctx context.Context) (Permission, error) {
	if !m.Supported() {
		return PermissionDenied, apperrors.New(apperrors.ErrPushUnsupported, MsgUnsupported)
	}
	answer := PermissionDenied
	if m.prompter != nil {
		var err error
		if answer, err = m.prompter.Prompt(ctx); err != nil {
			return PermissionDefault, err
		}
	}
	m.mu.Lock()
	m.permission = answer
	m.mu.Unlock()
	return answer, nil
}

// Subscribe registers this device for push notifications, reusing an
// existing subscription when there is one.
func (m *Manager) Subscribe(ctx context.Context) (*models.PushSubscription, error) {
	if !m.Supported() {
		return nil, apperrors.New(apperrors.ErrPushUnsupported, MsgUnsupported)
	}
	if m.Permission() != PermissionGranted {
		return nil, apperrors.New(apperrors.ErrPermission, MsgNotPermitted)
	}

	local, err := m.Subscription()
	if err != nil {
		return nil, err
	}
	if local == nil {
		if local, err = m.create(); err != nil {
			return nil, err
		}
	}

	if err := m.registrar.Subscribe(ctx, local.PushSubscription); err != nil {
		logging.Error("Error saving subscription to server", err)
		return nil, err
	}

	logging.Info("Subscribed to push notifications", map[string]interface{}{"endpoint": local.Endpoint})
	sub := local.PushSubscription
	return &sub, nil
}

// Unsubscribe removes the subscription from the API and this device.
// It returns false when there was no subscription.
func (m *Manager) Unsubscribe(ctx context.Context) (bool, error) {
	local, err := m.Subscription()
	if err != nil || local == nil {
		return false, err
	}

	if err := m.registrar.Unsubscribe(ctx, local.Endpoint); err != nil {
		logging.Error("Error unsubscribing from server", err)
		return false, err
	}
	if err := m.store.Remove(storage.KeyPushSubscription); err != nil {
		return false, apperrors.Wrap(apperrors.ErrStorage, "failed to remove push subscription", err)
	}
	return true, nil
}

// Subscription returns the persisted subscription, or nil.
func (m *Manager) Subscription() (*models.LocalPushSubscription, error) {
	raw, ok, err := m.store.Get(storage.KeyPushSubscription)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read push subscription", err)
	}
	if !ok {
		return nil, nil
	}
	var local models.LocalPushSubscription
	if err := json.Unmarshal([]byte(raw), &local); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "push subscription is corrupt", err)
	}
	return &local, nil
}

// Origin returns the base for relative notification URLs.
func (m *Manager) Origin() string {
	return m.cfg.Origin
}

func (m *Manager) create() (*models.LocalPushSubscription, error) {
	keys, err := crypto.GeneratePushKeys()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCryptoFailed, "failed to generate push keys", err)
	}
	device, err := DeviceID(m.store)
	if err != nil {
		return nil, err
	}

	local := &models.LocalPushSubscription{
		PushSubscription: models.PushSubscription{
			Endpoint: strings.TrimRight(m.cfg.ServiceURL, "/") + "/" + device,
			Keys: models.PushKeys{
				P256dh: b64.EncodeToString(keys.Private.PublicKey().Bytes()),
				Auth:   b64.EncodeToString(keys.AuthSecret),
			},
		},
		PrivateKey: b64.EncodeToString(keys.Private.Bytes()),
	}

	data, err := json.Marshal(local)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode push subscription", err)
	}
	if err := m.store.Set(storage.KeyPushSubscription, string(data)); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to persist push subscription", err)
	}
	return local, nil
}

// DeviceID returns this installation's id, creating it on first use.
func DeviceID(store storage.Storage) (string, error) {
	id, ok, err := store.Get(storage.KeyDeviceID)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to read device id", err)
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := store.Set(storage.KeyDeviceID, id); err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "failed to persist device id", err)
	}
	return id, nil
}

// Keys rebuilds the receiver key material of a persisted subscription.
func Keys(local *models.LocalPushSubscription) (*crypto.PushKeys, error) {
	privRaw, err := decodeKey(local.PrivateKey)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCryptoFailed, "bad push private key", err)
	}
	priv, err := ecdh.P256().NewPrivateKey(privRaw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCryptoFailed, "bad push private key", err)
	}
	auth, err := decodeKey(local.Keys.Auth)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCryptoFailed, "bad push auth secret", err)
	}
	return &crypto.PushKeys{Private: priv, AuthSecret: auth}, nil
}

// decodeKey accepts URL-safe base64 with or without padding.
func decodeKey(s string) ([]byte, error) {
	return b64.DecodeString(strings.TrimRight(s, "="))
}
