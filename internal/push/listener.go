package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kimhsiao/hostelhub/client/internal/crypto"
	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
	"github.com/kimhsiao/hostelhub/client/internal/logging"
	"github.com/kimhsiao/hostelhub/client/internal/models"
)

// Notification display defaults.
const (
	DefaultIcon  = "/logo192.png"
	DefaultBadge = "/badge.png"
	DefaultURL   = "/"
)

// message is the JSON payload the API pushes.
type message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Data  struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Listener holds a websocket open to the subscription endpoint and turns
// each pushed message into a Notification.
type Listener struct {
	manager *Manager
	notify  func(models.Notification)
	dialer  *websocket.Dialer
	retry   time.Duration
}

// NewListener creates a Listener that hands notifications to notify.
func NewListener(manager *Manager, notify func(models.Notification)) *Listener {
	return &Listener{
		manager: manager,
		notify:  notify,
		dialer:  websocket.DefaultDialer,
		retry:   5 * time.Second,
	}
}

// SetRetryInterval sets the delay between reconnect attempts.
func (l *Listener) SetRetryInterval(d time.Duration) {
	l.retry = d
}

// Run listens until ctx is done, reconnecting after every dropped connection.
func (l *Listener) Run(ctx context.Context) error {
	local, err := l.manager.Subscription()
	if err != nil {
		return err
	}
	if local == nil {
		return apperrors.New(apperrors.ErrNotFound, MsgNotSubscribed)
	}
	keys, err := Keys(local)
	if err != nil {
		return err
	}

	t := time.NewTicker(l.retry)
	defer t.Stop()
	for {
		if err := l.listen(ctx, local.Endpoint, keys); err != nil && ctx.Err() == nil {
			logging.Warn("Push connection lost", map[string]interface{}{"error": err.Error()})
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			logging.Debug("Push listener stopped", nil)
			return nil
		}
	}
}

func (l *Listener) listen(ctx context.Context, endpoint string, keys *crypto.PushKeys) error {
	conn, _, err := l.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	logging.Info("Listening for push notifications", map[string]interface{}{"endpoint": endpoint})
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		n, err := Decode(kind, data, keys, l.manager.Origin())
		if err != nil {
			logging.Warn("Dropping undecodable push message", map[string]interface{}{"error": err.Error()})
			continue
		}
		l.notify(n)
	}
}

// Decode turns one websocket frame into a Notification. Binary frames are
// aes128gcm encrypted for keys; text frames are plain JSON.
func Decode(kind int, data []byte, keys *crypto.PushKeys, origin string) (models.Notification, error) {
	if kind == websocket.BinaryMessage {
		plaintext, err := crypto.DecryptPush(data, keys)
		if err != nil {
			return models.Notification{}, apperrors.Wrap(apperrors.ErrCryptoFailed, "failed to decrypt push message", err)
		}
		data = plaintext
	}

	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.Notification{}, fmt.Errorf("invalid push payload: %w", err)
	}

	n := models.Notification{
		Title: msg.Title,
		Body:  msg.Body,
		Icon:  msg.Icon,
		Badge: DefaultBadge,
		URL:   DefaultURL,
	}
	if n.Icon == "" {
		n.Icon = DefaultIcon
	}
	if msg.Data.URL != "" {
		n.URL = resolve(origin, msg.Data.URL)
	}
	return n, nil
}

func resolve(origin, ref string) string {
	r, err := url.Parse(ref)
	if err != nil {
		return DefaultURL
	}
	base, err := url.Parse(origin)
	if err != nil || origin == "" {
		return r.String()
	}
	return base.ResolveReference(r).String()
}
