package models

// PushKeys are the public receiver keys of a push subscription.
type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is the subscription object exchanged with the remote API.
type PushSubscription struct {
	Endpoint       string   `json:"endpoint"`
	ExpirationTime *int64   `json:"expirationTime"`
	Keys           PushKeys `json:"keys"`
}

// LocalPushSubscription is what the client persists: the public subscription
// plus the private key needed to decrypt incoming messages.
type LocalPushSubscription struct {
	PushSubscription
	PrivateKey string `json:"privateKey"`
}

// Notification is a decoded push message ready for display.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Badge string `json:"badge"`
	URL   string `json:"url"`
}
