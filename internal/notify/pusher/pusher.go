// Package pusher publishes queue events to a hosted Pusher Channels app, the
// transport the mobile and web clients subscribe to.
package pusher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	pushersdk "github.com/pusher/pusher-http-go/v5"

	"github.com/linnemanlabs/erqueue/internal/notify"
)

const httpTimeout = 5 * time.Second

// Triggerer is the subset of the Pusher client used here.
type Triggerer interface {
	Trigger(channel string, eventName string, data interface{}) error
}

// Config holds the Pusher app credentials.
type Config struct {
	AppID   string
	Key     string
	Secret  string
	Cluster string
	Secure  bool
}

// Enabled reports whether enough credentials are set to publish.
func (c Config) Enabled() bool {
	return c.AppID != "" && c.Key != "" && c.Secret != ""
}

// Notifier triggers one Pusher event per queue event on notify.Channel.
type Notifier struct {
	client Triggerer
}

// New creates a Notifier backed by a real Pusher client.
func New(cfg Config) *Notifier {
	return NewWithClient(&pushersdk.Client{
		AppID:      cfg.AppID,
		Key:        cfg.Key,
		Secret:     cfg.Secret,
		Cluster:    cfg.Cluster,
		Secure:     cfg.Secure,
		HTTPClient: &http.Client{Timeout: httpTimeout},
	})
}

// NewWithClient creates a Notifier around any Triggerer.
func NewWithClient(client Triggerer) *Notifier {
	return &Notifier{client: client}
}

// Publish implements notify.Notifier. The event payload is the bare patient
// number, which is what the clients expect.
func (n *Notifier) Publish(ctx context.Context, ev notify.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.client.Trigger(notify.Channel, string(ev.Type), ev.Number); err != nil {
		return fmt.Errorf("pusher: trigger %s: %w", ev.Type, err)
	}
	return nil
}
