package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ftl/cellbroadcast/cb"
)

// Webhook delivers broadcast messages by posting them to a URL.
type Webhook struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

func NewWebhook(url string, timeout time.Duration, log zerolog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (w *Webhook) Deliver(ctx context.Context, slot int, message cb.Message) error {
	payload, err := NewMessage(slot, message)
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", message, err)
	}
	err = postJSON(ctx, w.client, w.url, payload)
	if err != nil {
		return fmt.Errorf("cannot deliver %s: %w", message, err)
	}
	w.log.Debug().Int("slot", slot).Stringer("message", message).Msg("message delivered")
	return nil
}

// LogDeliverer writes broadcast messages into the log.
type LogDeliverer struct {
	log zerolog.Logger
}

func NewLogDeliverer(log zerolog.Logger) *LogDeliverer {
	return &LogDeliverer{log: log}
}

func (d *LogDeliverer) Deliver(_ context.Context, slot int, message cb.Message) error {
	d.log.Info().
		Int("slot", slot).
		Uint16("id", uint16(message.Header.MessageIdentifier)).
		Uint16("serial", uint16(message.Header.SerialNumber)).
		Stringer("location", message.Location).
		Str("language", message.Language).
		Str("body", message.Body).
		Msg("cell broadcast")
	return nil
}
