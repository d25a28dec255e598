/*
Package notify hands broadcast messages and area info over to the outside world: as JSON posted to webhooks, or
into the log.
*/
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/geo"
)

// Message is the JSON representation of a broadcast message.
type Message struct {
	Slot              int             `json:"slot"`
	MessageIdentifier uint16          `json:"message_identifier"`
	SerialNumber      uint16          `json:"serial_number"`
	GeographicalScope string          `json:"geographical_scope"`
	MessageCode       int             `json:"message_code"`
	UpdateNumber      int             `json:"update_number"`
	Location          string          `json:"location"`
	Language          string          `json:"language,omitempty"`
	Body              string          `json:"body"`
	Geometries        json.RawMessage `json:"geometries,omitempty"`
	MaximumWaitTime   string          `json:"maximum_wait_time,omitempty"`
	ReceivedAt        time.Time       `json:"received_at"`
}

// NewMessage converts a message received on the given slot into its JSON representation.
func NewMessage(slot int, message cb.Message) (Message, error) {
	result := Message{
		Slot:              slot,
		MessageIdentifier: uint16(message.Header.MessageIdentifier),
		SerialNumber:      uint16(message.Header.SerialNumber),
		GeographicalScope: message.Header.GeographicalScope().String(),
		MessageCode:       message.Header.SerialNumber.MessageCode(),
		UpdateNumber:      message.Header.SerialNumber.UpdateNumber(),
		Location:          message.Location.String(),
		Language:          message.Language,
		Body:              message.Body,
		ReceivedAt:        message.ReceivedAt.UTC(),
	}
	if message.MaximumWaitTime > 0 {
		result.MaximumWaitTime = message.MaximumWaitTime.String()
	}
	if message.HasGeometry() {
		geometries, err := geo.MarshalGeometries(message.Geometries)
		if err != nil {
			return Message{}, err
		}
		result.Geometries = geometries
	}
	return result, nil
}

// AreaInfo is the JSON representation of an area info notification.
type AreaInfo struct {
	Slot     int    `json:"slot"`
	Receiver string `json:"receiver"`
	Text     string `json:"text"`
}

// postJSON sends the value as JSON body and expects a 2xx status.
func postJSON(ctx context.Context, client *http.Client, url string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("POST %s: %s", url, response.Status)
	}
	return nil
}
