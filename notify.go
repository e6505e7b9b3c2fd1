package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Message is one notification. Error marks high-priority failure messages.
type Message struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"message"`
	Error bool   `json:"error,omitempty"`
}

// Channel delivers a rendered message to one destination.
type Channel interface {
	Send(msg Message) error
}

// Notifier is the fire-and-forget surface the run coordinator and the
// switch orchestrator emit through.
type Notifier interface {
	Notify(body string)
	NotifyError(body, title string)
}

// WebhookChannel POSTs messages to a webhook endpoint as JSON.
type WebhookChannel struct {
	url    string
	client *http.Client
}

func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (ch *WebhookChannel) Send(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling webhook payload: %w", err)
	}

	resp, err := ch.client.Post(ch.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher fans messages out to every configured channel. In batch mode
// it queues everything and sends one digest when the run flushes. Channel
// failures are logged, never propagated: losing a notification must not
// fail a run.
type Dispatcher struct {
	channels []Channel
	batch    bool
	pending  []Message
	logger   *slog.Logger
}

func NewDispatcher(channels []Channel, batch bool, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{channels: channels, batch: batch, logger: logger}
}

func (d *Dispatcher) Notify(body string) {
	d.dispatch(Message{Body: body})
}

func (d *Dispatcher) NotifyError(body, title string) {
	d.dispatch(Message{Title: title, Body: body, Error: true})
}

func (d *Dispatcher) dispatch(msg Message) {
	d.logger.Info("notification", "error", msg.Error, "body", msg.Body)
	if d.batch {
		d.pending = append(d.pending, msg)
		return
	}
	d.send(msg)
}

// Flush sends the batched digest, if any. A no-op outside batch mode.
func (d *Dispatcher) Flush() {
	if !d.batch || len(d.pending) == 0 {
		return
	}

	digest := Message{}
	var bodies []string
	for _, msg := range d.pending {
		bodies = append(bodies, msg.Body)
		if msg.Error {
			digest.Error = true
			if digest.Title == "" {
				digest.Title = msg.Title
			}
		}
	}
	digest.Body = strings.Join(bodies, "\n\n")
	d.pending = nil

	d.send(digest)
}

// Close releases channel resources, such as the MQTT broker connection.
func (d *Dispatcher) Close() {
	for _, ch := range d.channels {
		if closer, ok := ch.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

func (d *Dispatcher) send(msg Message) {
	for _, ch := range d.channels {
		if err := ch.Send(msg); err != nil {
			d.logger.Error("failed to send notification", "error", err)
		}
	}
}
