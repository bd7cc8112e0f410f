package alert

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Sink receives fire-and-forget operator notifications, raised when a paid
// model fails in a way that suggests the catalog needs updating. Injected
// rather than logged inline so tests can assert on emission.
type Sink interface {
	Alert(modelID, reason string)
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Alert(modelID, reason string) {
	s.Logger.Warn("operator alert", "model", modelID, "reason", reason)
}

// MeteredSink counts every alert before delegating, so alert volume is
// visible in telemetry regardless of the delivery backend.
type MeteredSink struct {
	Next  Sink
	Meter interface{ IncAlert() }
}

func (s *MeteredSink) Alert(modelID, reason string) {
	s.Meter.IncAlert()
	s.Next.Alert(modelID, reason)
}

// WebhookSink posts alerts to an operator endpoint. Delivery is best
// effort; failures are logged and dropped.
type WebhookSink struct {
	URL    string
	Client *http.Client
	Logger *slog.Logger
}

func NewWebhookSink(url string, logger *slog.Logger) *WebhookSink {
	return &WebhookSink{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
		Logger: logger,
	}
}

type webhookPayload struct {
	ModelID string    `json:"model_id"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

func (s *WebhookSink) Alert(modelID, reason string) {
	payload, err := json.Marshal(webhookPayload{ModelID: modelID, Reason: reason, At: time.Now().UTC()})
	if err != nil {
		return
	}
	go func() {
		resp, err := s.Client.Post(s.URL, "application/json", bytes.NewReader(payload))
		if err != nil {
			s.Logger.Warn("alert webhook delivery failed", "model", modelID, "error", err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			s.Logger.Warn("alert webhook rejected", "model", modelID, "status", resp.StatusCode)
		}
	}()
}
