package alerting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Notifier sends triggered alerts to one notification channel.
type Notifier interface {
	Notify(alerts []Alert) error
}

// consoleNotifier writes alerts to the monitoring logger.
type consoleNotifier struct {
	logger *zap.Logger
}

// NewConsoleNotifier creates a Notifier that logs alerts at warn level.
func NewConsoleNotifier(logger *zap.Logger) Notifier {
	return &consoleNotifier{logger: logger}
}

func (n *consoleNotifier) Notify(alerts []Alert) error {
	for _, alert := range alerts {
		n.logger.Warn("alert triggered",
			zap.String("rule", alert.Rule),
			zap.String("message", alert.Message),
			zap.Float64("value", alert.Value),
			zap.Float64("threshold", alert.Threshold),
		)
	}
	return nil
}

// fileNotifier appends alerts as JSON lines to a file.
type fileNotifier struct {
	path string
	mu   sync.Mutex
}

// NewFileNotifier creates a Notifier appending one JSON line per alert
// to the given path.
func NewFileNotifier(path string) Notifier {
	return &fileNotifier{path: path}
}

func (n *fileNotifier) Notify(alerts []Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	f, err := os.OpenFile(n.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening alert file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, alert := range alerts {
		if err := enc.Encode(alert); err != nil {
			return fmt.Errorf("writing alert: %w", err)
		}
	}
	return nil
}

// webhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type webhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a Notifier posting alert batches to the
// given webhook URL.
func NewWebhookNotifier(url string) Notifier {
	return &webhookNotifier{
		url:    url,
		client: &http.Client{},
	}
}

func (n *webhookNotifier) Notify(alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(map[string]any{"alerts": alerts})
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
