package mailer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	DriverLog      = "log"
	DriverSendgrid = "sendgrid"
)

// Message is a single outbound email.
type Message struct {
	To      string `json:"to"`
	ToName  string `json:"to_name,omitempty"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// Validate reports whether the message can be delivered.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("mail recipient is required")
	}
	if m.Text == "" && m.HTML == "" {
		return fmt.Errorf("mail content is required")
	}
	return nil
}

// Sender delivers messages synchronously. Callers that need async delivery go through a jobs.Queue.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config selects and configures the driver.
type Config struct {
	Driver         string
	FromName       string
	FromAddress    string
	SendgridAPIKey string
}

// New builds the sender for cfg.Driver. An empty driver selects the log driver.
func New(cfg Config, logger *zap.Logger) (Sender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Driver) {
	case "", DriverLog:
		return NewLogSender(cfg.FromAddress, logger), nil
	case DriverSendgrid:
		if cfg.SendgridAPIKey == "" {
			return nil, fmt.Errorf("sendgrid driver requires SENDGRID_API_KEY")
		}
		return NewSendgridSender(cfg.SendgridAPIKey, cfg.FromName, cfg.FromAddress), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}
