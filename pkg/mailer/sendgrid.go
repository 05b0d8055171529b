package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridSender delivers messages through the SendGrid v3 API.
type SendgridSender struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	api        func(rest.Request) (*rest.Response, error)
}

// NewSendgridSender constructs a SendgridSender.
func NewSendgridSender(key, appName, fromAddress string) *SendgridSender {
	prefix := ""
	if appName != "" {
		prefix = "[" + appName + "] "
	}
	return &SendgridSender{
		key:        key,
		from:       sgmail.NewEmail(appName, fromAddress),
		subjPrefix: prefix,
		api:        sendgrid.API,
	}
}

// Send posts the message. A non-2xx response is returned as an error so the queue can retry.
func (s *SendgridSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := s.api(req)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (s *SendgridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	if msg.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}
