package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleMessage() Message {
	return Message{To: "ada@example.com", ToName: "Ada", Subject: "Your code", Text: "123456"}
}

func TestNewSelectsDriver(t *testing.T) {
	s, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	_, err = New(Config{Driver: DriverSendgrid}, nil)
	assert.Error(t, err)

	s, err = New(Config{Driver: "SendGrid", SendgridAPIKey: "key", FromAddress: "no-reply@example.com"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SendgridSender{}, s)

	_, err = New(Config{Driver: "smtp"}, nil)
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender("no-reply@example.com", zap.New(core))

	require.NoError(t, s.Send(context.Background(), sampleMessage()))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "ada@example.com", logs.All()[0].ContextMap()["to"])

	assert.Error(t, s.Send(context.Background(), Message{Subject: "no recipient", Text: "x"}))
}

func TestSendgridSenderBuildsRequest(t *testing.T) {
	s := NewSendgridSender("key", "UniGPA", "no-reply@example.com")
	var captured rest.Request
	s.api = func(req rest.Request) (*rest.Response, error) {
		captured = req
		return &rest.Response{StatusCode: http.StatusAccepted}, nil
	}

	require.NoError(t, s.Send(context.Background(), sampleMessage()))
	assert.Equal(t, rest.Method(http.MethodPost), captured.Method)
	assert.Equal(t, "Bearer key", captured.Headers["Authorization"])

	var body struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			Subject string `json:"subject"`
			To      []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
	}
	require.NoError(t, json.Unmarshal(captured.Body, &body))
	assert.Equal(t, "no-reply@example.com", body.From.Email)
	require.Len(t, body.Personalizations, 1)
	assert.Equal(t, "[UniGPA] Your code", body.Personalizations[0].Subject)
	assert.Equal(t, "ada@example.com", body.Personalizations[0].To[0].Email)
}

func TestSendgridSenderFailures(t *testing.T) {
	s := NewSendgridSender("key", "", "no-reply@example.com")

	s.api = func(rest.Request) (*rest.Response, error) {
		return &rest.Response{StatusCode: http.StatusUnauthorized, Body: "bad key"}, nil
	}
	assert.ErrorContains(t, s.Send(context.Background(), sampleMessage()), "status 401")

	s.api = func(rest.Request) (*rest.Response, error) { return nil, errors.New("dial tcp") }
	assert.ErrorContains(t, s.Send(context.Background(), sampleMessage()), "dial tcp")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, sampleMessage()), context.Canceled)
}
