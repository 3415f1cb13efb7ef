package service

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMailer(send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error) *Mailer {
	m := NewMailer(MailerConfig{
		Host: "relay.local",
		Port: 25,
		From: "comportamento@escola.local",
	}, testLogger())
	m.send = send
	return m
}

func TestNotifyDeliversRenderedMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	m := newTestMailer(func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	})

	err := m.Notify(context.Background(), Message{
		To:      []string{"coordenacao@escola.local"},
		Subject: "Ocorrência consolidada - aluno 42",
		Body:    "Variação aplicada: -0.30",
	})
	require.NoError(t, err)

	assert.Equal(t, "relay.local:25", gotAddr)
	assert.Equal(t, "comportamento@escola.local", gotFrom)
	assert.Equal(t, []string{"coordenacao@escola.local"}, gotTo)

	rendered := string(gotMsg)
	assert.Contains(t, rendered, "Subject: Ocorrência consolidada - aluno 42\r\n")
	assert.Contains(t, rendered, "To: coordenacao@escola.local\r\n")
	assert.True(t, strings.HasSuffix(rendered, "\r\nVariação aplicada: -0.30"))
}

func TestNotifyRequiresRecipients(t *testing.T) {
	m := newTestMailer(func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	})

	err := m.Notify(context.Background(), Message{Subject: "x", Body: "y"})
	assert.Error(t, err)
}

func TestNotifyRetriesTransientFailure(t *testing.T) {
	attempts := 0
	m := newTestMailer(func(string, smtp.Auth, string, []string, []byte) error {
		attempts++
		if attempts == 1 {
			return errors.New("relay hiccup")
		}
		return nil
	})

	err := m.Notify(context.Background(), Message{
		To:      []string{"coordenacao@escola.local"},
		Subject: "retry",
		Body:    "body",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
