package notification

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetgate/internal/platform/config"
	"vetgate/pkg/platform/sentinel"
)

func TestSMTPSender_FailureKeepsCauseInChain(t *testing.T) {
	// Grab a port nothing listens on so the dial fails fast.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	sender := NewSMTPSender(config.SMTPConfig{
		Host: "127.0.0.1",
		Port: port,
		From: "noreply@example.com",
	})

	err = sender.Send(context.Background(), "ana@example.com", "subject", "body")
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSMTPSender_EmptyRecipient(t *testing.T) {
	sender := NewSMTPSender(config.SMTPConfig{Host: "127.0.0.1", Port: 25})

	err := sender.Send(context.Background(), "", "subject", "body")
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}
