package notification

import "context"

// NoopSender accepts every message without delivering anywhere. Used in dev
// mode when SMTP is not configured; messages still get recorded in-app.
type NoopSender struct{}

func (NoopSender) Send(context.Context, string, string, string) error { return nil }
