package core

import (
	"context"
	"errors"
)

var ErrInvalidDeviceToken = errors.New("invalid or unregistered device token")

type (
	PushMessage struct {
		Token string
		Title string
		Body  string
		Data  map[string]string
	}

	// PushService delivers notifications to a single device.
	// It is built once at startup and injected where needed.
	PushService interface {
		// Send returns the provider's message ID.
		Send(ctx context.Context, msg PushMessage) (string, error)
	}
)
