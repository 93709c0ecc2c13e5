// Package notification keeps track of user devices and fans push notifications out to them.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/schooldriver/schooldriver/core"
)

var ErrDeviceNotFound = errors.New("device not found")

var Platforms = []string{"android", "ios", "web"}

type (
	Device struct {
		ID         string    `json:"id"`
		UserID     string    `json:"user_id"`
		Token      string    `json:"token"`
		Platform   string    `json:"platform"`
		IsActive   bool      `json:"is_active"`
		CreatedAt  time.Time `json:"created_at"`
		LastSeenAt time.Time `json:"last_seen_at"`
	}

	NewDevice struct {
		Token    string `json:"token" validate:"required,max=255"`
		Platform string `json:"platform" validate:"omitempty,oneof=android ios web"`
	}

	Repository interface {
		// SaveDevice registers token for userID; a known token is moved to userID and reactivated.
		SaveDevice(ctx context.Context, d Device, exec ...core.DBExecutor) (Device, error)
		QueryDevices(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Device, error)
		// DeactivateDevice returns ErrDeviceNotFound when userID owns no such token.
		DeactivateDevice(ctx context.Context, userID, token string, exec ...core.DBExecutor) error
		DeactivateToken(ctx context.Context, token string, exec ...core.DBExecutor) error
	}

	Service struct {
		repo     Repository
		push     core.PushService
		validate *validator.Validate
		logger   core.Logger
		now      func() time.Time
	}
)

func NewService(repo Repository, push core.PushService, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{repo: repo, push: push, validate: validate, logger: logger, now: time.Now}
}

func (svc *Service) RegisterDevice(ctx context.Context, userID string, nd NewDevice) (Device, error) {
	nd.Token = strings.TrimSpace(nd.Token)
	nd.Platform = strings.ToLower(strings.TrimSpace(nd.Platform))
	if err := svc.validate.Struct(nd); err != nil {
		return Device{}, err
	}
	now := svc.now().UTC()
	return svc.repo.SaveDevice(ctx, Device{
		UserID:     userID,
		Token:      nd.Token,
		Platform:   nd.Platform,
		IsActive:   true,
		CreatedAt:  now,
		LastSeenAt: now,
	})
}

func (svc *Service) UnregisterDevice(ctx context.Context, userID, token string) error {
	return svc.repo.DeactivateDevice(ctx, userID, strings.TrimSpace(token))
}

func (svc *Service) Devices(ctx context.Context, userID string) ([]Device, error) {
	return svc.repo.QueryDevices(ctx, userID)
}

// NotifyUser pushes the message to every active device of the user and returns how many were reached.
// Tokens the provider rejects are deactivated; other failures are logged and skipped.
func (svc *Service) NotifyUser(ctx context.Context, userID, title, body string, data map[string]string) (int, error) {
	devices, err := svc.repo.QueryDevices(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "querying devices")
	}

	var sent int
	for _, d := range devices {
		if !d.IsActive {
			continue
		}
		_, err := svc.push.Send(ctx, core.PushMessage{Token: d.Token, Title: title, Body: body, Data: data})
		switch {
		case err == nil:
			sent++
		case errors.Cause(err) == core.ErrInvalidDeviceToken:
			svc.logger.Info(fmt.Sprintf("deactivating device %s: %v", d.ID, err))
			if err := svc.repo.DeactivateToken(ctx, d.Token); err != nil {
				svc.logger.Error(fmt.Sprintf("deactivating device: %v", err), err)
			}
		default:
			svc.logger.Error(fmt.Sprintf("sending push notification: %v", err), err, map[string]interface{}{"device": d.ID})
		}
	}
	return sent, nil
}

// SendTest pushes a message to a single token, bypassing device registration.
func (svc *Service) SendTest(ctx context.Context, token, title, body string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", core.NewValidationError(nil, core.FieldError{Field: "token", Error: "this field is required"})
	}
	if title == "" {
		title = "Test notification"
	}
	if body == "" {
		body = "Push notifications are working."
	}
	return svc.push.Send(ctx, core.PushMessage{Token: token, Title: title, Body: body, Data: map[string]string{"type": "test"}})
}
