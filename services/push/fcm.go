// Package pushsvc implements core.PushService.
package pushsvc

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/schooldriver/schooldriver/core"
)

// messagingClient is the part of *messaging.Client we use.
type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type fcmService struct {
	client messagingClient
}

var _ core.PushService = (*fcmService)(nil)

// NewFCMService builds a Firebase Cloud Messaging client from the configured service account.
func NewFCMService(ctx context.Context, conf *core.Config) (*fcmService, error) {
	if conf.Firebase.CredentialsJSON == "" {
		return nil, errors.New("firebase credentials are not configured")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON([]byte(conf.Firebase.CredentialsJSON)))
	if err != nil {
		return nil, errors.Wrap(err, "initializing firebase app")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "initializing firebase messaging")
	}
	return &fcmService{client: client}, nil
}

func (svc fcmService) Send(ctx context.Context, msg core.PushMessage) (string, error) {
	id, err := svc.client.Send(ctx, &messaging.Message{
		Token: msg.Token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) {
			return "", errors.Wrap(core.ErrInvalidDeviceToken, err.Error())
		}
		return "", errors.Wrap(err, "sending push notification")
	}
	return id, nil
}
