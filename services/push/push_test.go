package pushsvc

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schooldriver/schooldriver/core"
)

type fakeClient struct {
	got *messaging.Message
	err error
}

func (c *fakeClient) Send(_ context.Context, m *messaging.Message) (string, error) {
	c.got = m
	if c.err != nil {
		return "", c.err
	}
	return "projects/demo/messages/1", nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestFCMService_Send(t *testing.T) {
	client := &fakeClient{}
	svc := fcmService{client: client}

	id, err := svc.Send(context.Background(), core.PushMessage{
		Token: "tok",
		Title: "Grades posted",
		Body:  "Biology: 83.1%",
		Data:  map[string]string{"type": "grade"},
	})
	require.NoError(t, err)
	assert.Equal(t, "projects/demo/messages/1", id)
	assert.Equal(t, "tok", client.got.Token)
	assert.Equal(t, "Grades posted", client.got.Notification.Title)
	assert.Equal(t, "Biology: 83.1%", client.got.Notification.Body)
	assert.Equal(t, "grade", client.got.Data["type"])

	client.err = errors.New("unavailable")
	_, err = svc.Send(context.Background(), core.PushMessage{Token: "tok"})
	assert.Error(t, err)
}

func TestNewFCMService_noCredentials(t *testing.T) {
	_, err := NewFCMService(context.Background(), core.NewTestConfig())
	assert.Error(t, err)
}

func TestConsoleService(t *testing.T) {
	svc := NewConsoleService(nopLogger{})
	svc.InvalidTokens["stale"] = true

	id, err := svc.Send(context.Background(), core.PushMessage{Token: "tok", Title: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = svc.Send(context.Background(), core.PushMessage{Token: "stale", Title: "hi"})
	assert.Equal(t, core.ErrInvalidDeviceToken, err)

	require.Len(t, svc.Sent(), 1)
	assert.Equal(t, "tok", svc.Sent()[0].Token)
}
