package pushsvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/schooldriver/schooldriver/core"
)

// ConsoleService logs notifications instead of sending them; used in debug and tests.
// Tokens listed in InvalidTokens are rejected with core.ErrInvalidDeviceToken.
type ConsoleService struct {
	logger        core.Logger
	InvalidTokens map[string]bool

	mu   sync.Mutex
	sent []core.PushMessage
}

var _ core.PushService = (*ConsoleService)(nil)

func NewConsoleService(logger core.Logger) *ConsoleService {
	return &ConsoleService{logger: logger, InvalidTokens: make(map[string]bool)}
}

func (svc *ConsoleService) Send(_ context.Context, msg core.PushMessage) (string, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.InvalidTokens[msg.Token] {
		return "", core.ErrInvalidDeviceToken
	}
	id := uuid.New().String()
	svc.sent = append(svc.sent, msg)
	svc.logger.Info(fmt.Sprintf("push %s to %s: %s", id, msg.Token, msg.Title), map[string]interface{}{"body": msg.Body})
	return id, nil
}

// Sent returns the messages sent so far.
func (svc *ConsoleService) Sent() []core.PushMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	msgs := make([]core.PushMessage, len(svc.sent))
	copy(msgs, svc.sent)
	return msgs
}
