package logsvc

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/user"
)

func newTestLogger(buf *bytes.Buffer) *RollbarLogger {
	l := NewRollbarLogger(buf, "api", core.NewTestConfig())
	l.Enable(false)
	return l
}

func TestRollbarLogger_console(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.Info("server started", map[string]interface{}{"addr": ":8000"})
	l.Error("sending email", errors.New("timeout"), user.User{ID: "u1"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if assert.Len(t, lines, 2) {
		assert.Contains(t, lines[0], "level=info")
		assert.Contains(t, lines[0], `msg="server started"`)
		assert.Contains(t, lines[0], "addr=:8000")
		assert.Contains(t, lines[0], "service=api")

		assert.Contains(t, lines[1], "level=error")
		assert.Contains(t, lines[1], "err=timeout")
		assert.Contains(t, lines[1], "user=u1")
	}
}

func TestRollbarLogger_Fatal(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	var code int
	l.exit = func(c int) { code = c }

	l.Fatal("cannot start")
	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "fatal=true")
}
