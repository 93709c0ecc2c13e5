package logsvc

import (
	"fmt"
	"io"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/user"
)

// RollbarLogger reports to Rollbar and writes logfmt lines to the console.
type RollbarLogger struct {
	console kitlog.Logger
	exit    func(code int)
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(w io.Writer, service string, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	console := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	console = kitlog.With(console, "ts", kitlog.DefaultTimestampUTC, "service", service, "caller", kitlog.Caller(4))
	return &RollbarLogger{console: console, exit: os.Exit}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var usrSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		// set logged in User
		if usr, ok := arg.(user.User); ok {
			if !usrSet { // only set one User
				rollbar.SetPerson(usr.ID, usr.Username, usr.Email)
				usrSet = true
			}
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

// keyvals flattens args into logfmt pairs.
func (l RollbarLogger) keyvals(msg string, args []interface{}) []interface{} {
	kv := []interface{}{"msg", msg}
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			kv = append(kv, "err", a.Error())
		case map[string]interface{}:
			for k, v := range a {
				kv = append(kv, k, v)
			}
		case user.User:
			kv = append(kv, "user", a.ID)
		default:
			kv = append(kv, "extra", fmt.Sprintf("%+v", a))
		}
	}
	return kv
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	_ = level.Debug(l.console).Log(l.keyvals(msg, args)...)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	_ = level.Info(l.console).Log(l.keyvals(msg, args)...)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	_ = level.Warn(l.console).Log(l.keyvals(msg, args)...)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	_ = level.Error(l.console).Log(l.keyvals(msg, args)...)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	_ = level.Error(l.console).Log(append(l.keyvals(msg, args), "fatal", true)...)
	rollbar.Wait()
	l.exit(1)
}
