package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schooldriver/schooldriver/core"
	testutil "github.com/schooldriver/schooldriver/tests"
)

type purgerMock struct {
	calls int
	err   error
}

func (p *purgerMock) PurgeExpired(context.Context) (int, error) {
	p.calls++
	return 0, p.err
}

func Test_scheduler_register(t *testing.T) {
	tests := []struct {
		name        string
		spec        string
		wantErr     bool
		wantEntries int
	}{
		{name: "disabled", spec: ""},
		{name: "descriptor", spec: "@daily", wantEntries: 1},
		{name: "cron expression", spec: "30 3 * * *", wantEntries: 1},
		{name: "invalid", spec: "every day", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScheduler(testutil.NopLogger())
			err := s.register(core.JobsConfig{PurgeCodesSpec: tt.spec}, &purgerMock{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, s.cron.Entries(), tt.wantEntries)
		})
	}
}

func Test_scheduler_purgeCodes(t *testing.T) {
	s := newScheduler(testutil.NopLogger())

	p := &purgerMock{}
	s.purgeCodes(p)()
	assert.Equal(t, 1, p.calls)

	// failures are logged, not propagated
	p = &purgerMock{err: errors.New("db down")}
	assert.NotPanics(t, s.purgeCodes(p))
	assert.Equal(t, 1, p.calls)
}
