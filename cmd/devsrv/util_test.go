package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/devsrv/pkg/client"
)

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		st   client.ServerStatus
		want string
	}{
		{client.ServerStatus{Name: "web", State: "running", PID: 42}, "web: running (pid 42)"},
		{client.ServerStatus{Name: "web", State: "running", PID: 42, Restarts: 2}, "web: running (pid 42), 2 restart(s)"},
		{client.ServerStatus{Name: "web", State: "stopped", LastExit: &client.ExitInfo{Reason: "exited", Code: 3}}, "web: stopped, last exit: exit code 3"},
		{client.ServerStatus{Name: "web", State: "stopped", LastExit: &client.ExitInfo{Reason: "signal: killed"}}, "web: stopped, last exit: signal: killed"},
		{client.ServerStatus{Name: "web", State: "crashed", LastExit: &client.ExitInfo{Reason: "exited", Code: 1}}, "web: crashed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatStatus(tt.st))
	}
}

func TestFormatSample(t *testing.T) {
	assert.Equal(t, "pid 7  cpu: 12.5%  mem: 30.2 MB",
		formatSample(client.Sample{PID: 7, CPUPercent: 12.5, MemoryMB: 30.21, Valid: true}))
	assert.Contains(t, formatSample(client.Sample{PID: 7, MemoryMB: 1}), "cpu: --")
}

func TestParseOnOff(t *testing.T) {
	on, err := parseOnOff(" ON ")
	require.NoError(t, err)
	assert.True(t, on)
	on, err = parseOnOff("off")
	require.NoError(t, err)
	assert.False(t, on)
	_, err = parseOnOff("yes")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 2, exitCode(&client.APIError{Status: 404, Kind: "NotFound", Message: "x"}))
	assert.Equal(t, 2, exitCode(fmt.Errorf("wrapped: %w", &client.APIError{Kind: "NotFound"})))
	assert.Equal(t, 1, exitCode(&client.APIError{Status: 409, Kind: "AlreadyRunning"}))
}

func TestPrintJSON(t *testing.T) {
	var b bytes.Buffer
	printJSON(&b, map[string]int{"a": 1})
	assert.Equal(t, "{\n  \"a\": 1\n}\n", b.String())
}
