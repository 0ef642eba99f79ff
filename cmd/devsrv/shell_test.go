//go:build !windows

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellArgs(t *testing.T) {
	flags := &GlobalFlags{APIUrl: "http://x/api", APITimeout: time.Second}
	global := []string{"--api-url=http://x/api", "--api-timeout=1s"}

	assert.Equal(t, append(append([]string{"start"}, global...), "web"), shellArgs("start web", flags))
	assert.Equal(t, append(append([]string{"send"}, global...), "--", "web", "hello   world"),
		shellArgs("send web  hello   world", flags))
	assert.Equal(t, append(append([]string{"usage"}, global...), "--watch", "web"), shellArgs("usage web", flags))

	flags.JSON = true
	assert.Equal(t, append(append([]string{"log"}, global...), "--json", "--follow", "web"), shellArgs("LOG web", flags))
}

func TestRunShell(t *testing.T) {
	tc := newTestCLI(t)
	flags := &GlobalFlags{APIUrl: tc.url, APITimeout: 5 * time.Second}
	script := "help\ncls\n\nlist\nbogus\nstart\nserve\nadd " + tc.writeScript(t, "web.py") + "\nstart missing\nexit\nlist\n"

	require.NoError(t, runShell(context.Background(), tc.streams(script), flags))

	out := tc.out.String()
	assert.Contains(t, out, "commands:")
	assert.Contains(t, out, "\033[H\033[2J")
	assert.Contains(t, out, "no servers registered")
	assert.Contains(t, out, "added web (python)")
	assert.NotContains(t, out, "NAME", "lines after exit must not run")

	errOut := tc.errOut.String()
	assert.Contains(t, errOut, "incorrect usage")
	assert.Contains(t, errOut, `type "help" for the list of commands`)
	assert.Contains(t, errOut, "usage: devsrv start <name>")
	assert.Contains(t, errOut, "serve is not available inside the shell")
	assert.Contains(t, errOut, "error: ")
}

func TestRunShellEOF(t *testing.T) {
	tc := newTestCLI(t)
	flags := &GlobalFlags{APIUrl: tc.url, APITimeout: 5 * time.Second}

	require.NoError(t, runShell(context.Background(), tc.streams("list"), flags))
	assert.Contains(t, tc.out.String(), "no servers registered")
}
