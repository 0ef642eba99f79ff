package main

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	var out bytes.Buffer
	root := buildRoot(streams{in: bufio.NewReader(strings.NewReader("")), out: &out, errOut: &out})
	for _, name := range []string{"serve", "create", "add", "delete", "start", "stop", "restart", "list",
		"log", "usage", "send", "monitor", "autorestart", "open", "path", "shell"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "devsrv")
}

func TestRootFlagDefaults(t *testing.T) {
	t.Setenv("DEVSRV_API_URL", "http://10.0.0.1:9/api")
	root := buildRoot(streams{in: bufio.NewReader(strings.NewReader("")), out: &bytes.Buffer{}, errOut: &bytes.Buffer{}})
	f := root.PersistentFlags().Lookup("api-url")
	require.NotNil(t, f)
	assert.Equal(t, "http://10.0.0.1:9/api", f.DefValue)

	sub, _, err := root.Find([]string{"create"})
	require.NoError(t, err)
	assert.Equal(t, "python", sub.Flags().Lookup("type").DefValue)
}
