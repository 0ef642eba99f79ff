package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEditorCommand(t *testing.T) {
	tests := []struct {
		goos string
		name string
		args []string
	}{
		{"windows", "rundll32", []string{"shell32.dll,OpenAs_RunDLL", "/f.py"}},
		{"darwin", "open", []string{"/f.py"}},
		{"linux", "xdg-open", []string{"/f.py"}},
		{"freebsd", "xdg-open", []string{"/f.py"}},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			name, args := editorCommand(tt.goos, "/f.py")
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.args, args)
		})
	}
}
