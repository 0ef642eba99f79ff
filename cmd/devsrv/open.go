package main

import (
	"os/exec"
	"runtime"
)

// editorCommand returns the platform's "open with" hand-off for path.
func editorCommand(goos, path string) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"shell32.dll,OpenAs_RunDLL", path}
	case "darwin":
		return "open", []string{path}
	default:
		return "xdg-open", []string{path}
	}
}

func openInEditor(path string) error {
	name, args := editorCommand(runtime.GOOS, path)
	// #nosec G204 -- fixed launcher, path comes from the registry
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
