package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/loykin/devsrv/pkg/client"
)

const shellPrompt = "devsrv> "

// shellDefaults turns the one-shot form of a command into the interactive
// one: log follows and usage refreshes until the user stops it.
var shellDefaults = map[string]string{
	"log":   "--follow",
	"usage": "--watch",
}

// runShell reads commands line by line until "exit" or end of input. Each
// line runs through a fresh command tree with the shell's global flags.
func runShell(ctx context.Context, in streams, flags *GlobalFlags) error {
	_, _ = fmt.Fprintln(in.out, `devsrv shell; type "help" for commands, "exit" to quit`)
	for {
		if ctx.Err() != nil {
			return nil
		}
		_, _ = fmt.Fprint(in.out, shellPrompt)
		line, err := in.in.ReadString('\n')
		if line == "" && err != nil {
			if errors.Is(err, io.EOF) {
				_, _ = fmt.Fprintln(in.out)
				return nil
			}
			return err
		}
		if quit := runShellLine(ctx, in, flags, strings.TrimSpace(line)); quit {
			return nil
		}
	}
}

func runShellLine(ctx context.Context, in streams, flags *GlobalFlags, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch name := strings.ToLower(fields[0]); name {
	case "exit", "quit":
		return true
	case "help", "?":
		printShellHelp(in.out)
		return false
	case "cls", "clear":
		_, _ = fmt.Fprint(in.out, "\033[H\033[2J")
		return false
	case "serve", "shell":
		_, _ = fmt.Fprintf(in.errOut, "%s is not available inside the shell\n", name)
		return false
	}

	args := shellArgs(line, flags)
	root := buildRoot(in)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var ae *client.APIError
		if errors.As(err, &ae) {
			_, _ = fmt.Fprintf(in.errOut, "error: %v\n", err)
			return false
		}
		_, _ = fmt.Fprintf(in.errOut, "incorrect usage: %v\n", err)
		if sub, _, ferr := root.Find(args); ferr == nil && sub != root {
			_, _ = fmt.Fprintf(in.errOut, "usage: %s\n", sub.UseLine())
		} else {
			_, _ = fmt.Fprintln(in.errOut, `type "help" for the list of commands`)
		}
	}
	return false
}

// shellArgs splits a shell line into command arguments. The text of send is
// passed through as one argument with its spacing kept.
func shellArgs(line string, flags *GlobalFlags) []string {
	fields := strings.Fields(line)
	name := strings.ToLower(fields[0])
	global := []string{
		"--api-url=" + flags.APIUrl,
		"--api-timeout=" + flags.APITimeout.String(),
	}
	if flags.JSON {
		global = append(global, "--json")
	}

	args := append([]string{name}, global...)
	if name == "send" && len(fields) >= 3 {
		rest := strings.TrimSpace(line[len(fields[0]):])
		rest = strings.TrimSpace(rest[len(fields[1]):])
		return append(args, "--", fields[1], rest)
	}
	if d, ok := shellDefaults[name]; ok {
		args = append(args, d)
	}
	return append(args, fields[1:]...)
}

func printShellHelp(w io.Writer) {
	_, _ = fmt.Fprint(w, `commands:
  create <name> [--type python|node|python-http|node-http|<ext>]
  add <path>                 register an existing .py/.js file
  start <name>               start a server
  stop <name>                stop a server
  restart <name>             stop and start a server
  delete <name>              stop and unregister a server
  list                       show every server
  log <name>                 follow output; typed lines go to the server, "exit" returns
  usage <name>               CPU and memory, refreshed until Enter
  send <name> <text>         write a line to the server's input
  monitor <name> on|off      periodic CPU/memory sampling
  autorestart <name> on|off  restart after crashes
  open <name>                open the file in the desktop editor
  path <name>                print the file path
  cls                        clear the screen
  help                       this text
  exit                       leave the shell
`)
}
