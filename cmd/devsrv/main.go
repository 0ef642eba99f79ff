package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultAPIUrl = "http://127.0.0.1:8080/api"

// openFile is the editor hand-off used by the open command.
var openFile = openInEditor

func main() {
	io := streams{in: bufio.NewReader(os.Stdin), out: os.Stdout, errOut: os.Stderr}
	root := buildRoot(io)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// buildRoot creates the root command. The shell builds a fresh tree for
// every line so flag values never leak between commands.
func buildRoot(io streams) *cobra.Command {
	globalFlags := &GlobalFlags{}
	c := &command{flags: globalFlags, io: io, open: openFile}

	root := createRootCommand(globalFlags)
	root.SetOut(io.out)
	root.SetErr(io.errOut)
	root.SetIn(io.in)

	root.AddCommand(
		createServeCommand(globalFlags),
		createCreateCommand(c),
		createAddCommand(c),
		createDeleteCommand(c),
		createStartCommand(c),
		createStopCommand(c),
		createRestartCommand(c),
		createListCommand(c),
		createLogCommand(c),
		createUsageCommand(c),
		createSendCommand(c),
		createMonitorCommand(c),
		createAutoRestartCommand(c),
		createOpenCommand(c),
		createPathCommand(c),
		createShellCommand(c),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "devsrv",
		Short: "Run and supervise local development servers",
		Long: `devsrv keeps Python and Node development servers running: it restarts
them after crashes, keeps their recent output, and reports CPU and memory.

Examples:
  devsrv serve                      # start the daemon
  devsrv create api --type python   # scaffold servers/api/api.py
  devsrv start api
  devsrv log api -f                 # tail output, type lines to send them
  devsrv shell                      # interactive prompt`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	apiURL := os.Getenv("DEVSRV_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIUrl
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to config file (toml, yaml or json)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", apiURL, "daemon API base URL")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 15*time.Second, "daemon request timeout")
	root.PersistentFlags().BoolVar(&flags.JSON, "json", false, "print JSON instead of text")
	return root
}

func createCreateCommand(c *command) *cobra.Command {
	f := &CreateFlags{}
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Scaffold a new server from a template",
		Long: `Create servers_dir/<name>/<name>.<ext> from a template and register it.

Types: python (py), node (js), python-http, node-http. Any other alphanumeric
type creates a file with that extension which runs under node.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Create(cmd.Context(), args[0], *f)
		},
	}
	cmd.Flags().StringVarP(&f.Type, "type", "t", "python", "template type")
	return cmd
}

func createAddCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>",
		Short: "Register an existing .py or .js file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Add(cmd.Context(), args[0])
		},
	}
}

func createDeleteCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Stop and unregister a server (the file is kept)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Delete(cmd.Context(), args[0])
		},
	}
}

func createStartCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "start <name>",
		Short: "Start a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(cmd.Context(), args[0])
		},
	}
}

func createStopCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(cmd.Context(), args[0])
		},
	}
}

func createRestartCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Stop and start a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Restart(cmd.Context(), args[0])
		},
	}
}

func createListCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List servers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.List(cmd.Context())
		},
	}
}

func createLogCommand(c *command) *cobra.Command {
	f := &LogFlags{}
	cmd := &cobra.Command{
		Use:   "log <name>",
		Short: "Print a server's recent output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Log(cmd.Context(), args[0], *f)
		},
	}
	cmd.Flags().BoolVarP(&f.Follow, "follow", "f", false, "keep printing output and forward typed lines as input")
	return cmd
}

func createUsageCommand(c *command) *cobra.Command {
	f := &UsageFlags{}
	cmd := &cobra.Command{
		Use:   "usage <name>",
		Short: "Show CPU and memory of a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Usage(cmd.Context(), args[0], *f)
		},
	}
	cmd.Flags().BoolVarP(&f.Watch, "watch", "w", false, "refresh until Enter is pressed")
	cmd.Flags().DurationVar(&f.Interval, "interval", time.Second, "refresh interval with --watch")
	return cmd
}

func createSendCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "send <name> <text...>",
		Short: "Write a line to a server's input",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Send(cmd.Context(), args[0], strings.Join(args[1:], " "))
		},
	}
}

func createMonitorCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:       "monitor <name> <on|off>",
		Short:     "Turn periodic CPU/memory sampling on or off",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Monitor(cmd.Context(), args[0], args[1])
		},
	}
}

func createAutoRestartCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "autorestart <name> <on|off>",
		Short: "Turn restarting after crashes on or off",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.AutoRestart(cmd.Context(), args[0], args[1])
		},
	}
}

func createOpenCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "open <name>",
		Short: "Open a server's file in the desktop editor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Open(cmd.Context(), args[0])
		},
	}
}

func createPathCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "path <name>",
		Short: "Print a server's file path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Path(cmd.Context(), args[0])
		},
	}
}

func createShellCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd.Context(), c.io, c.flags)
		},
	}
}
