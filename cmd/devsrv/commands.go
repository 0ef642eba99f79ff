package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/loykin/devsrv/pkg/client"
)

// tailWait is how long one log poll may be held by the daemon.
const tailWait = 5 * time.Second

// streams are the terminal the commands talk to. in is shared with the
// shell so that forwarded input and REPL lines come from one reader.
type streams struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

type command struct {
	flags *GlobalFlags
	io    streams
	// open hands a file to the desktop editor.
	open func(path string) error
}

func (c *command) api() *client.Client {
	return client.New(client.Config{BaseURL: c.flags.APIUrl, Timeout: c.flags.APITimeout})
}

func (c *command) printStatus(st client.ServerStatus) {
	if c.flags.JSON {
		printJSON(c.io.out, st)
		return
	}
	_, _ = fmt.Fprintln(c.io.out, formatStatus(st))
}

func (c *command) Create(ctx context.Context, name string, f CreateFlags) error {
	st, err := c.api().Create(ctx, client.CreateRequest{Name: name, Type: f.Type})
	if err != nil {
		return err
	}
	if c.flags.JSON {
		printJSON(c.io.out, st)
		return nil
	}
	_, _ = fmt.Fprintf(c.io.out, "created %s (%s) at %s\n", st.Name, st.Type, st.Path)
	return nil
}

func (c *command) Add(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	st, err := c.api().Add(ctx, client.AddRequest{Path: abs})
	if err != nil {
		return err
	}
	if c.flags.JSON {
		printJSON(c.io.out, st)
		return nil
	}
	_, _ = fmt.Fprintf(c.io.out, "added %s (%s) from %s\n", st.Name, st.Type, st.Path)
	return nil
}

func (c *command) Delete(ctx context.Context, name string) error {
	if err := c.api().Delete(ctx, name); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.io.out, "deleted %s\n", name)
	return nil
}

func (c *command) Start(ctx context.Context, name string) error {
	st, err := c.api().Start(ctx, name)
	if err != nil {
		return err
	}
	c.printStatus(st)
	return nil
}

func (c *command) Stop(ctx context.Context, name string) error {
	st, err := c.api().Stop(ctx, name)
	if err != nil {
		return err
	}
	c.printStatus(st)
	return nil
}

func (c *command) Restart(ctx context.Context, name string) error {
	st, err := c.api().Restart(ctx, name)
	if err != nil {
		return err
	}
	c.printStatus(st)
	return nil
}

func (c *command) List(ctx context.Context) error {
	list, err := c.api().List(ctx)
	if err != nil {
		return err
	}
	if c.flags.JSON {
		printJSON(c.io.out, list)
		return nil
	}
	if len(list) == 0 {
		_, _ = fmt.Fprintln(c.io.out, "no servers registered")
		return nil
	}
	tw := tabwriter.NewWriter(c.io.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tTYPE\tSTATE\tPID\tRESTARTS\tMONITOR\tCPU%\tMEM(MB)\tPATH")
	for _, st := range list {
		pid, cpu, mem := "-", "-", "-"
		if st.PID > 0 {
			pid = fmt.Sprint(st.PID)
		}
		if st.Sample != nil {
			mem = fmt.Sprintf("%.1f", st.Sample.MemoryMB)
			if st.Sample.Valid {
				cpu = fmt.Sprintf("%.1f", st.Sample.CPUPercent)
			}
		}
		mon := "off"
		if st.Monitoring {
			mon = "on"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			st.Name, st.Type, st.State, pid, st.Restarts, mon, cpu, mem, st.Path)
	}
	return tw.Flush()
}

func (c *command) Path(ctx context.Context, name string) error {
	p, err := c.api().Path(ctx, name)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.io.out, p)
	return nil
}

func (c *command) Open(ctx context.Context, name string) error {
	p, err := c.api().Path(ctx, name)
	if err != nil {
		return err
	}
	if err := c.open(p); err != nil {
		return fmt.Errorf("open %s: %w", p, err)
	}
	_, _ = fmt.Fprintf(c.io.out, "opening %s\n", p)
	return nil
}

func (c *command) Send(ctx context.Context, name, text string) error {
	return c.api().Send(ctx, name, text)
}

func (c *command) Monitor(ctx context.Context, name, state string) error {
	on, err := parseOnOff(state)
	if err != nil {
		return err
	}
	st, err := c.api().SetMonitoring(ctx, name, on)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.io.out, "monitoring for %s is %s\n", st.Name, state)
	return nil
}

func (c *command) AutoRestart(ctx context.Context, name, state string) error {
	on, err := parseOnOff(state)
	if err != nil {
		return err
	}
	st, err := c.api().SetAutoRestart(ctx, name, on)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.io.out, "auto-restart for %s is %s\n", st.Name, state)
	return nil
}

// Log prints the buffered output of a server. With follow it keeps printing
// new lines and forwards every typed line to the server's input until the
// user types "exit" or ctx ends.
func (c *command) Log(ctx context.Context, name string, f LogFlags) error {
	api := c.api()
	page, err := api.Log(ctx, name, 0, 0)
	if err != nil {
		return err
	}
	c.printLines(page.Log)
	if !f.Follow {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	_, _ = fmt.Fprintf(c.io.errOut, "following %s; type a line to send it, \"exit\" to stop\n", name)
	go c.forwardInput(ctx, cancel, api, name)

	cursor := page.Next
	for {
		page, err := api.Log(ctx, name, cursor, tailWait)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		c.printLines(page.Log)
		cursor = page.Next
	}
}

func (c *command) forwardInput(ctx context.Context, cancel context.CancelFunc, api *client.Client, name string) {
	for {
		line, err := c.io.in.ReadString('\n')
		text := strings.TrimRight(line, "\r\n")
		if text == "exit" {
			cancel()
			return
		}
		if text != "" {
			if serr := api.Send(ctx, name, text); serr != nil && ctx.Err() == nil {
				_, _ = fmt.Fprintln(c.io.errOut, serr)
			}
		}
		if err != nil {
			// input closed; keep tailing until interrupted
			return
		}
	}
}

func (c *command) printLines(lines []string) {
	for _, l := range lines {
		_, _ = fmt.Fprintln(c.io.out, l)
	}
}

// Usage prints one CPU/memory reading. With watch it refreshes every
// interval until Enter is pressed.
func (c *command) Usage(ctx context.Context, name string, f UsageFlags) error {
	api := c.api()
	sm, err := api.Usage(ctx, name)
	if err != nil {
		return err
	}
	c.printSample(sm)
	if !f.Watch {
		return nil
	}
	interval := f.Interval
	if interval <= 0 {
		interval = time.Second
	}

	enter := make(chan struct{})
	go func() {
		_, _ = c.io.in.ReadString('\n')
		close(enter)
	}()
	_, _ = fmt.Fprintln(c.io.errOut, "press Enter to stop")
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-enter:
			return nil
		case <-t.C:
			sm, err := api.Usage(ctx, name)
			if err != nil {
				var ae *client.APIError
				if errors.As(err, &ae) && ae.Kind == "NotRunning" {
					_, _ = fmt.Fprintf(c.io.out, "%s is not running\n", name)
					return nil
				}
				return err
			}
			c.printSample(sm)
		}
	}
}

func (c *command) printSample(sm client.Sample) {
	if c.flags.JSON {
		printJSON(c.io.out, sm)
		return
	}
	_, _ = fmt.Fprintln(c.io.out, formatSample(sm))
}
