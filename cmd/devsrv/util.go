package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/loykin/devsrv/pkg/client"
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

// exitCode maps an error to the process exit status: 2 for an unknown
// server, 1 otherwise.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if client.IsKind(err, "NotFound") {
		return 2
	}
	return 1
}

func formatStatus(st client.ServerStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", st.Name, st.State)
	if st.PID > 0 {
		fmt.Fprintf(&b, " (pid %d)", st.PID)
	}
	if st.Restarts > 0 {
		fmt.Fprintf(&b, ", %d restart(s)", st.Restarts)
	}
	if st.State == "stopped" && st.LastExit != nil {
		fmt.Fprintf(&b, ", last exit: %s", exitText(st.LastExit))
	}
	return b.String()
}

func exitText(x *client.ExitInfo) string {
	if x.Reason == "exited" {
		return fmt.Sprintf("exit code %d", x.Code)
	}
	return x.Reason
}

func formatSample(s client.Sample) string {
	if !s.Valid {
		return fmt.Sprintf("pid %d  cpu: --  mem: %.1f MB (cpu not available yet)", s.PID, s.MemoryMB)
	}
	return fmt.Sprintf("pid %d  cpu: %.1f%%  mem: %.1f MB", s.PID, s.CPUPercent, s.MemoryMB)
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}
