package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
)

// ScriptCheck runs an external command for one category. The command gets
// PORT, WORKER_ID and WORKSPACE in its environment and must print
// {"score":n,"findings":[...]} on stdout.
type ScriptCheck struct {
	category string
	command  string
}

// NewScriptCheck creates a check that runs command through the shell.
func NewScriptCheck(category, command string) *ScriptCheck {
	return &ScriptCheck{category: category, command: command}
}

// Category implements Check.
func (s *ScriptCheck) Category() string { return s.category }

// Run implements Check. A failing or malformed script scores zero.
func (s *ScriptCheck) Run(ctx context.Context, t Target) Result {
	var r Result
	_, port, _ := net.SplitHostPort(t.Addr)

	cmd := exec.CommandContext(ctx, "sh", "-c", s.command)
	cmd.Dir = t.Workspace
	cmd.Env = append(os.Environ(),
		"PORT="+port,
		"WORKER_ID="+t.WorkerID,
		"WORKSPACE="+t.Workspace,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		r.addf("script %q failed: %v", s.command, err)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			r.addf("stderr: %s", truncate(msg, 200))
		}
		return r
	}

	var out Result
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &out); err != nil {
		r.addf("script output is not a result: %v", err)
		return r
	}
	if out.Findings == nil {
		out.Findings = []string{fmt.Sprintf("scored by %q", s.command)}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
