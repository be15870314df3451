// Package target abstracts where a command script runs: the VE host the
// deployer lives on, inside an LXC container, or on a named remote host
// over SSH.
package target

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ocilxc/lxc-deployer/internal/apperr"
	"github.com/ocilxc/lxc-deployer/internal/config"
)

// Result carries the raw command outcome. ExitCode is meaningful only
// when Err is nil or an exit-status error.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Target runs a shell script somewhere. onStdout, when non-nil, receives
// each stdout line as the command produces it; the full output is still
// collected into the Result.
type Target interface {
	Run(ctx context.Context, script string, onStdout func(line string)) (*Result, error)
	Describe() string
}

// Parse maps a template's execute_on spec onto a target. vmid is required
// for the "lxc" spec; hosts supplies named "host:<name>" targets.
func Parse(spec, vmid string, hosts map[string]config.SSHHost) (Target, error) {
	switch {
	case spec == "" || spec == "ve":
		return &HostTarget{}, nil
	case spec == "lxc":
		if vmid == "" {
			return nil, apperr.Configuration("execute_on %q requires a container id", spec)
		}
		return &ContainerTarget{VMID: vmid}, nil
	case strings.HasPrefix(spec, "host:"):
		name := strings.TrimPrefix(spec, "host:")
		host, ok := hosts[name]
		if !ok {
			return nil, apperr.Configuration("execution host %q is not configured", name)
		}
		return &SSHTarget{Name: name, Host: host}, nil
	}
	return nil, apperr.Configuration("unknown execute_on spec %q", spec)
}

// HostTarget runs scripts directly on the machine the deployer runs on.
type HostTarget struct{}

func (t *HostTarget) Describe() string { return "ve" }

func (t *HostTarget) Run(ctx context.Context, script string, onStdout func(string)) (*Result, error) {
	return runLocal(ctx, exec.CommandContext(ctx, "sh", "-c", script), onStdout)
}

// ContainerTarget runs scripts inside an LXC container through pct.
type ContainerTarget struct {
	VMID string
}

func (t *ContainerTarget) Describe() string { return "lxc:" + t.VMID }

func (t *ContainerTarget) Run(ctx context.Context, script string, onStdout func(string)) (*Result, error) {
	return runLocal(ctx, exec.CommandContext(ctx, "pct", "exec", t.VMID, "--", "sh", "-c", script), onStdout)
}

func runLocal(ctx context.Context, cmd *exec.Cmd, onStdout func(string)) (*Result, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		stdout.WriteString(line)
		stdout.WriteByte('\n')
		if onStdout != nil {
			onStdout(line)
		}
	}

	err = cmd.Wait()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("command timed out: %w", ctx.Err())
		}
		return res, err
	}
	return res, nil
}
