// Package shell implements the shell way: run an external command and
// report how it completed.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/DJune12138/Collection3/internal/domain"
)

// killGrace bounds how long Run waits for output pipes after the command is
// killed, since grandchildren may keep them open.
const killGrace = 500 * time.Millisecond

// CompletedProcess is the payload of a shell response. A non-zero exit code
// is not an error; callers inspect ReturnCode.
type CompletedProcess struct {
	Args       []string
	ReturnCode int
	Stdout     string
	Stderr     string
}

// OK reports whether the command exited with status zero.
func (p *CompletedProcess) OK() bool { return p.ReturnCode == 0 }

// Lines splits Stdout into non-empty trimmed lines.
func (p *CompletedProcess) Lines() []string {
	var out []string
	for _, l := range strings.Split(p.Stdout, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Run executes the command described by params. A string command runs
// through "sh -c"; a list runs the program directly.
func Run(ctx context.Context, params map[string]any) (*CompletedProcess, error) {
	const op = "shell"
	p := domain.Params(params)

	args, err := command(p)
	if err != nil {
		return nil, err
	}
	cwd, _, err := p.String("cwd")
	if err != nil {
		return nil, err
	}
	timeout, _, err := p.Duration("timeout")
	if err != nil {
		return nil, err
	}
	env, _, err := p.Map("env")
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = cwd
	cmd.WaitDelay = killGrace
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			s, ok := v.(string)
			if !ok {
				return nil, domain.Errorf(domain.KindTypeMismatch, op, "env %s is %T, not a string", k, v)
			}
			cmd.Env = append(cmd.Env, k+"="+s)
		}
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err = cmd.Run()
	res := &CompletedProcess{Args: args, Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return nil, &TimeoutError{Args: args, After: time.Since(started), Err: ctx.Err()}
	case errors.As(err, &exitErr):
		res.ReturnCode = exitErr.ExitCode()
		return res, nil
	default:
		return nil, err
	}
}

func command(p domain.Params) ([]string, error) {
	switch c := p["command"].(type) {
	case nil:
		return nil, domain.Missing("shell", "command")
	case string:
		if strings.TrimSpace(c) == "" {
			return nil, domain.Missing("shell", "command")
		}
		return []string{"sh", "-c", c}, nil
	default:
		args, _, err := p.Strings("command")
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, domain.Missing("shell", "command")
		}
		return args, nil
	}
}

// TimeoutError reports a command killed by its timeout or cancellation.
type TimeoutError struct {
	Args  []string
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return strings.Join(e.Args, " ") + ": killed after " + e.After.Round(time.Millisecond).String()
}

func (e *TimeoutError) Unwrap() error { return e.Err }
