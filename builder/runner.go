package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

type (
	// Command is one invocation of the build tool.
	Command struct {
		Dir  string
		Name string
		Args []string
		Env  []string //appended to the current environment
	}
	// Runner executes build commands. It returns the combined output; a failed command yields a *BuildError.
	Runner interface {
		Run(ctx context.Context, cmd Command) ([]byte, error)
	}
	// CommandRunner runs commands as child processes.
	CommandRunner struct{}
	// BuildError reports a build tool invocation that did not succeed.
	BuildError struct {
		Command  string
		ExitCode int //-1 when the process could not start
		Output   []byte
		Err      error
	}
)

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

func (e *BuildError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("build command %q failed to start: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("build command %q exited with code %d", e.Command, e.ExitCode)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Run the command and wait for it to exit.
func (CommandRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out
	err := c.Run()
	if err == nil {
		return out.Bytes(), nil
	}
	be := &BuildError{Command: cmd.String(), ExitCode: -1, Output: out.Bytes(), Err: err}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		be.ExitCode = ee.ExitCode()
	}
	return out.Bytes(), be
}
