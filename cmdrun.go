package anyvcs

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
)

// runTool executes a backend tool in dir and captures its output. A nonzero
// exit becomes a *CommandError unless the code is listed in okCodes; there
// are no implicit retries. stdin may be nil.
func runTool(dir string, stdin io.Reader, name string, args []string, okCodes ...int) (stdout, stderr []byte, err error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdin = stdin
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	runErr := cmd.Run()
	slog.Debug("backend command",
		slog.String("cmd", name),
		slog.String("args", strings.Join(args, " ")),
		slog.Bool("ok", runErr == nil),
	)
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code := exitErr.ExitCode()
			if slices.Contains(okCodes, code) {
				return outBuf.Bytes(), errBuf.Bytes(), nil
			}
			return outBuf.Bytes(), errBuf.Bytes(), &CommandError{
				Cmd:      name + " " + strings.Join(args, " "),
				ExitCode: code,
				Stderr:   errBuf.String(),
				Err:      runErr,
			}
		}
		return nil, nil, &CommandError{
			Cmd:      name + " " + strings.Join(args, " "),
			ExitCode: -1,
			Err:      runErr,
		}
	}
	return outBuf.Bytes(), errBuf.Bytes(), nil
}

// runToolOut is runTool for the common case: stdout on success, error
// otherwise.
func runToolOut(dir, name string, args ...string) ([]byte, error) {
	out, _, err := runTool(dir, nil, name, args)
	return out, err
}

// runToolStream executes a tool with streaming stdin/stdout, used for
// Subversion dump and load where output can exceed memory.
func runToolStream(dir string, stdin io.Reader, stdout io.Writer, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &CommandError{
				Cmd:      name + " " + strings.Join(args, " "),
				ExitCode: exitErr.ExitCode(),
				Stderr:   errBuf.String(),
				Err:      err,
			}
		}
		return &CommandError{Cmd: name + " " + strings.Join(args, " "), ExitCode: -1, Err: err}
	}
	return nil
}

// toolExitCode extracts the exit code from a runTool error, or -1.
func toolExitCode(err error) int {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return -1
}

// toolStderr extracts captured stderr from a runTool error.
func toolStderr(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Stderr
	}
	return ""
}
