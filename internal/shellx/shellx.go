// Package shellx helps to run external commands.
package shellx

import (
	"bytes"
	"errors"
	"strings"

	"github.com/Weiennn/cs3103-assignment4/internal/model"
	"github.com/google/shlex"
	"golang.org/x/sys/execabs"
)

// Dependencies is the library on which this package depends.
type Dependencies interface {
	// CmdOutput is equivalent to calling c.Output.
	CmdOutput(c *execabs.Cmd) ([]byte, error)

	// LookPath is equivalent to calling execabs.LookPath.
	LookPath(file string) (string, error)
}

// Library contains the default dependencies.
var Library Dependencies = &StdlibDependencies{}

// StdlibDependencies contains the stdlib implementation of the [Dependencies].
type StdlibDependencies struct{}

// CmdOutput implements [Dependencies].
func (*StdlibDependencies) CmdOutput(c *execabs.Cmd) ([]byte, error) {
	return c.Output()
}

// LookPath implements [Dependencies].
func (*StdlibDependencies) LookPath(file string) (string, error) {
	return execabs.LookPath(file)
}

// ErrNoCommandToExecute means that the command line is empty.
var ErrNoCommandToExecute = errors.New("shellx: no command to execute")

// Argv contains the complete argv.
type Argv struct {
	// P is the MANDATORY program to execute.
	P string

	// V contains the OPTIONAL arguments.
	V []string
}

// NewArgv creates a new [Argv] from the given command and arguments.
func NewArgv(command string, args ...string) (*Argv, error) {
	fullpath, err := Library.LookPath(command) // allows mocking
	if err != nil {
		return nil, err
	}
	return &Argv{P: fullpath, V: args}, nil
}

// ParseCommandLine creates an instance of [Argv] from the given command line.
func ParseCommandLine(cmdline string) (*Argv, error) {
	args, err := shlex.Split(cmdline)
	if err != nil {
		return nil, err
	}
	if len(args) < 1 {
		return nil, ErrNoCommandToExecute
	}
	return NewArgv(args[0], args[1:]...)
}

// Append appends arguments to the command line.
func (a *Argv) Append(args ...string) {
	a.V = append(a.V, args...)
}

// String returns the quoted command line.
func (a *Argv) String() string {
	v := []string{maybeQuoteArg(a.P)}
	for _, arg := range a.V {
		v = append(v, maybeQuoteArg(arg))
	}
	return strings.Join(v, " ")
}

// cmd creates a new [execabs.Cmd] and logs the command line we are
// about to execute using the "+ cmd" convention.
func cmd(logger model.Logger, argv *Argv) *execabs.Cmd {
	if logger != nil {
		logger.Infof("+ %s", argv.String())
	}
	return execabs.Command(argv.P, argv.V...)
}

// OutputEx runs the command described by argv and returns its standard
// output. On failure the returned error includes the text the command
// wrote on its standard error, which callers may inspect.
func OutputEx(logger model.Logger, argv *Argv) ([]byte, error) {
	c := cmd(logger, argv)
	var stderr bytes.Buffer
	c.Stderr = &stderr
	out, err := Library.CmdOutput(c) // allows mocking
	if err != nil {
		return out, &ErrorWithStderr{Err: err, Stderr: stderr.String()}
	}
	return out, nil
}

// Output is like [OutputEx] except that it builds the [Argv] for you.
func Output(logger model.Logger, command string, args ...string) ([]byte, error) {
	argv, err := NewArgv(command, args...)
	if err != nil {
		return nil, err
	}
	return OutputEx(logger, argv)
}

// ErrorWithStderr wraps a command execution error together with the
// text the command wrote on the standard error.
type ErrorWithStderr struct {
	// Err is the original error.
	Err error

	// Stderr is what the child wrote on the standard error.
	Stderr string
}

// Error implements error.
func (e *ErrorWithStderr) Error() string {
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		return e.Err.Error() + ": " + stderr
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ErrorWithStderr) Unwrap() error {
	return e.Err
}

// maybeQuoteArg quotes a command line argument if needed.
func maybeQuoteArg(a string) string {
	if strings.Contains(a, "\"") {
		a = strings.ReplaceAll(a, "\"", "\\\"")
	}
	if strings.Contains(a, " ") {
		a = "\"" + a + "\""
	}
	return a
}
