// Package cli implements the autopg and autopgpool commands. Each command
// is a Run function taking its arguments and output streams and returning
// the process exit code, so the mains stay trivial and the commands are
// testable.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/koustreak/autopg/internal/errs"
	"github.com/koustreak/autopg/internal/logger"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

var (
	errMissingCommand = errors.New("missing command")
	errUnknownCommand = errors.New("unknown command")
	errUnexpectedArgs = errors.New("unexpected arguments")
)

// command is one subcommand of a tool.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, s *streams) error
}

// streams carries the output writers into a command. The command logger
// travels on the context.
type streams struct {
	stdout io.Writer
	stderr io.Writer
}

// dispatch selects the subcommand named by args[0] and runs it.
func dispatch(ctx context.Context, tool string, cmds []command, args []string, stdout, stderr io.Writer) int {
	log := newLogger(stderr).WithComponent(tool)
	s := &streams{stdout: stdout, stderr: stderr}

	if len(args) == 0 {
		usage(stderr, tool, cmds)
		log.Error(errMissingCommand.Error())
		return ExitUsage
	}

	name := args[0]
	if name == "-h" || name == "--help" || name == "help" {
		usage(stdout, tool, cmds)
		return ExitOK
	}

	for _, c := range cmds {
		if c.name != name {
			continue
		}

		cmdLog := log.With().Str("command", name).Logger()
		err := c.run(cmdLog.WithContext(ctx), args[1:], s)
		switch {
		case err == nil:
			return ExitOK
		case errors.Is(err, flag.ErrHelp):
			return ExitOK
		case errors.Is(err, errUnexpectedArgs), isFlagError(err):
			log.Error(err.Error())
			return ExitUsage
		default:
			cmdLog.ErrorWith(name+" failed", err, map[string]any{"kind": errs.KindOf(err).String()})
			return ExitError
		}
	}

	usage(stderr, tool, cmds)
	log.Errorf("%v: %s", errUnknownCommand, name)
	return ExitUsage
}

// flagError marks a flag parsing failure.
type flagError struct{ err error }

func (e flagError) Error() string { return e.err.Error() }
func (e flagError) Unwrap() error { return e.err }

func isFlagError(err error) bool {
	var fe flagError
	return errors.As(err, &fe)
}

// parseFlags parses args with fs, rejecting positional arguments.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return flagError{err: err}
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: %v", errUnexpectedArgs, fs.Args())
	}
	return nil
}

func newLogger(stderr io.Writer) *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Output = stderr
	return logger.New(cfg)
}

func usage(w io.Writer, tool string, cmds []command) {
	fmt.Fprintf(w, "Usage:\n  %s <command> [options]\n\nCommands:\n", tool)
	for _, c := range cmds {
		fmt.Fprintf(w, "  %-14s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nRun '%s <command> -help' for the options of a command.\n", tool)
}
