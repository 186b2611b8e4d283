// Command postulaciones is the operator CLI for the membership-application
// workflow: schema migration, approval and rejection, reviewer management
// and read-only listing. Every command prints JSON to stdout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"sociosflow/apperr"
	"sociosflow/config"
	"sociosflow/logging"
)

// errUsage marks argument errors; they exit with status 2.
var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, bootFromEnv(os.Stderr))
	if err == nil {
		return
	}
	if errors.Is(err, errUsage) || errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	writeError(os.Stderr, err)
	os.Exit(1)
}

// bootFunc builds the application after arguments have been validated, so
// usage errors never touch the database.
type bootFunc func(ctx context.Context) (*app, error)

// bootFromEnv loads configuration from the environment. Logs go to logs so
// stdout carries only the command result.
func bootFromEnv(logs io.Writer) bootFunc {
	return func(ctx context.Context) (*app, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		return newApp(ctx, cfg, logging.NewWithWriter(logs, cfg.LogLevel))
	}
}

type command struct {
	summary string
	run     func(ctx context.Context, fs *pflag.FlagSet, args []string, boot bootFunc) (any, error)
}

var commands = map[string]command{
	"migrate":         {"apply pending schema migrations", runMigrate},
	"approve":         {"record an approval vote", runApprove},
	"reject":          {"reject an application with a reason", runReject},
	"assign-reviewer": {"assign a reviewer to an application", runAssignReviewer},
	"remove-reviewer": {"remove a reviewer from an application", runRemoveReviewer},
	"feedback":        {"write reviewer feedback", runFeedback},
	"reviewers":       {"list the reviewers of an application", runReviewers},
	"list":            {"list applications", runList},
	"get":             {"show one application", runGet},
}

func run(ctx context.Context, args []string, stdout io.Writer, boot bootFunc) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return fmt.Errorf("%w\n%s", errUsage, usage())
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q\n%s", errUsage, args[0], usage())
	}

	fs := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	result, err := cmd.run(ctx, fs, args[1:], boot)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func usage() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	out := "usage: postulaciones <command> [flags]\n\ncommands:\n"
	for _, name := range names {
		out += fmt.Sprintf("  %-16s %s\n", name, commands[name].summary)
	}
	return out
}

// writeError prints classified errors as JSON. Unclassified errors only come
// from bootstrapping (configuration, connectivity) and are printed verbatim.
func writeError(w io.Writer, err error) {
	var classified *apperr.Error
	if !errors.As(err, &classified) {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	payload := map[string]any{
		"error":  apperr.Public(err),
		"kind":   apperr.KindOf(err),
		"status": apperr.Status(err),
	}
	_ = json.NewEncoder(w).Encode(payload)
}
