// Package console is the command-line kernel: cache, config, route and view
// caches, generators, migrations, seeding, the development server and the
// scheduler, as cobra commands over the application.
//
//	func main() {
//	    application := app.New()
//	    os.Exit(console.New(application).Execute())
//	}
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/km-arc/go-foundation/framework/app"
	"github.com/km-arc/go-foundation/framework/schedule"
)

// Exit codes.
const (
	ExitSuccess   = 0
	ExitFailure   = 1
	ExitCancelled = 2
)

// skipBootstrap marks commands that must run without booting the providers,
// such as those removing a broken cache.
const skipBootstrap = "skip-bootstrap"

// ExitError ends a command with Code. Err, when set, is printed as an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// fail ends a command with exit code 1.
func fail(format string, args ...any) error {
	return &ExitError{Code: ExitFailure, Err: fmt.Errorf(format, args...)}
}

// Kernel builds and runs the console commands.
type Kernel struct {
	app *app.Application

	mu       sync.Mutex
	out      io.Writer
	in       *bufio.Reader
	now      func() time.Time
	commands []func() *cobra.Command
}

// New creates the console kernel for a.
func New(a *app.Application) *Kernel {
	return &Kernel{
		app: a,
		out: os.Stdout,
		in:  bufio.NewReader(os.Stdin),
		now: time.Now,
	}
}

// SetOutput redirects command output.
func (k *Kernel) SetOutput(w io.Writer) { k.out = w }

// SetInput sets where confirmations are read from.
func (k *Kernel) SetInput(r io.Reader) { k.in = bufio.NewReader(r) }

// Register adds application commands. Each call to build must return a new
// command, so flags never leak between runs.
//
//	k.Register(commands.NewSendReport)
func (k *Kernel) Register(build ...func() *cobra.Command) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.commands = append(k.commands, build...)
}

// Root builds the command tree.
func (k *Kernel) Root() *cobra.Command {
	root := &cobra.Command{
		Use:           "artisan",
		Short:         "Application console",
		Version:       k.app.Version(),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipBootstrap] != "" {
				return nil
			}
			if err := k.app.Bootstrap(); err != nil {
				return &ExitError{Code: ExitFailure, Err: err}
			}
			return nil
		},
	}
	root.SetOut(k.out)
	root.SetErr(k.out)

	root.AddCommand(
		k.cacheClearCommand(),
		k.configCacheCommand(),
		k.configClearCommand(),
		k.routeCacheCommand(),
		k.routeClearCommand(),
		k.routeListCommand(),
		k.viewCacheCommand(),
		k.viewClearCommand(),
		k.viewWatchCommand(),
		k.migrateCommand(),
		k.migrateInstallCommand(),
		k.migrateRollbackCommand(),
		k.migrateResetCommand(),
		k.migrateRefreshCommand(),
		k.migrateFreshCommand(),
		k.migrateStatusCommand(),
		k.dbSeedCommand(),
		k.serveCommand(),
		k.cronCommand(),
		k.cronListCommand(),
		k.cronWorkCommand(),
	)
	root.AddCommand(k.makeCommands()...)

	k.mu.Lock()
	for _, build := range k.commands {
		root.AddCommand(build())
	}
	k.mu.Unlock()
	return root
}

// Run runs the command line args and returns the exit code.
func (k *Kernel) Run(ctx context.Context, args []string) int {
	err := k.execute(ctx, args)
	if err == nil {
		return ExitSuccess
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		if ee.Err != nil {
			k.output().Error("%s", ee.Err.Error())
		}
		return ee.Code
	}
	k.output().Error("%s", err.Error())
	return ExitFailure
}

// Call runs one command by name. The schedule runs Command events with it.
func (k *Kernel) Call(ctx context.Context, name string, args ...string) error {
	return k.execute(ctx, append([]string{name}, args...))
}

// Execute runs os.Args until SIGINT or SIGTERM and returns the exit code.
func (k *Kernel) Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return k.Run(ctx, os.Args[1:])
}

func (k *Kernel) execute(ctx context.Context, args []string) error {
	root := k.Root()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (k *Kernel) output() *Output { return NewOutput(k.out) }

// confirm asks a yes/no question. Anything but yes is no.
func (k *Kernel) confirm(question string) bool {
	fmt.Fprintf(k.out, "  %s (yes/no) [no]\n  > ", question)
	k.mu.Lock()
	answer, _ := k.in.ReadString('\n')
	k.mu.Unlock()
	fmt.Fprintln(k.out)
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// confirmToProceed guards destructive commands in production.
func (k *Kernel) confirmToProceed(force bool) error {
	if force || !k.app.IsProduction() {
		return nil
	}
	out := k.output()
	out.Warn("Application In Production.")
	if k.confirm("Are you sure you want to run this command?") {
		return nil
	}
	out.Warn("Command cancelled.")
	return &ExitError{Code: ExitCancelled}
}

// schedule resolves the schedule and lets its Command events run through
// this kernel.
func (k *Kernel) schedule() (*schedule.Schedule, error) {
	s, err := k.app.Scheduler()
	if err != nil {
		return nil, err
	}
	s.SetCommandRunner(func(ctx context.Context, name string, args []string) error {
		return k.Call(ctx, name, args...)
	})
	return s, nil
}
