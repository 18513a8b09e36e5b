package console

import (
	"errors"
	"net"
	"time"

	"github.com/spf13/cobra"
)

func (k *Kernel) serveCommand() *cobra.Command {
	var (
		host, port string
		expose     bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if expose {
				host = "0.0.0.0"
			}
			if port == "" {
				port = k.app.Config().App.Port
			}
			addr := net.JoinHostPort(host, port)

			out := k.output()
			out.Info("Server running on [http://%s].", addr)
			out.Line("Press Ctrl+C to stop the server")
			if err := k.app.Serve(cmd.Context(), addr); err != nil {
				return fail("%v", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "The host address to serve the application on")
	cmd.Flags().StringVar(&port, "port", "", "The port to serve the application on (default APP_PORT)")
	cmd.Flags().BoolVar(&expose, "expose", false, "Listen on every interface (0.0.0.0)")
	return cmd
}

// ── schedule ─────────────────────────────────────────────────────────────────

func (k *Kernel) cronCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cron",
		Short: "Run the scheduled tasks that are due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := k.schedule()
			if err != nil {
				return fail("%v", err)
			}
			out := k.output()
			now := k.now()
			if len(s.DueEvents(now)) == 0 {
				out.Info("No scheduled commands are ready to run.")
				return nil
			}
			ran, err := s.RunDue(cmd.Context(), now)
			for _, name := range ran {
				out.Task(name, now.Format("2006-01-02 15:04"), "DONE")
			}
			if err != nil {
				for _, e := range unjoin(err) {
					out.Warn("%v", e)
				}
				return &ExitError{Code: ExitFailure}
			}
			return nil
		},
	}
}

// unjoin splits an errors.Join error.
func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func (k *Kernel) cronListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cron:list",
		Short: "List all scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			s, err := k.schedule()
			if err != nil {
				return fail("%v", err)
			}
			out := k.output()
			now := k.now()
			entries := s.List(now)
			if len(entries) == 0 {
				out.Info("No scheduled tasks have been defined.")
				return nil
			}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{e.Spec, e.Name, e.Description, e.Next.Format("2006-01-02 15:04:05"), until(now, e.Next)}
			}
			out.Table([]string{"EXPRESSION", "TASK", "DESCRIPTION", "NEXT DUE", ""}, rows)
			return nil
		},
	}
}

// until describes the time left before next: "in 4m".
func until(now, next time.Time) string {
	if next.IsZero() {
		return "never"
	}
	d := next.Sub(now).Round(time.Second)
	if d >= time.Minute {
		d = d.Round(time.Minute)
	}
	return "in " + d.String()
}

func (k *Kernel) cronWorkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cron:work",
		Short: "Run the scheduled tasks until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := k.schedule()
			if err != nil {
				return fail("%v", err)
			}
			k.output().Info("Running scheduled tasks. Press Ctrl+C to stop.")
			if err := s.Work(cmd.Context()); err != nil && !errors.Is(err, cmd.Context().Err()) {
				return fail("%v", err)
			}
			return nil
		},
	}
}
