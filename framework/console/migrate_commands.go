package console

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/km-arc/go-foundation/framework/container"
	"github.com/km-arc/go-foundation/framework/database"
)

// resolve resolves abstract, turning a failure into a console error.
func resolve[T any](k *Kernel, abstract string) (T, error) {
	v, err := container.Resolve[T](k.app.Container, abstract)
	if err != nil {
		var zero T
		return zero, fail("Unable to resolve [%s]: %v", abstract, err)
	}
	return v, nil
}

// attempt runs risky work, turning a panic into an error.
func attempt(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// report prints the migrations a run touched. A failure becomes a warning
// and exit code 1.
func (k *Kernel) report(names []string, err error, empty string) error {
	out := k.output()
	for _, n := range names {
		out.Task(n, "", "DONE")
	}
	if err != nil {
		if errors.Is(err, database.ErrNoMigrationTable) {
			return fail("Migration table not found.")
		}
		out.Warn("%v", err)
		return &ExitError{Code: ExitFailure}
	}
	if len(names) == 0 {
		out.Info("%s", empty)
	}
	return nil
}

func (k *Kernel) migrate(ctx context.Context, step bool) error {
	m, err := resolve[*database.Migrator](k, "migrator")
	if err != nil {
		return err
	}
	var ran []string
	err = attempt(func() (err error) {
		ran, err = m.Run(ctx, database.RunOptions{Step: step})
		return err
	})
	if err == nil && len(ran) > 0 {
		k.output().Info("Running migrations.")
	}
	return k.report(ran, err, "Nothing to migrate.")
}

func (k *Kernel) seed(ctx context.Context, class string) error {
	db, err := resolve[*sql.DB](k, "db")
	if err != nil {
		return err
	}
	seeders, err := k.app.Seeders()
	if err != nil {
		return fail("%v", err)
	}
	if class == "" {
		class = database.DefaultSeeder
	}
	out := k.output()
	out.Info("Seeding database.")
	err = attempt(func() error { return database.Seed(ctx, db, seeders, class) })
	if err != nil {
		out.Task(class, "", "FAIL")
		out.Warn("%v", err)
		return &ExitError{Code: ExitFailure}
	}
	out.Task(class, "", "DONE")
	return nil
}

func (k *Kernel) migrateCommand() *cobra.Command {
	var force, step, seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := k.confirmToProceed(force); err != nil {
				return err
			}
			if err := k.migrate(cmd.Context(), step); err != nil {
				return err
			}
			if seed {
				return k.seed(cmd.Context(), "")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Force the operation to run when in production")
	cmd.Flags().BoolVar(&step, "step", false, "Run each migration in its own batch")
	cmd.Flags().BoolVar(&seed, "seed", false, "Run the database seeder afterwards")
	return cmd
}

func (k *Kernel) migrateInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate:install",
		Short: "Create the migration repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := resolve[*database.Migrator](k, "migrator")
			if err != nil {
				return err
			}
			if err := attempt(func() error { return m.Install(cmd.Context()) }); err != nil {
				return fail("Migration table could not be created: %v", err)
			}
			k.output().Info("Migration table created successfully.")
			return nil
		},
	}
}

func (k *Kernel) migrateRollbackCommand() *cobra.Command {
	var (
		force bool
		step  int
	)
	cmd := &cobra.Command{
		Use:   "migrate:rollback",
		Short: "Rollback the last database migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := k.confirmToProceed(force); err != nil {
				return err
			}
			m, err := resolve[*database.Migrator](k, "migrator")
			if err != nil {
				return err
			}
			var names []string
			err = attempt(func() (err error) {
				names, err = m.Rollback(cmd.Context(), step)
				return err
			})
			if err == nil && len(names) > 0 {
				k.output().Info("Rolling back migrations.")
			}
			return k.report(names, err, "Nothing to rollback.")
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Force the operation to run when in production")
	cmd.Flags().IntVar(&step, "step", 0, "The number of migrations to be reverted")
	return cmd
}

func (k *Kernel) migrateResetCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "migrate:reset",
		Short: "Rollback all database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := k.confirmToProceed(force); err != nil {
				return err
			}
			return k.reset(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Force the operation to run when in production")
	return cmd
}

func (k *Kernel) reset(ctx context.Context) error {
	m, err := resolve[*database.Migrator](k, "migrator")
	if err != nil {
		return err
	}
	var names []string
	err = attempt(func() (err error) {
		names, err = m.Reset(ctx)
		return err
	})
	if err == nil && len(names) > 0 {
		k.output().Info("Rolling back migrations.")
	}
	return k.report(names, err, "Nothing to rollback.")
}

func (k *Kernel) migrateRefreshCommand() *cobra.Command {
	var (
		force, seed bool
		step        int
	)
	cmd := &cobra.Command{
		Use:   "migrate:refresh",
		Short: "Reset and re-run all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := k.confirmToProceed(force); err != nil {
				return err
			}
			ctx := cmd.Context()
			if step > 0 {
				if err := k.Call(ctx, "migrate:rollback", "--force", "--step="+strconv.Itoa(step)); err != nil {
					return err
				}
			} else if err := k.reset(ctx); err != nil {
				return err
			}
			if err := k.migrate(ctx, false); err != nil {
				return err
			}
			if seed {
				return k.seed(ctx, "")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Force the operation to run when in production")
	cmd.Flags().BoolVar(&seed, "seed", false, "Run the database seeder afterwards")
	cmd.Flags().IntVar(&step, "step", 0, "The number of migrations to be reverted and re-run")
	return cmd
}

func (k *Kernel) migrateFreshCommand() *cobra.Command {
	var force, seed bool
	cmd := &cobra.Command{
		Use:   "migrate:fresh",
		Short: "Drop all tables and re-run all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := k.confirmToProceed(force); err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := resolve[*sql.DB](k, "db")
			if err != nil {
				return err
			}
			out := k.output()
			var dropped []string
			err = attempt(func() (err error) {
				dropped, err = database.DropAllTables(ctx, db)
				return err
			})
			if err != nil {
				out.Task("Dropping all tables", "", "FAIL")
				out.Warn("%v", err)
				return &ExitError{Code: ExitFailure}
			}
			out.Task("Dropping all tables", strconv.Itoa(len(dropped)), "DONE")

			if err := k.migrate(ctx, false); err != nil {
				return err
			}
			if seed {
				return k.seed(ctx, "")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Force the operation to run when in production")
	cmd.Flags().BoolVar(&seed, "seed", false, "Run the database seeder afterwards")
	return cmd
}

func (k *Kernel) migrateStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate:status",
		Short: "Show the status of each migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := resolve[*database.Migrator](k, "migrator")
			if err != nil {
				return err
			}
			var status []database.Status
			err = attempt(func() (err error) {
				status, err = m.Status(cmd.Context())
				return err
			})
			if errors.Is(err, database.ErrNoMigrationTable) {
				return fail("Migration table not found.")
			}
			if err != nil {
				return fail("%v", err)
			}
			out := k.output()
			if len(status) == 0 {
				out.Info("No migrations found.")
				return nil
			}
			rows := make([][]string, len(status))
			for i, s := range status {
				state := "Pending"
				if s.Ran {
					state = fmt.Sprintf("[%d] Ran", s.Batch)
				}
				rows[i] = []string{s.Name, state}
			}
			out.Table([]string{"MIGRATION NAME", "BATCH / STATUS"}, rows)
			return nil
		},
	}
}

func (k *Kernel) dbSeedCommand() *cobra.Command {
	var (
		force bool
		class string
	)
	cmd := &cobra.Command{
		Use:   "db:seed",
		Short: "Seed the database with records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := k.confirmToProceed(force); err != nil {
				return err
			}
			if err := k.seed(cmd.Context(), class); err != nil {
				return err
			}
			k.output().Info("Database seeding completed successfully.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Force the operation to run when in production")
	cmd.Flags().StringVar(&class, "class", database.DefaultSeeder, "The seeder to run")
	return cmd
}
