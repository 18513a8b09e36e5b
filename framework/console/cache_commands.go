package console

import (
	"cmp"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/km-arc/go-foundation/framework/config"
	"github.com/km-arc/go-foundation/framework/routing"
)

// ── cache ────────────────────────────────────────────────────────────────────

func (k *Kernel) cacheClearCommand() *cobra.Command {
	var (
		all     bool
		drivers []string
	)
	cmd := &cobra.Command{
		Use:   "cache:clear [store]",
		Short: "Flush the application cache",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := k.output()
			manager := k.app.Cache()

			stores := drivers
			switch {
			case all:
				stores = manager.Drivers()
			case len(args) == 1:
				stores = []string{args[0]}
			case len(stores) == 0:
				stores = []string{manager.DefaultDriver()}
			}

			if len(stores) == 1 {
				if err := manager.Flush(cmd.Context(), stores[0]); err != nil {
					return fail("Failed to clear cache [%s]: %v", stores[0], err)
				}
				out.Info("Application cache [%s] cleared successfully.", stores[0])
				return nil
			}

			failed := 0
			for _, name := range stores {
				if err := manager.Flush(cmd.Context(), name); err != nil {
					failed++
					out.Task(name, "", "FAIL")
					out.Warn("Failed to clear cache [%s]: %v", name, err)
					continue
				}
				out.Task(name, "", "DONE")
			}
			if failed > 0 {
				return &ExitError{Code: ExitFailure}
			}
			out.Info("Application cache cleared successfully.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Flush every configured store")
	cmd.Flags().StringSliceVar(&drivers, "drivers", nil, "Stores to flush, comma separated")
	return cmd
}

// ── config ───────────────────────────────────────────────────────────────────

func (k *Kernel) configCacheCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "config:cache",
		Short:       "Create a cache file for faster configuration loading",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipBootstrap: "true"},
		RunE: func(*cobra.Command, []string) error {
			path := k.app.CachedConfigPath()
			if _, err := config.Clear(path); err != nil {
				return fail("Failed to clear the configuration cache: %v", err)
			}
			cfg, err := k.app.FreshConfiguration()
			if err != nil {
				return fail("Configuration could not be loaded: %v", err)
			}
			if err := config.Cache(cfg, path); err != nil {
				return fail("Configuration could not be cached: %v", err)
			}
			k.output().Info("Configuration cached successfully.")
			return nil
		},
	}
}

func (k *Kernel) configClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "config:clear",
		Short:       "Remove the configuration cache file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipBootstrap: "true"},
		RunE: func(*cobra.Command, []string) error {
			if _, err := config.Clear(k.app.CachedConfigPath()); err != nil {
				return fail("Failed to clear the configuration cache: %v", err)
			}
			k.output().Info("Configuration cache cleared successfully.")
			return nil
		},
	}
}

// ── routes ───────────────────────────────────────────────────────────────────

func (k *Kernel) routeCacheCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "route:cache",
		Short:       "Create a route cache file for faster route registration",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipBootstrap: "true"},
		RunE: func(*cobra.Command, []string) error {
			path := k.app.CachedRoutesPath()
			if _, err := routing.ClearCache(path); err != nil {
				return fail("Failed to clear the route cache: %v", err)
			}
			if err := k.app.Bootstrap(); err != nil {
				return &ExitError{Code: ExitFailure, Err: err}
			}
			router := k.app.FreshRouter()
			if len(router.Routes()) == 0 {
				return fail("Your application doesn't have any routes.")
			}
			if err := router.Cache(path); err != nil {
				return fail("%v", err)
			}
			k.output().Info("Routes cached successfully.")
			return nil
		},
	}
}

func (k *Kernel) routeClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "route:clear",
		Short:       "Remove the route cache file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipBootstrap: "true"},
		RunE: func(*cobra.Command, []string) error {
			if _, err := routing.ClearCache(k.app.CachedRoutesPath()); err != nil {
				return fail("Failed to clear the route cache: %v", err)
			}
			k.output().Info("Route cache cleared successfully.")
			return nil
		},
	}
}

func (k *Kernel) routeListCommand() *cobra.Command {
	var method, path string
	cmd := &cobra.Command{
		Use:   "route:list",
		Short: "List all registered routes",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			routes := k.app.Router().Routes()
			routes = slices.DeleteFunc(routes, func(r routing.Route) bool {
				return (method != "" && !strings.EqualFold(r.Method, method)) ||
					(path != "" && !strings.Contains(r.URI, path))
			})
			out := k.output()
			if len(routes) == 0 {
				return fail("Your application doesn't have any routes matching the given criteria.")
			}
			slices.SortStableFunc(routes, func(a, b routing.Route) int {
				if c := cmp.Compare(a.URI, b.URI); c != 0 {
					return c
				}
				return cmp.Compare(a.Method, b.Method)
			})

			rows := make([][]string, 0, len(routes))
			for _, r := range routes {
				rows = append(rows, []string{r.Method, r.URI, r.Name, r.Action, strings.Join(r.Middleware, ",")})
			}
			out.Table([]string{"METHOD", "URI", "NAME", "ACTION", "MIDDLEWARE"}, rows)
			out.Info("Showing [%d] routes.", len(routes))
			return nil
		},
	}
	cmd.Flags().StringVar(&method, "method", "", "Only show routes with this method")
	cmd.Flags().StringVar(&path, "path", "", "Only show routes whose URI contains this")
	return cmd
}

// ── views ────────────────────────────────────────────────────────────────────

func (k *Kernel) viewCacheCommand() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "view:cache",
		Short: "Compile all of the application's templates",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			names, err := k.app.Views().CompileAll(prefix)
			if err != nil {
				return fail("Views could not be compiled: %v", err)
			}
			out := k.output()
			for _, n := range names {
				out.Task(n, "", "DONE")
			}
			out.Info("Views cached successfully [%d].", len(names))
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only compile views whose name starts with this")
	return cmd
}

func (k *Kernel) viewClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view:clear",
		Short: "Clear all compiled view files",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			n, err := k.app.Views().Clear()
			if err != nil {
				return fail("Compiled views could not be cleared: %v", err)
			}
			k.output().Info("Compiled views cleared successfully [%d].", n)
			return nil
		},
	}
}

func (k *Kernel) viewWatchCommand() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "view:watch",
		Short: "Recompile templates when they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			views := k.app.Views()
			if _, err := views.CompileAll(prefix); err != nil {
				return fail("Views could not be compiled: %v", err)
			}
			out := k.output()
			out.Info("Watching views. Press Ctrl+C to stop.")
			err := views.Watch(cmd.Context(), prefix, func(name string, err error) {
				if err != nil {
					out.Task(name, err.Error(), "FAIL")
					return
				}
				out.Task(name, k.now().Format("15:04:05"), "DONE")
			})
			if err != nil {
				return fail("%v", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only watch views whose name starts with this")
	return cmd
}
