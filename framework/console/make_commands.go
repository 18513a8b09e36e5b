package console

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/km-arc/go-foundation/framework/database"
)

// generator describes one make:* command.
type generator struct {
	kind  string // "Controller"
	use   string // "make:controller"
	short string
	dir   func(k *Kernel) string
	stub  *template.Template
}

// stubData is what the stubs are rendered with.
type stubData struct {
	Package string
	Name    string
	Command string
}

var className = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

func (k *Kernel) makeCommands() []*cobra.Command {
	gens := []generator{
		{
			kind: "Controller", use: "make:controller", short: "Create a new controller",
			dir:  func(k *Kernel) string { return k.app.AppPath("http", "controllers") },
			stub: controllerStub,
		},
		{
			kind: "Middleware", use: "make:middleware", short: "Create a new middleware",
			dir:  func(k *Kernel) string { return k.app.AppPath("http", "middleware") },
			stub: middlewareStub,
		},
		{
			kind: "Provider", use: "make:provider", short: "Create a new service provider",
			dir:  func(k *Kernel) string { return k.app.AppPath("providers") },
			stub: providerStub,
		},
		{
			kind: "Command", use: "make:command", short: "Create a new console command",
			dir:  func(k *Kernel) string { return k.app.AppPath("console", "commands") },
			stub: commandStub,
		},
		{
			kind: "Seeder", use: "make:seeder", short: "Create a new seeder",
			dir:  func(k *Kernel) string { return k.app.SeederPath() },
			stub: seederStub,
		},
	}
	cmds := make([]*cobra.Command, 0, len(gens)+1)
	for _, g := range gens {
		cmds = append(cmds, k.makeCommand(g))
	}
	return append(cmds, k.makeMigrationCommand())
}

func (k *Kernel) makeCommand(g generator) *cobra.Command {
	var (
		force   bool
		command string
	)
	cmd := &cobra.Command{
		Use:         g.use + " <name>",
		Short:       g.short,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipBootstrap: "true"},
		RunE: func(_ *cobra.Command, args []string) error {
			path, err := k.generate(g, args[0], command, force)
			if errors.Is(err, os.ErrExist) {
				return fail("%s already exists.", g.kind)
			}
			if err != nil {
				return fail("%v", err)
			}
			k.output().Info("%s [%s] created successfully.", g.kind, k.relative(path))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite the file if it already exists")
	if g.kind == "Command" {
		cmd.Flags().StringVar(&command, "command", "", "The name the command is run with")
	}
	return cmd
}

// generate renders g's stub for name ("Admin/UserController" nests the file
// in package admin) and writes it below g's directory.
func (k *Kernel) generate(g generator, name, command string, force bool) (string, error) {
	name = strings.Trim(filepath.ToSlash(strings.TrimSpace(name)), "/")
	parts := strings.Split(name, "/")
	class := parts[len(parts)-1]
	if !className.MatchString(class) {
		return "", fmt.Errorf("invalid %s name [%s]: use CamelCase", strings.ToLower(g.kind), class)
	}

	dir := g.dir(k)
	pkg := filepath.Base(dir)
	for _, p := range parts[:len(parts)-1] {
		p = strings.ToLower(p)
		dir = filepath.Join(dir, p)
		pkg = p
	}
	path := filepath.Join(dir, snake(class)+".go")

	if _, err := os.Stat(path); err == nil && !force {
		return "", os.ErrExist
	}
	if command == "" {
		command = "app:" + strings.ReplaceAll(snake(class), "_", "-")
	}

	var buf bytes.Buffer
	if err := g.stub.Execute(&buf, stubData{Package: pkg, Name: class, Command: command}); err != nil {
		return "", err
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("format %s: %w", path, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, src, 0o644)
}

func (k *Kernel) makeMigrationCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "make:migration <name>",
		Short: "Create a new migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			creator, err := resolve[*database.Creator](k, "migration.creator")
			if err != nil {
				return err
			}
			paths, err := creator.Create(args[0])
			if err != nil {
				return fail("%v", err)
			}
			out := k.output()
			for _, p := range paths {
				out.Info("Migration [%s] created successfully.", k.relative(p))
			}
			return nil
		},
	}
}

// relative shortens path to be relative to the base path.
func (k *Kernel) relative(path string) string {
	if rel, err := filepath.Rel(k.app.BasePath(), path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

// snake converts "UserController" to "user_controller" and "HTTPClient" to
// "http_client".
func snake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ── Stubs ────────────────────────────────────────────────────────────────────

var controllerStub = template.Must(template.New("controller").Parse(`package {{.Package}}

import (
	"net/http"

	"github.com/km-arc/go-foundation/framework/app"
)

type {{.Name}} struct {
	app.Controller
}

// Index handles GET requests to the resource.
func (c *{{.Name}}) Index(w http.ResponseWriter, r *http.Request) {
	c.Response(w).Success(map[string]any{})
}
`))

var middlewareStub = template.Must(template.New("middleware").Parse(`package {{.Package}}

import "net/http"

// {{.Name}} handles an incoming request.
func {{.Name}}(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
	})
}
`))

var providerStub = template.Must(template.New("provider").Parse(`package {{.Package}}

import "github.com/km-arc/go-foundation/framework/container"

type {{.Name}} struct {
	container.BaseProvider
}

// Register binds services into the container.
func (p *{{.Name}}) Register(app *container.Container) {}

// Boot runs after every provider is registered.
func (p *{{.Name}}) Boot(app *container.Container) {}
`))

var commandStub = template.Must(template.New("command").Parse(`package {{.Package}}

import "github.com/spf13/cobra"

// New{{.Name}} builds the {{.Command}} command.
func New{{.Name}}() *cobra.Command {
	return &cobra.Command{
		Use:   "{{.Command}}",
		Short: "Command description",
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}
}
`))

var seederStub = template.Must(template.New("seeder").Parse(`package {{.Package}}

import (
	"context"
	"database/sql"
)

type {{.Name}} struct{}

// Run seeds the database.
func (s {{.Name}}) Run(ctx context.Context, db *sql.DB) error {
	return nil
}
`))
