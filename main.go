package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"

	"github.com/km-arc/go-foundation/framework/app"
	"github.com/km-arc/go-foundation/framework/console"
	"github.com/km-arc/go-foundation/framework/container"
	"github.com/km-arc/go-foundation/framework/database"
	gohttp "github.com/km-arc/go-foundation/framework/http"
	"github.com/km-arc/go-foundation/framework/http/validation"
	"github.com/km-arc/go-foundation/framework/routing"
	"github.com/km-arc/go-foundation/framework/schedule"
)

func main() {
	application := app.New(app.WithFallbackViews("pages"))

	_ = application.Singleton("users", container.Closure(func(c *container.Container, _ container.Params) (any, error) {
		return &UserController{}, nil
	}))

	application.Routes(func(r *routing.Router) {

		// ── Basic routes ─────────────────────────────────────────────────────

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			gohttp.NewResponse(w).Success(map[string]any{"message": "Welcome to GoFoundation!"})
		}).Name("home")

		// ── API (cacheable actions resolved through the container) ───────────

		r.GroupWith(routing.Attributes{Prefix: "/api/v1", As: "api.", Middleware: []string{"api"}}, func(api *routing.Router) {
			api.Get("/users", "users@Index").Name("users.index")
			api.Post("/users", "users@Store").Name("users.store")
			api.Get("/users/{id}", "users@Show").Name("users.show")
		})

		// ── Auth group with middleware ───────────────────────────────────────

		r.Group(func(protected *routing.Router) {
			protected.Middleware(AuthMiddleware)
			protected.Get("/profile", func(w http.ResponseWriter, req *http.Request) {
				gohttp.NewResponse(w).Success(map[string]any{"user": "authenticated"})
			})
		})
	})

	application.Schedule(func(s *schedule.Schedule) error {
		if _, err := s.Command("@daily", "cache:clear", "--all"); err != nil {
			return err
		}
		e, err := s.Call("*/15 * * * *", func(ctx context.Context) error {
			application.Log().Info("heartbeat")
			return nil
		})
		if err != nil {
			return err
		}
		e.Description("log a heartbeat").WithoutOverlapping()
		return nil
	})

	application.RegisterSeeders(
		database.NewSeeder(database.DefaultSeeder, func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx,
				`INSERT INTO users (name, email) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				"Alice", "alice@example.com")
			return err
		}),
	)

	os.Exit(console.New(application).Execute())
}

// UserController is an example resource controller.
type UserController struct {
	app.Controller
}

func (c *UserController) Index() []map[string]any {
	return []map[string]any{
		{"id": 1, "name": "Alice"},
		{"id": 2, "name": "Bob"},
	}
}

// Store validates the body and answers 201. A failed validation is rendered
// as 422 by the exception handler.
func (c *UserController) Store(w http.ResponseWriter, req *gohttp.Request) error {
	input, err := req.Validate(validation.Rules{
		"name":  "required|min:2|max:100",
		"email": "required|email",
		"age":   "required|numeric|gte:18",
	})
	if err != nil {
		return err
	}
	gohttp.NewResponse(w).Created(map[string]any{
		"name":  input["name"],
		"email": input["email"],
	})
	return nil
}

func (c *UserController) Show(req *gohttp.Request) map[string]any {
	return map[string]any{"id": req.RouteParam("id")}
}

// AuthMiddleware is an example token guard.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gohttp.NewRequest(r).BearerToken() == "" {
			gohttp.NewResponse(w).Unauthorized()
			return
		}
		next.ServeHTTP(w, r)
	})
}
