package app

import (
	"net/http"

	gohttp "github.com/km-arc/go-foundation/framework/http"
	"github.com/km-arc/go-foundation/framework/http/validation"
)

// Controller is an embeddable base for HTTP controllers.
//
//	type UserController struct {
//	    app.Controller
//	    DB *sql.DB `inject:"db"`
//	}
type Controller struct{}

func (c *Controller) Request(r *http.Request) *gohttp.Request {
	return gohttp.NewRequest(r)
}

func (c *Controller) Response(w http.ResponseWriter) *gohttp.Response {
	return gohttp.NewResponse(w)
}

// Validate validates the request input. A failed validation is returned as
// *validation.Errors, which the exception handler renders as 422.
func (c *Controller) Validate(r *http.Request, rules validation.Rules) (map[string]string, error) {
	return gohttp.NewRequest(r).Validate(rules)
}
