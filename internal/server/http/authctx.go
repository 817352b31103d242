package httpserver

import (
	"github.com/and161185/devdice/internal/errs"
	"github.com/and161185/devdice/internal/model"
	"github.com/gin-gonic/gin"
)

const claimsKey = "devdice.claims"

var errNoUser = errs.New(errs.ErrUnauthorized, "Access token required")

// setClaims stores verified token claims on the request context.
func setClaims(c *gin.Context, cl model.Claims) { c.Set(claimsKey, cl) }

// ClaimsFrom fetches claims stored by RequireAuth.
func ClaimsFrom(c *gin.Context) (model.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return model.Claims{}, false
	}
	cl, ok := v.(model.Claims)
	return cl, ok
}
