// Package httpserver exposes the DevDice services over REST/JSON using gin.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/and161185/devdice/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Auth     service.AuthService
	Catalog  service.CatalogService
	Tracking service.TrackingService
	Log      *zap.Logger
	// Ping reports storage health for GET /health. Optional.
	Ping func(ctx context.Context) error
	// CORSOrigins lists allowed browser origins; empty disables CORS headers.
	CORSOrigins []string
	// MaxUpload bounds CSV upload bodies in bytes.
	MaxUpload int64
}

// Server holds request handlers.
type Server struct {
	auth      service.AuthService
	catalog   service.CatalogService
	tracking  service.TrackingService
	log       *zap.Logger
	ping      func(ctx context.Context) error
	maxUpload int64
}

// NewRouter wires middleware and routes.
func NewRouter(d Deps) (*gin.Engine, error) {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.MaxUpload <= 0 {
		d.MaxUpload = 5 << 20
	}
	s := &Server{
		auth: d.Auth, catalog: d.Catalog, tracking: d.Tracking,
		log: d.Log, ping: d.Ping, maxUpload: d.MaxUpload,
	}

	r := gin.New()
	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, err
	}
	r.Use(Recover(d.Log), Logging(d.Log))
	if len(d.CORSOrigins) > 0 {
		cc := cors.Config{
			AllowOrigins:  d.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}
		if err := cc.Validate(); err != nil {
			return nil, fmt.Errorf("cors: %w", err)
		}
		r.Use(cors.New(cc))
	}

	authed := RequireAuth(d.Auth, d.Log)
	admin := RequireAdmin(d.Log)

	r.GET("/health", s.health)

	users := r.Group("/users")
	users.POST("/signup", s.signUp)
	users.POST("/login", s.login)
	users.POST("/forgot-password", s.forgotPassword)
	users.POST("/reset-password", s.resetPassword)
	users.GET("/me", authed, s.me)
	users.PUT("/:email", authed, s.updateProfile)
	users.DELETE("/:email", authed, s.deleteAccount)

	ch := r.Group("/challenges")
	ch.GET("", s.listChallenges)
	ch.GET("/random", s.randomChallenge)
	ch.POST("", authed, admin, s.createChallenge)
	ch.POST("/bulk", authed, admin, s.bulkCreate)
	ch.POST("/bulk/csv", authed, admin, s.importCSV)
	ch.PUT("/:id", authed, admin, s.updateChallenge)
	ch.DELETE("/:id", authed, admin, s.deleteChallenge)

	my := r.Group("/my-challenges", authed)
	my.GET("", s.listMine)
	my.POST("", s.saveMine)
	my.PATCH("/:id", s.completeMine)
	my.DELETE("/:id", s.deleteMine)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{Message: "Not found"})
	})
	return r, nil
}

func (s *Server) health(c *gin.Context) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.log.Warn("health: storage unavailable", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
