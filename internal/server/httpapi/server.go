// Package httpapi exposes the session and user services over HTTP using gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/cache"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

// Sessions is the part of services.SessionService used by the HTTP layer.
type Sessions interface {
	Register(ctx context.Context, name, email, password string) (*models.User, *models.TokenPair, error)
	Login(ctx context.Context, email, password string) (*models.User, error)
	IssueSessionTokens(ctx context.Context, user *models.User) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
	SendVerificationEmail(ctx context.Context, user *models.User) error
	VerifyEmail(ctx context.Context, verifyToken string) (string, error)
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
}

// Users is the part of services.UserService used by the HTTP layer.
type Users interface {
	Create(ctx context.Context, in services.CreateUserInput) (*models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
	Query(ctx context.Context, page, limit int) (*services.UserPage, error)
	Update(ctx context.Context, id string, patch services.UserPatch) (*models.User, error)
	Delete(ctx context.Context, id string) error
}

type Server struct {
	address     string
	sessions    Sessions
	users       Users
	cache       cache.Cache
	cacheTTL    time.Duration
	authLimiter *clientLimiter
	logger      logging.Logger
}

func NewServer(address string, l logging.Logger, sessions Sessions, users Users, c cache.Cache, cacheTTL time.Duration) *Server {
	if c == nil {
		c = cache.Nop{}
	}
	registerPasswordRule()

	return &Server{
		address:  address,
		sessions: sessions,
		users:    users,
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   l.With("module", "http_server"),
	}
}

// WithAuthRateLimit limits each client to requests /v1/auth requests per
// window. Non-positive values leave the routes unlimited.
func (s *Server) WithAuthRateLimit(requests int, window time.Duration) *Server {
	if requests > 0 && window > 0 {
		s.authLimiter = newClientLimiter(requests, window)
	}
	return s
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")

	a := v1.Group("/auth")
	if s.authLimiter != nil {
		a.Use(s.rateLimit(s.authLimiter, "Auth"))
	}
	a.POST("/register", s.register)
	a.POST("/login", s.login)
	a.POST("/logout", s.logout)
	a.POST("/refresh-tokens", s.refreshTokens)
	a.POST("/forgot-password", s.forgotPassword)
	a.POST("/reset-password", s.resetPassword)
	a.POST("/send-verification-email", s.requireAuth(), s.sendVerificationEmail)
	a.POST("/verify-email", s.verifyEmail)

	u := v1.Group("/users", s.requireAuth())
	u.POST("", s.requireRights(models.RightManageUsers), s.createUser)
	u.GET("", s.requireRights(models.RightGetUsers), s.listUsers)
	u.GET("/:userId", s.requireRights(models.RightGetUsers), s.getUser)
	u.PATCH("/:userId", s.requireRights(models.RightManageUsers), s.updateUser)
	u.DELETE("/:userId", s.requireRights(models.RightManageUsers), s.deleteUser)

	return router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
