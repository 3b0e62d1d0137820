// Package server wires the authkeeper services to their storage, cache and
// transports, and runs the HTTP and gRPC endpoints until a shutdown signal.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/cache"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/passwords"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Services bundles the business services over one database handle.
type Services struct {
	DB       *sql.DB
	Users    *services.UserService
	Sessions *services.SessionService
}

// Close releases the database handle.
func (s *Services) Close() error {
	return s.DB.Close()
}

// OpenServices connects to the database, applies migrations and builds the
// user and session services. Emails are written to outbox.
func OpenServices(ctx context.Context, cfg *config.Config, logger logging.Logger, outbox io.Writer) (*Services, error) {
	hasher, err := passwords.New(cfg.PasswordHasher, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	txdb := dbx.NewSQLDB(db, nil)
	codec := auth.NewCodec([]byte(cfg.SecretKey))
	mailer := mail.NewWriterMailer(outbox, cfg.AppBaseURL, logger)

	users := services.NewUserService(txdb, rm, hasher, logger)
	sessions := services.NewSessionService(txdb, rm, users, codec, hasher, mailer, logger, services.LifetimesFromConfig(cfg))

	return &Services{DB: db, Users: users, Sessions: sessions}, nil
}

type stderrOutbox struct{ io.Writer }

func (stderrOutbox) Close() error { return nil }

// OpenOutbox opens the writer outgoing emails are rendered onto: the file at
// path in append mode, or stderr when path is empty. Emails carry live tokens,
// so they never go to the log stream on stdout.
func OpenOutbox(path string) (io.WriteCloser, error) {
	if path == "" {
		return stderrOutbox{os.Stderr}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("mail outbox: %w", err)
	}
	return f, nil
}

// NewLogger returns the JSON logger used by the server and authctl.
func NewLogger(w io.Writer) logging.Logger {
	return logging.NewJSONLogger(w, slog.LevelInfo)
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	services *Services
	cache    cache.Cache
	closers  []func() error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := NewLogger(os.Stdout)

	outbox, err := OpenOutbox(c.MailOutbox)
	if err != nil {
		return nil, err
	}

	svc, err := OpenServices(ctx, c, logger, outbox)
	if err != nil {
		_ = outbox.Close()
		return nil, err
	}

	app := &App{config: c, logger: logger, services: svc, cache: cache.Nop{}}
	app.closers = append(app.closers, svc.Close, outbox.Close)

	if c.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, c.RedisAddr, c.RedisPassword)
		if err != nil {
			logger.Warn(ctx, "response cache disabled", "error", err)
		} else {
			app.cache = rc
			app.closers = append(app.closers, rc.Close)
		}
	}

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.services.Sessions)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := httpapi.NewServer(app.config.HTTPAddr, app.logger, app.services.Sessions, app.services.Users, app.cache, app.config.CacheTTL).
		WithAuthRateLimit(app.config.AuthRateLimit, app.config.AuthRateWindow)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	for _, closeFn := range app.closers {
		if err := closeFn(); err != nil {
			app.logger.Error(context.Background(), "close error", "error", err)
		}
	}

	app.logger.Info(context.Background(), "App stopped")
}
