// Package authctl implements the administrative command line of authkeeper:
// creating accounts without going through the public API and purging expired
// tokens.
package authctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/passwords"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

const usage = `usage:
  authctl create-user -email EMAIL [-name NAME] [-admin]
  authctl purge-tokens`

// ErrUsage is returned for a missing or unknown subcommand or bad arguments.
var ErrUsage = errors.New(usage)

type UserCreator interface {
	Create(ctx context.Context, in services.CreateUserInput) (*models.User, error)
}

type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

type App struct {
	users  UserCreator
	tokens TokenPurger
	out    io.Writer
	now    func() time.Time
}

func NewApp(users UserCreator, tokens TokenPurger, out io.Writer) *App {
	return &App{users: users, tokens: tokens, out: out, now: time.Now}
}

// Run executes the subcommand named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "create-user":
		return a.createUser(ctx, args[1:])
	case "purge-tokens":
		return a.purgeTokens(ctx)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], ErrUsage)
	}
}

func (a *App) createUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	email := fs.String("email", "", "email of the new user")
	name := fs.String("name", "", "display name (defaults to the email)")
	admin := fs.Bool("admin", false, "grant the admin role")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%v: %w", err, ErrUsage)
	}
	if *email == "" {
		return fmt.Errorf("-email is required: %w", ErrUsage)
	}
	if *name == "" {
		*name = *email
	}

	role := models.RoleUser
	if *admin {
		role = models.RoleAdmin
	}

	password, err := getNewPassword(a.out)
	if err != nil {
		return err
	}
	if err := passwords.CheckStrength(password); err != nil {
		return err
	}

	user, err := a.users.Create(ctx, services.CreateUserInput{
		Name:     *name,
		Email:    *email,
		Password: password,
		Role:     role,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "created %s user %s (%s)\n", user.Role, user.ID, user.Email)
	return nil
}

func (a *App) purgeTokens(ctx context.Context) error {
	n, err := a.tokens.PurgeExpiredTokens(ctx, a.now())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "purged %d expired tokens\n", n)
	return nil
}
