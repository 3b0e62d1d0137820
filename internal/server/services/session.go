// Package services contains server-side business logic. This file implements
// SessionService, the token lifecycle: login, issuing and rotating tokens,
// logout, password reset, email verification and access-token authentication.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/passwords"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// TokenLifetimes are the validity windows of the four token types.
type TokenLifetimes struct {
	Access        time.Duration
	Refresh       time.Duration
	ResetPassword time.Duration
	VerifyEmail   time.Duration
}

// LifetimesFromConfig copies the token validity settings out of cfg.
func LifetimesFromConfig(cfg *config.Config) TokenLifetimes {
	return TokenLifetimes{
		Access:        cfg.AccessTokenValidityDuration,
		Refresh:       cfg.RefreshTokenValidityDuration,
		ResetPassword: cfg.ResetPasswordTokenValidityDuration,
		VerifyEmail:   cfg.VerifyEmailTokenValidityDuration,
	}
}

// SessionService owns the token lifecycle. All of its state lives in the
// credential store, so one instance serves concurrent requests.
type SessionService struct {
	db          dbx.TxDB
	repomanager repomanager.RepositoryManager
	users       *UserService
	codec       *auth.Codec
	hasher      passwords.Hasher
	mailer      mail.Mailer
	log         logging.Logger
	lifetimes   TokenLifetimes

	dummyOnce sync.Once
	dummyHash string
}

// NewSessionService wires a SessionService from its collaborators.
func NewSessionService(
	db dbx.TxDB,
	m repomanager.RepositoryManager,
	users *UserService,
	codec *auth.Codec,
	hasher passwords.Hasher,
	mailer mail.Mailer,
	log logging.Logger,
	lifetimes TokenLifetimes,
) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		users:       users,
		codec:       codec,
		hasher:      hasher,
		mailer:      mailer,
		log:         log.With("module", "sessions"),
		lifetimes:   lifetimes,
	}
}

// Register creates a regular user and opens a session for it.
func (s *SessionService) Register(ctx context.Context, name, email, password string) (*models.User, *models.TokenPair, error) {
	user, err := s.users.Create(ctx, CreateUserInput{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     models.RoleUser,
	})
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.IssueSessionTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	return user, pair, nil
}

// Login checks the credentials. Unknown email and wrong password fail with
// the same AuthError; for an unknown email the hasher still runs so both
// paths cost about the same.
func (s *SessionService) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("looking up user: %w", err)
		}
		_, _ = s.hasher.Verify(password, s.dummyPasswordHash())
		return nil, s.authFailure(ctx, "login", msgIncorrectLogin, err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, s.authFailure(ctx, "login", msgIncorrectLogin, fmt.Errorf("verifying password: %w", err))
	}
	if !ok {
		return nil, s.authFailure(ctx, "login", msgIncorrectLogin, errBadCredentials)
	}

	return user.Public(), nil
}

func (s *SessionService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("timing-equalizer-0")
		if err != nil {
			s.log.Error(context.Background(), "cannot prepare dummy password hash", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// IssueSessionTokens mints an access token and a persisted refresh token.
func (s *SessionService) IssueSessionTokens(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	return s.issueSessionTokens(ctx, s.db, user.ID)
}

func (s *SessionService) issueSessionTokens(ctx context.Context, db dbx.DBTX, userID string) (*models.TokenPair, error) {
	access, accessExp, err := s.codec.Issue(userID, models.TokenTypeAccess, s.lifetimes.Access)
	if err != nil {
		return nil, err
	}

	refresh, err := s.issuePersisted(ctx, db, userID, models.TokenTypeRefresh, s.lifetimes.Refresh)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		Access:  models.IssuedToken{Token: access, ExpiresAt: accessExp},
		Refresh: *refresh,
	}, nil
}

// IssueResetPasswordToken mints and stores a RESET_PASSWORD token.
func (s *SessionService) IssueResetPasswordToken(ctx context.Context, user *models.User) (*models.IssuedToken, error) {
	return s.issuePersisted(ctx, s.db, user.ID, models.TokenTypeResetPassword, s.lifetimes.ResetPassword)
}

// IssueVerifyEmailToken mints and stores a VERIFY_EMAIL token.
func (s *SessionService) IssueVerifyEmailToken(ctx context.Context, user *models.User) (*models.IssuedToken, error) {
	return s.issuePersisted(ctx, s.db, user.ID, models.TokenTypeVerifyEmail, s.lifetimes.VerifyEmail)
}

func (s *SessionService) issuePersisted(ctx context.Context, db dbx.DBTX, userID string, tokenType models.TokenType, ttl time.Duration) (*models.IssuedToken, error) {
	if !tokenType.Persisted() {
		return nil, fmt.Errorf("%s tokens are never stored", tokenType)
	}

	signed, exp, err := s.codec.Issue(userID, tokenType, ttl)
	if err != nil {
		return nil, err
	}

	record := &models.Token{
		Token:   signed,
		Type:    tokenType,
		UserID:  userID,
		Expires: exp,
	}
	if err := s.repomanager.Tokens(db).Create(ctx, record); err != nil {
		return nil, fmt.Errorf("storing %s token: %w", tokenType, err)
	}

	return &models.IssuedToken{Token: signed, ExpiresAt: exp}, nil
}

// verifyPersisted decodes tokenString as tokenType and checks its stored
// record: present, not blacklisted, same type and same owner as the claims.
func (s *SessionService) verifyPersisted(ctx context.Context, tokenString string, tokenType models.TokenType) (*models.Token, error) {
	claims, err := s.codec.Decode(tokenString, tokenType)
	if err != nil {
		return nil, err
	}

	record, err := s.repomanager.Tokens(s.db).Find(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("looking up %s token: %w", tokenType, err)
	}

	if record.Blacklisted {
		return nil, errTokenRevoked
	}

	if record.Type != claims.Type || record.UserID != claims.Subject {
		s.log.Warn(ctx, "stored token disagrees with its claims",
			"token_id", record.ID,
			"stored_type", record.Type, "claimed_type", claims.Type,
			"stored_user", record.UserID, "claimed_user", claims.Subject)
		return nil, errTokenMismatch
	}

	return record, nil
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// pair is issued in the same transaction. Every failure is
// AuthError("Please authenticate").
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	record, err := s.verifyPersisted(ctx, refreshToken, models.TokenTypeRefresh)
	if err != nil {
		return nil, s.authFailure(ctx, "refresh", msgPleaseAuthenticate, err)
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, record.UserID)
	if err != nil {
		return nil, s.authFailure(ctx, "refresh", msgPleaseAuthenticate, fmt.Errorf("resolving user: %w", err))
	}

	var pair *models.TokenPair
	err = s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		// loses to a concurrent logout or refresh of the same token
		if err := s.repomanager.Tokens(tx).Consume(ctx, record.ID); err != nil {
			return fmt.Errorf("consuming refresh token: %w", err)
		}

		var err error
		pair, err = s.issueSessionTokens(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, s.authFailure(ctx, "refresh", msgPleaseAuthenticate, err)
	}

	return pair, nil
}

// Logout blacklists a refresh token. The token is looked up by its string and
// not decoded, so expired tokens can still be revoked.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	repo := s.repomanager.Tokens(s.db)

	record, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NotFound("Token not found")
		}
		return err
	}

	if record.Type != models.TokenTypeRefresh || record.Blacklisted {
		return common.NotFound("Token not found")
	}

	if err := repo.Blacklist(ctx, record.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NotFound("Token not found")
		}
		return err
	}

	s.log.Info(ctx, "session closed", "user_id", record.UserID, "token_id", record.ID)
	return nil
}

// ForgotPassword issues a reset token for the account with this email and
// mails it.
func (s *SessionService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NotFound("No users found with this email")
		}
		return err
	}

	token, err := s.IssueResetPasswordToken(ctx, user)
	if err != nil {
		return err
	}

	return s.mailer.SendResetPasswordEmail(ctx, user.Email, token.Token)
}

// ResetPassword redeems a reset token. On success the password is replaced,
// every reset token of the user is removed and every open refresh token of
// the user is blacklisted, all in one transaction.
func (s *SessionService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	record, err := s.verifyPersisted(ctx, resetToken, models.TokenTypeResetPassword)
	if err != nil {
		return s.authFailure(ctx, "reset_password", msgResetFailed, err)
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, record.UserID)
	if err != nil {
		return s.authFailure(ctx, "reset_password", msgResetFailed, fmt.Errorf("resolving user: %w", err))
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.authFailure(ctx, "reset_password", msgResetFailed, fmt.Errorf("hashing password: %w", err))
	}

	err = s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.repomanager.Tokens(tx)

		if err := tokens.Consume(ctx, record.ID); err != nil {
			return fmt.Errorf("consuming reset token: %w", err)
		}
		if err := s.repomanager.Users(tx).SetPassword(ctx, user.ID, hash); err != nil {
			return fmt.Errorf("storing password: %w", err)
		}
		if _, err := tokens.DeleteByUser(ctx, user.ID, models.TokenTypeResetPassword); err != nil {
			return fmt.Errorf("removing reset tokens: %w", err)
		}
		revoked, err := tokens.BlacklistByUser(ctx, user.ID, models.TokenTypeRefresh)
		if err != nil {
			return fmt.Errorf("revoking sessions: %w", err)
		}

		s.log.Info(ctx, "password reset", "user_id", user.ID, "revoked_sessions", revoked)
		return nil
	})
	if err != nil {
		return s.authFailure(ctx, "reset_password", msgResetFailed, err)
	}

	return nil
}

// SendVerificationEmail issues a verify-email token for user and mails it.
func (s *SessionService) SendVerificationEmail(ctx context.Context, user *models.User) error {
	token, err := s.IssueVerifyEmailToken(ctx, user)
	if err != nil {
		return err
	}
	return s.mailer.SendVerificationEmail(ctx, user.Email, token.Token)
}

// VerifyEmail redeems a verify-email token, marks the address verified and
// removes every verify-email token of the user. It returns the id of the
// verified user.
func (s *SessionService) VerifyEmail(ctx context.Context, verifyToken string) (string, error) {
	record, err := s.verifyPersisted(ctx, verifyToken, models.TokenTypeVerifyEmail)
	if err != nil {
		return "", s.authFailure(ctx, "verify_email", msgVerifyFailed, err)
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, record.UserID)
	if err != nil {
		return "", s.authFailure(ctx, "verify_email", msgVerifyFailed, fmt.Errorf("resolving user: %w", err))
	}

	err = s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.repomanager.Tokens(tx)

		if err := tokens.Consume(ctx, record.ID); err != nil {
			return fmt.Errorf("consuming verify token: %w", err)
		}
		if err := s.repomanager.Users(tx).MarkEmailVerified(ctx, user.ID); err != nil {
			return fmt.Errorf("marking email verified: %w", err)
		}
		if _, err := tokens.DeleteByUser(ctx, user.ID, models.TokenTypeVerifyEmail); err != nil {
			return fmt.Errorf("removing verify tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", s.authFailure(ctx, "verify_email", msgVerifyFailed, err)
	}

	s.log.Info(ctx, "email verified", "user_id", user.ID)
	return user.ID, nil
}

// Authenticate resolves an access token to its user. Any failure is
// AuthError("Please authenticate").
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.codec.Decode(accessToken, models.TokenTypeAccess)
	if err != nil {
		s.log.Info(ctx, "access token rejected", "reason", err.Error())
		return nil, common.NewAuthError(msgPleaseAuthenticate, err)
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Debug(ctx, "access token subject no longer exists", "user_id", claims.Subject)
		} else {
			s.log.Error(ctx, "resolving access token subject", "user_id", claims.Subject, "error", err)
		}
		return nil, common.NewAuthError(msgPleaseAuthenticate, err)
	}

	return user.Public(), nil
}

// PurgeExpiredTokens deletes persisted tokens that expired before the given
// time. Expired tokens are never redeemable, so this only reclaims space.
func (s *SessionService) PurgeExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.repomanager.Tokens(s.db).DeleteExpired(ctx, before)
	if err != nil {
		return 0, err
	}
	s.log.Info(ctx, "expired tokens purged", "count", n, "before", before)
	return n, nil
}
