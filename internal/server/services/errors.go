package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// Public messages of the collapsed authentication failures.
const (
	msgPleaseAuthenticate = "Please authenticate"
	msgIncorrectLogin     = "Incorrect email or password"
	msgResetFailed        = "Password reset failed"
	msgVerifyFailed       = "Email verification failed"
)

// Internal failure causes. They are only ever seen through AuthError.Cause.
var (
	errTokenRevoked   = errors.New("token is blacklisted")
	errTokenMismatch  = errors.New("stored token does not match its claims")
	errBadCredentials = errors.New("password does not match")
)

// authFailure is the single point where a flow's internal error becomes the
// flow's caller-visible AuthError. Expected rejections are logged at info,
// anything else (store outages, signing failures) at error.
func (s *SessionService) authFailure(ctx context.Context, flow, message string, cause error) error {
	if isRejection(cause) {
		s.log.Info(ctx, "authentication rejected", "flow", flow, "reason", cause.Error())
	} else {
		s.log.Error(ctx, "authentication flow failed", "flow", flow, "error", cause)
	}
	return common.NewAuthError(message, cause)
}

func isRejection(err error) bool {
	for _, target := range []error{
		common.ErrInvalidToken,
		common.ErrorNotFound,
		errTokenRevoked,
		errTokenMismatch,
		errBadCredentials,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
