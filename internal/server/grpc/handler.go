package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/passwords"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {

	s.logger.Info(ctx, "Registration request")

	if err := passwords.CheckStrength(req.Password); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	user, pair, err := s.sessions.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return nil, s.statusError(ctx, err)
	}

	s.logger.Info(ctx, "Registered", "user_id", user.ID)
	return &AuthResponse{User: user, Tokens: pair}, nil

}

func (s *GRPCServer) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {

	user, err := s.sessions.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.statusError(ctx, err)
	}

	pair, err := s.sessions.IssueSessionTokens(ctx, user)
	if err != nil {
		return nil, s.statusError(ctx, err)
	}

	return &AuthResponse{User: user, Tokens: pair}, nil

}

func (s *GRPCServer) Refresh(ctx context.Context, req *RefreshRequest) (*models.TokenPair, error) {

	pair, err := s.sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.statusError(ctx, err)
	}

	return pair, nil

}

func (s *GRPCServer) Logout(ctx context.Context, req *LogoutRequest) (*LogoutResponse, error) {

	if err := s.sessions.Logout(ctx, req.RefreshToken); err != nil {
		return nil, s.statusError(ctx, err)
	}

	return &LogoutResponse{}, nil

}

func (s *GRPCServer) Me(ctx context.Context, _ *MeRequest) (*MeResponse, error) {

	user, ok := UserFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "Please authenticate")
	}

	return &MeResponse{User: user}, nil

}

// statusError maps service errors onto gRPC codes. Internal failures are
// logged and reported without detail.
func (s *GRPCServer) statusError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrorEmailTaken):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		s.logger.Error(ctx, err.Error())
		return status.Error(codes.Internal, "internal error")
	}
}
