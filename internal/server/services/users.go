package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/passwords"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// CreateUserInput carries the fields of a new account. An empty Role means
// models.RoleUser.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

// UserPatch lists the fields to change; nil fields are left alone.
type UserPatch struct {
	Name     *string
	Email    *string
	Password *string
	Role     *models.Role
}

// UserPage is one page of a user listing.
type UserPage struct {
	Results      []*models.User `json:"results"`
	Page         int            `json:"page"`
	Limit        int            `json:"limit"`
	TotalPages   int            `json:"totalPages"`
	TotalResults int            `json:"totalResults"`
}

// UserService manages user accounts. Returned users never carry the
// password hash.
type UserService struct {
	db          dbx.TxDB
	repomanager repomanager.RepositoryManager
	hasher      passwords.Hasher
	log         logging.Logger
}

// NewUserService constructs a UserService using repositories and a hasher.
func NewUserService(db dbx.TxDB, m repomanager.RepositoryManager, hasher passwords.Hasher, log logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		log:         log.With("module", "users"),
	}
}

// Create stores a new user. A taken email fails with ErrorEmailTaken, both
// when seen up front and when a concurrent insert wins the unique index.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.Valid() {
		return nil, common.Invalid(fmt.Sprintf("unknown role %q", in.Role))
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)

	taken, err := repo.EmailTaken(ctx, in.Email, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, common.EmailTaken()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user, err := repo.Create(ctx, &models.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
	})
	if err != nil {
		if errors.Is(err, common.ErrorEmailTaken) {
			return nil, common.EmailTaken()
		}
		return nil, err
	}

	s.log.Info(ctx, "user created", "user_id", user.ID, "role", user.Role)
	return user.Public(), nil
}

// Get returns the user with the given id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, userNotFound(err)
	}
	return user.Public(), nil
}

// Query lists users newest first. Non-positive page or limit fall back to
// 1 and 10.
func (s *UserService) Query(ctx context.Context, page, limit int) (*UserPage, error) {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}

	repo := s.repomanager.Users(s.db)

	list, err := repo.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	total, err := repo.Count(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*models.User, 0, len(list))
	for _, u := range list {
		results = append(results, u.Public())
	}

	return &UserPage{
		Results:      results,
		Page:         page,
		Limit:        limit,
		TotalPages:   (total + limit - 1) / limit,
		TotalResults: total,
	}, nil
}

// Update applies patch to the user in one transaction. A new email must not
// belong to another user; a new password is re-hashed.
func (s *UserService) Update(ctx context.Context, id string, patch UserPatch) (*models.User, error) {
	if patch.Role != nil && !patch.Role.Valid() {
		return nil, common.Invalid(fmt.Sprintf("unknown role %q", *patch.Role))
	}

	var hash string
	if patch.Password != nil {
		if err := validatePassword(*patch.Password); err != nil {
			return nil, err
		}
		h, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		hash = h
	}

	var updated *models.User
	err := s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		user, err := repo.GetByID(ctx, id)
		if err != nil {
			return userNotFound(err)
		}

		if patch.Email != nil && *patch.Email != user.Email {
			taken, err := repo.EmailTaken(ctx, *patch.Email, user.ID)
			if err != nil {
				return err
			}
			if taken {
				return common.EmailTaken()
			}
			user.Email = *patch.Email
		}
		if patch.Name != nil {
			user.Name = *patch.Name
		}
		if patch.Role != nil {
			user.Role = *patch.Role
		}

		if updated, err = repo.Update(ctx, user); err != nil {
			if errors.Is(err, common.ErrorEmailTaken) {
				return common.EmailTaken()
			}
			return userNotFound(err)
		}

		if hash != "" {
			if err := repo.SetPassword(ctx, user.ID, hash); err != nil {
				return userNotFound(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user updated", "user_id", id)
	return updated.Public(), nil
}

// Delete removes the user and, through the store, all of its tokens.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.repomanager.Users(s.db).Delete(ctx, id); err != nil {
		return userNotFound(err)
	}
	s.log.Info(ctx, "user deleted", "user_id", id)
	return nil
}

func userNotFound(err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.NotFound("User not found")
	}
	return err
}

// validatePassword rejects passwords no hasher can take. Strength rules
// belong to the transports.
func validatePassword(p string) error {
	if err := passwords.CheckLength(p); err != nil {
		return common.Invalid(err.Error())
	}
	return nil
}
