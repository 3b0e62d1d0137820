package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,max=72,password"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type passwordRequest struct {
	Password string `json:"password" binding:"required,max=72,password"`
}

type tokenQuery struct {
	Token string `form:"token" binding:"required"`
}

type createUserRequest struct {
	Name     string      `json:"name" binding:"required"`
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password" binding:"required,max=72,password"`
	Role     models.Role `json:"role" binding:"omitempty,oneof=user admin"`
}

type updateUserRequest struct {
	Name     *string      `json:"name" binding:"omitempty,min=1"`
	Email    *string      `json:"email" binding:"omitempty,email"`
	Password *string      `json:"password" binding:"omitempty,max=72,password"`
	Role     *models.Role `json:"role" binding:"omitempty,oneof=user admin"`
}

type pageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

type authResponse struct {
	User   *models.User      `json:"user"`
	Tokens *models.TokenPair `json:"tokens"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}

	user, pair, err := s.sessions.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, authResponse{User: user, Tokens: pair})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}

	ctx := c.Request.Context()

	user, err := s.sessions.Login(ctx, req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}

	pair, err := s.sessions.IssueSessionTokens(ctx, user)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, authResponse{User: user, Tokens: pair})
}

func (s *Server) logout(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}

	if err := s.sessions.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		s.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) refreshTokens(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}

	pair, err := s.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

func (s *Server) forgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}

	if err := s.sessions.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		s.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) resetPassword(c *gin.Context) {
	var q tokenQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.writeBindError(c, err)
		return
	}
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}

	if err := s.sessions.ResetPassword(c.Request.Context(), q.Token, req.Password); err != nil {
		s.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) sendVerificationEmail(c *gin.Context) {
	if err := s.sessions.SendVerificationEmail(c.Request.Context(), currentUser(c)); err != nil {
		s.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) verifyEmail(c *gin.Context) {
	var q tokenQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.writeBindError(c, err)
		return
	}

	userID, err := s.sessions.VerifyEmail(c.Request.Context(), q.Token)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.invalidate(c, userID)
	c.Status(http.StatusNoContent)
}

func (s *Server) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}

	user, err := s.users.Create(c.Request.Context(), services.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (s *Server) listUsers(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.writeBindError(c, err)
		return
	}

	page, err := s.users.Query(c.Request.Context(), q.Page, q.Limit)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// getUser serves a single user, answering from the cache when it can.
func (s *Server) getUser(c *gin.Context) {
	ctx := c.Request.Context()
	key := userCacheKey(c.Param("userId"))

	if body, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn(ctx, "cache read failed", "key", key, "error", err)
	} else if ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
		return
	}

	user, err := s.users.Get(ctx, c.Param("userId"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	body, err := json.Marshal(user)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.cache.Set(ctx, key, body, s.cacheTTL); err != nil {
		s.logger.Warn(ctx, "cache write failed", "key", key, "error", err)
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (s *Server) updateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}

	// self-service edits may not change the role
	if req.Role != nil && !currentUser(c).Role.HasRights(models.RightManageUsers) {
		s.writeError(c, common.Forbidden())
		return
	}

	user, err := s.users.Update(c.Request.Context(), c.Param("userId"), services.UserPatch{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.invalidate(c, c.Param("userId"))
	c.JSON(http.StatusOK, user)
}

func (s *Server) deleteUser(c *gin.Context) {
	if err := s.users.Delete(c.Request.Context(), c.Param("userId")); err != nil {
		s.writeError(c, err)
		return
	}

	s.invalidate(c, c.Param("userId"))
	c.Status(http.StatusNoContent)
}

// userCacheKey is the cache key of GET /v1/users/:userId.
func userCacheKey(userID string) string {
	return "cache:/v1/users/" + userID
}

// invalidate drops the cached representation of a user whose row changed.
func (s *Server) invalidate(c *gin.Context, userID string) {
	ctx := c.Request.Context()
	key := userCacheKey(userID)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn(ctx, "cache invalidation failed", "key", key, "error", err)
	}
}
