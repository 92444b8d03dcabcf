// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xybot/xyweb/internal/auth"
	"github.com/xybot/xyweb/pkg/errutil"
)

type errorResponse struct {
	Error string `json:"error"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Username  string    `json:"username"`
	Role      auth.Role `json:"role"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type logoutRequest struct {
	Token string `json:"token"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type verifyResponse struct {
	Valid    bool      `json:"valid"`
	Username string    `json:"username,omitempty"`
	Role     auth.Role `json:"role,omitempty"`
}

type identityResponse struct {
	Username string    `json:"username"`
	Role     auth.Role `json:"role"`
}

type changePasswordRequest struct {
	Username    string `json:"username"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type addUserRequest struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
}

type userResponse struct {
	Username  string     `json:"username"`
	Role      auth.Role  `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// writeError maps an authority error to a status code and aborts.
func (s *Server) writeError(c *gin.Context, err error) {
	status, msg := classify(err)
	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError {
		errutil.LogError(ctx, s.logger, "request failed", err, "route", c.FullPath())
	} else {
		s.logger.DebugContext(ctx, "request refused", append([]any{"route", c.FullPath()}, errutil.Attrs(err)...)...)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid username or password"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid or expired token"
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, auth.ErrUserAlreadyExists):
		return http.StatusConflict, "user already exists"
	case errors.Is(err, auth.ErrLastAdminProtected):
		return http.StatusConflict, "cannot delete the last administrator"
	case errors.Is(err, auth.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "credential store unavailable"
	}
	return http.StatusInternalServerError, "internal server error"
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.authority.Ping(c.Request.Context()); err != nil {
		s.logger.WarnContext(c.Request.Context(), "health check failed", errutil.Attrs(err)...)
		c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "username and password are required"})
		return
	}

	session, err := s.authority.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{
		Username:  session.Username,
		Role:      session.Role,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UTC(),
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	var req logoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
			return
		}
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		token = bearerToken(c)
	}
	if token == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "token is required"})
		return
	}

	revoked, err := s.authority.RevokeToken(c.Request.Context(), token)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: revoked})
}

func (s *Server) handleVerify(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, verifyResponse{Valid: false})
		return
	}
	identity, err := s.authority.ValidateToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			c.JSON(http.StatusUnauthorized, verifyResponse{Valid: false})
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, verifyResponse{Valid: true, Username: identity.Username, Role: identity.Role})
}

func (s *Server) handleMe(c *gin.Context) {
	id := identityFrom(c)
	c.JSON(http.StatusOK, identityResponse{Username: id.Username, Role: id.Role})
}

func (s *Server) handleChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.OldPassword == "" || req.NewPassword == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "username, oldPassword and newPassword are required"})
		return
	}
	if id := identityFrom(c); id.Username != req.Username && !id.IsAdmin() {
		c.JSON(http.StatusForbidden, errorResponse{Error: "cannot change another user's password"})
		return
	}

	err := s.authority.ChangePassword(c.Request.Context(), req.Username, req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, successResponse{Success: true})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserNotFound):
		s.logger.DebugContext(c.Request.Context(), "password change refused", errutil.Attrs(err)...)
		c.JSON(http.StatusBadRequest, errorResponse{Error: "password change failed, check the username and current password"})
	default:
		s.writeError(c, err)
	}
}

func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.authority.ListUsers(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse{
			Username:  u.Username,
			Role:      u.Role,
			CreatedAt: u.CreatedAt.UTC(),
			UpdatedAt: u.UpdatedAt,
		})
	}
	slices.SortFunc(out, func(a, b userResponse) int { return strings.Compare(a.Username, b.Username) })
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAddUser(c *gin.Context) {
	var req addUserRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "username and password are required"})
		return
	}
	role := req.Role
	if role == "" {
		role = auth.RoleUser
	}
	if err := s.authority.AddUser(c.Request.Context(), req.Username, req.Password, role); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, identityResponse{Username: req.Username, Role: role})
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	if err := s.authority.DeleteUser(c.Request.Context(), c.Param("username")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true})
}
