package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"user-auth-service/internal/auth"
	userdomain "user-auth-service/internal/user/domain"
)

type handler struct {
	svc         *auth.Service
	serviceName string
}

type registerRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type userResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName,omitempty"`
	LastName    string     `json:"lastName,omitempty"`
	UserType    string     `json:"userType"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

type tokenResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	User         *userResponse `json:"user"`
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": h.serviceName,
	})
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username, email, and password are required")
		return
	}
	res := h.svc.Register(c.Request.Context(), auth.Registration{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		UserType:  userdomain.UserTypeEndUser,
	})
	if !res.Success {
		respondAuthError(c, res)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": toUserResponse(res.User)})
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "identifier and password are required")
		return
	}
	client := auth.ClientInfo{
		IPAddress:  c.ClientIP(),
		DeviceInfo: c.Request.UserAgent(),
	}
	res := h.svc.Login(c.Request.Context(), req.Identifier, req.Password, req.RememberMe, client)
	if !res.Success {
		respondAuthError(c, res)
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(res))
}

func (h *handler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refreshToken is required")
		return
	}
	res := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if !res.Success {
		respondAuthError(c, res)
		return
	}
	c.JSON(http.StatusOK, toTokenResponse(res))
}

func (h *handler) logout(c *gin.Context) {
	if !h.svc.Logout(c.Request.Context(), callerID(c)) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "logout failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loggedOut": true})
}

func (h *handler) me(c *gin.Context) {
	user, err := h.svc.GetUserByID(c.Request.Context(), callerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "lookup failed",
		})
		return
	}
	if user == nil {
		unauthorized(c, "account no longer exists")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(user)})
}

// respondAuthError maps workflow sentinel errors to HTTP status codes. Detail
// beyond Result.Message is never exposed.
func respondAuthError(c *gin.Context, res *auth.Result) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	switch {
	case errors.Is(res.Err, auth.ErrInvalidCredentials),
		errors.Is(res.Err, auth.ErrAccountUnavailable),
		errors.Is(res.Err, auth.ErrInvalidRefreshToken):
		status = http.StatusUnauthorized
		code = "UNAUTHORIZED"
	case errors.Is(res.Err, auth.ErrDuplicateIdentity):
		status = http.StatusConflict
		code = "DUPLICATE_IDENTITY"
	case errors.Is(res.Err, auth.ErrRegistrationRejected):
		status = http.StatusBadRequest
		code = "INVALID_INPUT"
	case errors.Is(res.Err, auth.ErrTooManyAttempts):
		status = http.StatusTooManyRequests
		code = "RATE_LIMITED"
	}
	c.JSON(status, gin.H{"code": code, "message": res.Message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    "INVALID_INPUT",
		"message": message,
	})
}

func toUserResponse(u *userdomain.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		UserType:    string(u.UserType),
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

func toTokenResponse(res *auth.Result) *tokenResponse {
	return &tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt,
		User:         toUserResponse(res.User),
	}
}
