package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"braille-voice/internal/domain"
	"braille-voice/internal/repository"
	"braille-voice/internal/service"
	"braille-voice/internal/storage"
)

const (
	contextUserKey  = "auth.user"
	contextTokenKey = "auth.token"
)

// UploadConfig bounds and places authenticated image uploads.
type UploadConfig struct {
	Bucket    string
	KeyPrefix string
	MaxBytes  int64
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	auth    service.AuthService
	storage storage.Service
	upload  UploadConfig
	logger  *logrus.Logger
}

func NewHandler(auth service.AuthService, store storage.Service, upload UploadConfig, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	if upload.MaxBytes <= 0 {
		upload.MaxBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		auth:    auth,
		storage: store,
		upload:  upload,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.POST("/logout", h.requireAuth(), h.logout)
		auth.GET("/me", h.requireAuth(), h.me)
		auth.GET("/check", h.check)

		api.POST("/upload", h.requireAuth(), h.uploadImage)
		api.GET("/uploads", h.requireAuth(), h.listUploads)
		api.DELETE("/uploads/:id", h.requireAuth(), h.deleteUpload)

		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, WWW-Authenticate")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UserResponse struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	CreatedAt string  `json:"created_at"`
	LastLogin *string `json:"last_login,omitempty"`
}

type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   string       `json:"expires_at"`
	User        UserResponse `json:"user"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.auth.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenToResponse(result))
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenToResponse(result))
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.auth.Revoke(c.Request.Context(), c.GetString(contextTokenKey)); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, userToResponse(currentUser(c)))
}

// check never rejects; it reports whether the presented token is live.
func (h *Handler) check(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	user, err := h.auth.Validate(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrStorage) {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": userToResponse(user)})
}

func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			h.writeError(c, service.ErrUnauthenticated)
			c.Abort()
			return
		}

		user, err := h.auth.Validate(c.Request.Context(), token)
		if err != nil {
			h.writeError(c, err)
			c.Abort()
			return
		}

		c.Set(contextUserKey, user)
		c.Set(contextTokenKey, token)
		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrStorage):
		h.logger.WithField("path", c.FullPath()).Errorf("storage failure: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrDuplicateUsername):
		c.JSON(http.StatusConflict, gin.H{"error": "Username already registered"})
	case errors.Is(err, repository.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		h.logger.WithField("path", c.FullPath()).Debug("login rejected")
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect username or password"})
	case errors.Is(err, service.ErrUnauthenticated):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
	default:
		h.logger.WithField("path", c.FullPath()).Errorf("unhandled error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func tokenToResponse(result *service.AuthResult) TokenResponse {
	return TokenResponse{
		AccessToken: result.Token,
		TokenType:   result.TokenType,
		ExpiresAt:   result.ExpiresAt.UTC().Format(time.RFC3339),
		User:        userToResponse(result.User),
	}
}

func userToResponse(user *domain.User) UserResponse {
	if user == nil {
		return UserResponse{}
	}
	resp := UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if user.LastLogin != nil {
		v := user.LastLogin.UTC().Format(time.RFC3339)
		resp.LastLogin = &v
	}
	return resp
}
