package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"cvStudio/internal/auth"
	"cvStudio/internal/database"
)

const refreshTokenCookieName = "refresh_token"

var errRefreshRejected = errors.New("refresh token rejected")

// AuthHandler 处理注册、登录、刷新、退出与修改密码。
type AuthHandler struct {
	db           *gorm.DB
	authService  *auth.AuthService
	guard        *loginGuard
	revocations  *refreshRevocations
	logger       *slog.Logger
	cookieDomain string
}

// NewAuthHandler 构造认证处理器，限流参数非正时使用默认值。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, redisClient redis.UniversalClient, logger *slog.Logger, loginRateLimitPerHour int, loginLockThreshold int, loginLockTTL time.Duration, cookieDomain string) *AuthHandler {
	return &AuthHandler{
		db:           db,
		authService:  authService,
		guard:        newLoginGuard(redisClient, loginRateLimitPerHour, loginLockThreshold, loginLockTTL),
		revocations:  &refreshRevocations{rdb: redisClient, fallbackTTL: authService.RefreshTokenTTL()},
		logger:       logger,
		cookieDomain: strings.TrimSpace(cookieDomain),
	}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	UserID      uint   `json:"user_id"`
}

// Register POST /v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	username := normalizeUsername(req.Username)
	log := requestLogger(c, h.logger).With(slog.String("username", username))

	hashed, err := h.authService.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			BadRequest(c, err.Error())
			return
		}
		log.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	ctx := c.Request.Context()
	var count int64
	if err := h.db.WithContext(ctx).Model(&database.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		log.Error("register lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if count > 0 {
		Conflict(c, "username already taken")
		return
	}

	user := database.User{Username: username, PasswordHash: hashed}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		log.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	log.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusCreated, gin.H{"user_id": user.ID})
}

// Login POST /v1/auth/login，受每小时尝试次数与连续失败锁定保护。
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	username := normalizeUsername(req.Username)
	log := requestLogger(c, h.logger).With(slog.String("username", username))

	switch err := h.guard.admit(ctx, c.ClientIP(), username); {
	case errors.Is(err, errLoginRateLimited), errors.Is(err, errAccountLocked):
		Error(c, http.StatusTooManyRequests, err.Error())
		return
	case err != nil:
		// Redis 不可用时放行，登录本身不依赖计数器
		log.Warn("login guard unavailable", slog.Any("error", err))
	}

	var user database.User
	err := h.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err != nil || !h.authService.CheckPasswordHash(req.Password, user.PasswordHash) {
		log.Info("login failed")
		if err := h.guard.fail(ctx, username); err != nil {
			log.Warn("record login failure failed", slog.Any("error", err))
		}
		Unauthorized(c)
		return
	}

	if err := h.guard.succeed(ctx, username); err != nil {
		log.Warn("reset login failures failed", slog.Any("error", err))
	}
	h.issueTokens(c, log, user.ID)
}

// Refresh POST /v1/auth/refresh，旋转刷新令牌：旧令牌立即吊销。
func (h *AuthHandler) Refresh(c *gin.Context) {
	log := requestLogger(c, h.logger)
	claims, err := h.refreshClaims(c, log)
	if err != nil {
		h.rejectRefresh(c, err)
		return
	}

	ctx := c.Request.Context()
	var user database.User
	if err := h.db.WithContext(ctx).Select("id").First(&user, claims.UserID).Error; err != nil {
		log.Info("refresh user not found", slog.Uint64("user_id", uint64(claims.UserID)))
		Unauthorized(c)
		return
	}
	if err := h.revocations.revoke(ctx, claims); err != nil {
		log.Error("revoke rotated refresh token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.issueTokens(c, log, user.ID)
}

// Logout POST /v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	log := requestLogger(c, h.logger)
	claims, err := h.refreshClaims(c, log)
	if err != nil {
		h.rejectRefresh(c, err)
		return
	}
	if err := h.revocations.revoke(c.Request.Context(), claims); err != nil {
		log.Error("logout revoke token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.writeRefreshCookie(c, "", -1)
	c.Status(http.StatusOK)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// ChangePassword POST /v1/auth/password，成功后吊销当前刷新令牌并颁发新令牌。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		BadRequest(c, "password confirmation does not match")
		return
	}
	if req.NewPassword == req.CurrentPassword {
		BadRequest(c, "new password must be different from current password")
		return
	}

	ctx := c.Request.Context()
	log := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		log.Info("change password: user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}
	if !h.authService.CheckPasswordHash(req.CurrentPassword, user.PasswordHash) {
		log.Info("change password: current password mismatch")
		Unauthorized(c)
		return
	}

	hashed, err := h.authService.HashPassword(req.NewPassword)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			BadRequest(c, err.Error())
			return
		}
		log.Error("change password: hash failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).Model(&user).Update("password_hash", hashed).Error; err != nil {
		log.Error("change password: update failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if claims, err := h.refreshClaims(c, log); err == nil {
		if err := h.revocations.revoke(ctx, claims); err != nil {
			log.Error("change password: revoke refresh failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
	}
	h.issueTokens(c, log, user.ID)
}

// refreshClaims 从 Cookie 或请求体读取刷新令牌并校验类型、jti 与黑名单。
// 返回 errRefreshRejected 表示令牌无效，其余错误为系统错误。
func (h *AuthHandler) refreshClaims(c *gin.Context, log *slog.Logger) (*auth.TokenClaims, error) {
	token, _ := c.Cookie(refreshTokenCookieName)
	if token == "" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			token = body.RefreshToken
		}
	}
	if token == "" {
		return nil, errRefreshRejected
	}

	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		log.Info("refresh token invalid", slog.Any("error", err))
		return nil, errRefreshRejected
	}
	if claims.TokenType != auth.TokenTypeRefresh || claims.ID == "" {
		log.Info("refresh token malformed", slog.String("token_type", claims.TokenType))
		return nil, errRefreshRejected
	}

	revoked, err := h.revocations.revoked(c.Request.Context(), claims.ID)
	if err != nil {
		log.Error("refresh token blacklist lookup failed", slog.Any("error", err))
		return nil, err
	}
	if revoked {
		log.Info("refresh token revoked", slog.String("jti", claims.ID))
		return nil, errRefreshRejected
	}
	return claims, nil
}

func (h *AuthHandler) rejectRefresh(c *gin.Context, err error) {
	if errors.Is(err, errRefreshRejected) {
		Unauthorized(c)
		return
	}
	Internal(c, "internal error")
}

func (h *AuthHandler) issueTokens(c *gin.Context, log *slog.Logger, userID uint) {
	pair, err := h.authService.GenerateTokenPair(userID)
	if err != nil {
		log.Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.writeRefreshCookie(c, pair.RefreshToken, int(h.authService.RefreshTokenTTL().Seconds()))
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.authService.AccessTokenTTL().Seconds()),
		UserID:      userID,
	})
}

// writeRefreshCookie 写入 HttpOnly 刷新令牌 Cookie；maxAge < 0 表示删除。
func (h *AuthHandler) writeRefreshCookie(c *gin.Context, value string, maxAge int) {
	secure := c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
	cookie := &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    value,
		MaxAge:   maxAge,
		Path:     "/",
		Domain:   h.cookieDomain,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		cookie.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	}
	http.SetCookie(c.Writer, cookie)
}
