package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cvStudio/internal/auth"
)

var (
	errLoginRateLimited = errors.New("login rate limit exceeded")
	errAccountLocked    = errors.New("account temporarily locked")
)

// loginGuard 基于 Redis 计数器做登录限流与失败锁定：
//
//	cvstudio:login:rate:{ip}:{user}:{yyyymmddhh}  每小时尝试次数
//	cvstudio:login:fail:{user}                    连续失败次数
//	cvstudio:login:lock:{user}                    锁定标记
type loginGuard struct {
	rdb       redis.UniversalClient
	perHour   int
	threshold int
	lockTTL   time.Duration
	now       func() time.Time
}

func newLoginGuard(rdb redis.UniversalClient, perHour, threshold int, lockTTL time.Duration) *loginGuard {
	if perHour <= 0 {
		perHour = 10
	}
	if threshold <= 0 {
		threshold = 5
	}
	if lockTTL <= 0 {
		lockTTL = 15 * time.Minute
	}
	return &loginGuard{rdb: rdb, perHour: perHour, threshold: threshold, lockTTL: lockTTL, now: time.Now}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func loginRateKey(ip, username string, at time.Time) string {
	return fmt.Sprintf("cvstudio:login:rate:%s:%s:%s", ip, normalizeUsername(username), at.UTC().Format("2006010215"))
}

func loginFailKey(username string) string {
	return "cvstudio:login:fail:" + normalizeUsername(username)
}

func loginLockKey(username string) string {
	return "cvstudio:login:lock:" + normalizeUsername(username)
}

// incrWindow 在同一事务中自增并为新键设置过期时间。
func (g *loginGuard) incrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := g.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// admit 在校验口令之前调用。Redis 故障时返回原始错误，由调用方决定放行。
func (g *loginGuard) admit(ctx context.Context, ip, username string) error {
	count, err := g.incrWindow(ctx, loginRateKey(ip, username, g.now()), time.Hour)
	if err != nil {
		return fmt.Errorf("login rate counter: %w", err)
	}
	if count > int64(g.perHour) {
		return errLoginRateLimited
	}

	locked, err := g.rdb.Exists(ctx, loginLockKey(username)).Result()
	if err != nil {
		return fmt.Errorf("login lock lookup: %w", err)
	}
	if locked > 0 {
		return errAccountLocked
	}
	return nil
}

// fail 记录一次失败；达到阈值后锁定账号并重置计数。
func (g *loginGuard) fail(ctx context.Context, username string) error {
	count, err := g.incrWindow(ctx, loginFailKey(username), g.lockTTL)
	if err != nil {
		return fmt.Errorf("login fail counter: %w", err)
	}
	if count < int64(g.threshold) {
		return nil
	}
	_, err = g.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, loginLockKey(username), "1", g.lockTTL)
		pipe.Del(ctx, loginFailKey(username))
		return nil
	})
	return err
}

func (g *loginGuard) succeed(ctx context.Context, username string) error {
	return g.rdb.Del(ctx, loginFailKey(username)).Err()
}

// refreshRevocations 是已吊销刷新令牌（按 jti）的黑名单，条目随令牌过期。
type refreshRevocations struct {
	rdb         redis.UniversalClient
	fallbackTTL time.Duration
}

func refreshRevocationKey(jti string) string {
	return "cvstudio:auth:refresh:revoked:" + jti
}

func (r *refreshRevocations) revoke(ctx context.Context, claims *auth.TokenClaims) error {
	ttl := r.fallbackTTL
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.rdb.Set(ctx, refreshRevocationKey(claims.ID), "revoked", ttl).Err()
}

func (r *refreshRevocations) revoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, refreshRevocationKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
