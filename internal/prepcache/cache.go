package prepcache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Key 标识一条缓存：某用户某文档某语言下的准备内容。
type Key struct {
	UserID     uint
	DocumentID uint
	Language   string
}

func (k Key) field() string {
	return fmt.Sprintf("%d:%s", k.DocumentID, normalizeLanguage(k.Language))
}

func userHash(userID uint) string {
	return fmt.Sprintf("prep_cache:%d", userID)
}

func normalizeLanguage(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

// ErrInvalidKey 表示缺少文档或语言。
var ErrInvalidKey = errors.New("prep cache key requires document and language")

// Cache 是显式的准备内容缓存：每个用户一个 Redis hash，没有 TTL，
// 只在个人资料变化或文档删除时被清除。
type Cache struct {
	rdb redis.Cmdable
}

// New 构造 Cache。
func New(rdb redis.Cmdable) *Cache {
	return &Cache{rdb: rdb}
}

func validate(k Key) error {
	if k.DocumentID == 0 || normalizeLanguage(k.Language) == "" {
		return ErrInvalidKey
	}
	return nil
}

// Get 返回缓存值；不存在时 ok 为 false。
func (c *Cache) Get(ctx context.Context, k Key) (string, bool, error) {
	if err := validate(k); err != nil {
		return "", false, err
	}
	v, err := c.rdb.HGet(ctx, userHash(k.UserID), k.field()).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("prep cache get: %w", err)
	}
	return v, true, nil
}

// Put 写入或覆盖缓存值。
func (c *Cache) Put(ctx context.Context, k Key, value string) error {
	if err := validate(k); err != nil {
		return err
	}
	if err := c.rdb.HSet(ctx, userHash(k.UserID), k.field(), value).Err(); err != nil {
		return fmt.Errorf("prep cache put: %w", err)
	}
	return nil
}

// Clear 清除用户的全部缓存。
func (c *Cache) Clear(ctx context.Context, userID uint) error {
	if err := c.rdb.Del(ctx, userHash(userID)).Err(); err != nil {
		return fmt.Errorf("prep cache clear: %w", err)
	}
	return nil
}

// ClearDocument 清除某文档所有语言的缓存。
func (c *Cache) ClearDocument(ctx context.Context, userID, documentID uint) error {
	hash := userHash(userID)
	pattern := fmt.Sprintf("%d:*", documentID)

	var cursor uint64
	for {
		fields, next, err := c.rdb.HScan(ctx, hash, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("prep cache scan: %w", err)
		}
		// HSCAN 返回 field/value 交替的切片
		keys := make([]string, 0, len(fields)/2)
		for i := 0; i < len(fields); i += 2 {
			keys = append(keys, fields[i])
		}
		if len(keys) > 0 {
			if err := c.rdb.HDel(ctx, hash, keys...).Err(); err != nil {
				return fmt.Errorf("prep cache clear document: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
