package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt 只使用前 72 字节，超出部分直接拒绝而不是静默截断。
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

var ErrWeakPassword = errors.New("password does not meet policy")

// ValidatePassword 要求长度在 [8, 72] 字节之间，且同时包含字母与数字。
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return fmt.Errorf("%w: length must be between %d and %d bytes", ErrWeakPassword, MinPasswordLength, MaxPasswordLength)
	}
	if strings.TrimSpace(password) != password {
		return fmt.Errorf("%w: leading or trailing spaces", ErrWeakPassword)
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("%w: must contain letters and digits", ErrWeakPassword)
	}
	return nil
}

// HashPassword 校验策略后生成 bcrypt 哈希。
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPasswordHash 校验密码是否匹配哈希；空哈希（未设置密码）永远不匹配。
func CheckPasswordHash(password, hash string) bool {
	if hash == "" || len(password) > MaxPasswordLength {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
