package api

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestLoginKeys(t *testing.T) {
	at := time.Date(2026, 5, 4, 13, 59, 0, 0, time.FixedZone("CEST", 2*3600))

	assert.Equal(t, "cvstudio:login:rate:10.0.0.1:ann:2026050411", loginRateKey("10.0.0.1", " Ann ", at))
	assert.Equal(t, "cvstudio:login:fail:ann", loginFailKey("ANN"))
	assert.Equal(t, "cvstudio:login:lock:ann", loginLockKey("ann"))
	assert.Equal(t, "cvstudio:auth:refresh:revoked:abc", refreshRevocationKey("abc"))
}

func TestNewLoginGuardDefaults(t *testing.T) {
	g := newLoginGuard(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), 0, -1, 0)

	assert.Equal(t, 10, g.perHour)
	assert.Equal(t, 5, g.threshold)
	assert.Equal(t, 15*time.Minute, g.lockTTL)
}
