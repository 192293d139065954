package main

import (
	"testing"
	"time"

	"cvStudio/internal/auth"
)

func TestExtendPremium(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := extendPremium(nil, now, 30); !got.Equal(now.Add(30 * 24 * time.Hour)) {
		t.Fatalf("expected start from now, got %v", got)
	}

	expired := now.Add(-48 * time.Hour)
	if got := extendPremium(&expired, now, 1); !got.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("expired membership should restart from now, got %v", got)
	}

	active := now.Add(10 * 24 * time.Hour)
	if got := extendPremium(&active, now, 5); !got.Equal(active.Add(5 * 24 * time.Hour)) {
		t.Fatalf("active membership should be extended, got %v", got)
	}
}

func TestGenerateRandomPassword(t *testing.T) {
	a, err := generateRandomPassword(24)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := generateRandomPassword(24)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a == b || len(a) != 32 {
		t.Fatalf("unexpected passwords %q %q", a, b)
	}
	if err := auth.ValidatePassword(a); err != nil {
		t.Fatalf("generated password violates policy: %v", err)
	}
}
