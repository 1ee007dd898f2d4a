package security_test

import (
	"testing"

	"github.com/outflowhq/outflow-backend/pkg/config"
	"github.com/outflowhq/outflow-backend/pkg/security"
)

func TestHashAndVerifyToken(t *testing.T) {
	cfg := config.AdminAuthConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}

	hash, err := security.HashToken("ops-trigger-token", cfg)
	if err != nil {
		t.Fatalf("HashToken returned error: %v", err)
	}
	if hash == "" {
		t.Fatal("HashToken returned empty string")
	}

	ok, err := security.VerifyToken("ops-trigger-token", hash)
	if err != nil {
		t.Fatalf("VerifyToken returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyToken failed for the correct token")
	}

	ok, err = security.VerifyToken("bogus-token", hash)
	if err != nil {
		t.Fatalf("VerifyToken returned error for invalid token: %v", err)
	}
	if ok {
		t.Fatal("VerifyToken returned true for incorrect token")
	}
}

func TestVerifyTokenBadHash(t *testing.T) {
	if _, err := security.VerifyToken("irrelevant", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestGenerateToken(t *testing.T) {
	token, err := security.GenerateToken(32)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if len(token) != 32 {
		t.Fatalf("expected 32 chars, got %d", len(token))
	}
}
