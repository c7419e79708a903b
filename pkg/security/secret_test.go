package security

import (
	"strings"
	"testing"
)

func TestCompareSecret(t *testing.T) {
	if !CompareSecret("hunter2", "hunter2") {
		t.Fatal("expected matching secrets to compare equal")
	}
	if CompareSecret("hunter2", "hunter3") {
		t.Fatal("expected mismatched secrets to compare unequal")
	}
	if CompareSecret("hunter2", "hunter2-with-longer-suffix") {
		t.Fatal("expected length difference to compare unequal")
	}
	if CompareSecret("anything", "") {
		t.Fatal("empty expected secret must never match")
	}
}

func TestHashAndVerifySecret(t *testing.T) {
	encoded, err := HashSecret("topsecret")
	if err != nil {
		t.Fatalf("HashSecret returned error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$") {
		t.Fatalf("unexpected hash format %q", encoded)
	}

	ok, err := VerifySecretHash("topsecret", encoded)
	if err != nil {
		t.Fatalf("VerifySecretHash returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected matching secret to verify")
	}

	ok, err = VerifySecretHash("wrong", encoded)
	if err != nil {
		t.Fatalf("VerifySecretHash returned error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong secret to fail verification")
	}
}

func TestVerifySecretHashRejectsMalformed(t *testing.T) {
	if _, err := VerifySecretHash("x", "not-a-hash"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
	if _, err := VerifySecretHash("x", "$argon2i$v=19$m=1,t=1,p=1$a$b"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash for wrong variant, got %v", err)
	}
}

func TestHashSecretRejectsEmpty(t *testing.T) {
	if _, err := HashSecret(""); err == nil {
		t.Fatal("expected empty secret to be rejected")
	}
}
