package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignVerify(t *testing.T) {
	j := New("s3cret")
	tok, err := j.Sign("u-42", time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	uid, err := j.Verify(tok)
	if err != nil || uid != "u-42" {
		t.Fatalf("Verify = %q, %v", uid, err)
	}
}

func TestVerifyRejects(t *testing.T) {
	j := New("s3cret")

	other, _ := New("other").Sign("u-1", time.Minute)
	if _, err := j.Verify(other); err == nil {
		t.Error("foreign signature accepted")
	}

	expired, _ := j.Sign("u-1", -time.Minute)
	if _, err := j.Verify(expired); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("expired err = %v", err)
	}

	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("s3cret"))
	if _, err := j.Verify(noSub); !errors.Is(err, ErrNoSubject) {
		t.Errorf("no sub err = %v", err)
	}

	if _, err := j.Verify("garbage"); err == nil {
		t.Error("garbage accepted")
	}
	if _, err := j.Sign("", time.Minute); !errors.Is(err, ErrNoSubject) {
		t.Errorf("empty uid err = %v", err)
	}
}
