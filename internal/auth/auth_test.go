package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

const testSecret = "test-secret-with-enough-length"

func TestJWT_IssueAndVerify(t *testing.T) {
	issuer := NewJWTIssuer(testSecret, "pixora", time.Hour)
	verifier := NewJWTVerifier(testSecret, "pixora")

	token, err := issuer.Issue("user-1", "a@example.com")
	require.NoError(t, err)

	identity, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.Subject)
	assert.Equal(t, "a@example.com", identity.Email)

	again, err := issuer.Issue("user-1", "a@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, token, again)
}

func TestJWT_Rejections(t *testing.T) {
	good := NewJWTIssuer(testSecret, "pixora", time.Hour)

	expiredIssuer := NewJWTIssuer(testSecret, "pixora", time.Hour)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	tests := []struct {
		name     string
		issue    func() string
		verifier *JWTVerifier
		want     error
	}{
		{
			name:     "wrong secret",
			issue:    func() string { tok, _ := good.Issue("u", ""); return tok },
			verifier: NewJWTVerifier("other-secret-of-similar-length", ""),
			want:     ErrInvalidToken,
		},
		{
			name:     "wrong issuer",
			issue:    func() string { tok, _ := good.Issue("u", ""); return tok },
			verifier: NewJWTVerifier(testSecret, "someone-else"),
			want:     ErrInvalidToken,
		},
		{
			name:     "expired",
			issue:    func() string { tok, _ := expiredIssuer.Issue("u", ""); return tok },
			verifier: NewJWTVerifier(testSecret, ""),
			want:     ErrExpiredToken,
		},
		{
			name:     "empty subject",
			issue:    func() string { tok, _ := good.Issue("", ""); return tok },
			verifier: NewJWTVerifier(testSecret, ""),
			want:     ErrInvalidToken,
		},
		{
			name:     "garbage",
			issue:    func() string { return "not-a-jwt" },
			verifier: NewJWTVerifier(testSecret, ""),
			want:     ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.verifier.Verify(context.Background(), tt.issue())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("token-a")

	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Fingerprint("token-a"))
	assert.NotEqual(t, fp, Fingerprint("token-b"))
}

func TestGoogleVerifier(t *testing.T) {
	v := NewGoogleVerifier([]string{"web-client", "ios-client"})
	v.validate = func(_ context.Context, token, audience string) (*idtoken.Payload, error) {
		if token != "valid" || audience != "ios-client" {
			return nil, errors.New("audience mismatch")
		}
		return &idtoken.Payload{
			Subject: "google-sub",
			Claims: map[string]interface{}{
				"email":   "g@example.com",
				"name":    "Gee",
				"picture": "https://lh3/p.png",
			},
		}, nil
	}

	identity, err := v.Verify(context.Background(), "valid")
	require.NoError(t, err)
	assert.Equal(t, &Identity{Subject: "google-sub", Email: "g@example.com", Name: "Gee", Picture: "https://lh3/p.png"}, identity)

	_, err = v.Verify(context.Background(), "forged")
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.True(t, v.IsConfigured())
	assert.False(t, NewGoogleVerifier(nil).IsConfigured())
}
