package auth

import (
	"context"

	"google.golang.org/api/idtoken"
)

// GoogleVerifier handles Google ID token verification
type GoogleVerifier struct {
	clientIDs []string
	validate  func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogleVerifier creates a new Google ID token verifier
func NewGoogleVerifier(clientIDs []string) *GoogleVerifier {
	return &GoogleVerifier{
		clientIDs: clientIDs,
		validate:  idtoken.Validate,
	}
}

// Verify checks the token against each configured client ID
func (v *GoogleVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	var payload *idtoken.Payload
	for _, clientID := range v.clientIDs {
		p, err := v.validate(ctx, token, clientID)
		if err == nil {
			payload = p
			break
		}
	}

	if payload == nil || payload.Subject == "" {
		return nil, ErrInvalidToken
	}

	identity := &Identity{Subject: payload.Subject}
	if email, ok := payload.Claims["email"].(string); ok {
		identity.Email = email
	}
	if name, ok := payload.Claims["name"].(string); ok {
		identity.Name = name
	}
	if picture, ok := payload.Claims["picture"].(string); ok {
		identity.Picture = picture
	}

	return identity, nil
}

// IsConfigured returns true if at least one client ID is set
func (v *GoogleVerifier) IsConfigured() bool {
	return len(v.clientIDs) > 0 && v.clientIDs[0] != ""
}
