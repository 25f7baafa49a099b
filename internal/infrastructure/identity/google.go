package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/api/idtoken"

	"github.com/you/phoneauth/domain"
)

// payloadValidator is satisfied by *idtoken.Validator
type payloadValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// GoogleVerifier implements domain.IdentityVerifier for Google ID tokens
type GoogleVerifier struct {
	validator payloadValidator
	clientID  string
	timeout   time.Duration
}

// DefaultVerifyTimeout bounds a token validation, certificate fetch included
const DefaultVerifyTimeout = 5 * time.Second

// NewGoogleVerifier creates a verifier bound to the OAuth client id
func NewGoogleVerifier(ctx context.Context, clientID string, timeout time.Duration) (*GoogleVerifier, error) {
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, err
	}
	return newGoogleVerifier(v, clientID, timeout), nil
}

func newGoogleVerifier(v payloadValidator, clientID string, timeout time.Duration) *GoogleVerifier {
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	return &GoogleVerifier{validator: v, clientID: clientID, timeout: timeout}
}

// VerifyIdentityToken implements domain.IdentityVerifier
func (g *GoogleVerifier) VerifyIdentityToken(ctx context.Context, token string) (*domain.FederatedIdentity, error) {
	if strings.TrimSpace(token) == "" || g.clientID == "" {
		return nil, domain.ErrIdentityTokenInvalid
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	payload, err := g.validator.Validate(ctx, token, g.clientID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.Wrap(domain.ErrServiceUnavailable, err)
		}
		return nil, domain.Wrap(domain.ErrIdentityTokenInvalid, err)
	}
	return identityFromPayload(payload)
}

func identityFromPayload(p *idtoken.Payload) (*domain.FederatedIdentity, error) {
	email, _ := p.Claims["email"].(string)
	if p.Subject == "" || email == "" {
		return nil, domain.ErrIdentityTokenInvalid
	}
	name, _ := p.Claims["name"].(string)
	verified, _ := p.Claims["email_verified"].(bool)
	return &domain.FederatedIdentity{
		SubjectID:     p.Subject,
		Email:         domain.NormalizeEmail(email),
		Name:          name,
		EmailVerified: verified,
	}, nil
}

var _ domain.IdentityVerifier = (*GoogleVerifier)(nil)

// Disabled rejects every identity token; it stands in when no client id is configured
type Disabled struct{}

// VerifyIdentityToken implements domain.IdentityVerifier
func (Disabled) VerifyIdentityToken(ctx context.Context, token string) (*domain.FederatedIdentity, error) {
	return nil, domain.Wrap(domain.ErrServiceUnavailable, errFederationDisabled)
}

var errFederationDisabled = errors.New("federated sign-in is not configured")
