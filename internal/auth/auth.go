package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
)

// Identity is the authenticated caller. Sessions are owned by Principal.
type Identity struct {
	Principal string
}

type contextKey string

const identityKey contextKey = "auth_identity"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// PrincipalFromContext returns "" for anonymous callers, which is the owner
// of every session when auth is disabled.
func PrincipalFromContext(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.Principal
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

// StaticAPIKeyValidator holds SHA-256 digests of the configured keys, never
// the keys themselves.
type StaticAPIKeyValidator struct {
	keys map[[sha256.Size]byte]Identity
}

// NewStaticAPIKeyValidator parses a comma-separated list of key:principal
// pairs.
func NewStaticAPIKeyValidator(list string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[[sha256.Size]byte]Identity{}}
	list = strings.TrimSpace(list)
	if list == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(list, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:principal", entry)
		}
		key := strings.TrimSpace(parts[0])
		principal := strings.TrimSpace(parts[1])
		if key == "" || principal == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/principal", entry)
		}
		digest := sha256.Sum256([]byte(key))
		if _, exists := validator.keys[digest]; exists {
			return nil, fmt.Errorf("duplicate static key for principal %q", principal)
		}
		validator.keys[digest] = Identity{Principal: principal}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	if apiKey == "" {
		return Identity{}, false
	}
	identity, ok := v.keys[sha256.Sum256([]byte(apiKey))]
	return identity, ok
}
