package auth

import (
	"errors"
	"slices"
)

var (
	ErrMissingSubject = errors.New("token has no subject claim")
	ErrTokenExpired   = errors.New("token expired")
)

// Claims is a decoded token payload.
type Claims map[string]any

func (c Claims) String(key string) string {
	s, _ := c[key].(string)
	return s
}

func (c Claims) Bool(key string) bool {
	b, _ := c[key].(bool)
	return b
}

// Strings reads a string array claim, skipping empty and non-string items.
func (c Claims) Strings(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// First returns the first non-empty string claim among keys.
func (c Claims) First(keys ...string) string {
	for _, k := range keys {
		if s := c.String(k); s != "" {
			return s
		}
	}
	return ""
}

// Subject is the identity-provider user id: Firebase puts it in uid and user_id, others in sub.
func (c Claims) Subject() string {
	return c.First("uid", "user_id", "sub")
}

// Roles merges the "roles" array, the single "role" claim and isManager=true.
func (c Claims) Roles() []string {
	roles := c.Strings("roles")
	if role := c.String("role"); role != "" {
		roles = append(roles, role)
	}
	if c.Bool("isManager") {
		roles = append(roles, RoleManager)
	}
	slices.Sort(roles)
	return slices.Compact(roles)
}

func DefaultCredentialExtractor(claims Claims) (*UserCredentials, error) {
	subject := claims.Subject()
	if subject == "" {
		return nil, ErrMissingSubject
	}

	creds := &UserCredentials{
		Id:            subject,
		Email:         claims.String("email"),
		EmailVerified: claims.Bool("email_verified"),
		Roles:         claims.Roles(),
	}
	if name := claims.String("name"); name != "" {
		creds.Name = &name
	}
	return creds, nil
}
