package authclient

import (
	"strconv"
	"strings"
)

// AuthSource identifies the credential path that produced a session.
type AuthSource string

const (
	AuthSourceLocal   AuthSource = "local"
	AuthSourceOpenID  AuthSource = "openid"
	AuthSourceUnknown AuthSource = ""
)

// DefaultDisplayName is shown when a profile carries no usable name.
const DefaultDisplayName = "User"

// displayNameClaims is the lookup order used to resolve DisplayName.
var displayNameClaims = []string{"full_name", "fullName", "name", "preferred_username"}

// Profile is the identity resolved for a bearer token.
type Profile struct {
	Subject     string         `json:"sub"`
	Email       string         `json:"email,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	AuthSource  AuthSource     `json:"auth_type,omitempty"`
	Claims      map[string]any `json:"claims,omitempty"`
}

// ProfileFromClaims maps the raw user object returned by the backend.
// Only "sub" is required; every claim is kept in Claims.
func ProfileFromClaims(claims map[string]any) (*Profile, bool) {
	if claims == nil {
		return nil, false
	}

	subject := stringClaim(claims, "sub")
	if subject == "" {
		return nil, false
	}

	p := &Profile{
		Subject:    subject,
		Email:      stringClaim(claims, "email"),
		AuthSource: parseAuthSource(stringClaim(claims, "auth_type")),
		Claims:     make(map[string]any, len(claims)),
	}

	for _, key := range displayNameClaims {
		if name := strings.TrimSpace(stringClaim(claims, key)); name != "" {
			p.DisplayName = name
			break
		}
	}

	for k, v := range claims {
		p.Claims[k] = v
	}

	return p, true
}

// Name returns the display name or DefaultDisplayName.
func (p *Profile) Name() string {
	if p == nil || strings.TrimSpace(p.DisplayName) == "" {
		return DefaultDisplayName
	}
	return p.DisplayName
}

// Initials returns up to two upper case initials of Name, so a profile
// without a display name shows "U".
func (p *Profile) Initials() string {
	parts := strings.Fields(p.Name())
	if len(parts) > 2 {
		parts = parts[:2]
	}

	var b strings.Builder
	for _, part := range parts {
		b.WriteRune([]rune(part)[0])
	}
	return strings.ToUpper(b.String())
}

// Claim returns a raw claim by name.
func (p *Profile) Claim(name string) (any, bool) {
	if p == nil || p.Claims == nil {
		return nil, false
	}
	v, ok := p.Claims[name]
	return v, ok
}

func (p *Profile) clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Claims != nil {
		cp.Claims = make(map[string]any, len(p.Claims))
		for k, v := range p.Claims {
			cp.Claims[k] = v
		}
	}
	return &cp
}

func parseAuthSource(v string) AuthSource {
	switch AuthSource(strings.ToLower(strings.TrimSpace(v))) {
	case AuthSourceLocal:
		return AuthSourceLocal
	case AuthSourceOpenID:
		return AuthSourceOpenID
	default:
		return AuthSourceUnknown
	}
}

func stringClaim(claims map[string]any, key string) string {
	v, ok := claims[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}
