package identity

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lojinha-app/storefront/sdk/session"
)

// Attribute names normalised from the platform's user attributes.
const (
	AttrEmail   = "email"
	AttrName    = "name"
	AttrAddress = "address"
	AttrPhone   = "phone"
)

// attributeAliases maps platform attribute names onto the normalised ones.
var attributeAliases = map[string]string{
	"email":           AttrEmail,
	"name":            AttrName,
	"address":         AttrAddress,
	"custom:endereco": AttrAddress,
	"phone_number":    AttrPhone,
	"custom:telefone": AttrPhone,
}

// IdentityFromIDToken decodes the claims of an ID token without verifying its signature.
// The token was received directly from the token endpoint over TLS.
func IdentityFromIDToken(idToken string) (*session.Identity, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, fmt.Errorf("identity: empty id token")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("identity: parse id token: %w", err)
	}

	identity := &session.Identity{Attributes: map[string]string{}}
	if sub, err := claims.GetSubject(); err == nil {
		identity.Subject = sub
	}
	for _, key := range []string{"cognito:username", "username", "preferred_username"} {
		if v, ok := claims[key].(string); ok && v != "" {
			identity.Username = v
			break
		}
	}
	for key, raw := range claims {
		value, ok := raw.(string)
		if !ok || value == "" {
			continue
		}
		if name := normalizeAttributeName(key); name != "" {
			identity.Attributes[name] = value
		}
	}
	if identity.Username == "" {
		identity.Username = identity.Attributes[AttrEmail]
	}
	if len(identity.Attributes) == 0 {
		identity.Attributes = nil
	}
	return identity, nil
}

// normalizeAttributeName returns the attribute name used in Identity.Attributes, or ""
// for claims that are not user attributes.
func normalizeAttributeName(key string) string {
	if alias, ok := attributeAliases[key]; ok {
		return alias
	}
	if strings.HasPrefix(key, "custom:") {
		return key
	}
	return ""
}
