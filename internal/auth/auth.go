package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("auth: user not authenticated")

// Role is the typed capability level carried by an identity.
type Role string

const (
	RoleUser   Role = "User"
	RoleSeller Role = "Seller"
	RoleAdmin  Role = "Admin"
)

// Identity is the resolved claim set of a bearer token.
type Identity struct {
	UserID string
	Email  string
	Role   Role
}

// Can reports whether the identity satisfies the required role.
// Admin satisfies every requirement.
func (i Identity) Can(required Role) bool {
	if i.Role == RoleAdmin {
		return true
	}
	return i.Role == required
}

// Verifier resolves a bearer token into an Identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// JWTVerifier implements Verifier for HMAC-signed JWTs.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWTVerifier instance.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrUnauthenticated
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}

	identity := Identity{
		UserID: stringClaim(claims, "sub"),
		Email:  stringClaim(claims, "email"),
		Role:   Role(stringClaim(claims, "role")),
	}
	if identity.UserID == "" || identity.Email == "" {
		return Identity{}, ErrUnauthenticated
	}
	if identity.Role == "" {
		identity.Role = RoleUser
	}
	return identity, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
