package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Roles carried in the "role" claim of API tokens.
const (
	RoleViewer     = "viewer"
	RoleController = "controller"
)

const tokenIssuer = "radiocal"

var errMissingToken = errors.New("missing bearer token")

// Claims are the claims of a radiocal API token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject with the given role.
func IssueToken(secret, subject, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	if role != RoleViewer && role != RoleController {
		return "", fmt.Errorf("invalid role %q, must be %s or %s", role, RoleViewer, RoleController)
	}

	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyToken parses and validates a token signed with secret.
func VerifyToken(secret, tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, errMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Role != RoleViewer && claims.Role != RoleController {
		return nil, fmt.Errorf("invalid role %q", claims.Role)
	}
	return claims, nil
}

// requireToken guards the TCP listener. Viewers may only read; everything that
// changes state needs the controller role.
func requireToken(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if raw == c.GetHeader("Authorization") {
			raw = ""
		}

		claims, err := VerifyToken(secret, raw)
		if err != nil {
			c.IndentedJSON(http.StatusUnauthorized, err.Error())
			_ = c.AbortWithError(http.StatusUnauthorized, err)
			return
		}

		if c.Request.Method != http.MethodGet && claims.Role != RoleController {
			err := fmt.Errorf("role %s may not %s %s", claims.Role, c.Request.Method, c.FullPath())
			c.IndentedJSON(http.StatusForbidden, err.Error())
			_ = c.AbortWithError(http.StatusForbidden, err)
			return
		}

		logrus.WithFields(logrus.Fields{"sub": claims.Subject, "role": claims.Role}).Trace("token accepted")
		c.Next()
	}
}
