package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	clientContextKey = "ClientID"
	tokenTTL         = 12 * time.Hour
)

// ClientClaims represents JWT claims for an API client.
type ClientClaims struct {
	ClientID string `json:"cid"`
	jwt.RegisteredClaims
}

func generateToken(clientID, secret string, expiresAt time.Time) (string, error) {
	claims := ClientClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseToken(tokenStr, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ClientClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims, ok := token.Claims.(*ClientClaims); ok && token.Valid {
		return claims.ClientID, nil
	}
	return "", errors.New("invalid token claims")
}

// AuthMiddleware enforces JWT auth for protected routes.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing Authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid Authorization header")
			c.Abort()
			return
		}

		clientID, err := parseToken(parts[1], secret)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(clientContextKey, clientID)
		c.Next()
	}
}

// CurrentClientID returns the authenticated client ID from context.
func CurrentClientID(c *gin.Context) string {
	if v, ok := c.Get(clientContextKey); ok {
		if id, okCast := v.(string); okCast {
			return id
		}
	}
	return ""
}

// issueToken exchanges the configured API key for a bearer token.
func (s *Server) issueToken(c *gin.Context) {
	var req struct {
		APIKey   string `json:"apiKey"`
		ClientID string `json:"clientId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	if s.APIKey == "" || subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(s.APIKey)) != 1 {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid api key")
		return
	}
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = "dashboard"
	}

	expiresAt := time.Now().Add(tokenTTL)
	token, err := generateToken(clientID, s.JWTSecret, expiresAt)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to generate token")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
		"client_id":  clientID,
	})
}

// queryTokenAuth lets browser websocket clients, which cannot set headers,
// pass the bearer token as ?token=.
func queryTokenAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			if tok := c.Query("token"); tok != "" {
				c.Request.Header.Set("Authorization", "Bearer "+tok)
			}
		}
		c.Next()
	}
}
