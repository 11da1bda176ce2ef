package middleware

import (
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/curlos/twitter-2.0-sub000/internal/models"
)

// UserIDKey is the echo context key holding the authenticated user's id.
const UserIDKey = "userID"

// Auth verifies the bearer token as either a locally issued JWT or a
// Firebase ID token (when a Firebase auth client is configured) and stores
// the acting user's id in the request context. The id is the only claim
// the engine trusts; everything else is display-only.
func Auth(jwtSecret string, firebaseAuth *auth.Client) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header must be in Bearer format")
			}
			tokenString := parts[1]

			if userID, ok := verifyLocalJWT(tokenString, jwtSecret); ok {
				c.Set(UserIDKey, userID)
				return next(c)
			}

			if firebaseAuth != nil {
				token, err := firebaseAuth.VerifyIDToken(c.Request().Context(), tokenString)
				if err == nil {
					c.Set(UserIDKey, token.UID)
					return next(c)
				}
			}

			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}
	}
}

func verifyLocalJWT(tokenString, secret string) (string, bool) {
	if secret == "" {
		return "", false
	}
	claims := &models.JwtCustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid || claims.UserID == "" {
		return "", false
	}
	return claims.UserID, true
}

// UserID pulls the authenticated user id out of the echo context.
func UserID(c echo.Context) string {
	id, _ := c.Get(UserIDKey).(string)
	return id
}

// AdminOnly guards the operator-only control surface with a static token.
// An empty configured token disables the surface entirely.
func AdminOnly(adminToken string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if adminToken == "" {
				return echo.NewHTTPError(http.StatusForbidden, "Admin surface is disabled")
			}
			if c.Request().Header.Get("X-Admin-Token") != adminToken {
				return echo.NewHTTPError(http.StatusForbidden, "Invalid admin token")
			}
			return next(c)
		}
	}
}
