package handlers

import (
	"errors"
	"net/http"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/curlos/twitter-2.0-sub000/internal/models"
	"github.com/curlos/twitter-2.0-sub000/internal/users"
)

// AuthHandler handles registration, local login and federated sessions.
type AuthHandler struct {
	users        *users.Service
	firebaseAuth *auth.Client
	jwtSecret    string
}

func NewAuthHandler(userService *users.Service, firebaseAuthClient *auth.Client, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		users:        userService,
		firebaseAuth: firebaseAuthClient,
		jwtSecret:    jwtSecret,
	}
}

func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/session", h.FederatedSession)
}

// Register creates a local-credential account and returns a session token.
func (h *AuthHandler) Register(c echo.Context) error {
	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	u, err := h.users.Register(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, users.ErrHandleTaken) {
			return echo.NewHTTPError(http.StatusConflict, map[string]any{
				"errors": map[string]string{"handle": "this handle is already taken"},
			})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	token, err := h.issueJWT(u)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}
	return c.JSON(http.StatusCreated, map[string]any{"user": u, "token": token})
}

// Login verifies local credentials and returns a session token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	u, err := h.users.Authenticate(c.Request().Context(), req.Handle, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid handle or password")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	token, err := h.issueJWT(u)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}
	return c.JSON(http.StatusOK, map[string]any{"user": u, "token": token})
}

// FederatedSession verifies a Firebase ID token and upserts the matching
// user record. The provider's uid is the user's stable id.
func (h *AuthHandler) FederatedSession(c echo.Context) error {
	if h.firebaseAuth == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "Federated sign-in is not configured")
	}

	var req struct {
		IDToken string `json:"idToken" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	token, err := h.firebaseAuth.VerifyIDToken(c.Request().Context(), req.IDToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired ID token")
	}

	displayName, _ := token.Claims["name"].(string)
	email, _ := token.Claims["email"].(string)
	avatarURL, _ := token.Claims["picture"].(string)
	u, err := h.users.EnsureFederated(c.Request().Context(), token.UID, displayName, email, avatarURL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"user": u})
}

func (h *AuthHandler) issueJWT(u *models.User) (string, error) {
	claims := &models.JwtCustomClaims{
		UserID: u.ID,
		Handle: u.Handle,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(72 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.jwtSecret))
}
