package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/curlos/twitter-2.0-sub000/internal/middleware"
	"github.com/curlos/twitter-2.0-sub000/internal/models"
	"github.com/curlos/twitter-2.0-sub000/internal/socialgraph"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
	"github.com/curlos/twitter-2.0-sub000/internal/users"
)

// UserHandler serves profiles and social graph lookups.
type UserHandler struct {
	users *users.Service
	graph *socialgraph.Service
}

func NewUserHandler(userService *users.Service, graph *socialgraph.Service) *UserHandler {
	return &UserHandler{users: userService, graph: graph}
}

func (h *UserHandler) RegisterUserRoutes(g *echo.Group) {
	g.GET("/users/:id", h.GetProfile)
	g.PATCH("/me", h.UpdateProfile)
	g.GET("/users/:id/followers", h.ListFollowers)
	g.GET("/users/:id/following", h.ListFollowing)
	g.GET("/users/:id/shared-followers", h.SharedFollowers)
	g.POST("/users/hydrate", h.HydrateUsers)
}

func (h *UserHandler) GetProfile(c echo.Context) error {
	u, err := h.users.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	viewerID := middleware.UserID(c)
	followedByViewer := false
	if viewerID != "" && viewerID != u.ID {
		followedByViewer, err = h.graph.IsFollowing(c.Request().Context(), viewerID, u.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"user":             u,
		"followedByViewer": followedByViewer,
	})
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req models.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	u, err := h.users.UpdateProfile(c.Request().Context(), middleware.UserID(c), req)
	if err != nil {
		if errors.Is(err, users.ErrHandleTaken) {
			return echo.NewHTTPError(http.StatusConflict, map[string]any{
				"errors": map[string]string{"handle": "this handle is already taken"},
			})
		}
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, u)
}

func (h *UserHandler) ListFollowers(c echo.Context) error {
	edges, err := h.graph.ListFollowers(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, h.hydrateEdges(c, edges))
}

func (h *UserHandler) ListFollowing(c echo.Context) error {
	edges, err := h.graph.ListFollowing(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, h.hydrateEdges(c, edges))
}

// hydrateEdges resolves edge ids into user records. Hydration failures
// leave entries absent rather than failing the request.
func (h *UserHandler) hydrateEdges(c echo.Context, edges []socialgraph.Edge) map[string]any {
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.UserID)
	}
	hydrated, _ := h.graph.HydrateUsers(c.Request().Context(), ids)

	type entry struct {
		Edge socialgraph.Edge `json:"edge"`
		User *models.User     `json:"user,omitempty"`
	}
	out := make([]entry, 0, len(edges))
	for _, e := range edges {
		item := entry{Edge: e}
		if u, ok := hydrated[e.UserID]; ok {
			item.User = &u
		}
		out = append(out, item)
	}
	return map[string]any{"count": len(out), "entries": out}
}

// SharedFollowers renders the "Followed by X, Y and N others" set for the
// current viewer on a profile.
func (h *UserHandler) SharedFollowers(c echo.Context) error {
	viewerID := middleware.UserID(c)
	shared, err := h.graph.SharedFollowers(c.Request().Context(), viewerID, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"count": len(shared), "users": shared})
}

// HydrateUsers batch-resolves user ids; missing or failed entries are
// simply absent from the response map.
func (h *UserHandler) HydrateUsers(c echo.Context) error {
	var req struct {
		IDs []string `json:"ids" validate:"required,min=1,max=500"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	hydrated, chunkErrs := h.graph.HydrateUsers(c.Request().Context(), req.IDs)
	failed := make([]string, 0)
	for _, ce := range chunkErrs {
		failed = append(failed, ce.IDs...)
	}
	return c.JSON(http.StatusOK, map[string]any{"users": hydrated, "failedIds": failed})
}
