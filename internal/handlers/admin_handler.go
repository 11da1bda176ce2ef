package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/curlos/twitter-2.0-sub000/internal/reconcile"
)

// AdminHandler is the operator-only control surface for reconciliation
// jobs. Not intended for general UI use.
type AdminHandler struct {
	reconcile *reconcile.Service
}

func NewAdminHandler(reconcileService *reconcile.Service) *AdminHandler {
	return &AdminHandler{reconcile: reconcileService}
}

func (h *AdminHandler) RegisterAdminRoutes(g *echo.Group) {
	g.POST("/reconcile/backfill/:kind", h.Backfill)
	g.POST("/reconcile/verify/:kind", h.Verify)
	g.GET("/reconcile/runs", h.Runs)
}

func (h *AdminHandler) Backfill(c echo.Context) error {
	kind, err := parseEntityKind(c.Param("kind"))
	if err != nil {
		return err
	}
	rep, runErr := h.reconcile.Backfill(c.Request().Context(), kind)
	if runErr != nil {
		// Partial tallies are still meaningful to the operator.
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"report": rep,
			"error":  runErr.Error(),
		})
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *AdminHandler) Verify(c echo.Context) error {
	kind, err := parseEntityKind(c.Param("kind"))
	if err != nil {
		return err
	}
	rep, runErr := h.reconcile.Verify(c.Request().Context(), kind)
	if runErr != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"report": rep,
			"error":  runErr.Error(),
		})
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *AdminHandler) Runs(c echo.Context) error {
	runs, err := h.reconcile.RecentRuns(50)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": runs})
}

func parseEntityKind(name string) (reconcile.EntityKind, error) {
	switch name {
	case "tweets":
		return reconcile.TweetEntities, nil
	case "users":
		return reconcile.UserEntities, nil
	}
	return "", echo.NewHTTPError(http.StatusBadRequest, "Unknown entity kind, expected tweets or users")
}
