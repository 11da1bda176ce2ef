package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/curlos/twitter-2.0-sub000/internal/engagement"
	"github.com/curlos/twitter-2.0-sub000/internal/middleware"
)

// EngagementHandler exposes the engagement toggles. All four kinds run
// through the same parameterized protocol.
type EngagementHandler struct {
	engagement *engagement.Service
}

func NewEngagementHandler(engagementService *engagement.Service) *EngagementHandler {
	return &EngagementHandler{engagement: engagementService}
}

func (h *EngagementHandler) RegisterEngagementRoutes(g *echo.Group) {
	g.POST("/tweets/:id/engagements/:kind", h.EngageTweet)
	g.DELETE("/tweets/:id/engagements/:kind", h.DisengageTweet)
	g.GET("/tweets/:id/engagements/:kind", h.TweetEngagementState)
	g.GET("/tweets/:id/engagements/:kind/actors", h.ListActors)
	g.GET("/users/:id/engagements/:kind", h.ListEngagements)
	g.POST("/users/:id/follow", h.FollowUser)
	g.DELETE("/users/:id/follow", h.UnfollowUser)
}

// ListActors returns who engages with a tweet (its likers, retweeters or
// bookmarkers).
func (h *EngagementHandler) ListActors(c echo.Context) error {
	kind, ok := engagement.ParseKind(c.Param("kind"))
	if !ok || kind == engagement.Follow {
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown engagement kind")
	}
	edges, err := h.engagement.ListActors(c.Request().Context(), kind, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"count": len(edges), "actors": edges})
}

// ListEngagements returns the mirrored edges under a user: what they like,
// retweet or bookmark.
func (h *EngagementHandler) ListEngagements(c echo.Context) error {
	kind, ok := engagement.ParseKind(c.Param("kind"))
	if !ok || kind == engagement.Follow {
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown engagement kind")
	}
	edges, err := h.engagement.ListEngagements(c.Request().Context(), kind, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"count": len(edges), "engagements": edges})
}

func (h *EngagementHandler) EngageTweet(c echo.Context) error {
	return h.setTweetEngagement(c, true)
}

func (h *EngagementHandler) DisengageTweet(c echo.Context) error {
	return h.setTweetEngagement(c, false)
}

func (h *EngagementHandler) setTweetEngagement(c echo.Context, desired bool) error {
	kind, ok := engagement.ParseKind(c.Param("kind"))
	if !ok || kind == engagement.Follow {
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown engagement kind")
	}
	err := h.engagement.Set(c.Request().Context(), kind, c.Param("id"), middleware.UserID(c), desired)
	if err != nil {
		if errors.Is(err, engagement.ErrTargetNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Tweet not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"kind": kind.String(), "engaged": desired})
}

func (h *EngagementHandler) TweetEngagementState(c echo.Context) error {
	kind, ok := engagement.ParseKind(c.Param("kind"))
	if !ok || kind == engagement.Follow {
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown engagement kind")
	}
	engaged, err := h.engagement.State(c.Request().Context(), kind, c.Param("id"), middleware.UserID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"kind": kind.String(), "engaged": engaged})
}

func (h *EngagementHandler) FollowUser(c echo.Context) error {
	return h.setFollow(c, true)
}

func (h *EngagementHandler) UnfollowUser(c echo.Context) error {
	return h.setFollow(c, false)
}

func (h *EngagementHandler) setFollow(c echo.Context, desired bool) error {
	err := h.engagement.Set(c.Request().Context(), engagement.Follow, c.Param("id"), middleware.UserID(c), desired)
	if err != nil {
		switch {
		case errors.Is(err, engagement.ErrSelfFollow):
			return echo.NewHTTPError(http.StatusBadRequest, "You cannot follow yourself")
		case errors.Is(err, engagement.ErrTargetNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"following": desired})
}
