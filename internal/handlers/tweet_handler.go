package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/curlos/twitter-2.0-sub000/internal/middleware"
	"github.com/curlos/twitter-2.0-sub000/internal/models"
	"github.com/curlos/twitter-2.0-sub000/internal/socialgraph"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
	"github.com/curlos/twitter-2.0-sub000/internal/tweets"
)

// TweetHandler serves tweet CRUD, edit history and parent resolution.
type TweetHandler struct {
	tweets *tweets.Service
	graph  *socialgraph.Service
}

func NewTweetHandler(tweetService *tweets.Service, graph *socialgraph.Service) *TweetHandler {
	return &TweetHandler{tweets: tweetService, graph: graph}
}

func (h *TweetHandler) RegisterTweetRoutes(g *echo.Group) {
	g.POST("/tweets", h.Create)
	g.POST("/tweets/hydrate", h.HydrateTweets)
	g.GET("/tweets/:id", h.Get)
	g.PATCH("/tweets/:id", h.Edit)
	g.DELETE("/tweets/:id", h.Delete)
	g.GET("/tweets/:id/history", h.History)
	g.GET("/tweets/:id/replies", h.Replies)
}

// HydrateTweets batch-resolves tweet ids for timeline rendering; deleted or
// failed entries are simply absent from the response map.
func (h *TweetHandler) HydrateTweets(c echo.Context) error {
	var req struct {
		IDs []string `json:"ids" validate:"required,min=1,max=500"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	hydrated, chunkErrs := h.graph.HydrateTweets(c.Request().Context(), req.IDs)
	failed := make([]string, 0)
	for _, ce := range chunkErrs {
		failed = append(failed, ce.IDs...)
	}
	return c.JSON(http.StatusOK, map[string]any{"tweets": hydrated, "failedIds": failed})
}

func (h *TweetHandler) Create(c echo.Context) error {
	var req models.CreateTweetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	t, err := h.tweets.Create(c.Request().Context(), middleware.UserID(c), req)
	if err != nil {
		switch {
		case errors.Is(err, tweets.ErrRepliesRestricted):
			return echo.NewHTTPError(http.StatusForbidden, "Replies to this Tweet are restricted")
		case errors.Is(err, tweets.ErrQuotesDisabled):
			return echo.NewHTTPError(http.StatusForbidden, "This Tweet cannot be quoted")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

// Get returns the tweet together with its resolved parent state so every
// render path can show a reply/quote context or the stable "unavailable"
// placeholder.
func (h *TweetHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	t, err := h.tweets.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Tweet not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	parent, err := h.tweets.ResolveParent(ctx, t)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"tweet":  t,
		"parent": parentPayload(parent),
	})
}

func parentPayload(p tweets.ParentState) map[string]any {
	out := map[string]any{"state": p.Kind.String()}
	if p.Kind == tweets.ParentPresent {
		out["tweet"] = p.Parent
		out["author"] = p.Author
	}
	if p.Kind == tweets.ParentDeleted {
		out["placeholder"] = "This Tweet is unavailable"
	}
	return out
}

func (h *TweetHandler) Edit(c echo.Context) error {
	var req models.EditTweetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	t, err := h.tweets.Edit(c.Request().Context(), c.Param("id"), middleware.UserID(c), req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "Tweet not found")
		case errors.Is(err, tweets.ErrNotAuthor):
			return echo.NewHTTPError(http.StatusForbidden, "Only the author can edit a Tweet")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}

func (h *TweetHandler) Delete(c echo.Context) error {
	err := h.tweets.Delete(c.Request().Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "Tweet not found")
		case errors.Is(err, tweets.ErrNotAuthor):
			return echo.NewHTTPError(http.StatusForbidden, "Only the author can delete a Tweet")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// History returns prior content snapshots, most recent edit first.
func (h *TweetHandler) History(c echo.Context) error {
	versions, err := h.tweets.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Tweet not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"count": len(versions), "versions": versions})
}

func (h *TweetHandler) Replies(c echo.Context) error {
	edges, err := h.tweets.ListReplies(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"count": len(edges), "replies": edges})
}
