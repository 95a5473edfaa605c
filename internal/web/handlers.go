// internal/web/handlers.go
package web

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/gin-gonic/gin"
    "github.com/sirupsen/logrus"

    "github.com/goodmeow/tg-monitoring/internal/store"
)

func (s *Server) getStatus(c *gin.Context) {
    states, err := s.store.ListAlertStates(c.Request.Context())
    if err != nil {
        logrus.WithError(err).Error("Failed to list alert states")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get status"})
        return
    }

    summary := map[string]int{"ok": 0, "warn": 0, "alert": 0}
    for _, st := range states {
        summary[string(st.Status)]++
    }

    c.JSON(http.StatusOK, gin.H{
        "data":    states,
        "summary": summary,
    })
}

func (s *Server) getFeeds(c *gin.Context) {
    chatID, ok := chatIDParam(c)
    if !ok {
        return
    }

    feeds, err := s.store.ListFeeds(c.Request.Context(), chatID)
    if err != nil {
        logrus.WithError(err).Error("Failed to list feeds")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list feeds"})
        return
    }

    pending, err := s.store.CountPendingByFeed(c.Request.Context(), chatID)
    if err != nil {
        logrus.WithError(err).Error("Failed to count pending items")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list feeds"})
        return
    }

    type feedView struct {
        store.Feed
        Pending int `json:"pending"`
    }
    views := make([]feedView, 0, len(feeds))
    for _, f := range feeds {
        views = append(views, feedView{Feed: f, Pending: pending[f.ID]})
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  views,
        "count": len(views),
    })
}

type feedRequest struct {
    ChatID int64  `json:"chat_id" binding:"required"`
    URL    string `json:"url" binding:"required,url"`
    Title  string `json:"title"`
}

func (s *Server) createFeed(c *gin.Context) {
    var req feedRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    feed, err := s.store.AddFeed(c.Request.Context(), req.ChatID, req.URL, req.Title)
    if err != nil {
        logrus.WithError(err).Error("Failed to add feed")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add feed"})
        return
    }

    c.JSON(http.StatusCreated, gin.H{"data": feed})
}

func (s *Server) deleteFeed(c *gin.Context) {
    var req feedRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    err := s.store.RemoveFeed(c.Request.Context(), req.ChatID, req.URL)
    if errors.Is(err, store.ErrNotFound) {
        c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
        return
    }
    if err != nil {
        logrus.WithError(err).Error("Failed to remove feed")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove feed"})
        return
    }

    c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func chatIDParam(c *gin.Context) (int64, bool) {
    raw := c.Query("chat_id")
    if raw == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id is required"})
        return 0, false
    }
    id, err := strconv.ParseInt(raw, 10, 64)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id must be numeric"})
        return 0, false
    }
    return id, true
}
