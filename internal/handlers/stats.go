package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

// StatsResponse represents the admin dashboard statistics.
type StatsResponse struct {
	TopicsByStatus map[models.TopicStatus]int64 `json:"topics_by_status"`
	TotalTopics    int64                        `json:"total_topics"`
	TotalMessages  int64                        `json:"total_messages"`
	Events24h      map[string]int64             `json:"events_24h"`
	LastActivity   string                       `json:"last_activity"`
	LastActivityAt *time.Time                   `json:"last_activity_at,omitempty"`
}

// AdminStats returns platform statistics for the admin dashboard.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	byStatus, err := h.db.CountTopicsByStatus(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count topics")
		return
	}
	var totalTopics int64
	for _, n := range byStatus {
		totalTopics += n
	}

	totalMessages, err := h.db.CountMessages(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count messages")
		return
	}

	events, err := h.db.CountEventsSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count events")
		return
	}

	lastActivityTime, err := h.db.GetMostRecentActivity(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to get last activity")
		return
	}

	lastActivity := "no activity yet"
	if lastActivityTime != nil {
		lastActivity = formatTimeAgo(*lastActivityTime)
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TopicsByStatus: byStatus,
		TotalTopics:    totalTopics,
		TotalMessages:  totalMessages,
		Events24h:      events,
		LastActivity:   lastActivity,
		LastActivityAt: lastActivityTime,
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	default:
		return plural(int(diff.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return strconv.Itoa(n) + " " + unit + "s ago"
}
