package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"desalination_plant/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

var errBadTime = errors.New("use RFC3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD'")

// parseQueryTime reads an optional time bound. A date-only upper bound
// covers the whole day.
func parseQueryTime(s string, upper bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if upper && layout == layoutDate {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t.UTC(), nil
	}
	return time.Time{}, errBadTime
}

// logFilter reads the history query parameters.
func logFilter(c *gin.Context) (service.LogFilter, string) {
	var f service.LogFilter
	var err error
	if f.From, err = parseQueryTime(c.Query("from"), false); err != nil {
		return f, "invalid 'from': " + err.Error()
	}
	if f.To, err = parseQueryTime(c.Query("to"), true); err != nil {
		return f, "invalid 'to': " + err.Error()
	}
	if s := c.Query("limit"); s != "" {
		if f.Limit, err = strconv.Atoi(s); err != nil || f.Limit < 0 {
			return f, "invalid 'limit': want a non-negative integer"
		}
	}
	f.Type = strings.TrimSpace(c.Query("type"))
	return f, ""
}

// @Summary      Plant event history
// @Description  Events oldest first, capped to the newest 'limit' (default 500, max 5000). 'type' takes event types or the categories ALARMS, EQUIPMENT, OPERATOR, SEQUENCE, comma separated.
// @Tags         logs
// @Produce      json
// @Param        from   query   string  false  "Start of range (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD')"  example(2025-08-01)
// @Param        to     query   string  false  "End of range; a date-only value covers the whole day"  example(2025-08-31)
// @Param        type   query   string  false  "Event types or categories"  example(ALARMS,FAULT)
// @Param        limit  query   int     false  "Newest N events"
// @Success      200   {object}  map[string]interface{}  "count, events"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	f, msg := logFilter(c)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	events, err := h.services.EventLog.List(c.Request.Context(), f)
	switch {
	case errors.Is(err, service.ErrInvalidTimeRange), errors.Is(err, service.ErrUnknownEventType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load logs", "logs_list_failed", err,
			"from", f.From, "to", f.To, "type", f.Type)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}
