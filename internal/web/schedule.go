package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/heater-controller/internal/logic"
	"github.com/sweeney/heater-controller/internal/mqtt"
)

type scheduleUpdate struct {
	Value *string `json:"value"`
}

func (s *Server) getSchedule(c *gin.Context) {
	data, err := mqtt.FormatSchedulePayload(s.schedule.Schedule())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) putSchedule(c *gin.Context) {
	field := logic.Field(strings.ToLower(c.Param("field")))

	var body scheduleUpdate
	if err := c.ShouldBindJSON(&body); err != nil || body.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": `body must be {"value": "..."}`})
		return
	}

	if err := s.schedule.Apply(field, *body.Value); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, logic.ErrUnknownField) {
			code = http.StatusNotFound
		}
		s.log.Infow("schedule update rejected", "source", "http", "field", field, "err", err)
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	s.getSchedule(c)
}

func (s *Server) getAlerts(c *gin.Context) {
	alerts, err := s.recorder.RecentAlerts(c.Request.Context(), recentAlerts)
	if err != nil {
		s.log.Warnw("read alert history", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alert history unavailable"})
		return
	}

	out := make([]gin.H, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, gin.H{
			"id":       a.ID,
			"time":     a.Time.UTC().Format("2006-01-02T15:04:05Z"),
			"category": string(a.Category),
			"subject":  a.Subject,
		})
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}
