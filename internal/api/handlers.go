package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iff-guardian/hostguard/internal/domain"
)

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnsupportedAction), errors.Is(err, domain.ErrInvalidActionData):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrExpired), errors.Is(err, domain.ErrOutsideUndoWindow), errors.Is(err, domain.ErrNotExecuted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Service) fail(c *gin.Context, err error) {
	s.metrics.RecordError("api", "request_failed", c.FullPath())
	c.JSON(errStatus(err), gin.H{"error": err.Error()})
}

// listEvents serves a page of the event store, filtered by the event_type,
// risk_level, host, user, from, to (RFC 3339) and has_correlation query
// parameters.
func (s *Service) listEvents(c *gin.Context) {
	page := parseIntDefault(c.Query("page"), 1)
	pageSize := parseIntDefault(c.Query("page_size"), 50)

	filter := domain.EventFilter{
		EventType: domain.SecurityEventType(c.Query("event_type")),
		RiskLevel: domain.RiskLevel(c.Query("risk_level")),
		Host:      c.Query("host"),
		User:      c.Query("user"),
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.FromTime = t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.ToTime = t
		}
	}
	if v := c.Query("has_correlation"); v != "" {
		b := v == "true"
		filter.HasCorrelation = &b
	}

	events, err := s.events.Get(c.Request.Context(), page, pageSize, filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	total, err := s.events.Count(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": total, "page": page, "page_size": pageSize})
}

func (s *Service) getEvent(c *gin.Context) {
	event, err := s.events.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (s *Service) correlationStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.GetStatistics())
}

func (s *Service) listRules(c *gin.Context) {
	all, err := s.rules.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": all})
}

func (s *Service) createRule(c *gin.Context) {
	var rule domain.SecurityEventRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.rules.Create(c.Request.Context(), rule); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (s *Service) updateRule(c *gin.Context) {
	eventID := parseIntDefault(c.Param("eventID"), -1)
	if eventID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}
	var rule domain.SecurityEventRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule.Channel = c.Param("channel")
	rule.EventID = eventID
	if err := s.rules.Update(c.Request.Context(), rule); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Service) deleteRule(c *gin.Context) {
	eventID := parseIntDefault(c.Param("eventID"), -1)
	if eventID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}
	key := domain.RuleKey{Channel: c.Param("channel"), EventID: eventID}
	if err := s.rules.Delete(c.Request.Context(), key); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type suggestRequest struct {
	ConversationID string                 `json:"conversation_id" binding:"required"`
	MessageID      string                 `json:"message_id" binding:"required"`
	ActionType     string                 `json:"action_type" binding:"required"`
	ActionData     map[string]interface{} `json:"action_data"`
}

func (s *Service) suggestAction(c *gin.Context) {
	var req suggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := s.responder.Suggest(c.Request.Context(), req.ConversationID, req.MessageID, req.ActionType, req.ActionData)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, action)
}

type actorRequest struct {
	Actor  string `json:"actor" binding:"required"`
	Reason string `json:"reason"`
}

func (s *Service) executeAction(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := s.responder.Execute(c.Request.Context(), c.Param("id"), req.Actor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

func (s *Service) rollbackAction(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := s.responder.Rollback(c.Request.Context(), c.Param("id"), req.Actor, req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

func (s *Service) listPending(c *gin.Context) {
	pending, err := s.responder.GetPending(c.Request.Context(), c.Param("conversationID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending})
}

func (s *Service) listHistory(c *gin.Context) {
	history, err := s.responder.GetHistory(c.Request.Context(), c.Param("conversationID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}
