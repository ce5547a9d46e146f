package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"trustguard-client/internal/backend"
	"trustguard-client/internal/metrics"
	"trustguard-client/internal/models"
	"trustguard-client/internal/registry"
	"trustguard-client/internal/session"
	"trustguard-client/internal/stats"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	orchestrator *session.Orchestrator
	stats        *stats.Service
	registry     *registry.Registry
	backend      *backend.Client
	logger       *logrus.Logger
}

func NewServer(orchestrator *session.Orchestrator, statsService *stats.Service, reg *registry.Registry, backendClient *backend.Client, logger *logrus.Logger) *Server {
	return &Server{
		orchestrator: orchestrator,
		stats:        statsService,
		registry:     reg,
		backend:      backendClient,
		logger:       logger,
	}
}

// GetSession returns the current session snapshot.
func (s *Server) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.orchestrator.Snapshot())
}

type switchUserRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// SwitchUser resets the session to a new user.
func (s *Server) SwitchUser(c *gin.Context) {
	var req switchUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot := s.orchestrator.SwitchUser(req.UserID)
	c.JSON(http.StatusOK, snapshot)
}

type consentRequest struct {
	Preferences models.PreferenceSet `json:"preferences"`
}

// Consent records initial consent for the active user.
func (s *Server) Consent(c *gin.Context) {
	var req consentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := s.orchestrator.Consent(req.Preferences)
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

type preferencesUpdateRequest struct {
	Preferences    models.PreferenceSet `json:"preferences"`
	EmotionalState string               `json:"emotional_state"`
}

// UpdatePreferences replaces the active preference set.
func (s *Server) UpdatePreferences(c *gin.Context) {
	var req preferencesUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := s.orchestrator.UpdatePreferences(req.Preferences, req.EmotionalState)
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

type voteRequest struct {
	Vote models.Vote `json:"vote" binding:"required"`
}

// Vote records a relevance vote on the displayed ad.
func (s *Server) Vote(c *gin.Context) {
	start := time.Now()
	defer func() {
		metrics.ResponseTime.WithLabelValues("POST", "/session/vote", strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}()

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := s.orchestrator.Vote(req.Vote)
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, snapshot)
}

// Next manually advances to a new ad.
func (s *Server) Next(c *gin.Context) {
	snapshot, err := s.orchestrator.Next()
	if err != nil {
		s.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// AdminDashboard builds the full aggregation report for the admin view.
func (s *Server) AdminDashboard(c *gin.Context) {
	start := time.Now()
	defer func() {
		metrics.ResponseTime.WithLabelValues("GET", "/admin/dashboard", strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}()

	report, blocked, err := s.stats.Dashboard(c.Request.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to build dashboard")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load analytics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"report":      report,
		"blocked_ads": blocked,
	})
}

// UserAnalytics proxies the per-user engagement snapshot.
func (s *Server) UserAnalytics(c *gin.Context) {
	userID := c.Param("userId")

	analytics, err := s.backend.GetUserAnalytics(c.Request.Context(), userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to fetch user analytics")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load analytics"})
		return
	}

	c.JSON(http.StatusOK, analytics)
}

type blockRequest struct {
	AdTitle string `json:"ad_title" binding:"required"`
}

// BlockAd adds an ad to the global block list.
func (s *Server) BlockAd(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	already, err := s.registry.Block(c.Request.Context(), req.AdTitle)
	if err != nil {
		s.logger.WithError(err).WithField("ad_title", req.AdTitle).Error("Failed to block ad")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to block ad"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "blocked",
		"blocked":         req.AdTitle,
		"already_blocked": already,
	})
}

// Health reports service health plus backend connectivity.
func (s *Server) Health(c *gin.Context) {
	backendStatus := "connected"
	if err := s.backend.Health(c.Request.Context()); err != nil {
		backendStatus = "unreachable"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"backend":   backendStatus,
		"timestamp": time.Now().Unix(),
		"version":   "1.0.0",
	})
}

func (s *Server) sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNoConsent):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrAlreadyConsented),
		errors.Is(err, session.ErrVotePending),
		errors.Is(err, session.ErrNoAdDisplayed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrInvalidVote):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
