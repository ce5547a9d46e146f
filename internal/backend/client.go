// Package backend is the HTTP client for the TrustGuard backend: ad
// selection, feedback ingestion, preference mirroring, analytics and the
// global block list. The backend is the server of record for feedback
// history and duplicate-vote detection; this client only decodes its
// result codes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trustguard-client/internal/models"

	"github.com/sirupsen/logrus"
)

// ErrDuplicate is returned by SubmitFeedback when the backend reports the
// user already voted on this ad. It is a business-rule rejection, not a
// transport failure.
var ErrDuplicate = errors.New("feedback already submitted for this ad")

// ErrOptedOut is returned when the backend refused to record feedback
// because the user opted out of data collection server-side.
var ErrOptedOut = errors.New("user opted out of data collection")

type Client struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Logger
}

func NewClient(baseURL string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

type empathyAnalysis struct {
	VulnerabilityLevel string  `json:"vulnerability_level"`
	VulnerabilityScore float64 `json:"vulnerability_score"`
	FilteredByEmotion  bool    `json:"filtered_by_emotion"`
}

type adResponse struct {
	Ad                *models.Ad      `json:"ad"`
	ExplanationNeeded bool            `json:"explanation_needed"`
	Explanation       string          `json:"explanation"`
	EmpathyAnalysis   empathyAnalysis `json:"empathy_analysis"`
	Error             string          `json:"error"`
}

// GetAd fetches one ad for the user under the given preference flags.
// Every call is a fresh request; nothing is cached.
func (c *Client) GetAd(ctx context.Context, userID string, emotionFilter, personalized bool) (*models.AdDelivery, error) {
	u := fmt.Sprintf("%s/ads/%s?emotion_filter=%s&personalized=%s",
		c.baseURL, url.PathEscape(userID),
		strconv.FormatBool(emotionFilter), strconv.FormatBool(personalized))

	var resp adResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("ad service: %s", resp.Error)
	}
	if resp.Ad == nil {
		return nil, fmt.Errorf("ad service returned no ad")
	}

	return &models.AdDelivery{
		Ad:                *resp.Ad,
		ExplanationNeeded: resp.ExplanationNeeded,
		Explanation:       resp.Explanation,
		FilteredByEmotion: resp.EmpathyAnalysis.FilteredByEmotion,
	}, nil
}

type feedbackRequest struct {
	UserID   string      `json:"user_id"`
	AdTitle  string      `json:"ad_title"`
	Feedback models.Vote `json:"feedback"`
	Emotion  string      `json:"emotion,omitempty"`
}

type feedbackResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Stats   *models.VoteTally `json:"stats"`
	Error   string            `json:"error"`
}

// SubmitFeedback records one vote. On success the backend's updated tally
// for the ad is returned. ErrDuplicate means a vote for this (user, ad)
// pair already exists; the tally is not returned in that case.
func (c *Client) SubmitFeedback(ctx context.Context, userID, adTitle string, vote models.Vote) (*models.VoteTally, error) {
	var resp feedbackResponse
	err := c.postJSON(ctx, c.baseURL+"/feedback", feedbackRequest{
		UserID:   userID,
		AdTitle:  adTitle,
		Feedback: vote,
	}, &resp)
	if err != nil {
		return nil, err
	}

	switch resp.Status {
	case "success":
		return resp.Stats, nil
	case "duplicate":
		return nil, ErrDuplicate
	case "opted_out":
		return nil, ErrOptedOut
	default:
		if resp.Error != "" {
			return nil, fmt.Errorf("feedback service: %s", resp.Error)
		}
		return nil, fmt.Errorf("feedback service: unexpected status %q", resp.Status)
	}
}

type preferencesRequest struct {
	UserID      string          `json:"user_id"`
	Preferences wirePreferences `json:"preferences"`
	// EmotionalState is the self-reported state from the preferences
	// panel; null on initial consent.
	EmotionalState *string `json:"emotional_state"`
}

type wirePreferences struct {
	EmotionFilter   bool `json:"emotion_filter"`
	DataCollection  bool `json:"data_collection"`
	Personalization bool `json:"personalization"`
	Explanations    bool `json:"explanations"`
}

// SetPreferences mirrors the user's consent choices to the backend so its
// own ad selection and opt-out checks see them.
func (c *Client) SetPreferences(ctx context.Context, userID string, prefs models.PreferenceSet, emotionalState string) error {
	req := preferencesRequest{
		UserID: userID,
		Preferences: wirePreferences{
			EmotionFilter:   prefs.EmotionFilter,
			DataCollection:  prefs.DataCollection,
			Personalization: prefs.PersonalizedAds,
			Explanations:    prefs.Explanations,
		},
	}
	if emotionalState != "" {
		req.EmotionalState = &emotionalState
	}

	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := c.postJSON(ctx, c.baseURL+"/set_preferences", req, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("preference service: %s", resp.Error)
	}
	return nil
}

// ListFeedback returns the full feedback history, in server order.
func (c *Client) ListFeedback(ctx context.Context) ([]models.FeedbackEntry, error) {
	var entries []models.FeedbackEntry
	if err := c.getJSON(ctx, c.baseURL+"/feedback", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

type userAnalyticsResponse struct {
	TotalInteractions int     `json:"total_interactions"`
	PositiveFeedback  int     `json:"positive_feedback"`
	NegativeFeedback  int     `json:"negative_feedback"`
	BlockedAds        int     `json:"blocked_ads"`
	EngagementRate    float64 `json:"engagement_rate"`
	Error             string  `json:"error"`
}

// GetUserAnalytics returns the engagement snapshot for one user.
func (c *Client) GetUserAnalytics(ctx context.Context, userID string) (*models.UserAnalytics, error) {
	var resp userAnalyticsResponse
	if err := c.getJSON(ctx, c.baseURL+"/analytics/user/"+url.PathEscape(userID), &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("analytics service: %s", resp.Error)
	}
	return &models.UserAnalytics{
		UserID:            userID,
		EngagementRate:    resp.EngagementRate,
		TotalInteractions: resp.TotalInteractions,
		PositiveFeedback:  resp.PositiveFeedback,
		NegativeFeedback:  resp.NegativeFeedback,
		BlockedAds:        resp.BlockedAds,
	}, nil
}

// ListBlockedAds returns the global block list.
func (c *Client) ListBlockedAds(ctx context.Context) ([]string, error) {
	var titles []string
	if err := c.getJSON(ctx, c.baseURL+"/blocked_ads", &titles); err != nil {
		return nil, err
	}
	return titles, nil
}

// BlockAd adds the ad to the global block list. The backend treats
// repeated blocks as no-ops.
func (c *Client) BlockAd(ctx context.Context, adTitle string) error {
	var resp struct {
		Status  string `json:"status"`
		Blocked string `json:"blocked"`
		Error   string `json:"error"`
	}
	err := c.postJSON(ctx, c.baseURL+"/block_ad", map[string]string{"ad_title": adTitle}, &resp)
	if err != nil {
		return err
	}
	if resp.Status != "success" {
		if resp.Error != "" {
			return fmt.Errorf("block service: %s", resp.Error)
		}
		return fmt.Errorf("block service: unexpected status %q", resp.Status)
	}
	return nil
}

// Health probes the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.getJSON(ctx, c.baseURL+"/health", &resp)
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.WithFields(logrus.Fields{
			"url":    req.URL.String(),
			"status": resp.StatusCode,
		}).Warn("Backend returned error status")
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}
