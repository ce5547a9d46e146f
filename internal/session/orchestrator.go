// Package session is the consent-gated delivery state machine. One
// orchestrator owns one active user session at a time; switching users
// swaps the entire working state so nothing from the previous user stays
// visible.
//
// All mutation happens under a single lock. Every asynchronous call
// (fetch, submit, rotation timer) captures the generation counter at
// issue time and its completion is applied only if the counter still
// matches; anything else is discarded as stale. There is no cancellation
// of in-flight calls, only discarding of their results.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"trustguard-client/internal/backend"
	"trustguard-client/internal/metrics"
	"trustguard-client/internal/models"

	"github.com/sirupsen/logrus"
)

type Phase string

const (
	PhaseNoConsent       Phase = "no_consent"
	PhaseAwaitingAd      Phase = "awaiting_ad"
	PhaseAdDisplayed     Phase = "ad_displayed"
	PhaseFeedbackPending Phase = "feedback_pending"
	PhaseRotating        Phase = "rotating"
)

var (
	ErrNoConsent        = errors.New("user has not consented")
	ErrAlreadyConsented = errors.New("user already consented")
	ErrNoAdDisplayed    = errors.New("no ad is currently displayed")
	ErrVotePending      = errors.New("a vote is already recorded for this ad")
	ErrInvalidVote      = errors.New("invalid vote")
)

// Snapshot is the full visible session state, replaced wholesale on each
// transition and returned by value.
type Snapshot struct {
	UserID      string                `json:"user_id"`
	Phase       Phase                 `json:"phase"`
	Preferences models.PreferenceSet  `json:"preferences"`
	Delivery    *models.AdDelivery    `json:"delivery,omitempty"`
	Vote        models.Vote           `json:"vote,omitempty"`
	Tally       *models.VoteTally     `json:"tally,omitempty"`
	LastError   string                `json:"last_error,omitempty"`
}

// Backend is the slice of the external services the orchestrator drives.
type Backend interface {
	GetAd(ctx context.Context, userID string, emotionFilter, personalized bool) (*models.AdDelivery, error)
	SubmitFeedback(ctx context.Context, userID, adTitle string, vote models.Vote) (*models.VoteTally, error)
	SetPreferences(ctx context.Context, userID string, prefs models.PreferenceSet, emotionalState string) error
}

// Store is the durable consent store. Load returns (nil, nil) for a user
// with no prior consent.
type Store interface {
	Load(userID string) (*models.PreferenceSet, error)
	Save(userID string, set models.PreferenceSet) error
}

// Publisher receives accepted votes for the event pipe. Enqueue must not
// block.
type Publisher interface {
	Enqueue(entry models.FeedbackEntry) bool
}

type Orchestrator struct {
	backend   Backend
	store     Store
	publisher Publisher
	logger    *logrus.Logger

	rotationDelay time.Duration

	mu    sync.Mutex
	gen   uint64
	state Snapshot
	timer *time.Timer
}

func NewOrchestrator(b Backend, store Store, publisher Publisher, logger *logrus.Logger, rotationDelay time.Duration) *Orchestrator {
	return &Orchestrator{
		backend:       b,
		store:         store,
		publisher:     publisher,
		logger:        logger,
		rotationDelay: rotationDelay,
		state: Snapshot{
			Phase:       PhaseNoConsent,
			Preferences: models.DefaultPreferences(),
		},
	}
}

// Snapshot returns the current session state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SwitchUser makes userID the active session subject. The working state
// (ad, vote, tally) is cleared before anything else happens; the stored
// consent record decides whether the session starts in consent capture or
// goes straight to fetching.
func (o *Orchestrator) SwitchUser(userID string) Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.bumpLocked()
	o.state = Snapshot{
		UserID:      userID,
		Phase:       PhaseNoConsent,
		Preferences: models.DefaultPreferences(),
	}

	prefs, err := o.store.Load(userID)
	if err != nil {
		// Persistence is best-effort; an unreadable record is treated as
		// absent consent.
		o.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load consent record")
		prefs = nil
	}

	if prefs != nil {
		o.state.Preferences = *prefs
		o.state.Phase = PhaseAwaitingAd
		o.issueFetchLocked()
	} else {
		o.logger.WithField("user_id", userID).Info("No consent record, entering consent capture")
	}

	return o.state
}

// Consent records the user's initial consent choices and starts delivery.
// Only valid while the session is in consent capture.
func (o *Orchestrator) Consent(prefs models.PreferenceSet) (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Phase != PhaseNoConsent {
		return o.state, ErrAlreadyConsented
	}

	o.savePreferencesLocked(prefs, "")

	o.bumpLocked()
	o.state.Preferences = prefs
	o.state.Phase = PhaseAwaitingAd
	o.state.LastError = ""
	o.issueFetchLocked()

	o.logger.WithField("user_id", o.state.UserID).Info("Consent recorded")
	return o.state, nil
}

// UpdatePreferences replaces the active preference set and forces an
// immediate re-fetch, even if a vote is in flight. The in-flight vote's
// eventual result still reaches the event pipe but no longer touches the
// displayed state.
func (o *Orchestrator) UpdatePreferences(prefs models.PreferenceSet, emotionalState string) (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Phase == PhaseNoConsent {
		return o.state, ErrNoConsent
	}

	o.savePreferencesLocked(prefs, emotionalState)

	o.bumpLocked()
	o.state.Preferences = prefs
	o.state.Phase = PhaseAwaitingAd
	o.state.Vote = ""
	o.state.Tally = nil
	o.state.LastError = ""
	o.issueFetchLocked()

	o.logger.WithField("user_id", o.state.UserID).Info("Preferences updated, re-fetching")
	return o.state, nil
}

// Vote records a relevance vote on the displayed ad. At most one vote is
// accepted per displayed ad; repeats are rejected until rotation brings a
// new ad. When the user opted out of data collection the vote is not
// submitted at all and the session rotates with no tally.
func (o *Orchestrator) Vote(v models.Vote) (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !v.Valid() {
		return o.state, ErrInvalidVote
	}
	if o.state.Phase == PhaseNoConsent {
		return o.state, ErrNoConsent
	}
	if o.state.Phase != PhaseAdDisplayed || o.state.Delivery == nil {
		return o.state, ErrNoAdDisplayed
	}
	if o.state.Vote != "" {
		return o.state, ErrVotePending
	}

	o.state.Vote = v
	o.state.LastError = ""

	if !o.state.Preferences.DataCollection {
		// Opted out: no submission, no tally, straight to rotation.
		o.state.Phase = PhaseRotating
		o.scheduleRotationLocked()
		return o.state, nil
	}

	o.state.Phase = PhaseFeedbackPending
	gen := o.gen
	userID := o.state.UserID
	adTitle := o.state.Delivery.Ad.Title
	go o.submit(gen, userID, adTitle, v)

	return o.state, nil
}

// Next manually advances to a new ad. This is the recovery path after a
// duplicate rejection or a failed submission, and works from any
// consented phase.
func (o *Orchestrator) Next() (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Phase == PhaseNoConsent {
		return o.state, ErrNoConsent
	}

	o.bumpLocked()
	o.state.Phase = PhaseAwaitingAd
	o.state.Vote = ""
	o.state.Tally = nil
	o.state.LastError = ""
	o.issueFetchLocked()
	return o.state, nil
}

// bumpLocked invalidates every outstanding completion and stops a pending
// rotation timer.
func (o *Orchestrator) bumpLocked() {
	o.gen++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

// savePreferencesLocked persists locally and mirrors to the backend.
// Both are best-effort: a storage or mirror failure is logged and the
// in-memory state proceeds regardless.
func (o *Orchestrator) savePreferencesLocked(prefs models.PreferenceSet, emotionalState string) {
	userID := o.state.UserID
	if err := o.store.Save(userID, prefs); err != nil {
		o.logger.WithError(err).WithField("user_id", userID).Warn("Failed to persist preferences")
	}
	go func() {
		if err := o.backend.SetPreferences(context.Background(), userID, prefs, emotionalState); err != nil {
			o.logger.WithError(err).WithField("user_id", userID).Warn("Failed to mirror preferences to backend")
		}
	}()
}

// issueFetchLocked starts a fetch for the current user and preferences.
// Bumping the generation first makes this fetch supersede any earlier
// in-flight one: the most recently issued fetch wins the display.
func (o *Orchestrator) issueFetchLocked() {
	o.gen++
	gen := o.gen
	userID := o.state.UserID
	prefs := o.state.Preferences

	go func() {
		delivery, err := o.backend.GetAd(context.Background(), userID, prefs.EmotionFilter, prefs.PersonalizedAds)

		o.mu.Lock()
		defer o.mu.Unlock()
		if gen != o.gen {
			metrics.StaleResultsDiscarded.Inc()
			return
		}

		if err != nil {
			o.logger.WithError(err).WithField("user_id", userID).Error("Ad fetch failed")
			o.state.Phase = PhaseAwaitingAd
			o.state.LastError = "failed to load ad"
			return
		}

		metrics.AdsFetched.Inc()
		delivery.ExplanationNeeded = delivery.ExplanationNeeded && prefs.Explanations
		o.state.Delivery = delivery
		o.state.Vote = ""
		o.state.Tally = nil
		o.state.Phase = PhaseAdDisplayed
		o.state.LastError = ""
	}()
}

func (o *Orchestrator) submit(gen uint64, userID, adTitle string, v models.Vote) {
	tally, err := o.backend.SubmitFeedback(context.Background(), userID, adTitle, v)

	o.mu.Lock()
	defer o.mu.Unlock()

	current := gen == o.gen
	if !current {
		metrics.StaleResultsDiscarded.Inc()
	}

	switch {
	case err == nil:
		metrics.VotesSubmitted.WithLabelValues(string(v)).Inc()
		// The vote reached the history regardless of whether the display
		// moved on, so the event pipe sees it either way.
		if o.publisher != nil {
			o.publisher.Enqueue(models.FeedbackEntry{
				UserID:   userID,
				AdTitle:  adTitle,
				Feedback: v,
			})
		}
		if !current {
			return
		}
		if v != models.VoteBlock {
			o.state.Tally = tally
		}
		o.state.Phase = PhaseRotating
		o.scheduleRotationLocked()

	case errors.Is(err, backend.ErrDuplicate):
		metrics.DuplicateVotes.Inc()
		if !current {
			return
		}
		// The vote stays marked so the same ad cannot be voted on again;
		// the user moves on via Next.
		o.state.Phase = PhaseAdDisplayed
		o.state.LastError = "you have already voted on this ad"

	case errors.Is(err, backend.ErrOptedOut):
		o.logger.WithField("user_id", userID).Warn("Backend reports user opted out, rotating without tally")
		if !current {
			return
		}
		o.state.Phase = PhaseRotating
		o.scheduleRotationLocked()

	default:
		o.logger.WithError(err).WithField("user_id", userID).Error("Feedback submission failed")
		if !current {
			return
		}
		o.state.Phase = PhaseAdDisplayed
		o.state.LastError = "failed to send feedback"
	}
}

// scheduleRotationLocked arms the single-shot rotation timer. The fixed
// delay gives the user visible confirmation of the vote before the next
// ad appears.
func (o *Orchestrator) scheduleRotationLocked() {
	gen := o.gen
	o.timer = time.AfterFunc(o.rotationDelay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if gen != o.gen {
			metrics.StaleResultsDiscarded.Inc()
			return
		}
		metrics.Rotations.Inc()
		o.timer = nil
		o.state.Phase = PhaseAwaitingAd
		o.state.Vote = ""
		o.state.Tally = nil
		o.issueFetchLocked()
	})
}
