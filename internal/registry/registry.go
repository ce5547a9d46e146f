// Package registry mirrors the global ad block list. The external
// backend owns the list; the local mirror exists to make repeat blocks
// cheap no-ops and to let the fetch-adjacent UI disable block actions.
package registry

import (
	"context"
	"sync"

	"trustguard-client/internal/metrics"

	"github.com/sirupsen/logrus"
)

// Blocker is the backend operation that adds an ad to the global list.
type Blocker interface {
	BlockAd(ctx context.Context, adTitle string) error
}

type Registry struct {
	mu      sync.Mutex
	blocked map[string]struct{}
	order   []string

	backend Blocker
	logger  *logrus.Logger
}

func New(backend Blocker, logger *logrus.Logger) *Registry {
	return &Registry{
		blocked: make(map[string]struct{}),
		backend: backend,
		logger:  logger,
	}
}

// Block suppresses the ad globally. Blocking an already-blocked ad is a
// no-op: it returns alreadyBlocked=true without touching the backend.
func (r *Registry) Block(ctx context.Context, adTitle string) (alreadyBlocked bool, err error) {
	r.mu.Lock()
	if _, ok := r.blocked[adTitle]; ok {
		r.mu.Unlock()
		return true, nil
	}
	r.mu.Unlock()

	// The backend call happens outside the lock; a concurrent duplicate
	// block is harmless because the backend insert is itself idempotent.
	if err := r.backend.BlockAd(ctx, adTitle); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blocked[adTitle]; !ok {
		r.blocked[adTitle] = struct{}{}
		r.order = append(r.order, adTitle)
		metrics.AdsBlocked.Inc()
	}

	r.logger.WithField("ad_title", adTitle).Info("Ad blocked globally")
	return false, nil
}

// Seed merges the backend's block list into the mirror. Called when the
// admin view loads the list wholesale.
func (r *Registry) Seed(titles []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range titles {
		if _, ok := r.blocked[t]; !ok {
			r.blocked[t] = struct{}{}
			r.order = append(r.order, t)
		}
	}
}

func (r *Registry) IsBlocked(adTitle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.blocked[adTitle]
	return ok
}

// Titles returns the blocked ads in first-blocked order.
func (r *Registry) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blocked)
}
