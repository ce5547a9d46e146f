// Package stats builds the admin-facing analytics from the backend's
// feedback history and per-user engagement snapshots. Everything is
// recomputed from scratch on each pass; the history is small and pulled
// wholesale on each admin view load.
package stats

import (
	"math"

	"trustguard-client/internal/models"
)

// AdPerformance is one per-ad row of the admin view.
type AdPerformance struct {
	Title string           `json:"title"`
	Tally models.VoteTally `json:"tally"`
	// EngagementPct is up/(up+down+block)*100 rounded to the nearest
	// integer, 0 when the ad has no votes.
	EngagementPct int `json:"engagement_pct"`
}

// VulnerabilityTiers counts feedback entries by the coarse risk class of
// their recorded emotion.
type VulnerabilityTiers struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Report is the full aggregation result.
type Report struct {
	TotalInteractions int     `json:"total_interactions"`
	TotalUsers        int     `json:"total_users"`
	AvgEngagement     float64 `json:"avg_engagement"`

	PerAd         []AdPerformance `json:"per_ad"`
	MostLiked     *AdPerformance  `json:"most_liked,omitempty"`
	MostDisliked  *AdPerformance  `json:"most_disliked,omitempty"`
	MostFlagged   *AdPerformance  `json:"most_flagged,omitempty"`

	EmotionHistogram map[string]int     `json:"emotion_histogram"`
	Vulnerability    VulnerabilityTiers `json:"vulnerability"`

	UserOrder []string                         `json:"user_order"`
	PerUser   map[string][]models.FeedbackEntry `json:"per_user"`

	Analytics []models.UserAnalytics `json:"analytics"`
}

// highRiskEmotions are the states classified as high vulnerability;
// neutral (including absent emotion) is medium, everything else low.
var highRiskEmotions = map[string]bool{
	"stressed":  true,
	"anxious":   true,
	"depressed": true,
}

// Aggregate is a pure function of the feedback history and the per-user
// analytics snapshots. Entry order is preserved within each grouping, and
// all ranking ties break toward the first-seen ad.
func Aggregate(entries []models.FeedbackEntry, analytics []models.UserAnalytics) Report {
	report := Report{
		TotalInteractions: len(entries),
		TotalUsers:        len(analytics),
		EmotionHistogram:  make(map[string]int),
		PerUser:           make(map[string][]models.FeedbackEntry),
		Analytics:         analytics,
	}

	tallies := make(map[string]*models.VoteTally)
	var adOrder []string

	for _, entry := range entries {
		if _, ok := report.PerUser[entry.UserID]; !ok {
			report.UserOrder = append(report.UserOrder, entry.UserID)
		}
		report.PerUser[entry.UserID] = append(report.PerUser[entry.UserID], entry)

		tally, ok := tallies[entry.AdTitle]
		if !ok {
			tally = &models.VoteTally{}
			tallies[entry.AdTitle] = tally
			adOrder = append(adOrder, entry.AdTitle)
		}
		switch entry.Feedback {
		case models.VoteUp:
			tally.Up++
		case models.VoteDown:
			tally.Down++
		case models.VoteBlock:
			tally.Block++
		}

		emotion := entry.Emotion
		if emotion == "" {
			emotion = "neutral"
		}
		report.EmotionHistogram[emotion]++

		switch {
		case highRiskEmotions[emotion]:
			report.Vulnerability.High++
		case emotion == "neutral":
			report.Vulnerability.Medium++
		default:
			report.Vulnerability.Low++
		}
	}

	for _, title := range adOrder {
		report.PerAd = append(report.PerAd, AdPerformance{
			Title:         title,
			Tally:         *tallies[title],
			EngagementPct: engagementPct(*tallies[title]),
		})
	}

	report.MostLiked = pickMax(report.PerAd, func(t models.VoteTally) int { return t.Up })
	report.MostDisliked = pickMax(report.PerAd, func(t models.VoteTally) int { return t.Down })
	report.MostFlagged = pickMax(report.PerAd, func(t models.VoteTally) int { return t.Block })

	if len(analytics) > 0 {
		var sum float64
		for _, a := range analytics {
			sum += a.EngagementRate
		}
		report.AvgEngagement = sum / float64(len(analytics))
	}

	return report
}

func engagementPct(t models.VoteTally) int {
	total := t.Total()
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(t.Up) / float64(total) * 100))
}

// pickMax returns the first ad with the highest count; a strict greater-
// than comparison keeps ties on the first-seen ad.
func pickMax(ads []AdPerformance, count func(models.VoteTally) int) *AdPerformance {
	var best *AdPerformance
	for i := range ads {
		if best == nil || count(ads[i].Tally) > count(best.Tally) {
			best = &ads[i]
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}
