package stats

import (
	"testing"

	"trustguard-client/internal/models"
)

func entry(userID, adTitle string, vote models.Vote, emotion string) models.FeedbackEntry {
	return models.FeedbackEntry{UserID: userID, AdTitle: adTitle, Feedback: vote, Emotion: emotion}
}

func TestAggregateAdTalliesAndEngagement(t *testing.T) {
	entries := []models.FeedbackEntry{
		entry("u1", "AdA", models.VoteUp, ""),
		entry("u1", "AdA", models.VoteDown, ""),
		entry("u2", "AdA", models.VoteBlock, ""),
	}

	report := Aggregate(entries, nil)

	if len(report.PerAd) != 1 {
		t.Fatalf("PerAd rows = %d, want 1", len(report.PerAd))
	}
	row := report.PerAd[0]
	if row.Tally != (models.VoteTally{Up: 1, Down: 1, Block: 1}) {
		t.Errorf("AdA tally = %+v, want {1 1 1}", row.Tally)
	}
	if row.EngagementPct != 33 {
		t.Errorf("AdA engagement = %d%%, want 33%%", row.EngagementPct)
	}
}

func TestAggregateSumsMatchEntryCount(t *testing.T) {
	entries := []models.FeedbackEntry{
		entry("u1", "AdA", models.VoteUp, "happy"),
		entry("u2", "AdA", models.VoteDown, "stressed"),
		entry("u1", "AdB", models.VoteBlock, ""),
		entry("u3", "AdC", models.VoteUp, "anxious"),
		entry("u2", "AdB", models.VoteUp, "neutral"),
		entry("u3", "AdA", models.VoteDown, "relaxed"),
	}

	report := Aggregate(entries, nil)

	var tallySum, emotionSum int
	for _, row := range report.PerAd {
		tallySum += row.Tally.Total()
	}
	for _, count := range report.EmotionHistogram {
		emotionSum += count
	}
	tierSum := report.Vulnerability.High + report.Vulnerability.Medium + report.Vulnerability.Low

	if tallySum != len(entries) {
		t.Errorf("tally sum = %d, want %d", tallySum, len(entries))
	}
	if emotionSum != len(entries) {
		t.Errorf("emotion histogram sum = %d, want %d", emotionSum, len(entries))
	}
	if tierSum != len(entries) {
		t.Errorf("vulnerability tier sum = %d, want %d", tierSum, len(entries))
	}
}

func TestAggregateVulnerabilityTiers(t *testing.T) {
	entries := []models.FeedbackEntry{
		entry("u1", "AdA", models.VoteUp, "stressed"),
		entry("u1", "AdB", models.VoteUp, "anxious"),
		entry("u1", "AdC", models.VoteUp, "depressed"),
		entry("u2", "AdA", models.VoteUp, "neutral"),
		entry("u2", "AdB", models.VoteUp, ""), // defaults to neutral
		entry("u3", "AdA", models.VoteUp, "happy"),
		entry("u3", "AdB", models.VoteUp, "relaxed"),
	}

	report := Aggregate(entries, nil)

	want := VulnerabilityTiers{High: 3, Medium: 2, Low: 2}
	if report.Vulnerability != want {
		t.Errorf("tiers = %+v, want %+v", report.Vulnerability, want)
	}
	if report.EmotionHistogram["neutral"] != 2 {
		t.Errorf("neutral count = %d, want 2 (absent emotion defaults to neutral)", report.EmotionHistogram["neutral"])
	}
}

func TestAggregateRankingsWithFirstSeenTieBreak(t *testing.T) {
	entries := []models.FeedbackEntry{
		entry("u1", "AdA", models.VoteUp, ""),
		entry("u2", "AdB", models.VoteUp, ""), // ties AdA on up; AdA is first-seen
		entry("u3", "AdB", models.VoteDown, ""),
		entry("u1", "AdC", models.VoteBlock, ""),
		entry("u2", "AdC", models.VoteBlock, ""),
	}

	report := Aggregate(entries, nil)

	if report.MostLiked == nil || report.MostLiked.Title != "AdA" {
		t.Errorf("most liked = %+v, want AdA (first-seen tie-break)", report.MostLiked)
	}
	if report.MostDisliked == nil || report.MostDisliked.Title != "AdB" {
		t.Errorf("most disliked = %+v, want AdB", report.MostDisliked)
	}
	if report.MostFlagged == nil || report.MostFlagged.Title != "AdC" {
		t.Errorf("most flagged = %+v, want AdC", report.MostFlagged)
	}
}

func TestAggregatePerUserGroupingPreservesOrder(t *testing.T) {
	entries := []models.FeedbackEntry{
		entry("u2", "AdA", models.VoteUp, ""),
		entry("u1", "AdB", models.VoteDown, ""),
		entry("u2", "AdC", models.VoteUp, ""),
	}

	report := Aggregate(entries, nil)

	if len(report.UserOrder) != 2 || report.UserOrder[0] != "u2" || report.UserOrder[1] != "u1" {
		t.Errorf("user order = %v, want [u2 u1]", report.UserOrder)
	}
	u2 := report.PerUser["u2"]
	if len(u2) != 2 || u2[0].AdTitle != "AdA" || u2[1].AdTitle != "AdC" {
		t.Errorf("u2 entries = %+v, want AdA then AdC", u2)
	}
}

func TestAggregateAverageEngagement(t *testing.T) {
	tests := []struct {
		name      string
		analytics []models.UserAnalytics
		want      float64
	}{
		{
			name: "mean of rates",
			analytics: []models.UserAnalytics{
				{UserID: "u1", EngagementRate: 50},
				{UserID: "u2", EngagementRate: 100},
			},
			want: 75,
		},
		{
			name:      "empty set",
			analytics: nil,
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Aggregate(nil, tt.analytics)
			if report.AvgEngagement != tt.want {
				t.Errorf("avg engagement = %v, want %v", report.AvgEngagement, tt.want)
			}
		})
	}
}

func TestAggregateEmpty(t *testing.T) {
	report := Aggregate(nil, nil)

	if report.TotalInteractions != 0 || report.TotalUsers != 0 {
		t.Errorf("totals = %d/%d, want 0/0", report.TotalInteractions, report.TotalUsers)
	}
	if report.MostLiked != nil || report.MostDisliked != nil || report.MostFlagged != nil {
		t.Error("rankings present for empty history")
	}
	if len(report.PerAd) != 0 {
		t.Errorf("PerAd rows = %d, want 0", len(report.PerAd))
	}
}

func TestEngagementPctZeroDenominator(t *testing.T) {
	if got := engagementPct(models.VoteTally{}); got != 0 {
		t.Errorf("engagement with no votes = %d, want 0", got)
	}
	if got := engagementPct(models.VoteTally{Up: 2, Down: 1, Block: 1}); got != 50 {
		t.Errorf("engagement = %d, want 50", got)
	}
}
