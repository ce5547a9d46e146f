package models

// PreferenceSet holds a user's consent choices. A stored PreferenceSet is
// the sole signal that the user completed the consent flow.
type PreferenceSet struct {
	EmotionFilter   bool `json:"emotion_filter"`
	DataCollection  bool `json:"data_collection"`
	PersonalizedAds bool `json:"personalized_ads"`
	Explanations    bool `json:"explanations"`
}

// DefaultPreferences mirrors the backend defaults for a user that has
// never saved anything.
func DefaultPreferences() PreferenceSet {
	return PreferenceSet{
		EmotionFilter:   true,
		DataCollection:  true,
		PersonalizedAds: true,
		Explanations:    true,
	}
}

// Ad is a single delivered ad. The title doubles as the ad's unique key
// in all tallies and block lists; there is no numeric ad id.
type Ad struct {
	Title          string `json:"title"`
	ImageURL       string `json:"image_url"`
	Category       string `json:"category"`
	TargetAudience string `json:"target_audience,omitempty"`
	Description    string `json:"description,omitempty"`
	CTA            string `json:"cta,omitempty"`
	Explanation    string `json:"explanation,omitempty"`
}

// AdDelivery is an ad plus the delivery metadata returned with it.
type AdDelivery struct {
	Ad                Ad     `json:"ad"`
	ExplanationNeeded bool   `json:"explanation_needed"`
	Explanation       string `json:"explanation,omitempty"`
	FilteredByEmotion bool   `json:"filtered_by_emotion"`
}

// Vote is a relevance vote on a delivered ad.
type Vote string

const (
	VoteUp    Vote = "up"
	VoteDown  Vote = "down"
	VoteBlock Vote = "block"
)

// Valid reports whether v is one of the three known votes.
func (v Vote) Valid() bool {
	return v == VoteUp || v == VoteDown || v == VoteBlock
}

// VoteTally holds per-ad vote counts as reported by the feedback service.
type VoteTally struct {
	Up    int `json:"up"`
	Down  int `json:"down"`
	Block int `json:"block"`
}

// Total is the number of votes recorded for the ad.
func (t VoteTally) Total() int {
	return t.Up + t.Down + t.Block
}

// FeedbackEntry is one record of the server-side feedback history.
type FeedbackEntry struct {
	UserID   string `json:"user_id"`
	AdTitle  string `json:"ad_title"`
	Feedback Vote   `json:"feedback"`
	Emotion  string `json:"emotion,omitempty"`
}

// UserAnalytics is the per-user engagement snapshot from the analytics
// service.
type UserAnalytics struct {
	UserID            string  `json:"user_id"`
	EngagementRate    float64 `json:"engagement_rate"`
	TotalInteractions int     `json:"total_interactions"`
	PositiveFeedback  int     `json:"positive_feedback"`
	NegativeFeedback  int     `json:"negative_feedback"`
	BlockedAds        int     `json:"blocked_ads"`
}
