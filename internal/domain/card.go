package domain

import "time"

// Status is the coarse learning bucket of a flashcard.
// It is derived from the card's interval and review count, never set by hand.
type Status string

const (
	StatusNew       Status = "new"
	StatusReviewing Status = "reviewing"
	StatusMastered  Status = "mastered"
)

// Review records a single review outcome.
type Review struct {
	Date    time.Time `json:"date"`
	Correct bool      `json:"correct"`
}

// Flashcard is a question/answer entry together with its scheduling state.
type Flashcard struct {
	ID       string `json:"id"`
	Front    string `json:"front"`
	Back     string `json:"back"`
	Context  string `json:"context,omitempty"`
	Deck     string `json:"deck,omitempty"`
	SourceID int64  `json:"source_id,omitempty"`

	Status      Status    `json:"status"`
	EaseFactor  float64   `json:"ease_factor"`
	Interval    int       `json:"interval"`
	ReviewCount int       `json:"review_count"`
	Reviews     []Review  `json:"reviews"`
	CreatedAt   time.Time `json:"created_at"`
}

// LastReview returns the most recent review, if any.
func (c Flashcard) LastReview() (Review, bool) {
	if len(c.Reviews) == 0 {
		return Review{}, false
	}
	return c.Reviews[len(c.Reviews)-1], true
}
