package domain

import "time"

// RatingRecord is a single user's vote for a location. It is never updated once stored.
type RatingRecord struct {
	Category     Category       `json:"category"`
	City         string         `json:"city"`
	LocationName string         `json:"locationName"`
	Scores       map[string]int `json:"scores"`
	Opinion      string         `json:"opinion"`
	UserID       string         `json:"userId"`
	SubmittedAt  time.Time      `json:"submittedAt"`
}

// Opinion is a free-text comment together with the exact location that received it.
type Opinion struct {
	LocationName string    `json:"locationName"`
	Text         string    `json:"text"`
	UserID       string    `json:"-"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// AggregateGroup summarises every record for one location in the current scope.
type AggregateGroup struct {
	LocationName      string             `json:"locationName"`
	City              string             `json:"city"`
	Category          Category           `json:"category"`
	Records           []RatingRecord     `json:"-"`
	VoteCount         int                `json:"voteCount"`
	CriterionAverages map[string]float64 `json:"criterionAverages"`
	Overall           float64            `json:"overall"`
	Specialty         string             `json:"specialty,omitempty"`
	Opinions          []Opinion          `json:"opinions"`
}
