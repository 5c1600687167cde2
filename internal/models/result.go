package models

import "time"

// Token is one recognized word. Confidence is -1 when the engine reported no usable value.
type Token struct {
	Text       string `json:"text"`
	Confidence int    `json:"confidence"`
}

// Aggregate summarizes token confidences. Only tokens with confidence > 0 count.
type Aggregate struct {
	Mean  float64 `json:"mean"`
	Min   int     `json:"min"`
	Max   int     `json:"max"`
	Valid int     `json:"valid"`
}

// Defined reports whether at least one token had a usable confidence.
func (a Aggregate) Defined() bool {
	return a.Valid > 0
}

// RecognitionResult is the output of recognizing one page image.
type RecognitionResult struct {
	Page       *PageImage    `json:"page"`
	RawText    string        `json:"-"`
	Text       string        `json:"text"`
	Tokens     []Token       `json:"-"`
	Confidence Aggregate     `json:"confidence"`
	WordCount  int           `json:"word_count"`
	Engine     string        `json:"engine"`
	Duration   time.Duration `json:"duration"`
}
