package models

import "time"

// QuestionType classifies a vocabulary question
type QuestionType string

const (
	QuestionTypeIdiom    QuestionType = "yojijukugo"
	QuestionTypeProverb  QuestionType = "kotowaza"
	QuestionTypeAphorism QuestionType = "kojiseigo"
)

// Valid reports whether t is one of the known question types
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeIdiom, QuestionTypeProverb, QuestionTypeAphorism:
		return true
	}
	return false
}

// Label returns the display label shown above a question
func (t QuestionType) Label() string {
	switch t {
	case QuestionTypeIdiom:
		return "四字熟語"
	case QuestionTypeProverb:
		return "ことわざ"
	default:
		return "故事成語"
	}
}

// Question is a single multiple-choice vocabulary question.
// Choices[0] is the correct answer; display order is shuffled separately.
type Question struct {
	ID      string       `json:"id" bson:"id" dynamodbav:"id"`
	Term    string       `json:"term" bson:"term" dynamodbav:"term"`
	Reading string       `json:"reading,omitempty" bson:"reading,omitempty" dynamodbav:"reading,omitempty"`
	Meaning string       `json:"meaning" bson:"meaning" dynamodbav:"meaning"`
	Type    QuestionType `json:"type" bson:"type" dynamodbav:"type"`
	Choices []string     `json:"choices" bson:"choices" dynamodbav:"choices"`
}

// Answer returns the correct choice
func (q Question) Answer() string {
	if len(q.Choices) == 0 {
		return ""
	}
	return q.Choices[0]
}

// AnswerLogEntry records the outcome of one answered or timed-out question
type AnswerLogEntry struct {
	QuestionID     string       `json:"questionId" bson:"question_id" dynamodbav:"questionId"`
	Term           string       `json:"term" bson:"term" dynamodbav:"term"`
	Meaning        string       `json:"meaning" bson:"meaning" dynamodbav:"meaning"`
	Type           QuestionType `json:"type" bson:"type" dynamodbav:"type"`
	IsCorrect      bool         `json:"isCorrect" bson:"is_correct" dynamodbav:"isCorrect"`
	ElapsedSeconds float64      `json:"elapsedSeconds" bson:"elapsed_seconds" dynamodbav:"elapsedSeconds"`
}

// SessionRecord is the finalized result of one round
type SessionRecord struct {
	ID             string           `json:"id" bson:"record_id" dynamodbav:"recordId"`
	Timestamp      time.Time        `json:"timestamp" bson:"timestamp" dynamodbav:"timestamp"`
	Score          int              `json:"score" bson:"score" dynamodbav:"score"`
	CorrectCount   int              `json:"correct" bson:"correct" dynamodbav:"correct"`
	TotalQuestions int              `json:"total" bson:"total" dynamodbav:"total"`
	Details        []AnswerLogEntry `json:"details" bson:"details" dynamodbav:"details"`
}

// UserStats holds the cumulative score for one identity
type UserStats struct {
	TotalScore int       `json:"totalScore" bson:"total_score" dynamodbav:"totalScore"`
	LastPlayed time.Time `json:"lastPlayed,omitempty" bson:"last_played" dynamodbav:"lastPlayed"`
}

// WordStat aggregates answers for one question across all rounds
type WordStat struct {
	QuestionID string       `json:"questionId" bson:"question_id" dynamodbav:"questionId"`
	Term       string       `json:"term" bson:"term" dynamodbav:"term"`
	Meaning    string       `json:"meaning" bson:"meaning" dynamodbav:"meaning"`
	Type       QuestionType `json:"type" bson:"type" dynamodbav:"type"`
	Total      int          `json:"total" bson:"total" dynamodbav:"total"`
	Correct    int          `json:"correct" bson:"correct" dynamodbav:"correct"`
	Wrong      int          `json:"wrong" bson:"wrong" dynamodbav:"wrong"`
	LastPlayed time.Time    `json:"lastPlayed" bson:"last_played" dynamodbav:"lastPlayed"`
}

// Accuracy returns the share of correct answers in percent
func (w WordStat) Accuracy() float64 {
	if w.Total == 0 {
		return 0
	}
	return float64(w.Correct) / float64(w.Total) * 100
}

// Reward is a cosmetic unlock tied to a cumulative score threshold
type Reward struct {
	Threshold   int    `json:"scoreThreshold"`
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Icon        string `json:"icon"`
}

// Location tells where a record ended up
type Location string

const (
	LocationRemote Location = "remote"
	LocationLocal  Location = "local"
)
