package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hayaoshi/internal/database"
	"hayaoshi/internal/models"
	"hayaoshi/internal/storage"
)

// SQLRemote keeps records and stats in a shared SQL database (PostgreSQL or
// MySQL in production). Counters are incremented by the database itself.
type SQLRemote struct {
	db *database.DB
}

// NewSQLRemote creates a remote store on db. Migrations must have been run.
func NewSQLRemote(db *database.DB) *SQLRemote {
	return &SQLRemote{db: db}
}

func (r *SQLRemote) classify(op string, err error) error {
	return storage.Classify(op, err, r.db.Dialect.IsPermissionDenied)
}

// FetchQuestions returns the shared question set
func (r *SQLRemote) FetchQuestions(ctx context.Context) ([]models.Question, error) {
	query := `SELECT id, term, reading, meaning, type, choices FROM questions ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, r.classify("fetch_questions", err)
	}
	defer rows.Close()

	var qs []models.Question
	for rows.Next() {
		var q models.Question
		var choices string
		if err := rows.Scan(&q.ID, &q.Term, &q.Reading, &q.Meaning, &q.Type, &choices); err != nil {
			return nil, r.classify("fetch_questions", err)
		}
		if err := json.Unmarshal([]byte(choices), &q.Choices); err != nil {
			return nil, fmt.Errorf("question %s has invalid choices: %w", q.ID, err)
		}
		qs = append(qs, q)
	}
	if err := rows.Err(); err != nil {
		return nil, r.classify("fetch_questions", err)
	}
	return qs, nil
}

// SeedQuestions inserts or replaces the question set
func (r *SQLRemote) SeedQuestions(ctx context.Context, qs []models.Question) (int, error) {
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		for _, q := range qs {
			choices, err := json.Marshal(q.Choices)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, q.ID); err != nil {
				return err
			}
			query := `INSERT INTO questions (id, term, reading, meaning, type, choices) VALUES (?, ?, ?, ?, ?, ?)`
			if _, err := tx.ExecContext(ctx, query, q.ID, q.Term, q.Reading, q.Meaning, q.Type, string(choices)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, r.classify("seed_questions", err)
	}
	return len(qs), nil
}

// InsertRecord stores a finished round for identity
func (r *SQLRemote) InsertRecord(ctx context.Context, identity string, record models.SessionRecord) error {
	details, err := json.Marshal(record.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}

	query := `
		INSERT INTO records (id, identity, played_at, score, correct, total, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		record.ID, identity, record.Timestamp.UnixMilli(),
		record.Score, record.CorrectCount, record.TotalQuestions, string(details))
	return r.classify("insert_record", err)
}

// ListRecords returns the latest records of identity, newest first
func (r *SQLRemote) ListRecords(ctx context.Context, identity string, limit int) ([]models.SessionRecord, error) {
	query := `
		SELECT id, played_at, score, correct, total, details
		FROM records
		WHERE identity = ?
		ORDER BY played_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, identity, limit)
	if err != nil {
		return nil, r.classify("list_records", err)
	}
	defer rows.Close()

	records := []models.SessionRecord{}
	for rows.Next() {
		var rec models.SessionRecord
		var playedAt int64
		var details string
		if err := rows.Scan(&rec.ID, &playedAt, &rec.Score, &rec.CorrectCount, &rec.TotalQuestions, &details); err != nil {
			return nil, r.classify("list_records", err)
		}
		rec.Timestamp = time.UnixMilli(playedAt)
		if err := json.Unmarshal([]byte(details), &rec.Details); err != nil {
			return nil, fmt.Errorf("record %s has invalid details: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, r.classify("list_records", err)
	}
	return records, nil
}

// IncrementWordStats adds every answer to its word_stats row in one transaction
func (r *SQLRemote) IncrementWordStats(ctx context.Context, identity string, details []models.AnswerLogEntry, at time.Time) error {
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		query := tx.GetDialect().IncrementWordStatQuery()
		for _, d := range details {
			correct, wrong := 0, 1
			if d.IsCorrect {
				correct, wrong = 1, 0
			}
			_, err := tx.ExecContext(ctx, query,
				identity, d.QuestionID, d.Term, d.Meaning, d.Type, correct, wrong, at.UnixMilli())
			if err != nil {
				return err
			}
		}
		return nil
	})
	return r.classify("increment_word_stats", err)
}

// ListWordStats returns every word_stats row of identity
func (r *SQLRemote) ListWordStats(ctx context.Context, identity string) ([]models.WordStat, error) {
	query := `
		SELECT question_id, term, meaning, type, total, correct, wrong, last_played
		FROM word_stats
		WHERE identity = ?
	`
	rows, err := r.db.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, r.classify("list_word_stats", err)
	}
	defer rows.Close()

	stats := []models.WordStat{}
	for rows.Next() {
		var ws models.WordStat
		var lastPlayed int64
		if err := rows.Scan(&ws.QuestionID, &ws.Term, &ws.Meaning, &ws.Type, &ws.Total, &ws.Correct, &ws.Wrong, &lastPlayed); err != nil {
			return nil, r.classify("list_word_stats", err)
		}
		ws.LastPlayed = time.UnixMilli(lastPlayed)
		stats = append(stats, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, r.classify("list_word_stats", err)
	}
	return stats, nil
}

// GetUserStats reads the cumulative score of identity; unknown identities have zero stats
func (r *SQLRemote) GetUserStats(ctx context.Context, identity string) (models.UserStats, error) {
	return r.getUserStats(ctx, r.db, identity)
}

func (r *SQLRemote) getUserStats(ctx context.Context, q database.DBTX, identity string) (models.UserStats, error) {
	var stats models.UserStats
	var lastPlayed int64
	query := `SELECT total_score, last_played FROM user_stats WHERE identity = ?`
	err := q.QueryRowContext(ctx, query, identity).Scan(&stats.TotalScore, &lastPlayed)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserStats{}, nil
	}
	if err != nil {
		return models.UserStats{}, r.classify("get_user_stats", err)
	}
	stats.LastPlayed = time.UnixMilli(lastPlayed)
	return stats, nil
}

// AddUserScore increments the cumulative score and returns the new value
func (r *SQLRemote) AddUserScore(ctx context.Context, identity string, delta int, at time.Time) (models.UserStats, error) {
	var stats models.UserStats
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.GetDialect().AddUserScoreQuery(), identity, delta, at.UnixMilli()); err != nil {
			return err
		}
		var err error
		stats, err = r.getUserStats(ctx, tx, identity)
		return err
	})
	if err != nil {
		return models.UserStats{}, r.classify("add_user_score", err)
	}
	return stats, nil
}

// Close closes the database connection
func (r *SQLRemote) Close(ctx context.Context) error {
	return r.db.Close()
}
