package database

import (
	"database/sql"
	"regexp"
	"strconv"
)

// Dialect defines the interface for database-specific operations
type Dialect interface {
	// DriverName returns the driver name for sql.Open
	DriverName() string

	// DSN returns the data source name for the connection
	DSN(config DialectConfig) string

	// RewriteQuery converts placeholder syntax if needed (e.g., ? to $1 for postgres)
	RewriteQuery(query string) string

	// ConfigureConnection applies any database-specific connection settings
	ConfigureConnection(db *sql.DB) error

	// MigrationsSubdir returns the subdirectory name for migrations (e.g., "sqlite", "postgres")
	MigrationsSubdir() string

	// CreateMigrationsTableQuery returns the SQL to create the migrations tracking table
	CreateMigrationsTableQuery() string

	// UpsertKVQuery stores a blob: args name, data, updated_at
	UpsertKVQuery() string

	// IncrementWordStatQuery adds one answer to a word_stats row, creating it if needed.
	// Args: identity, question_id, term, meaning, type, correct (0/1), wrong (0/1), last_played
	IncrementWordStatQuery() string

	// AddUserScoreQuery adds to the cumulative score: args identity, delta, last_played
	AddUserScoreQuery() string

	// IsPermissionDenied reports whether err is the driver's access-denied error
	IsPermissionDenied(err error) bool
}

// DialectConfig holds configuration for database connection
type DialectConfig struct {
	// For SQLite
	Path string

	// For PostgreSQL/MySQL
	URL string
}

// placeholderRegexp matches ? placeholders not inside quotes
var placeholderRegexp = regexp.MustCompile(`\?`)

// rewritePlaceholdersToNumbered converts ? placeholders to $1, $2, etc.
func rewritePlaceholdersToNumbered(query string) string {
	counter := 0
	return placeholderRegexp.ReplaceAllStringFunc(query, func(match string) string {
		counter++
		return "$" + strconv.Itoa(counter)
	})
}

// upsertOnConflict holds the statements shared by SQLite and PostgreSQL,
// which both understand ON CONFLICT ... DO UPDATE with excluded.
const (
	upsertKVOnConflict = `INSERT INTO kv_store (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`

	incrementWordStatOnConflict = `INSERT INTO word_stats
		(identity, question_id, term, meaning, type, total, correct, wrong, last_played)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (identity, question_id) DO UPDATE SET
			total = word_stats.total + 1,
			correct = word_stats.correct + excluded.correct,
			wrong = word_stats.wrong + excluded.wrong,
			term = excluded.term,
			meaning = excluded.meaning,
			type = excluded.type,
			last_played = excluded.last_played`

	addUserScoreOnConflict = `INSERT INTO user_stats (identity, total_score, last_played) VALUES (?, ?, ?)
		ON CONFLICT (identity) DO UPDATE SET
			total_score = user_stats.total_score + excluded.total_score,
			last_played = excluded.last_played`
)
