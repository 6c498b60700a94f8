package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers for rejected access
const (
	mysqlDBAccessDenied    = 1044
	mysqlAccessDenied      = 1045
	mysqlTableAccessDenied = 1142
)

// MySQLDialect implements Dialect for MySQL
type MySQLDialect struct{}

// NewMySQLDialect creates a new MySQL dialect
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

func (d *MySQLDialect) DSN(config DialectConfig) string {
	return config.URL
}

func (d *MySQLDialect) RewriteQuery(query string) string {
	// MySQL uses ? placeholders like SQLite, no rewrite needed
	return query
}

func (d *MySQLDialect) ConfigureConnection(db *sql.DB) error {
	// Configure connection pool for MySQL
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
	return nil
}

func (d *MySQLDialect) MigrationsSubdir() string {
	return "mysql"
}

func (d *MySQLDialect) CreateMigrationsTableQuery() string {
	return `
		CREATE TABLE IF NOT EXISTS migrations (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			filename VARCHAR(255) UNIQUE NOT NULL,
			executed_at DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6)
		);
	`
}

func (d *MySQLDialect) UpsertKVQuery() string {
	return "INSERT INTO kv_store (name, data, updated_at) VALUES (?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE data = VALUES(data), updated_at = VALUES(updated_at)"
}

func (d *MySQLDialect) IncrementWordStatQuery() string {
	return "INSERT INTO word_stats " +
		"(identity, question_id, term, meaning, type, total, correct, wrong, last_played) " +
		"VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE total = total + 1, correct = correct + VALUES(correct), " +
		"wrong = wrong + VALUES(wrong), term = VALUES(term), meaning = VALUES(meaning), " +
		"type = VALUES(type), last_played = VALUES(last_played)"
}

func (d *MySQLDialect) AddUserScoreQuery() string {
	return "INSERT INTO user_stats (identity, total_score, last_played) VALUES (?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE total_score = total_score + VALUES(total_score), " +
		"last_played = VALUES(last_played)"
}

func (d *MySQLDialect) IsPermissionDenied(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	switch myErr.Number {
	case mysqlDBAccessDenied, mysqlAccessDenied, mysqlTableAccessDenied:
		return true
	}
	return false
}
