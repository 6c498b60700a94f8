package database

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

func TestDialectSQLite(t *testing.T) {
	dialect := NewSQLiteDialect()

	t.Run("DriverName", func(t *testing.T) {
		result := dialect.DriverName()
		expected := "sqlite3"
		if result != expected {
			t.Errorf("DriverName() = %v, want %v", result, expected)
		}
	})

	t.Run("MigrationsSubdir", func(t *testing.T) {
		result := dialect.MigrationsSubdir()
		expected := "sqlite"
		if result != expected {
			t.Errorf("MigrationsSubdir() = %v, want %v", result, expected)
		}
	})
}

func TestDialectPostgreSQL(t *testing.T) {
	dialect := NewPostgresDialect()

	t.Run("DriverName", func(t *testing.T) {
		result := dialect.DriverName()
		expected := "postgres"
		if result != expected {
			t.Errorf("DriverName() = %v, want %v", result, expected)
		}
	})

	t.Run("MigrationsSubdir", func(t *testing.T) {
		result := dialect.MigrationsSubdir()
		expected := "postgres"
		if result != expected {
			t.Errorf("MigrationsSubdir() = %v, want %v", result, expected)
		}
	})

	t.Run("AddUserScoreQuery placeholders", func(t *testing.T) {
		result := dialect.RewriteQuery(dialect.AddUserScoreQuery())
		if !strings.Contains(result, "VALUES ($1, $2, $3)") {
			t.Errorf("rewritten query = %v, want numbered placeholders", result)
		}
	})
}

func TestDialectMySQL(t *testing.T) {
	dialect := NewMySQLDialect()

	t.Run("DriverName", func(t *testing.T) {
		result := dialect.DriverName()
		expected := "mysql"
		if result != expected {
			t.Errorf("DriverName() = %v, want %v", result, expected)
		}
	})

	t.Run("MigrationsSubdir", func(t *testing.T) {
		result := dialect.MigrationsSubdir()
		expected := "mysql"
		if result != expected {
			t.Errorf("MigrationsSubdir() = %v, want %v", result, expected)
		}
	})

	t.Run("IncrementWordStatQuery is additive", func(t *testing.T) {
		result := dialect.IncrementWordStatQuery()
		if !strings.Contains(result, "total = total + 1") {
			t.Errorf("IncrementWordStatQuery() = %v, want server side increment", result)
		}
	})
}

func TestRewriteQuery(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		query    string
		expected string
	}{
		{
			name:     "SQLite no change",
			dialect:  NewSQLiteDialect(),
			query:    "SELECT * FROM records WHERE id = ?",
			expected: "SELECT * FROM records WHERE id = ?",
		},
		{
			name:     "PostgreSQL single placeholder",
			dialect:  NewPostgresDialect(),
			query:    "SELECT * FROM records WHERE id = ?",
			expected: "SELECT * FROM records WHERE id = $1",
		},
		{
			name:     "PostgreSQL multiple placeholders",
			dialect:  NewPostgresDialect(),
			query:    "INSERT INTO kv_store (name, data) VALUES (?, ?)",
			expected: "INSERT INTO kv_store (name, data) VALUES ($1, $2)",
		},
		{
			name:     "MySQL no change",
			dialect:  NewMySQLDialect(),
			query:    "UPDATE user_stats SET total_score = ? WHERE identity = ?",
			expected: "UPDATE user_stats SET total_score = ? WHERE identity = ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.dialect.RewriteQuery(tt.query)
			if result != tt.expected {
				t.Errorf("RewriteQuery() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestIsPermissionDenied(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		err      error
		expected bool
	}{
		{
			name:     "PostgreSQL insufficient privilege",
			dialect:  NewPostgresDialect(),
			err:      fmt.Errorf("insert: %w", &pq.Error{Code: "42501"}),
			expected: true,
		},
		{
			name:     "PostgreSQL unique violation",
			dialect:  NewPostgresDialect(),
			err:      &pq.Error{Code: "23505"},
			expected: false,
		},
		{
			name:     "MySQL table access denied",
			dialect:  NewMySQLDialect(),
			err:      &mysql.MySQLError{Number: 1142},
			expected: true,
		},
		{
			name:     "MySQL duplicate entry",
			dialect:  NewMySQLDialect(),
			err:      &mysql.MySQLError{Number: 1062},
			expected: false,
		},
		{
			name:     "SQLite read only",
			dialect:  NewSQLiteDialect(),
			err:      sqlite3.Error{Code: sqlite3.ErrReadonly},
			expected: true,
		},
		{
			name:     "SQLite busy",
			dialect:  NewSQLiteDialect(),
			err:      sqlite3.Error{Code: sqlite3.ErrBusy},
			expected: false,
		},
		{
			name:     "plain error",
			dialect:  NewPostgresDialect(),
			err:      errors.New("permission denied"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.dialect.IsPermissionDenied(tt.err); result != tt.expected {
				t.Errorf("IsPermissionDenied() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	content := `
		CREATE TABLE a (id INTEGER);

		CREATE INDEX idx_a ON a (id);
	`
	expected := []string{"CREATE TABLE a (id INTEGER)", "CREATE INDEX idx_a ON a (id)"}
	if result := splitStatements(content); !reflect.DeepEqual(result, expected) {
		t.Errorf("splitStatements() = %q, want %q", result, expected)
	}
}
