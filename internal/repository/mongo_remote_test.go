package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"hayaoshi/internal/storage"
)

func TestClassifyMongo(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want storage.ErrorKind
	}{
		{name: "nil", err: nil, want: storage.KindNone},
		{name: "unauthorized", err: mongo.CommandError{Code: 13, Message: "not authorized"}, want: storage.KindPermissionDenied},
		{name: "wrapped auth failure", err: fmt.Errorf("insert: %w", mongo.CommandError{Code: 18}), want: storage.KindPermissionDenied},
		{name: "duplicate key", err: mongo.CommandError{Code: 11000}, want: storage.KindUnknown},
		{name: "deadline", err: context.DeadlineExceeded, want: storage.KindTimeout},
		{name: "plain", err: errors.New("boom"), want: storage.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := storage.KindOf(classifyMongo("op", tt.err)); got != tt.want {
				t.Errorf("KindOf(classifyMongo()) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppliedBeforeFailure(t *testing.T) {
	bulkErr := func(indexes ...int) error {
		var writeErrs []mongo.BulkWriteError
		for _, i := range indexes {
			writeErrs = append(writeErrs, mongo.BulkWriteError{WriteError: mongo.WriteError{Index: i, Code: 11000}})
		}
		return mongo.BulkWriteException{WriteErrors: writeErrs}
	}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "first write failed", err: bulkErr(0), want: 0},
		{name: "third write failed", err: bulkErr(2), want: 2},
		{name: "earliest index wins", err: bulkErr(4, 1), want: 1},
		{name: "wrapped", err: fmt.Errorf("bulk: %w", bulkErr(3)), want: 3},
		{name: "write concern only", err: mongo.BulkWriteException{}, want: 0},
		{name: "network", err: errors.New("connection reset"), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := appliedBeforeFailure(tt.err); got != tt.want {
				t.Errorf("appliedBeforeFailure() = %d, want %d", got, tt.want)
			}
		})
	}
}
