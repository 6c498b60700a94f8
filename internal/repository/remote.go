package repository

import (
	"context"
	"fmt"

	"hayaoshi/internal/config"
	"hayaoshi/internal/database"
	"hayaoshi/internal/models"
	"hayaoshi/internal/storage"
)

// QuestionSeeder is implemented by remote stores that can load a question set
type QuestionSeeder interface {
	SeedQuestions(ctx context.Context, qs []models.Question) (int, error)
}

// OpenRemote connects the remote store selected by REMOTE_ENGINE. It returns
// nil without error when no remote engine is configured.
func OpenRemote(ctx context.Context, cfg *config.Config) (storage.RemoteStore, error) {
	switch cfg.RemoteEngine {
	case config.RemoteNone, "":
		return nil, nil
	case config.RemoteSQL:
		db, err := database.InitializeWithConfig(cfg)
		if err != nil {
			return nil, err
		}
		return NewSQLRemote(db), nil
	case config.RemoteMongo:
		r, err := NewMongoRemote(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.RemoteDynamoDB:
		r, err := NewDynamoRemote(ctx, cfg.AWSRegion, cfg.DynamoTablePrefix)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported remote engine: %s", cfg.RemoteEngine)
	}
}
