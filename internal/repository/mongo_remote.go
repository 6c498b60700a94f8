package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"hayaoshi/internal/models"
	"hayaoshi/internal/storage"
)

// MongoDB server error codes treated as a rejected write
const (
	mongoUnauthorized         = 13
	mongoAuthenticationFailed = 18
)

type mongoRecord struct {
	Identity             string `bson:"identity"`
	models.SessionRecord `bson:",inline"`
}

type mongoWordStat struct {
	Identity        string `bson:"identity"`
	models.WordStat `bson:",inline"`
}

// MongoRemote keeps records and stats in MongoDB, one document per record,
// per (identity, question) and per identity. Counters use $inc.
type MongoRemote struct {
	client    *mongo.Client
	questions *mongo.Collection
	records   *mongo.Collection
	wordStats *mongo.Collection
	userStats *mongo.Collection
}

// NewMongoRemote connects to uri and prepares the collections in dbName
func NewMongoRemote(ctx context.Context, uri, dbName string) (*MongoRemote, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	r := newMongoRemote(client, client.Database(dbName))
	if err := r.InitializeIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return r, nil
}

func newMongoRemote(client *mongo.Client, db *mongo.Database) *MongoRemote {
	return &MongoRemote{
		client:    client,
		questions: db.Collection("questions"),
		records:   db.Collection("records"),
		wordStats: db.Collection("word_stats"),
		userStats: db.Collection("user_stats"),
	}
}

// InitializeIndexes creates the indexes the queries rely on
func (r *MongoRemote) InitializeIndexes(ctx context.Context) error {
	_, err := r.records.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "identity", Value: 1},
			{Key: "timestamp", Value: -1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create record indexes: %w", err)
	}

	_, err = r.wordStats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "identity", Value: 1},
			{Key: "question_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create word stat indexes: %w", err)
	}

	_, err = r.userStats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "identity", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create user stat indexes: %w", err)
	}
	return nil
}

// FetchQuestions returns the shared question set
func (r *MongoRemote) FetchQuestions(ctx context.Context) ([]models.Question, error) {
	cursor, err := r.questions.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, classifyMongo("fetch_questions", err)
	}
	defer cursor.Close(ctx)

	var qs []models.Question
	if err := cursor.All(ctx, &qs); err != nil {
		return nil, classifyMongo("fetch_questions", err)
	}
	return qs, nil
}

// SeedQuestions upserts the question set by id
func (r *MongoRemote) SeedQuestions(ctx context.Context, qs []models.Question) (int, error) {
	for _, q := range qs {
		_, err := r.questions.ReplaceOne(ctx, bson.M{"id": q.ID}, q, options.Replace().SetUpsert(true))
		if err != nil {
			return 0, classifyMongo("seed_questions", err)
		}
	}
	return len(qs), nil
}

// InsertRecord stores a finished round for identity
func (r *MongoRemote) InsertRecord(ctx context.Context, identity string, record models.SessionRecord) error {
	_, err := r.records.InsertOne(ctx, mongoRecord{Identity: identity, SessionRecord: record})
	if err != nil {
		return classifyMongo("insert_record", err)
	}
	return nil
}

// ListRecords returns the latest records of identity, newest first
func (r *MongoRemote) ListRecords(ctx context.Context, identity string, limit int) ([]models.SessionRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.records.Find(ctx, bson.M{"identity": identity}, opts)
	if err != nil {
		return nil, classifyMongo("list_records", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoRecord
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongo("list_records", err)
	}

	records := make([]models.SessionRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.SessionRecord)
	}
	return records, nil
}

// IncrementWordStats upserts one document per answered question with $inc.
// The bulk write is ordered, so a failure leaves a known prefix applied.
func (r *MongoRemote) IncrementWordStats(ctx context.Context, identity string, details []models.AnswerLogEntry, at time.Time) error {
	if len(details) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(details))
	for _, d := range details {
		correct, wrong := 0, 1
		if d.IsCorrect {
			correct, wrong = 1, 0
		}
		update := bson.M{
			"$inc": bson.M{"total": 1, "correct": correct, "wrong": wrong},
			"$set": bson.M{
				"term":        d.Term,
				"meaning":     d.Meaning,
				"type":        d.Type,
				"last_played": at,
			},
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"identity": identity, "question_id": d.QuestionID}).
			SetUpdate(update).
			SetUpsert(true))
	}

	if _, err := r.wordStats.BulkWrite(ctx, writes); err != nil {
		classified := classifyMongo("increment_word_stats", err)
		if applied := appliedBeforeFailure(err); applied > 0 {
			return &storage.PartialWriteError{Applied: applied, Err: classified}
		}
		return classified
	}
	return nil
}

// appliedBeforeFailure counts the writes of an ordered bulk write that
// succeeded before the first write error
func appliedBeforeFailure(err error) int {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return 0
	}
	first := bwe.WriteErrors[0].Index
	for _, we := range bwe.WriteErrors[1:] {
		if we.Index < first {
			first = we.Index
		}
	}
	return first
}

// ListWordStats returns every word stat document of identity
func (r *MongoRemote) ListWordStats(ctx context.Context, identity string) ([]models.WordStat, error) {
	cursor, err := r.wordStats.Find(ctx, bson.M{"identity": identity})
	if err != nil {
		return nil, classifyMongo("list_word_stats", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoWordStat
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongo("list_word_stats", err)
	}

	stats := make([]models.WordStat, 0, len(docs))
	for _, doc := range docs {
		stats = append(stats, doc.WordStat)
	}
	return stats, nil
}

// GetUserStats reads the cumulative score; unknown identities have zero stats
func (r *MongoRemote) GetUserStats(ctx context.Context, identity string) (models.UserStats, error) {
	var stats models.UserStats
	err := r.userStats.FindOne(ctx, bson.M{"identity": identity}).Decode(&stats)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.UserStats{}, nil
	}
	if err != nil {
		return models.UserStats{}, classifyMongo("get_user_stats", err)
	}
	return stats, nil
}

// AddUserScore increments total_score with $inc and returns the updated document
func (r *MongoRemote) AddUserScore(ctx context.Context, identity string, delta int, at time.Time) (models.UserStats, error) {
	update := bson.M{
		"$inc": bson.M{"total_score": delta},
		"$set": bson.M{"last_played": at},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stats models.UserStats
	err := r.userStats.FindOneAndUpdate(ctx, bson.M{"identity": identity}, update, opts).Decode(&stats)
	if err != nil {
		return models.UserStats{}, classifyMongo("add_user_score", err)
	}
	return stats, nil
}

// Close disconnects the client
func (r *MongoRemote) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// classifyMongo maps driver errors onto storage error kinds
func classifyMongo(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case mongo.IsTimeout(err):
		return storage.NewError(op, storage.KindTimeout, err)
	case mongo.IsNetworkError(err):
		return storage.NewError(op, storage.KindRemoteUnavailable, err)
	}
	return storage.Classify(op, err, isMongoDenied)
}

func isMongoDenied(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorCode(mongoUnauthorized) || se.HasErrorCode(mongoAuthenticationFailed)
}
