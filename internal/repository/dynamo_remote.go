package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"hayaoshi/internal/models"
	"hayaoshi/internal/storage"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoRemote
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Error codes returned by DynamoDB when IAM rejects a call
var dynamoDeniedCodes = map[string]bool{
	"AccessDeniedException":       true,
	"UnrecognizedClientException": true,
}

type dynamoRecord struct {
	Identity   string `dynamodbav:"identity"`
	PlayedAt   int64  `dynamodbav:"playedAt"`
	PlayedAtID string `dynamodbav:"playedAtId"`
	models.SessionRecord
}

// recordSortKey orders records by time and keeps records of the same
// millisecond apart
func recordSortKey(record models.SessionRecord) string {
	return fmt.Sprintf("%013d#%s", record.Timestamp.UnixMilli(), record.ID)
}

// DynamoRemote keeps records and stats in four DynamoDB tables:
//
//	<prefix>questions   pk id
//	<prefix>records     pk identity, sk playedAtId ("<unix ms, 13 digits>#<record id>")
//	<prefix>word_stats  pk identity, sk questionId
//	<prefix>user_stats  pk identity
//
// Counters are incremented with ADD update expressions; a round's word stats
// go through TransactWriteItems.
type DynamoRemote struct {
	client         DynamoAPI
	questionsTable string
	recordsTable   string
	wordStatsTable string
	userStatsTable string
}

// NewDynamoRemote loads the default AWS configuration for region
func NewDynamoRemote(ctx context.Context, region, tablePrefix string) (*DynamoRemote, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewDynamoRemoteWithClient(dynamodb.NewFromConfig(cfg), tablePrefix), nil
}

// NewDynamoRemoteWithClient uses an existing client
func NewDynamoRemoteWithClient(client DynamoAPI, tablePrefix string) *DynamoRemote {
	return &DynamoRemote{
		client:         client,
		questionsTable: tablePrefix + "questions",
		recordsTable:   tablePrefix + "records",
		wordStatsTable: tablePrefix + "word_stats",
		userStatsTable: tablePrefix + "user_stats",
	}
}

// FetchQuestions scans the question table
func (r *DynamoRemote) FetchQuestions(ctx context.Context) ([]models.Question, error) {
	var qs []models.Question
	input := &dynamodb.ScanInput{TableName: aws.String(r.questionsTable)}
	for {
		out, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, classifyDynamo("fetch_questions", err)
		}
		var page []models.Question
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to decode questions: %w", err)
		}
		qs = append(qs, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return qs, nil
}

// SeedQuestions puts every question, replacing items with the same id
func (r *DynamoRemote) SeedQuestions(ctx context.Context, qs []models.Question) (int, error) {
	for _, q := range qs {
		item, err := attributevalue.MarshalMap(q)
		if err != nil {
			return 0, fmt.Errorf("failed to encode question %s: %w", q.ID, err)
		}
		_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(r.questionsTable),
			Item:      item,
		})
		if err != nil {
			return 0, classifyDynamo("seed_questions", err)
		}
	}
	return len(qs), nil
}

// InsertRecord stores a finished round for identity
func (r *DynamoRemote) InsertRecord(ctx context.Context, identity string, record models.SessionRecord) error {
	item, err := attributevalue.MarshalMap(dynamoRecord{
		Identity:      identity,
		PlayedAt:      record.Timestamp.UnixMilli(),
		PlayedAtID:    recordSortKey(record),
		SessionRecord: record,
	})
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.recordsTable),
		Item:      item,
	})
	if err != nil {
		return classifyDynamo("insert_record", err)
	}
	return nil
}

// ListRecords queries the latest records of identity, newest first
func (r *DynamoRemote) ListRecords(ctx context.Context, identity string, limit int) ([]models.SessionRecord, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.recordsTable),
		KeyConditionExpression:    aws.String("#identity = :identity"),
		ExpressionAttributeNames:  map[string]string{"#identity": "identity"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":identity": &types.AttributeValueMemberS{Value: identity}},
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, classifyDynamo("list_records", err)
	}

	var docs []dynamoRecord
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	records := make([]models.SessionRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.SessionRecord)
	}
	return records, nil
}

// maxTransactItems is the DynamoDB limit on items in one transaction
const maxTransactItems = 100

// wordDelta is the counter change of one question within a round
type wordDelta struct {
	entry   models.AnswerLogEntry
	total   int
	correct int
	wrong   int
}

// IncrementWordStats applies a round's counters in one transaction. Rounds
// touching more than maxTransactItems questions are split, and a failed
// later transaction reports the entries already applied.
func (r *DynamoRemote) IncrementWordStats(ctx context.Context, identity string, details []models.AnswerLogEntry, at time.Time) error {
	lastPlayed, err := attributevalue.Marshal(at)
	if err != nil {
		return fmt.Errorf("failed to encode timestamp: %w", err)
	}

	applied := 0
	for applied < len(details) {
		deltas, n := aggregateWordDeltas(details[applied:], maxTransactItems)
		items := make([]types.TransactWriteItem, 0, len(deltas))
		for _, d := range deltas {
			items = append(items, types.TransactWriteItem{Update: r.wordStatUpdate(identity, d, lastPlayed)})
		}

		_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
		if err != nil {
			classified := classifyDynamo("increment_word_stats", err)
			if applied > 0 {
				return &storage.PartialWriteError{Applied: applied, Err: classified}
			}
			return classified
		}
		applied += n
	}
	return nil
}

// aggregateWordDeltas folds the leading entries of details into at most limit
// questions and returns how many entries were consumed
func aggregateWordDeltas(details []models.AnswerLogEntry, limit int) ([]wordDelta, int) {
	index := make(map[string]int)
	var deltas []wordDelta
	consumed := 0
	for _, d := range details {
		i, ok := index[d.QuestionID]
		if !ok {
			if len(deltas) == limit {
				break
			}
			i = len(deltas)
			index[d.QuestionID] = i
			deltas = append(deltas, wordDelta{})
		}
		deltas[i].entry = d
		deltas[i].total++
		if d.IsCorrect {
			deltas[i].correct++
		} else {
			deltas[i].wrong++
		}
		consumed++
	}
	return deltas, consumed
}

func (r *DynamoRemote) wordStatUpdate(identity string, d wordDelta, lastPlayed types.AttributeValue) *types.Update {
	return &types.Update{
		TableName: aws.String(r.wordStatsTable),
		Key: map[string]types.AttributeValue{
			"identity":   &types.AttributeValueMemberS{Value: identity},
			"questionId": &types.AttributeValueMemberS{Value: d.entry.QuestionID},
		},
		UpdateExpression: aws.String("ADD #total :total, #correct :correct, #wrong :wrong " +
			"SET #term = :term, #meaning = :meaning, #type = :type, #lastPlayed = :lastPlayed"),
		ExpressionAttributeNames: map[string]string{
			"#total":      "total",
			"#correct":    "correct",
			"#wrong":      "wrong",
			"#term":       "term",
			"#meaning":    "meaning",
			"#type":       "type",
			"#lastPlayed": "lastPlayed",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":total":      numberValue(d.total),
			":correct":    numberValue(d.correct),
			":wrong":      numberValue(d.wrong),
			":term":       &types.AttributeValueMemberS{Value: d.entry.Term},
			":meaning":    &types.AttributeValueMemberS{Value: d.entry.Meaning},
			":type":       &types.AttributeValueMemberS{Value: string(d.entry.Type)},
			":lastPlayed": lastPlayed,
		},
	}
}

// ListWordStats queries every word stat item of identity
func (r *DynamoRemote) ListWordStats(ctx context.Context, identity string) ([]models.WordStat, error) {
	stats := []models.WordStat{}
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.wordStatsTable),
		KeyConditionExpression:    aws.String("#identity = :identity"),
		ExpressionAttributeNames:  map[string]string{"#identity": "identity"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":identity": &types.AttributeValueMemberS{Value: identity}},
	}
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, classifyDynamo("list_word_stats", err)
		}
		var page []models.WordStat
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to decode word stats: %w", err)
		}
		stats = append(stats, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return stats, nil
}

// GetUserStats reads the cumulative score; unknown identities have zero stats
func (r *DynamoRemote) GetUserStats(ctx context.Context, identity string) (models.UserStats, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.userStatsTable),
		Key: map[string]types.AttributeValue{
			"identity": &types.AttributeValueMemberS{Value: identity},
		},
	})
	if err != nil {
		return models.UserStats{}, classifyDynamo("get_user_stats", err)
	}
	if len(out.Item) == 0 {
		return models.UserStats{}, nil
	}

	var stats models.UserStats
	if err := attributevalue.UnmarshalMap(out.Item, &stats); err != nil {
		return models.UserStats{}, fmt.Errorf("failed to decode user stats: %w", err)
	}
	return stats, nil
}

// AddUserScore adds delta with an ADD update expression and returns the new item
func (r *DynamoRemote) AddUserScore(ctx context.Context, identity string, delta int, at time.Time) (models.UserStats, error) {
	lastPlayed, err := attributevalue.Marshal(at)
	if err != nil {
		return models.UserStats{}, fmt.Errorf("failed to encode timestamp: %w", err)
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.userStatsTable),
		Key: map[string]types.AttributeValue{
			"identity": &types.AttributeValueMemberS{Value: identity},
		},
		UpdateExpression: aws.String("ADD #totalScore :delta SET #lastPlayed = :lastPlayed"),
		ExpressionAttributeNames: map[string]string{
			"#totalScore": "totalScore",
			"#lastPlayed": "lastPlayed",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":delta":      numberValue(delta),
			":lastPlayed": lastPlayed,
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return models.UserStats{}, classifyDynamo("add_user_score", err)
	}

	var stats models.UserStats
	if err := attributevalue.UnmarshalMap(out.Attributes, &stats); err != nil {
		return models.UserStats{}, fmt.Errorf("failed to decode user stats: %w", err)
	}
	return stats, nil
}

// Close is a no-op: the HTTP client is shared
func (r *DynamoRemote) Close(ctx context.Context) error {
	return nil
}

func numberValue(n int) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}
}

// classifyDynamo maps API error codes onto storage error kinds
func classifyDynamo(op string, err error) error {
	return storage.Classify(op, err, func(err error) bool {
		var apiErr smithy.APIError
		return errors.As(err, &apiErr) && dynamoDeniedCodes[apiErr.ErrorCode()]
	})
}
