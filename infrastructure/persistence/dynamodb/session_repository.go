package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/config"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

const (
	sessionSK         = "META"
	entityTypeSession = "SESSION"
)

// API is the subset of the DynamoDB client the repository uses
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Metrics records repository calls
type Metrics interface {
	RecordDBOperation(operation, table string, duration time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordDBOperation(string, string, time.Duration, error) {}

// SessionRepository stores one item per session in a single table:
//
//	PK     SESSION#<id>
//	SK     META
//	GSI1PK USER#<userID>
//	GSI1SK <updatedAt, unix millis, zero padded>
//
// The remaining attributes are the session snapshot. The version
// attribute guards every write.
type SessionRepository struct {
	client    API
	tableName string
	indexName string
	cfg       *config.DomainConfig
	metrics   Metrics
	logger    *zap.Logger
}

// NewSessionRepository creates a DynamoDB backed session repository
func NewSessionRepository(client API, tableName, indexName string, cfg *config.DomainConfig, metrics Metrics, logger *zap.Logger) *SessionRepository {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &SessionRepository{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

func sessionPK(id valueobjects.SessionID) string {
	return "SESSION#" + id.String()
}

func userPK(userID string) string {
	return "USER#" + userID
}

func recencyKey(t time.Time) string {
	return fmt.Sprintf("%015d", t.UTC().UnixMilli())
}

func sessionKey(id valueobjects.SessionID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK(id)},
		"SK": &types.AttributeValueMemberS{Value: sessionSK},
	}
}

func (r *SessionRepository) toItem(snap aggregates.SessionSnapshot) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	id := valueobjects.SessionID(snap.ID)
	for k, v := range sessionKey(id) {
		item[k] = v
	}
	item["GSI1PK"] = &types.AttributeValueMemberS{Value: userPK(snap.UserID)}
	item["GSI1SK"] = &types.AttributeValueMemberS{Value: recencyKey(snap.UpdatedAt)}
	item["EntityType"] = &types.AttributeValueMemberS{Value: entityTypeSession}
	return item, nil
}

func (r *SessionRepository) fromItem(item map[string]types.AttributeValue) (*aggregates.Session, error) {
	var snap aggregates.SessionSnapshot
	if err := attributevalue.UnmarshalMap(item, &snap); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal session", err)
	}
	return aggregates.RestoreSession(snap, r.cfg)
}

// Save writes the session if the stored version still equals the
// version the session was loaded at
func (r *SessionRepository) Save(ctx context.Context, session *aggregates.Session) (err error) {
	start := time.Now()
	defer func() { r.metrics.RecordDBOperation("put", r.tableName, time.Since(start), err) }()

	snap := session.Snapshot()
	snap.Version = session.Version() + 1

	item, err := r.toItem(snap)
	if err != nil {
		return pkgerrors.NewDatabaseError("save session", err)
	}

	var condition expression.ConditionBuilder
	if session.Version() == 0 {
		condition = expression.Name("PK").AttributeNotExists()
	} else {
		condition = expression.Name("version").Equal(expression.Value(session.Version()))
	}
	expr, err := expression.NewBuilder().WithCondition(condition).Build()
	if err != nil {
		return pkgerrors.NewDatabaseError("save session", fmt.Errorf("failed to build expression: %w", err))
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(r.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return aggregates.VersionConflict(session.ID(), session.Version())
		}
		return classify("save session", err)
	}

	session.MarkPersisted()

	r.logger.Debug("Session saved",
		zap.String("sessionID", session.ID().String()),
		zap.Int("version", session.Version()),
	)
	return nil
}

// GetByID retrieves a session by its ID
func (r *SessionRepository) GetByID(ctx context.Context, id valueobjects.SessionID) (session *aggregates.Session, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordDBOperation("get", r.tableName, time.Since(start), err) }()

	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            sessionKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classify("get session", err)
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("session")
	}
	return r.fromItem(out.Item)
}

// ListByUser queries the user index newest first
func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) (sessions []*aggregates.Session, err error) {
	start := time.Now()
	defer func() { r.metrics.RecordDBOperation("query", r.tableName, time.Since(start), err) }()

	keyCond := expression.Key("GSI1PK").Equal(expression.Value(userPK(userID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("list sessions", fmt.Errorf("failed to build expression: %w", err))
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	sessions = make([]*aggregates.Session, 0)
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, classify("list sessions", err)
		}
		for _, item := range out.Items {
			s, err := r.fromItem(item)
			if err != nil {
				r.logger.Warn("Skipping unreadable session item",
					zap.String("userID", userID),
					zap.Error(err),
				)
				continue
			}
			sessions = append(sessions, s)
		}
		if len(out.LastEvaluatedKey) == 0 || (limit > 0 && len(sessions) >= limit) {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// Delete removes a session
func (r *SessionRepository) Delete(ctx context.Context, id valueobjects.SessionID) (err error) {
	start := time.Now()
	defer func() { r.metrics.RecordDBOperation("delete", r.tableName, time.Since(start), err) }()

	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return pkgerrors.NewDatabaseError("delete session", fmt.Errorf("failed to build expression: %w", err))
	}

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      sessionKey(id),
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewNotFoundError("session")
		}
		return classify("delete session", err)
	}
	return nil
}

// Ping checks the table is reachable
func (r *SessionRepository) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.tableName)})
	if err != nil {
		return classify("describe table", err)
	}
	return nil
}

// classify maps DynamoDB API errors onto application errors
func classify(operation string, err error) error {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return pkgerrors.NewDatabaseError(operation, err)
	}

	switch ae.ErrorCode() {
	case "ResourceNotFoundException":
		return pkgerrors.NewUnavailableError("dynamodb").WithCause(err)
	case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
		return pkgerrors.NewRateLimitError("session store is throttling requests").WithCause(err)
	case "TransactionConflictException":
		return pkgerrors.NewConflictError("session is being modified").
			WithCode("TRANSACTION_CONFLICT").
			WithCause(err)
	default:
		return pkgerrors.NewDatabaseError(operation, err)
	}
}
