package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/mlespinoza1/swarm/internal/domain"
)

const (
	skMeta       = "META#"
	skPrefixStep = "STEP#"
	ttlDuration  = 90 * 24 * time.Hour // 90-day TTL
	maxSteps     = 99                  // TransactWriteItems caps at 100 items including META#
)

// ErrRunNotFound is returned by GetRun for unknown run IDs.
var ErrRunNotFound = errors.New("repository: run not found")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores run history in a single DynamoDB table.
//
// Layout: PK=RUN#<id>; SK=META# holds the run summary, SK=STEP#<nn> one item
// per step in execution order.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// runPK returns the partition key for a run.
func runPK(runID string) string {
	return "RUN#" + runID
}

// stepSK returns the sort key for the step at position i. Zero padding keeps
// lexical order equal to execution order.
func stepSK(i int) string {
	return fmt.Sprintf("%s%02d", skPrefixStep, i)
}

// SaveRun writes the run summary and all of its steps in one transaction.
func (c *Client) SaveRun(ctx context.Context, run domain.Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("repository: SaveRun: run ID is required")
	}
	if len(run.Steps) > maxSteps {
		return fmt.Errorf("repository: SaveRun: %d steps exceeds limit of %d", len(run.Steps), maxSteps)
	}

	ttl := c.now().Add(ttlDuration).Unix()
	items := make([]types.TransactWriteItem, 0, len(run.Steps)+1)
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(c.tableName),
			Item:      runItem(run, ttl),
		},
	})
	for i, step := range run.Steps {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(c.tableName),
				Item:      stepItem(run.ID, i, step, ttl),
			},
		})
	}

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return fmt.Errorf("repository: SaveRun: %w", err)
	}
	return nil
}

// GetRun loads a run summary and its steps in execution order.
func (c *Client) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return domain.Run{}, errors.New("repository: GetRun: run ID is required")
	}

	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: runPK(runID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Run{}, fmt.Errorf("repository: GetRun get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run, err := itemToRun(out.Item)
	if err != nil {
		return domain.Run{}, fmt.Errorf("repository: GetRun decode: %w", err)
	}

	steps, err := c.getSteps(ctx, runID)
	if err != nil {
		return domain.Run{}, err
	}
	run.Steps = steps
	return run, nil
}

func (c *Client) getSteps(ctx context.Context, runID string) ([]domain.Step, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: runPK(runID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixStep},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	var steps []domain.Step
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: GetRun query steps: %w", err)
		}
		for _, item := range out.Items {
			step, err := itemToStep(item)
			if err != nil {
				return nil, fmt.Errorf("repository: GetRun decode step: %w", err)
			}
			steps = append(steps, step)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return steps, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func runItem(run domain.Run, ttl int64) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: runPK(run.ID)},
		"SK":            &types.AttributeValueMemberS{Value: skMeta},
		"runId":         &types.AttributeValueMemberS{Value: run.ID},
		"status":        &types.AttributeValueMemberS{Value: run.Status},
		"startedAt":     &types.AttributeValueMemberS{Value: run.StartedAt.UTC().Format(time.RFC3339Nano)},
		"finishedAt":    &types.AttributeValueMemberS{Value: run.FinishedAt.UTC().Format(time.RFC3339Nano)},
		"outputPath":    &types.AttributeValueMemberS{Value: run.OutputPath},
		"backupCreated": &types.AttributeValueMemberBOOL{Value: run.BackupCreated},
		"stepCount":     &types.AttributeValueMemberN{Value: strconv.Itoa(len(run.Steps))},
		"ttl":           &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}
	// Failure attributes are only written for failed runs.
	if run.FailedStep != "" {
		item["failedStep"] = &types.AttributeValueMemberS{Value: run.FailedStep}
	}
	if run.ErrorCode != "" {
		item["errorCode"] = &types.AttributeValueMemberS{Value: run.ErrorCode}
	}
	if run.ErrorMessage != "" {
		item["errorMessage"] = &types.AttributeValueMemberS{Value: run.ErrorMessage}
	}
	return item
}

func stepItem(runID string, i int, step domain.Step, ttl int64) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: runPK(runID)},
		"SK":         &types.AttributeValueMemberS{Value: stepSK(i)},
		"name":       &types.AttributeValueMemberS{Value: step.Name},
		"status":     &types.AttributeValueMemberS{Value: step.Status},
		"durationMs": &types.AttributeValueMemberN{Value: strconv.FormatInt(step.Duration.Milliseconds(), 10)},
		"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
	}
	if step.Error != "" {
		item["error"] = &types.AttributeValueMemberS{Value: step.Error}
	}
	return item
}

// itemToRun converts a META# item to a Run without steps.
func itemToRun(item map[string]types.AttributeValue) (domain.Run, error) {
	id, err := strAttr(item, "runId")
	if err != nil {
		return domain.Run{}, err
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return domain.Run{}, err
	}
	started, err := timeAttr(item, "startedAt")
	if err != nil {
		return domain.Run{}, err
	}
	finished, err := timeAttr(item, "finishedAt")
	if err != nil {
		return domain.Run{}, err
	}
	outputPath, _ := strAttr(item, "outputPath") // allow empty
	failedStep, _ := strAttr(item, "failedStep")
	errorCode, _ := strAttr(item, "errorCode")
	errorMessage, _ := strAttr(item, "errorMessage")
	backup, _ := boolAttr(item, "backupCreated")

	return domain.Run{
		ID:            id,
		StartedAt:     started,
		FinishedAt:    finished,
		Status:        status,
		FailedStep:    failedStep,
		ErrorCode:     errorCode,
		ErrorMessage:  errorMessage,
		OutputPath:    outputPath,
		BackupCreated: backup,
	}, nil
}

func itemToStep(item map[string]types.AttributeValue) (domain.Step, error) {
	name, err := strAttr(item, "name")
	if err != nil {
		return domain.Step{}, err
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return domain.Step{}, err
	}
	ms, err := intAttr(item, "durationMs")
	if err != nil {
		return domain.Step{}, err
	}
	stepErr, _ := strAttr(item, "error") // allow empty
	return domain.Step{
		Name:     name,
		Status:   status,
		Duration: time.Duration(ms) * time.Millisecond,
		Error:    stepErr,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) (bool, error) {
	v, ok := item[key]
	if !ok {
		return false, fmt.Errorf("repository: missing attribute %q", key)
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, fmt.Errorf("repository: attribute %q is not a bool", key)
	}
	return b.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return ts, nil
}
