package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/queuegate/pkg/types"
)

// AppendDecision writes a decision to the job's partition.
func (p *DynamoDBProvider) AppendDecision(ctx context.Context, d types.Decision) error {
	if d.ID == "" {
		d.ID = ulid.Make().String()
	}
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}

	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":      &ddbtypes.AttributeValueMemberS{Value: jobPK(d.JobName)},
			"SK":      &ddbtypes.AttributeValueMemberS{Value: decisionSK(d.ID)},
			"verdict": &ddbtypes.AttributeValueMemberS{Value: string(d.Verdict)},
			"data":    &ddbtypes.AttributeValueMemberS{Value: string(data)},
			"ttl":     &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(p.retentionTTL))},
		},
	})
	if err != nil {
		return fmt.Errorf("put decision %s: %w", d.ID, err)
	}
	return nil
}

// ListDecisions returns recent decisions for a job in chronological order.
func (p *DynamoDBProvider) ListDecisions(ctx context.Context, jobName string, limit int) ([]types.Decision, error) {
	if limit <= 0 {
		limit = 50
	}

	// Query newest-first, then reverse for chronological order.
	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: jobPK(jobName)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixDecision},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, err
	}

	decisions := make([]types.Decision, 0, len(out.Items))
	for i := len(out.Items) - 1; i >= 0; i-- {
		item := out.Items[i]
		ttlVal, _ := attributeInt(item)
		if isExpired(ttlVal) {
			continue
		}
		data, err := attributeStr(item, "data")
		if err != nil {
			p.logger.Warn("skipping corrupt decision data", "error", err)
			continue
		}
		var d types.Decision
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			p.logger.Warn("skipping corrupt decision data", "error", err)
			continue
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}
