package dynamodb

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PK/SK prefix constants.
const (
	prefixJob      = "JOB#"
	prefixDecision = "DECISION#"
)

func jobPK(name string) string { return prefixJob + name }

// decisionSK sorts chronologically: decision IDs are ULIDs.
func decisionSK(id string) string { return prefixDecision + id }

func ttlEpoch(d time.Duration) int64 {
	return time.Now().Add(d).Unix()
}

func isExpired(epoch int64) bool {
	return epoch > 0 && time.Now().Unix() > epoch
}

// attributeStr extracts a string attribute from a DynamoDB item.
func attributeStr(item map[string]ddbtypes.AttributeValue, key string) (string, error) {
	av, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	var s string
	if err := attributevalue.Unmarshal(av, &s); err != nil {
		return "", fmt.Errorf("unmarshaling %q: %w", key, err)
	}
	return s, nil
}

// attributeInt extracts the "ttl" integer attribute from a DynamoDB item.
func attributeInt(item map[string]ddbtypes.AttributeValue) (int64, error) {
	av, ok := item["ttl"]
	if !ok {
		return 0, nil
	}
	var n int64
	if err := attributevalue.Unmarshal(av, &n); err != nil {
		return 0, fmt.Errorf("unmarshaling %q: %w", "ttl", err)
	}
	return n, nil
}
