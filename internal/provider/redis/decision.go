package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/queuegate/pkg/types"
)

func (p *RedisProvider) decisionKey(jobName string) string {
	return p.prefix + "decisions:" + jobName
}

// AppendDecision adds a decision to the job's stream, trimming it to the
// configured length.
func (p *RedisProvider) AppendDecision(ctx context.Context, d types.Decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	err = p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: p.decisionKey(d.JobName),
		MaxLen: p.streamMax,
		Approx: true,
		Values: map[string]interface{}{
			"verdict": string(d.Verdict),
			"data":    string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd decision for %q: %w", d.JobName, err)
	}
	return nil
}

// ListDecisions returns recent decisions for a job in chronological order.
func (p *RedisProvider) ListDecisions(ctx context.Context, jobName string, limit int) ([]types.Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	msgs, err := p.client.XRevRangeN(ctx, p.decisionKey(jobName), "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, err
	}

	decisions := make([]types.Decision, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var d types.Decision
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			continue
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}
