package lambda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dwsmith1983/queuegate/internal/alert"
	"github.com/dwsmith1983/queuegate/internal/config"
	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/internal/provider/dynamodb"
	"github.com/dwsmith1983/queuegate/internal/provider/memory"
	"github.com/dwsmith1983/queuegate/internal/recorder"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// Deps holds shared dependencies for the admission handler.
type Deps struct {
	Sink     provider.DecisionSink
	Recorder recorder.Options
	Jobs     []types.JobConfig
	Watcher  types.WatcherConfig
	AlertFn  func(context.Context, types.Alert)
	Logger   *slog.Logger
}

// Init creates shared dependencies from environment variables.
// Reads: TABLE_NAME, AWS_REGION, RETENTION_TTL, SNS_TOPIC_ARN, STUCK_AFTER,
// CONFIG_DIR, LOG_LEVEL
func Init(ctx context.Context) (*Deps, error) {
	logger, err := config.NewLogger(&types.LogConfig{
		Level:  envOrDefault("LOG_LEVEL", "info"),
		Format: "json",
	}, os.Stderr)
	if err != nil {
		return nil, err
	}

	d := &Deps{
		Logger:  logger,
		Watcher: types.WatcherConfig{StuckAfter: os.Getenv("STUCK_AFTER")},
	}

	if tableName := os.Getenv("TABLE_NAME"); tableName != "" {
		region := os.Getenv("AWS_REGION")
		if region == "" {
			return nil, fmt.Errorf("AWS_REGION environment variable required")
		}
		prov, err := dynamodb.New(&types.DynamoDBConfig{
			TableName:    tableName,
			Region:       region,
			RetentionTTL: envOrDefault("RETENTION_TTL", "168h"),
		})
		if err != nil {
			return nil, fmt.Errorf("creating DynamoDB provider: %w", err)
		}
		prov.SetLogger(logger)
		d.Sink = prov
	} else {
		logger.Warn("TABLE_NAME not set; decisions are kept in memory only")
		d.Sink = memory.NewSink(0)
	}

	if topicARN := os.Getenv("SNS_TOPIC_ARN"); topicARN != "" {
		dispatcher, err := alert.NewDispatcher([]types.AlertConfig{{Type: types.AlertSNS, TopicARN: topicARN}}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating alert dispatcher: %w", err)
		}
		d.AlertFn = dispatcher.AlertFunc()
	} else {
		d.AlertFn = func(_ context.Context, a types.Alert) {
			logger.Info("alert", "level", a.Level, "job", a.JobName, "item", a.ItemID, "message", a.Message)
		}
	}

	configDir := envOrDefault("CONFIG_DIR", "/var/task")
	if _, err := os.Stat(filepath.Join(configDir, config.FileName)); err == nil {
		cfg, err := config.Load(configDir)
		if err != nil {
			return nil, fmt.Errorf("loading bundled config: %w", err)
		}
		d.Jobs = cfg.Jobs
		if d.Recorder, err = recorder.OptionsFromConfig(cfg.Recorder); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading bundled config: %w", err)
	}

	if err := d.Sink.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting sink: %w", err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
