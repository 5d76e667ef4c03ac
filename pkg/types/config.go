package types

import "time"

// ProjectConfig represents the top-level queuegate.yaml configuration.
type ProjectConfig struct {
	Sink      SinkType         `yaml:"sink"`
	DynamoDB  *DynamoDBConfig  `yaml:"dynamodb,omitempty"`
	Redis     *RedisConfig     `yaml:"redis,omitempty"`
	Watcher   *WatcherConfig   `yaml:"watcher,omitempty"`
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
	Log       *LogConfig       `yaml:"log,omitempty"`
	Recorder  *RecorderConfig  `yaml:"recorder,omitempty"`
	Alerts    []AlertConfig    `yaml:"alerts,omitempty"`
	JobDirs   []string         `yaml:"jobDirs,omitempty"`
	Jobs      []JobConfig      `yaml:"jobs,omitempty"`
}

// DynamoDBConfig holds DynamoDB connection and table settings.
type DynamoDBConfig struct {
	TableName    string `yaml:"tableName" json:"tableName"`
	Region       string `yaml:"region" json:"region"`
	Endpoint     string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	RetentionTTL string `yaml:"retentionTtl,omitempty" json:"retentionTtl,omitempty"`
	CreateTable  bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// RedisConfig holds Redis/Valkey connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
	StreamMax int64  `yaml:"streamMax,omitempty"`
}

// WatcherConfig configures the scheduling-pass loop.
type WatcherConfig struct {
	Interval string `yaml:"interval,omitempty" json:"interval,omitempty"`
	// StuckAfter raises an alert once per item that stays blocked longer
	// than this. Empty disables stuck alerts.
	StuckAfter string `yaml:"stuckAfter,omitempty" json:"stuckAfter,omitempty"`
}

// AlertConfig configures one alert destination.
type AlertConfig struct {
	Type     AlertType `yaml:"type"`
	URL      string    `yaml:"url,omitempty"`
	Path     string    `yaml:"path,omitempty"`
	TopicARN string    `yaml:"topicArn,omitempty"`
}

// TelemetryConfig selects OpenTelemetry exporters.
type TelemetryConfig struct {
	ServiceName    string       `yaml:"serviceName,omitempty"`
	MetricExporter ExporterType `yaml:"metricExporter,omitempty"`
	TraceExporter  ExporterType `yaml:"traceExporter,omitempty"`
	Endpoint       string       `yaml:"endpoint,omitempty"`
	Insecure       bool         `yaml:"insecure,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // "text" or "json"
}

// RecorderConfig tunes the asynchronous decision recorder.
type RecorderConfig struct {
	BufferSize    int    `yaml:"bufferSize,omitempty"`
	BlockedOnly   bool   `yaml:"blockedOnly,omitempty"`
	WriteTimeout  string `yaml:"writeTimeout,omitempty"`
	FailThreshold int    `yaml:"failThreshold,omitempty"`
	Cooldown      string `yaml:"cooldown,omitempty"`
}

// HostState is a point-in-time description of the host scheduler used to
// seed the in-memory model: job runs, the queue and the executors.
type HostState struct {
	Runs  map[string][]Run `yaml:"runs,omitempty" json:"runs,omitempty"`
	Queue []QueuedItem     `yaml:"queue,omitempty" json:"queue,omitempty"`
	Nodes []NodeState      `yaml:"nodes,omitempty" json:"nodes,omitempty"`
}

// QueuedItem describes a queue entry. Buildable entries already passed
// admission and wait for a free executor. EnqueuedAt keeps the caller's
// enqueue time so stuck detection survives a reseed; zero means now.
type QueuedItem struct {
	Job        string    `yaml:"job" json:"job"`
	Buildable  bool      `yaml:"buildable,omitempty" json:"buildable,omitempty"`
	EnqueuedAt time.Time `yaml:"enqueuedAt,omitempty" json:"enqueuedAt,omitempty"`
}

// NodeState describes a worker node and what its executors are running.
type NodeState struct {
	Name      string          `yaml:"name" json:"name"`
	Executors []ExecutorState `yaml:"executors,omitempty" json:"executors,omitempty"`
	OneOff    []ExecutorState `yaml:"oneOff,omitempty" json:"oneOff,omitempty"`
}

// ExecutorState describes one execution slot. An empty Job means idle.
type ExecutorState struct {
	Job string `yaml:"job,omitempty" json:"job,omitempty"`
}
