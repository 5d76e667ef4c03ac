package types

import "fmt"

// Result is the completion outcome of a run. Results form a total order by
// severity: SUCCESS < UNSTABLE < FAILURE < NOT_BUILT < ABORTED.
type Result string

// Result values, from least to most severe.
const (
	ResultSuccess  Result = "SUCCESS"
	ResultUnstable Result = "UNSTABLE"
	ResultFailure  Result = "FAILURE"
	ResultNotBuilt Result = "NOT_BUILT"
	ResultAborted  Result = "ABORTED"
)

var resultOrdinals = map[Result]int{
	ResultSuccess:  0,
	ResultUnstable: 1,
	ResultFailure:  2,
	ResultNotBuilt: 3,
	ResultAborted:  4,
}

// Ordinal returns the severity rank of r, or -1 for an unknown result.
func (r Result) Ordinal() int {
	if o, ok := resultOrdinals[r]; ok {
		return o
	}
	return -1
}

// Valid reports whether r is a known result.
func (r Result) Valid() bool { return r.Ordinal() >= 0 }

// IsWorseOrEqualTo reports whether r is at least as severe as other.
// Unknown results are never worse than anything.
func (r Result) IsWorseOrEqualTo(other Result) bool {
	if !r.Valid() || !other.Valid() {
		return false
	}
	return r.Ordinal() >= other.Ordinal()
}

// ThresholdResults lists the results a condition threshold may take.
var ThresholdResults = []Result{ResultSuccess, ResultUnstable, ResultFailure}

// ParseThreshold parses a condition threshold. An empty string selects the
// default threshold, UNSTABLE.
func ParseThreshold(s string) (Result, error) {
	if s == "" {
		return ResultUnstable, nil
	}
	r := Result(s)
	for _, t := range ThresholdResults {
		if r == t {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid result threshold %q: must be one of %v", s, ThresholdResults)
}

// VerdictKind is the three-way outcome of an admission decision.
type VerdictKind string

// VerdictKind values.
const (
	VerdictProceed      VerdictKind = "PROCEED"
	VerdictForceUnblock VerdictKind = "FORCE_UNBLOCK"
	VerdictBlock        VerdictKind = "BLOCK"
)

// ConditionType is the registry tag of a condition variant.
type ConditionType string

// Built-in condition types.
const (
	ConditionBuilding ConditionType = "building"
	ConditionResult   ConditionType = "result"
	ConditionRegex    ConditionType = "regex"
)

// ItemKind classifies an entry in the job hierarchy.
type ItemKind string

// ItemKind values. Folders are containers and cannot be built.
const (
	KindFreestyle  ItemKind = "freestyle"
	KindMatrix     ItemKind = "matrix"
	KindMatrixCell ItemKind = "matrix-cell"
	KindPipeline   ItemKind = "pipeline"
	KindFolder     ItemKind = "folder"
)

// Buildable reports whether items of this kind produce runs.
func (k ItemKind) Buildable() bool {
	switch k {
	case KindFreestyle, KindMatrix, KindMatrixCell, KindPipeline:
		return true
	default:
		return false
	}
}

// SinkType selects the decision audit backend.
type SinkType string

// SinkType values.
const (
	SinkMemory   SinkType = "memory"
	SinkDynamoDB SinkType = "dynamodb"
	SinkRedis    SinkType = "redis"
)

// ExporterType selects an OpenTelemetry exporter.
type ExporterType string

// ExporterType values.
const (
	ExporterNone     ExporterType = "none"
	ExporterOTLPGRPC ExporterType = "otlpGrpc"
)

// AlertType selects an alert destination.
type AlertType string

// AlertType values.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
	AlertSNS     AlertType = "sns"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

// AlertLevel values.
const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)
