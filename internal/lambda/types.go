// Package lambda provides shared types and initialization for the admission
// Lambda handler.
package lambda

import "github.com/dwsmith1983/queuegate/pkg/types"

// AdmissionRequest is the input to the admission Lambda: a host snapshot
// and, optionally, the job definitions to evaluate it with. When Jobs is
// empty the jobs bundled with the function are used.
type AdmissionRequest struct {
	Jobs  []types.JobConfig `json:"jobs,omitempty"`
	State types.HostState   `json:"state"`
	// Pass runs a full scheduling pass: the default policy applies and
	// admitted items are started on free executors.
	Pass bool `json:"pass,omitempty"`
}

// ItemVerdict is the outcome for one queued item.
type ItemVerdict struct {
	ItemID  int64             `json:"itemId"`
	JobName string            `json:"jobName"`
	Verdict types.VerdictKind `json:"verdict"`
	Reason  string            `json:"reason,omitempty"`
}

// StartedBuild describes an item handed to an executor during a pass.
type StartedBuild struct {
	ItemID  int64  `json:"itemId"`
	JobName string `json:"jobName"`
	Node    string `json:"node"`
	Run     int    `json:"run"`
}

// AdmissionResponse is the output of the admission Lambda.
type AdmissionResponse struct {
	Verdicts []ItemVerdict  `json:"verdicts"`
	Started  []StartedBuild `json:"started,omitempty"`
	Recorded int64          `json:"recorded"`
}
