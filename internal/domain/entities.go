package domain

import (
	"context"
	"encoding/json"
	"errors"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")

	// ErrTokenLimitExceeded: the upstream truncated its output before producing parseable JSON.
	ErrTokenLimitExceeded = errors.New("response too long: token limit exceeded")
	// ErrMalformedResponse: JSON absent or unrepairable.
	ErrMalformedResponse = errors.New("malformed ai response")
	// ErrQuotaExceeded: the local daily budget check failed before any call was made.
	ErrQuotaExceeded = errors.New("daily quota exceeded")
	// ErrTransportFailure: the executor call itself failed (network, non-2xx, timeout).
	ErrTransportFailure = errors.New("upstream transport failure")
)

// Priority of a queued request.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityNormal || p == PriorityLow
}

// Kind identifies what an upstream request computes. Cache TTLs and executor prompts key off it.
type Kind string

const (
	KindComparison      Kind = "comparison"
	KindSpecs           Kind = "specs"
	KindMultiComparison Kind = "multi-comparison"
	KindCacheUpdate     Kind = "cache-update"
	KindPrice           Kind = "price"
	// Quick checks skip the line and use the direct path.
	KindCompatibility Kind = "compatibility"
	KindCompleteness  Kind = "completeness"
)

// Queueable reports whether k is accepted by the request queue.
func (k Kind) Queueable() bool {
	switch k {
	case KindComparison, KindSpecs, KindMultiComparison, KindCacheUpdate:
		return true
	}
	return false
}

// Source is the provenance tag of cached data.
type Source string

const (
	SourceAPI  Source = "api"
	SourceMock Source = "mock"
)

type Recommendation string

const (
	RecommendationUpgrade Recommendation = "upgrade"
	RecommendationKeep    Recommendation = "keep"
	RecommendationMaybe   Recommendation = "maybe"
)

type Improvement string

const (
	ImprovementBetter Improvement = "better"
	ImprovementWorse  Improvement = "worse"
	ImprovementSame   Improvement = "same"
)

// Payload is what an Executor receives. Prompt is always set by the orchestrator;
// the remaining fields describe the request for executors that need them (stub, logs).
type Payload struct {
	Prompt        string   `json:"prompt"`
	CurrentDevice string   `json:"currentDevice,omitempty"`
	NewDevice     string   `json:"newDevice,omitempty"`
	ProductName   string   `json:"productName,omitempty"`
	Products      []string `json:"products,omitempty"`
}

// ValuePair is the {value, technical} pair rendered for each side of a spec comparison.
type ValuePair struct {
	Value     string `json:"value"`
	Technical string `json:"technical"`
}

// SpecComparison is one per-category row of a comparison.
type SpecComparison struct {
	Category    string      `json:"category"`
	Subcategory string      `json:"subcategory,omitempty"`
	Current     ValuePair   `json:"current"`
	New         ValuePair   `json:"new"`
	Improvement Improvement `json:"improvement"`
	Score       int         `json:"score"`
	Details     string      `json:"details"`
}

// ComparisonResult is the canonical comparison schema consumed by rendering.
// Invariants: Score in [0,100]; Recommendation in {upgrade, keep, maybe}.
type ComparisonResult struct {
	CurrentDevice  string           `json:"currentDevice"`
	NewDevice      string           `json:"newDevice"`
	Recommendation Recommendation   `json:"recommendation"`
	Score          int              `json:"score"`
	Summary        string           `json:"summary"`
	Specs          []SpecComparison `json:"specs"`
}

// IncompatibleResult is returned when the compatibility probe rejects a pair.
type IncompatibleResult struct {
	IsIncompatible bool   `json:"isIncompatible"`
	CurrentDevice  string `json:"currentDevice"`
	NewDevice      string `json:"newDevice"`
	Category1      string `json:"category1"`
	Category2      string `json:"category2"`
	Explanation    string `json:"explanation"`
}

// CompatibilityVerdict is the normalized output of the compatibility probe.
type CompatibilityVerdict struct {
	Comparable bool   `json:"comparable"`
	Category1  string `json:"category1"`
	Category2  string `json:"category2"`
	Reason     string `json:"reason,omitempty"`
}

// CompletenessVerdict is the output of the detail-completeness probe.
type CompletenessVerdict struct {
	Complete1 bool   `json:"complete1"`
	Complete2 bool   `json:"complete2"`
	Missing1  string `json:"missing1,omitempty"`
	Missing2  string `json:"missing2,omitempty"`
}

// Complete reports whether both descriptions carry enough identifying detail.
func (v CompletenessVerdict) Complete() bool { return v.Complete1 && v.Complete2 }

// Provenance distinguishes fresh answers from cached ones. It travels beside the
// canonical result, never inside it.
type Provenance struct {
	Cached bool   `json:"cached"`
	AgeMs  int64  `json:"ageMs"`
	Source Source `json:"source"`
}

type OutcomeStatus string

const (
	OutcomeOK           OutcomeStatus = "ok"
	OutcomeIncompatible OutcomeStatus = "incompatible"
	// OutcomeNeedsDetails asks the caller to collect more precise device descriptions.
	OutcomeNeedsDetails OutcomeStatus = "needs_details"
)

// ComparisonOutcome is the tagged result of a comparison request.
type ComparisonOutcome struct {
	Status       OutcomeStatus        `json:"status"`
	Result       *ComparisonResult    `json:"result,omitempty"`
	Incompatible *IncompatibleResult  `json:"incompatible,omitempty"`
	Completeness *CompletenessVerdict `json:"completeness,omitempty"`
	Provenance   Provenance           `json:"provenance"`
}

// SpecsResult holds free-form specifications for a single product.
type SpecsResult struct {
	Product    string         `json:"product"`
	Specs      map[string]any `json:"specs"`
	Provenance Provenance     `json:"provenance"`
}

// ProductScore is one row of a multi-product comparison table.
type ProductScore struct {
	Name           string             `json:"name"`
	Scores         map[string]float64 `json:"scores"`
	OverallScore   float64            `json:"overallScore"`
	Recommendation string             `json:"recommendation"`
}

// MultiComparisonResult is the table produced for several products at once.
type MultiComparisonResult struct {
	Categories []string       `json:"categories"`
	Products   []ProductScore `json:"products"`
	Provenance Provenance     `json:"provenance"`
}

// Usage is the daily quota snapshot.
type Usage struct {
	Used       int `json:"used"`
	Remaining  int `json:"remaining"`
	Limit      int `json:"limit"`
	Percentage int `json:"percentage"`
}

// QueueSubmission is the body of POST /api/queue.
type QueueSubmission struct {
	Type     Kind     `json:"type" validate:"required,kind"`
	Data     Payload  `json:"data"`
	Priority Priority `json:"priority,omitempty" validate:"omitempty,oneof=high normal low"`
}

// IncrementResult is the body returned by POST /api/increment.
type IncrementResult struct {
	Allowed   bool `json:"allowed"`
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
	Limit     int  `json:"limit"`
}

// QueueStatus is the coarse queue snapshot shown to waiting callers. Durations are in milliseconds.
type QueueStatus struct {
	QueueLength       int   `json:"queueLength"`
	Position          int   `json:"position"`
	RequestsRemaining int   `json:"requestsRemaining"`
	TimeUntilReset    int64 `json:"timeUntilReset"`
	EstimatedWaitTime int64 `json:"estimatedWaitTime"`
}

// Ports

//go:generate mockery --name=Executor --structname=MockExecutor --filename=executor_mock.go
//go:generate mockery --name=QuotaGate --structname=MockQuotaGate --filename=quota_gate_mock.go
//go:generate mockery --name=KVStore --structname=MockKVStore --filename=kv_store_mock.go

// Executor performs the actual call to the generative-API provider and returns its raw payload.
type Executor interface {
	Execute(ctx Context, kind Kind, payload Payload) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx Context, kind Kind, payload Payload) (json.RawMessage, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx Context, kind Kind, payload Payload) (json.RawMessage, error) {
	return f(ctx, kind, payload)
}

// KVStore is the durable string key-value persistence used for quota state and cache snapshots.
// Get reports ok=false for absent keys.
type KVStore interface {
	Get(ctx Context, key string) (value string, ok bool, err error)
	Set(ctx Context, key, value string) error
	Delete(ctx Context, key string) error
}

// QuotaGate guards upstream calls with the daily budget.
type QuotaGate interface {
	Allow(ctx Context) (bool, error)
	Increment(ctx Context) error
	Usage(ctx Context) (Usage, error)
}

// Context is an alias so domain signatures read the same across adapters.
type Context = context.Context
