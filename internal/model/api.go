package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes not already covered by
// a domain ErrorCode (see errors.go); used for transport-level failures
// (bad JSON, missing auth) that never reach the domain layer.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// PairBatchRequest is the request body for POST /comparison/batch.
type PairBatchRequest struct {
	MetricID  uuid.UUID     `json:"metric_id"`
	BatchSize int           `json:"batch_size"`
	Category  VoterCategory `json:"voter_category"`
}

// PairAssetResponse is the wire form of PairAsset.
type PairAssetResponse struct {
	SampleID string `json:"sample_id"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
}

// PairBatchItemResponse is the wire form of PairBatchItem.
type PairBatchItemResponse struct {
	Token            uuid.UUID            `json:"token"`
	MetricID         uuid.UUID            `json:"metric_id"`
	BuildDescription string               `json:"build_description"`
	Samples          [2]PairAssetResponse `json:"samples"`
}

// VoteRequest is the request body for POST /comparison/result.
type VoteRequest struct {
	Token        uuid.UUID            `json:"token"`
	OrderedRanks []OrderedRankRequest  `json:"ordered_ranks"`
}

// OrderedRankRequest is the wire form of one OrderedRank position.
type OrderedRankRequest struct {
	SampleIDs []uuid.UUID `json:"sample_ids"`
}

// VoteResponse is the response body for POST /comparison/result.
type VoteResponse struct {
	Sample1Model string `json:"sample_1_model"`
	Sample2Model string `json:"sample_2_model"`
}

// LeaderboardEntryResponse is the wire form of one LeaderboardEntry.
type LeaderboardEntryResponse struct {
	Kind        SubjectKind `json:"kind"`
	SubjectID   int64       `json:"subject_id"`
	SubjectName string      `json:"subject_name"`
	SubjectSlug *string     `json:"subject_slug,omitempty"`
	Rating      float64     `json:"rating"`
	Deviation   *float64    `json:"deviation,omitempty"`
	VoteCount   int64       `json:"vote_count"`
	WinCount    int64       `json:"win_count"`
	LossCount   int64       `json:"loss_count"`
	TieCount    int64       `json:"tie_count"`
	LastUpdated time.Time   `json:"last_updated"`
	TagID       *int64      `json:"tag_id,omitempty"`
	TagName     *string     `json:"tag_name,omitempty"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
	Uptime   int64  `json:"uptime_seconds"`
}
