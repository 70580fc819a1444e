package model

import "github.com/google/uuid"

// PairAsset is one sample's rendered artifact reference handed back in a
// pair-batch response.
type PairAsset struct {
	SampleID   int64
	SampleUUID uuid.UUID
	Bucket     string
	Key        string
}

// PairTokenPayload is what TokenStore holds for a live token: enough to
// validate and record a vote without re-deriving the pair. Metric/TestSet
// are carried so VoteRecorder never has to trust client-supplied values.
type PairTokenPayload struct {
	MetricID    int64
	MetricUUID  uuid.UUID
	TestSetID   int64
	SampleID1   int64
	SampleUUID1 uuid.UUID
	SampleID2   int64
	SampleUUID2 uuid.UUID
}

// PairBatchItem is one pair returned by PairSelector.selectBatch, ready for
// the external HTTP transport to serialize.
type PairBatchItem struct {
	Token            uuid.UUID
	MetricUUID       uuid.UUID
	BuildDescription string
	Assets           [2]PairAsset
}

// OrderedRank is one position in a submitted ranking: either a single
// sample (strict placement) or a set of tied samples. Positions are
// ordered best-first.
type OrderedRank struct {
	SampleUUIDs []uuid.UUID
}

// VoteResult is returned to the caller of VoteRecorder.RecordVote: the two
// model display names in the order of the original token's samples.
type VoteResult struct {
	Sample1Model string
	Sample2Model string
}
