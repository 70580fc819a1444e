package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mc-bench/scoring-core/internal/ctxutil"
	"github.com/mc-bench/scoring-core/internal/identity"
	"github.com/mc-bench/scoring-core/internal/leaderboard"
	"github.com/mc-bench/scoring-core/internal/model"
	"github.com/mc-bench/scoring-core/internal/selector"
	"github.com/mc-bench/scoring-core/internal/storage"
	"github.com/mc-bench/scoring-core/internal/vote"
)

// MaxRequestBodyBytes caps the size of any JSON request body this API
// accepts.
const MaxRequestBodyBytes = 64 * 1024

// Handlers holds the subsystem services the HTTP transport wraps.
type Handlers struct {
	selector    *selector.Selector
	recorder    *vote.Recorder
	leaderboard *leaderboard.Service
	logger      *slog.Logger
	startedAt   time.Time
	version     string
	db          *storage.DB
}

// HandlersDeps wires a Handlers against its collaborators.
type HandlersDeps struct {
	Selector    *selector.Selector
	Recorder    *vote.Recorder
	Leaderboard *leaderboard.Service
	DB          *storage.DB
	Logger      *slog.Logger
	Version     string
}

// NewHandlers constructs a Handlers.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		selector:    deps.Selector,
		recorder:    deps.Recorder,
		leaderboard: deps.Leaderboard,
		db:          deps.DB,
		logger:      deps.Logger,
		startedAt:   time.Now(),
		version:     deps.Version,
	}
}

// HandleHealth reports basic liveness, including a Postgres ping.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "ok"
	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "unreachable"
	}
	writeJSON(w, r, http.StatusOK, model.HealthResponse{
		Status:   "ok",
		Version:  h.version,
		Postgres: pgStatus,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandlePairBatch implements POST /comparison/batch (spec §4.1).
func (h *Handlers) HandlePairBatch(w http.ResponseWriter, r *http.Request) {
	var req model.PairBatchRequest
	if err := decodeJSON(r, &req, MaxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "malformed request body")
		return
	}

	items, err := h.selector.SelectBatch(r.Context(), req.MetricID, req.BatchSize, req.Category)
	if err != nil {
		h.writeDomainOrInternalError(w, r, "pair batch selection failed", err)
		return
	}

	resp := make([]model.PairBatchItemResponse, len(items))
	for i, item := range items {
		resp[i] = model.PairBatchItemResponse{
			Token:            item.Token,
			MetricID:         item.MetricUUID,
			BuildDescription: item.BuildDescription,
			Samples: [2]model.PairAssetResponse{
				{SampleID: item.Assets[0].SampleUUID.String(), Bucket: item.Assets[0].Bucket, Key: item.Assets[0].Key},
				{SampleID: item.Assets[1].SampleUUID.String(), Bucket: item.Assets[1].Bucket, Key: item.Assets[1].Key},
			},
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleVote implements POST /comparison/result (spec §4.3).
func (h *Handlers) HandleVote(w http.ResponseWriter, r *http.Request) {
	var req model.VoteRequest
	if err := decodeJSON(r, &req, MaxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "malformed request body")
		return
	}

	ranks := make([]model.OrderedRank, len(req.OrderedRanks))
	for i, pos := range req.OrderedRanks {
		ranks[i] = model.OrderedRank{SampleUUIDs: pos.SampleIDs}
	}

	ident := h.resolveIdentity(r)
	result, err := h.recorder.RecordVote(r.Context(), req.Token, ranks, ident)
	if err != nil {
		h.writeDomainOrInternalError(w, r, "vote recording failed", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.VoteResponse{
		Sample1Model: result.Sample1Model,
		Sample2Model: result.Sample2Model,
	})
}

// HandleLeaderboard implements GET /leaderboard/{system} (spec §4.6).
func (h *Handlers) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	system := model.RatingSystem(r.PathValue("system"))
	if system != model.RatingSystemElo && system != model.RatingSystemGlicko {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown rating system")
		return
	}

	kind := model.SubjectKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = model.SubjectKindModel
	}

	metricID, err := uuid.Parse(r.URL.Query().Get("metric_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "metric_id must be a UUID")
		return
	}
	testSetID, err := uuid.Parse(r.URL.Query().Get("test_set_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "test_set_id must be a UUID")
		return
	}

	var tagID *uuid.UUID
	if raw := r.URL.Query().Get("tag_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "tag_id must be a UUID")
			return
		}
		tagID = &parsed
	}

	entries, err := h.leaderboard.List(r.Context(), leaderboard.Query{
		Kind:              kind,
		System:            system,
		MetricExternalID:  metricID,
		TestSetExternalID: testSetID,
		TagExternalID:     tagID,
	})
	if err != nil {
		h.writeDomainOrInternalError(w, r, "leaderboard read failed", err)
		return
	}

	resp := make([]model.LeaderboardEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = model.LeaderboardEntryResponse{
			Kind: e.Kind, SubjectID: e.SubjectID, SubjectName: e.SubjectName, SubjectSlug: e.SubjectSlug,
			Rating: e.Rating, Deviation: e.Deviation, VoteCount: e.VoteCount, WinCount: e.WinCount,
			LossCount: e.LossCount, TieCount: e.TieCount, LastUpdated: e.LastUpdated,
			TagID: e.TagID, TagName: e.TagName,
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// resolveIdentity builds the caller's vote.Identity from whatever the
// middleware chain attached: JWT claims for authenticated callers, or a
// bare session/identification-token pair for anonymous ones.
func (h *Handlers) resolveIdentity(r *http.Request) vote.Identity {
	sessionID := r.Header.Get("X-Session-ID")
	if claims := ctxutil.ClaimsFromContext(r.Context()); claims != nil {
		return identity.ResolveAuthenticated(claims, sessionID)
	}

	var identificationTokenID *int64
	if raw := r.Header.Get("X-Identification-Token-Id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			identificationTokenID = &id
		}
	}
	return identity.ResolveAnonymous(identificationTokenID, sessionID)
}

// writeDomainOrInternalError maps a *model.DomainError to its HTTP status via
// CodeOf; anything else is logged and returned as a generic 500 (spec §7).
func (h *Handlers) writeDomainOrInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if code, ok := model.CodeOf(err); ok {
		writeError(w, r, statusForCode(code), string(code), err.Error())
		return
	}
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
}

// statusForCode maps a DomainError's code to its HTTP status per spec §6/§7:
// the pair-batch endpoint distinguishes 400 (invalid metric/batch size) from
// 406 (batch size above the cap) and 500 (no default test-set mapping
// configured for the voter category); the vote endpoint treats token
// lifecycle errors as 404 and referential/validation errors as 4xx.
func statusForCode(code model.ErrorCode) int {
	switch code {
	case model.ErrCodeInvalidMetric, model.ErrCodeInvalidBatchSize,
		model.ErrCodeMalformedToken, model.ErrCodeRanksInvalid, model.ErrCodeTestSetMismatch:
		return http.StatusBadRequest
	case model.ErrCodeBatchSizeExceedsCap:
		return http.StatusNotAcceptable
	case model.ErrCodeNoDefaultTestSet:
		return http.StatusInternalServerError
	case model.ErrCodeTokenUnknownOrDead, model.ErrCodeSamplesNotFound:
		return http.StatusNotFound
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
