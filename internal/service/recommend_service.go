package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/hamori-app/hamori/internal/flow"
	"github.com/hamori-app/hamori/internal/models"
	"github.com/hamori-app/hamori/internal/recommend"
	"github.com/hamori-app/hamori/internal/storage"
	"github.com/hamori-app/hamori/internal/voice"
	"github.com/hamori-app/hamori/pkg/api"
)

// Ensure RecommendService implements the handler interface
var _ api.RecommendServiceHandler = (*RecommendService)(nil)

var (
	// ErrFlowNotFound is returned for unknown or expired flow IDs.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrLocationDenied is returned when the device refused location access.
	ErrLocationDenied = errors.New("location permission denied")

	// ErrLocationRequired is returned when no location accompanies a search.
	ErrLocationRequired = errors.New("location is required")
)

const (
	// FlowTTL is how long an untouched flow is kept.
	FlowTTL = 30 * time.Minute

	// PhotoMaxWidth is the width requested for candidate photos.
	PhotoMaxWidth = 400
)

// RecommendService exposes voice transcription, tag analysis and
// restaurant recommendation. Calls that carry a flow ID are recorded on
// that flow; a call without one starts a new flow.
type RecommendService struct {
	store    storage.Store
	pipeline *voice.Pipeline
	engine   *recommend.Engine
	render   restaurantRenderer

	mu    sync.Mutex
	flows map[string]*flowEntry
}

type flowEntry struct {
	flow     *flow.Flow
	lastUsed time.Time
}

// NewRecommendService creates a RecommendService. photos may be nil, in
// which case restaurants carry no photo URL.
func NewRecommendService(store storage.Store, pipeline *voice.Pipeline, engine *recommend.Engine, photos PhotoLinker, directions DirectionsLinker) *RecommendService {
	return &RecommendService{
		store:    store,
		pipeline: pipeline,
		engine:   engine,
		render:   restaurantRenderer{photos: photos, directions: directions, photoWidth: PhotoMaxWidth},
		flows:    make(map[string]*flowEntry),
	}
}

// flowFor returns the flow for id, creating one when id is empty.
func (s *RecommendService) flowFor(id string) (string, *flow.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if id == "" {
		s.evictLocked(now)
		id = uuid.New().String()
		s.flows[id] = &flowEntry{flow: flow.New(), lastUsed: now}
		return id, s.flows[id].flow, nil
	}

	e, ok := s.flows[id]
	if !ok {
		return "", nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("%w: %s", ErrFlowNotFound, id))
	}
	e.lastUsed = now
	return id, e.flow, nil
}

func (s *RecommendService) evictLocked(now time.Time) {
	for id, e := range s.flows {
		if now.Sub(e.lastUsed) > FlowTTL {
			delete(s.flows, id)
		}
	}
}

// groupContext loads the prompt context for groupID; empty means none.
func (s *RecommendService) groupContext(ctx context.Context, groupID string) (*models.GroupContext, error) {
	if groupID == "" {
		return nil, nil
	}
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, storeError(err)
	}
	return group.Context(), nil
}

func staleError(err error) error {
	if errors.Is(err, flow.ErrStale) {
		return connect.NewError(connect.CodeAborted, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// Transcribe converts a recorded clip to text. Provider failures return the
// failure sentinel with Failed set rather than an error.
func (s *RecommendService) Transcribe(ctx context.Context, req *connect.Request[api.TranscribeRequest]) (*connect.Response[api.TranscribeResponse], error) {
	slog.Info("Transcribe request received", "audio_bytes", len(req.Msg.Audio), "flow_id", req.Msg.FlowId)

	flowID, f, err := s.flowFor(req.Msg.FlowId)
	if err != nil {
		return nil, err
	}
	ticket := f.Begin()

	result, err := s.pipeline.Transcribe(ctx, req.Msg.Audio, req.Msg.Filename)
	if err != nil {
		if errors.Is(err, voice.ErrMissingCredential) {
			return nil, connect.NewError(connect.CodeFailedPrecondition, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	if err := f.ApplyText(ticket, result.Text); err != nil {
		return nil, staleError(err)
	}

	return connect.NewResponse(&api.TranscribeResponse{
		Text:   result.Text,
		Failed: result.Failed,
		FlowId: flowID,
	}), nil
}

// AnalyzeText extracts search tags from free text.
func (s *RecommendService) AnalyzeText(ctx context.Context, req *connect.Request[api.AnalyzeTextRequest]) (*connect.Response[api.AnalyzeTextResponse], error) {
	slog.Info("AnalyzeText request received", "group_id", req.Msg.GroupId, "flow_id", req.Msg.FlowId)

	group, err := s.groupContext(ctx, req.Msg.GroupId)
	if err != nil {
		return nil, err
	}
	flowID, f, err := s.flowFor(req.Msg.FlowId)
	if err != nil {
		return nil, err
	}
	if group != nil {
		f.SelectGroup(group)
	}
	ticket := f.Begin()
	if err := f.ApplyText(ticket, req.Msg.Text); err != nil {
		return nil, staleError(err)
	}

	tags, err := s.pipeline.Analyze(ctx, req.Msg.Text, f.Snapshot().Group)
	if err != nil {
		slog.Warn("AnalyzeText failed", "flow_id", flowID, "error", err)
		switch {
		case errors.Is(err, voice.ErrEmptyText):
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		case errors.Is(err, voice.ErrAnalysisFailed):
			return nil, connect.NewError(connect.CodeUnavailable, voice.ErrAnalysisFailed)
		default:
			return nil, connect.NewError(connect.CodeInternal, err)
		}
	}

	if err := f.ApplyTags(ticket, tags); err != nil {
		return nil, staleError(err)
	}

	return connect.NewResponse(&api.AnalyzeTextResponse{
		Tags:            toAPITags(tags),
		TagDescriptions: tagDescriptions(tags),
		FlowId:          flowID,
	}), nil
}

// Recommend searches near the caller and returns the best restaurant plus
// the ranked pool.
func (s *RecommendService) Recommend(ctx context.Context, req *connect.Request[api.RecommendRequest]) (*connect.Response[api.RecommendResponse], error) {
	slog.Info("Recommend request received",
		"tags_count", len(req.Msg.Tags),
		"group_id", req.Msg.GroupId,
		"flow_id", req.Msg.FlowId,
	)

	if req.Msg.LocationDenied {
		return nil, connect.NewError(connect.CodePermissionDenied, ErrLocationDenied)
	}
	if req.Msg.Location == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, ErrLocationRequired)
	}

	group, err := s.groupContext(ctx, req.Msg.GroupId)
	if err != nil {
		return nil, err
	}
	flowID, f, err := s.flowFor(req.Msg.FlowId)
	if err != nil {
		return nil, err
	}
	if group != nil {
		f.SelectGroup(group)
	}
	ticket := f.Begin()

	result, err := s.engine.Recommend(ctx, recommend.Request{
		Tags:     fromAPITags(req.Msg.Tags),
		Location: models.Location{Latitude: req.Msg.Location.Latitude, Longitude: req.Msg.Location.Longitude},
		Group:    f.Snapshot().Group,
	})
	if err != nil {
		if errors.Is(err, recommend.ErrNoTags) {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	if err := f.ApplyResult(ticket, result); err != nil {
		return nil, staleError(err)
	}

	out := s.render.result(result)
	out.FlowId = flowID
	return connect.NewResponse(out), nil
}

// GetFlow returns what a flow currently holds.
func (s *RecommendService) GetFlow(ctx context.Context, req *connect.Request[api.GetFlowRequest]) (*connect.Response[api.GetFlowResponse], error) {
	flowID, f, err := s.flowFor(req.Msg.FlowId)
	if err != nil {
		return nil, err
	}
	state := f.Snapshot()

	out := &api.GetFlowResponse{
		FlowId:          flowID,
		Generation:      state.Generation,
		Text:            state.Text,
		Tags:            toAPITags(state.Tags),
		TagDescriptions: state.TagDescriptions,
	}
	if state.Group != nil {
		out.GroupName = state.Group.Name
	}
	if state.Result != nil {
		out.Result = s.render.result(*state.Result)
		out.Result.FlowId = flowID
	}
	return connect.NewResponse(out), nil
}

// DismissFlow clears a flow and supersedes any request still running on it.
// The selected group is kept.
func (s *RecommendService) DismissFlow(ctx context.Context, req *connect.Request[api.DismissFlowRequest]) (*connect.Response[api.DismissFlowResponse], error) {
	flowID, f, err := s.flowFor(req.Msg.FlowId)
	if err != nil {
		return nil, err
	}
	f.Dismiss()
	slog.Info("Flow dismissed", "flow_id", flowID)
	return connect.NewResponse(&api.DismissFlowResponse{}), nil
}
