package api

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// RecommendServiceName is the fully-qualified name of the RecommendService service.
const RecommendServiceName = "hamori.v1.RecommendService"

// Procedure names for RecommendService.
const (
	RecommendServiceTranscribeProcedure  = "/hamori.v1.RecommendService/Transcribe"
	RecommendServiceAnalyzeTextProcedure = "/hamori.v1.RecommendService/AnalyzeText"
	RecommendServiceRecommendProcedure   = "/hamori.v1.RecommendService/Recommend"
	RecommendServiceGetFlowProcedure     = "/hamori.v1.RecommendService/GetFlow"
	RecommendServiceDismissFlowProcedure = "/hamori.v1.RecommendService/DismissFlow"
)

// Tag is a labeled keyword.
type Tag struct {
	Label       string `json:"label" validate:"required"`
	Description string `json:"description,omitempty"`
}

// Location is a WGS84 coordinate.
type Location struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// Restaurant is a ranked candidate ready for display.
type Restaurant struct {
	Id            string   `json:"id"`
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Rating        *float64 `json:"rating,omitempty"`
	ReviewCount   *int32   `json:"reviewCount,omitempty"`
	PriceLevel    *int32   `json:"priceLevel,omitempty"`
	PriceLabel    string   `json:"priceLabel"`
	IsOpenNow     *bool    `json:"isOpenNow,omitempty"`
	PhotoUrl      string   `json:"photoUrl,omitempty"`
	DirectionsUrl string   `json:"directionsUrl"`
	Score         float64  `json:"score"`
}

type TranscribeRequest struct {
	Audio    []byte `json:"audio" validate:"required"`
	Filename string `json:"filename,omitempty"`

	// FlowId, when set, records the transcript on that flow.
	FlowId string `json:"flowId,omitempty"`
}

type TranscribeResponse struct {
	Text   string `json:"text"`
	Failed bool   `json:"failed"`
	FlowId string `json:"flowId,omitempty"`
}

type AnalyzeTextRequest struct {
	Text    string `json:"text" validate:"required"`
	GroupId string `json:"groupId,omitempty"`
	FlowId  string `json:"flowId,omitempty"`
}

type AnalyzeTextResponse struct {
	Tags            []*Tag            `json:"tags"`
	TagDescriptions map[string]string `json:"tagDescriptions"`
	FlowId          string            `json:"flowId,omitempty"`
}

type RecommendRequest struct {
	Tags     []*Tag    `json:"tags" validate:"required,min=1,dive,required"`
	Location *Location `json:"location,omitempty"`
	GroupId  string    `json:"groupId,omitempty"`

	// LocationDenied reports that the device refused location access.
	LocationDenied bool   `json:"locationDenied,omitempty"`
	FlowId         string `json:"flowId,omitempty"`
}

type RecommendResponse struct {
	Keyword     string        `json:"keyword"`
	Best        *Restaurant   `json:"best,omitempty"`
	Restaurants []*Restaurant `json:"restaurants"`
	Fallback    bool          `json:"fallback"`
	FlowId      string        `json:"flowId,omitempty"`
}

type GetFlowRequest struct {
	FlowId string `json:"flowId" validate:"required"`
}

type GetFlowResponse struct {
	FlowId          string             `json:"flowId"`
	Generation      uint64             `json:"generation"`
	Text            string             `json:"text"`
	Tags            []*Tag             `json:"tags"`
	TagDescriptions map[string]string  `json:"tagDescriptions"`
	GroupName       string             `json:"groupName,omitempty"`
	Result          *RecommendResponse `json:"result,omitempty"`
}

type DismissFlowRequest struct {
	FlowId string `json:"flowId" validate:"required"`
}

type DismissFlowResponse struct{}

// RecommendServiceHandler is implemented by the recommendation service.
type RecommendServiceHandler interface {
	Transcribe(context.Context, *connect.Request[TranscribeRequest]) (*connect.Response[TranscribeResponse], error)
	AnalyzeText(context.Context, *connect.Request[AnalyzeTextRequest]) (*connect.Response[AnalyzeTextResponse], error)
	Recommend(context.Context, *connect.Request[RecommendRequest]) (*connect.Response[RecommendResponse], error)
	GetFlow(context.Context, *connect.Request[GetFlowRequest]) (*connect.Response[GetFlowResponse], error)
	DismissFlow(context.Context, *connect.Request[DismissFlowRequest]) (*connect.Response[DismissFlowResponse], error)
}

// NewRecommendServiceHandler builds an HTTP handler from the service
// implementation.
func NewRecommendServiceHandler(svc RecommendServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	routes := map[string]http.Handler{
		RecommendServiceTranscribeProcedure:  connect.NewUnaryHandler(RecommendServiceTranscribeProcedure, svc.Transcribe, opts...),
		RecommendServiceAnalyzeTextProcedure: connect.NewUnaryHandler(RecommendServiceAnalyzeTextProcedure, svc.AnalyzeText, opts...),
		RecommendServiceRecommendProcedure:   connect.NewUnaryHandler(RecommendServiceRecommendProcedure, svc.Recommend, opts...),
		RecommendServiceGetFlowProcedure:     connect.NewUnaryHandler(RecommendServiceGetFlowProcedure, svc.GetFlow, opts...),
		RecommendServiceDismissFlowProcedure: connect.NewUnaryHandler(RecommendServiceDismissFlowProcedure, svc.DismissFlow, opts...),
	}
	return "/" + RecommendServiceName + "/", routeHandler(routes)
}

// RecommendServiceClient is a client for hamori.v1.RecommendService.
type RecommendServiceClient interface {
	Transcribe(context.Context, *connect.Request[TranscribeRequest]) (*connect.Response[TranscribeResponse], error)
	AnalyzeText(context.Context, *connect.Request[AnalyzeTextRequest]) (*connect.Response[AnalyzeTextResponse], error)
	Recommend(context.Context, *connect.Request[RecommendRequest]) (*connect.Response[RecommendResponse], error)
	GetFlow(context.Context, *connect.Request[GetFlowRequest]) (*connect.Response[GetFlowResponse], error)
	DismissFlow(context.Context, *connect.Request[DismissFlowRequest]) (*connect.Response[DismissFlowResponse], error)
}

// NewRecommendServiceClient constructs a client for hamori.v1.RecommendService.
func NewRecommendServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) RecommendServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &recommendServiceClient{
		transcribe:  connect.NewClient[TranscribeRequest, TranscribeResponse](httpClient, baseURL+RecommendServiceTranscribeProcedure, opts...),
		analyzeText: connect.NewClient[AnalyzeTextRequest, AnalyzeTextResponse](httpClient, baseURL+RecommendServiceAnalyzeTextProcedure, opts...),
		recommend:   connect.NewClient[RecommendRequest, RecommendResponse](httpClient, baseURL+RecommendServiceRecommendProcedure, opts...),
		getFlow:     connect.NewClient[GetFlowRequest, GetFlowResponse](httpClient, baseURL+RecommendServiceGetFlowProcedure, opts...),
		dismissFlow: connect.NewClient[DismissFlowRequest, DismissFlowResponse](httpClient, baseURL+RecommendServiceDismissFlowProcedure, opts...),
	}
}

type recommendServiceClient struct {
	transcribe  *connect.Client[TranscribeRequest, TranscribeResponse]
	analyzeText *connect.Client[AnalyzeTextRequest, AnalyzeTextResponse]
	recommend   *connect.Client[RecommendRequest, RecommendResponse]
	getFlow     *connect.Client[GetFlowRequest, GetFlowResponse]
	dismissFlow *connect.Client[DismissFlowRequest, DismissFlowResponse]
}

func (c *recommendServiceClient) Transcribe(ctx context.Context, req *connect.Request[TranscribeRequest]) (*connect.Response[TranscribeResponse], error) {
	return c.transcribe.CallUnary(ctx, req)
}

func (c *recommendServiceClient) AnalyzeText(ctx context.Context, req *connect.Request[AnalyzeTextRequest]) (*connect.Response[AnalyzeTextResponse], error) {
	return c.analyzeText.CallUnary(ctx, req)
}

func (c *recommendServiceClient) Recommend(ctx context.Context, req *connect.Request[RecommendRequest]) (*connect.Response[RecommendResponse], error) {
	return c.recommend.CallUnary(ctx, req)
}

func (c *recommendServiceClient) GetFlow(ctx context.Context, req *connect.Request[GetFlowRequest]) (*connect.Response[GetFlowResponse], error) {
	return c.getFlow.CallUnary(ctx, req)
}

func (c *recommendServiceClient) DismissFlow(ctx context.Context, req *connect.Request[DismissFlowRequest]) (*connect.Response[DismissFlowResponse], error) {
	return c.dismissFlow.CallUnary(ctx, req)
}
