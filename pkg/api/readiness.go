package api

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// ReadinessServiceName is the fully-qualified name of the ReadinessService service.
const ReadinessServiceName = "hamori.v1.ReadinessService"

// Procedure names for ReadinessService.
const (
	ReadinessServiceOpenSessionProcedure   = "/hamori.v1.ReadinessService/OpenSession"
	ReadinessServiceToggleReadyProcedure   = "/hamori.v1.ReadinessService/ToggleReady"
	ReadinessServiceNotifyMembersProcedure = "/hamori.v1.ReadinessService/NotifyMembers"
	ReadinessServiceGetSessionProcedure    = "/hamori.v1.ReadinessService/GetSession"
	ReadinessServiceCloseSessionProcedure  = "/hamori.v1.ReadinessService/CloseSession"
)

// SessionMember is a group member with live readiness.
type SessionMember struct {
	Id          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
	IsReady     bool   `json:"isReady"`
	IsSelf      bool   `json:"isSelf"`
}

// SessionEvent is one lifecycle event emitted by the session.
type SessionEvent struct {
	// Type is one of "notify", "no_ready_members" or "all_ready".
	Type string `json:"type"`
	At   int64  `json:"at"`
}

// Session is a snapshot of a readiness session.
type Session struct {
	Id      string           `json:"id"`
	GroupId string           `json:"groupId"`
	State   string           `json:"state"`
	Members []*SessionMember `json:"members"`

	AnyReady   bool  `json:"anyReady"`
	AllReady   bool  `json:"allReady"`
	ReadyCount int32 `json:"readyCount"`

	// CountdownRemaining is the current countdown value, 0 outside Countdown.
	CountdownRemaining int32 `json:"countdownRemaining"`

	Events []*SessionEvent `json:"events"`
}

type OpenSessionRequest struct {
	GroupId      string `json:"groupId" validate:"required"`
	SelfMemberId string `json:"selfMemberId" validate:"required"`
}

type OpenSessionResponse struct {
	Session *Session `json:"session"`
}

type ToggleReadyRequest struct {
	SessionId string `json:"sessionId" validate:"required"`
}

type ToggleReadyResponse struct {
	Session *Session `json:"session"`
}

type NotifyMembersRequest struct {
	SessionId string `json:"sessionId" validate:"required"`
}

type NotifyMembersResponse struct {
	Session *Session `json:"session"`
}

type GetSessionRequest struct {
	SessionId string `json:"sessionId" validate:"required"`
}

type GetSessionResponse struct {
	Session *Session `json:"session"`
}

type CloseSessionRequest struct {
	SessionId string `json:"sessionId" validate:"required"`
}

type CloseSessionResponse struct{}

// ReadinessServiceHandler is implemented by the readiness service.
type ReadinessServiceHandler interface {
	OpenSession(context.Context, *connect.Request[OpenSessionRequest]) (*connect.Response[OpenSessionResponse], error)
	ToggleReady(context.Context, *connect.Request[ToggleReadyRequest]) (*connect.Response[ToggleReadyResponse], error)
	NotifyMembers(context.Context, *connect.Request[NotifyMembersRequest]) (*connect.Response[NotifyMembersResponse], error)
	GetSession(context.Context, *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error)
	CloseSession(context.Context, *connect.Request[CloseSessionRequest]) (*connect.Response[CloseSessionResponse], error)
}

// NewReadinessServiceHandler builds an HTTP handler from the service
// implementation.
func NewReadinessServiceHandler(svc ReadinessServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	routes := map[string]http.Handler{
		ReadinessServiceOpenSessionProcedure:   connect.NewUnaryHandler(ReadinessServiceOpenSessionProcedure, svc.OpenSession, opts...),
		ReadinessServiceToggleReadyProcedure:   connect.NewUnaryHandler(ReadinessServiceToggleReadyProcedure, svc.ToggleReady, opts...),
		ReadinessServiceNotifyMembersProcedure: connect.NewUnaryHandler(ReadinessServiceNotifyMembersProcedure, svc.NotifyMembers, opts...),
		ReadinessServiceGetSessionProcedure:    connect.NewUnaryHandler(ReadinessServiceGetSessionProcedure, svc.GetSession, opts...),
		ReadinessServiceCloseSessionProcedure:  connect.NewUnaryHandler(ReadinessServiceCloseSessionProcedure, svc.CloseSession, opts...),
	}
	return "/" + ReadinessServiceName + "/", routeHandler(routes)
}

// ReadinessServiceClient is a client for hamori.v1.ReadinessService.
type ReadinessServiceClient interface {
	OpenSession(context.Context, *connect.Request[OpenSessionRequest]) (*connect.Response[OpenSessionResponse], error)
	ToggleReady(context.Context, *connect.Request[ToggleReadyRequest]) (*connect.Response[ToggleReadyResponse], error)
	NotifyMembers(context.Context, *connect.Request[NotifyMembersRequest]) (*connect.Response[NotifyMembersResponse], error)
	GetSession(context.Context, *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error)
	CloseSession(context.Context, *connect.Request[CloseSessionRequest]) (*connect.Response[CloseSessionResponse], error)
}

// NewReadinessServiceClient constructs a client for hamori.v1.ReadinessService.
func NewReadinessServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) ReadinessServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &readinessServiceClient{
		openSession:   connect.NewClient[OpenSessionRequest, OpenSessionResponse](httpClient, baseURL+ReadinessServiceOpenSessionProcedure, opts...),
		toggleReady:   connect.NewClient[ToggleReadyRequest, ToggleReadyResponse](httpClient, baseURL+ReadinessServiceToggleReadyProcedure, opts...),
		notifyMembers: connect.NewClient[NotifyMembersRequest, NotifyMembersResponse](httpClient, baseURL+ReadinessServiceNotifyMembersProcedure, opts...),
		getSession:    connect.NewClient[GetSessionRequest, GetSessionResponse](httpClient, baseURL+ReadinessServiceGetSessionProcedure, opts...),
		closeSession:  connect.NewClient[CloseSessionRequest, CloseSessionResponse](httpClient, baseURL+ReadinessServiceCloseSessionProcedure, opts...),
	}
}

type readinessServiceClient struct {
	openSession   *connect.Client[OpenSessionRequest, OpenSessionResponse]
	toggleReady   *connect.Client[ToggleReadyRequest, ToggleReadyResponse]
	notifyMembers *connect.Client[NotifyMembersRequest, NotifyMembersResponse]
	getSession    *connect.Client[GetSessionRequest, GetSessionResponse]
	closeSession  *connect.Client[CloseSessionRequest, CloseSessionResponse]
}

func (c *readinessServiceClient) OpenSession(ctx context.Context, req *connect.Request[OpenSessionRequest]) (*connect.Response[OpenSessionResponse], error) {
	return c.openSession.CallUnary(ctx, req)
}

func (c *readinessServiceClient) ToggleReady(ctx context.Context, req *connect.Request[ToggleReadyRequest]) (*connect.Response[ToggleReadyResponse], error) {
	return c.toggleReady.CallUnary(ctx, req)
}

func (c *readinessServiceClient) NotifyMembers(ctx context.Context, req *connect.Request[NotifyMembersRequest]) (*connect.Response[NotifyMembersResponse], error) {
	return c.notifyMembers.CallUnary(ctx, req)
}

func (c *readinessServiceClient) GetSession(ctx context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error) {
	return c.getSession.CallUnary(ctx, req)
}

func (c *readinessServiceClient) CloseSession(ctx context.Context, req *connect.Request[CloseSessionRequest]) (*connect.Response[CloseSessionResponse], error) {
	return c.closeSession.CallUnary(ctx, req)
}
