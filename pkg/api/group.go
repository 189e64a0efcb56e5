package api

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// GroupServiceName is the fully-qualified name of the GroupService service.
const GroupServiceName = "hamori.v1.GroupService"

// Procedure names for GroupService.
const (
	GroupServiceCreateGroupProcedure = "/hamori.v1.GroupService/CreateGroup"
	GroupServiceGetGroupProcedure    = "/hamori.v1.GroupService/GetGroup"
	GroupServiceListGroupsProcedure  = "/hamori.v1.GroupService/ListGroups"
	GroupServiceUpdateGroupProcedure = "/hamori.v1.GroupService/UpdateGroup"
	GroupServiceDeleteGroupProcedure = "/hamori.v1.GroupService/DeleteGroup"
	GroupServiceJoinGroupProcedure   = "/hamori.v1.GroupService/JoinGroup"
)

// Member is a group member as stored.
type Member struct {
	Id          string `json:"id,omitempty"`
	DisplayName string `json:"displayName" validate:"required,max=50"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// Group is a stored dining group.
type Group struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	Image     string    `json:"image,omitempty"`
	Members   []*Member `json:"members"`
	CreatedAt int64     `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
}

type CreateGroupRequest struct {
	Name      string    `json:"name" validate:"required,max=50"`
	Color     string    `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Image     string    `json:"image,omitempty" validate:"omitempty,url"`
	CreatedBy string    `json:"createdBy,omitempty"`
	Members   []*Member `json:"members" validate:"required,min=1,dive,required"`
}

type CreateGroupResponse struct {
	Group *Group `json:"group"`

	// InviteMessage is share text carrying the group ID.
	InviteMessage string `json:"inviteMessage"`
}

type GetGroupRequest struct {
	GroupId string `json:"groupId" validate:"required"`
}

type GetGroupResponse struct {
	Group *Group `json:"group"`
}

type ListGroupsRequest struct{}

type ListGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

type UpdateGroupRequest struct {
	GroupId string    `json:"groupId" validate:"required"`
	Name    string    `json:"name" validate:"required,max=50"`
	Color   string    `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Image   string    `json:"image,omitempty" validate:"omitempty,url"`
	Members []*Member `json:"members" validate:"required,min=1,dive,required"`
}

type UpdateGroupResponse struct {
	Group *Group `json:"group"`
}

type DeleteGroupRequest struct {
	GroupId string `json:"groupId" validate:"required"`
}

type DeleteGroupResponse struct{}

// JoinGroupRequest adds the caller to a group shared by ID.
type JoinGroupRequest struct {
	GroupId     string `json:"groupId" validate:"required"`
	MemberId    string `json:"memberId,omitempty"`
	DisplayName string `json:"displayName" validate:"required,max=50"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

type JoinGroupResponse struct {
	Group  *Group  `json:"group"`
	Member *Member `json:"member"`
}

// GroupServiceHandler is implemented by the group service.
type GroupServiceHandler interface {
	CreateGroup(context.Context, *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error)
	GetGroup(context.Context, *connect.Request[GetGroupRequest]) (*connect.Response[GetGroupResponse], error)
	ListGroups(context.Context, *connect.Request[ListGroupsRequest]) (*connect.Response[ListGroupsResponse], error)
	UpdateGroup(context.Context, *connect.Request[UpdateGroupRequest]) (*connect.Response[UpdateGroupResponse], error)
	DeleteGroup(context.Context, *connect.Request[DeleteGroupRequest]) (*connect.Response[DeleteGroupResponse], error)
	JoinGroup(context.Context, *connect.Request[JoinGroupRequest]) (*connect.Response[JoinGroupResponse], error)
}

// NewGroupServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewGroupServiceHandler(svc GroupServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	routes := map[string]http.Handler{
		GroupServiceCreateGroupProcedure: connect.NewUnaryHandler(GroupServiceCreateGroupProcedure, svc.CreateGroup, opts...),
		GroupServiceGetGroupProcedure:    connect.NewUnaryHandler(GroupServiceGetGroupProcedure, svc.GetGroup, opts...),
		GroupServiceListGroupsProcedure:  connect.NewUnaryHandler(GroupServiceListGroupsProcedure, svc.ListGroups, opts...),
		GroupServiceUpdateGroupProcedure: connect.NewUnaryHandler(GroupServiceUpdateGroupProcedure, svc.UpdateGroup, opts...),
		GroupServiceDeleteGroupProcedure: connect.NewUnaryHandler(GroupServiceDeleteGroupProcedure, svc.DeleteGroup, opts...),
		GroupServiceJoinGroupProcedure:   connect.NewUnaryHandler(GroupServiceJoinGroupProcedure, svc.JoinGroup, opts...),
	}
	return "/" + GroupServiceName + "/", routeHandler(routes)
}

// GroupServiceClient is a client for hamori.v1.GroupService.
type GroupServiceClient interface {
	CreateGroup(context.Context, *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error)
	GetGroup(context.Context, *connect.Request[GetGroupRequest]) (*connect.Response[GetGroupResponse], error)
	ListGroups(context.Context, *connect.Request[ListGroupsRequest]) (*connect.Response[ListGroupsResponse], error)
	UpdateGroup(context.Context, *connect.Request[UpdateGroupRequest]) (*connect.Response[UpdateGroupResponse], error)
	DeleteGroup(context.Context, *connect.Request[DeleteGroupRequest]) (*connect.Response[DeleteGroupResponse], error)
	JoinGroup(context.Context, *connect.Request[JoinGroupRequest]) (*connect.Response[JoinGroupResponse], error)
}

// NewGroupServiceClient constructs a client for hamori.v1.GroupService.
// baseURL is the server root, e.g. http://localhost:8080.
func NewGroupServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) GroupServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &groupServiceClient{
		createGroup: connect.NewClient[CreateGroupRequest, CreateGroupResponse](httpClient, baseURL+GroupServiceCreateGroupProcedure, opts...),
		getGroup:    connect.NewClient[GetGroupRequest, GetGroupResponse](httpClient, baseURL+GroupServiceGetGroupProcedure, opts...),
		listGroups:  connect.NewClient[ListGroupsRequest, ListGroupsResponse](httpClient, baseURL+GroupServiceListGroupsProcedure, opts...),
		updateGroup: connect.NewClient[UpdateGroupRequest, UpdateGroupResponse](httpClient, baseURL+GroupServiceUpdateGroupProcedure, opts...),
		deleteGroup: connect.NewClient[DeleteGroupRequest, DeleteGroupResponse](httpClient, baseURL+GroupServiceDeleteGroupProcedure, opts...),
		joinGroup:   connect.NewClient[JoinGroupRequest, JoinGroupResponse](httpClient, baseURL+GroupServiceJoinGroupProcedure, opts...),
	}
}

type groupServiceClient struct {
	createGroup *connect.Client[CreateGroupRequest, CreateGroupResponse]
	getGroup    *connect.Client[GetGroupRequest, GetGroupResponse]
	listGroups  *connect.Client[ListGroupsRequest, ListGroupsResponse]
	updateGroup *connect.Client[UpdateGroupRequest, UpdateGroupResponse]
	deleteGroup *connect.Client[DeleteGroupRequest, DeleteGroupResponse]
	joinGroup   *connect.Client[JoinGroupRequest, JoinGroupResponse]
}

func (c *groupServiceClient) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error) {
	return c.createGroup.CallUnary(ctx, req)
}

func (c *groupServiceClient) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GetGroupResponse], error) {
	return c.getGroup.CallUnary(ctx, req)
}

func (c *groupServiceClient) ListGroups(ctx context.Context, req *connect.Request[ListGroupsRequest]) (*connect.Response[ListGroupsResponse], error) {
	return c.listGroups.CallUnary(ctx, req)
}

func (c *groupServiceClient) UpdateGroup(ctx context.Context, req *connect.Request[UpdateGroupRequest]) (*connect.Response[UpdateGroupResponse], error) {
	return c.updateGroup.CallUnary(ctx, req)
}

func (c *groupServiceClient) DeleteGroup(ctx context.Context, req *connect.Request[DeleteGroupRequest]) (*connect.Response[DeleteGroupResponse], error) {
	return c.deleteGroup.CallUnary(ctx, req)
}

func (c *groupServiceClient) JoinGroup(ctx context.Context, req *connect.Request[JoinGroupRequest]) (*connect.Response[JoinGroupResponse], error) {
	return c.joinGroup.CallUnary(ctx, req)
}

// routeHandler dispatches on the exact procedure path.
func routeHandler(routes map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := routes[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}
