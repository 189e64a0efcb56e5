package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/hamori-app/hamori/internal/models"
	"github.com/hamori-app/hamori/internal/storage"
	"github.com/hamori-app/hamori/pkg/api"
)

// Ensure GroupService implements the handler interface
var _ api.GroupServiceHandler = (*GroupService)(nil)

// GroupService implements the Connect GroupService
type GroupService struct {
	store storage.Store
}

// NewGroupService creates a new GroupService with the given storage backend.
func NewGroupService(store storage.Store) *GroupService {
	return &GroupService{store: store}
}

// CreateGroup creates a new group and returns its invite message.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	slog.Info("CreateGroup request received",
		"name", req.Msg.Name,
		"members_count", len(req.Msg.Members),
	)

	group := &models.Group{
		Name:      req.Msg.Name,
		Color:     req.Msg.Color,
		Image:     req.Msg.Image,
		CreatedBy: req.Msg.CreatedBy,
		Members:   fromAPIMembers(req.Msg.Members),
	}

	// Save to storage (generates IDs and CreatedAt)
	if err := s.store.CreateGroup(ctx, group); err != nil {
		slog.Error("CreateGroup failed", "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	slog.Info("Group created", "group_id", group.ID)

	return connect.NewResponse(&api.CreateGroupResponse{
		Group:         toAPIGroup(group),
		InviteMessage: models.InviteMessage(group.Name, group.ID),
	}), nil
}

// GetGroup retrieves a group by ID.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	slog.Info("GetGroup request received", "group_id", req.Msg.GroupId)

	group, err := s.store.GetGroup(ctx, req.Msg.GroupId)
	if err != nil {
		slog.Error("GetGroup failed", "group_id", req.Msg.GroupId, "error", err)
		return nil, storeError(err)
	}

	slog.Info("GetGroup successful", "group_id", group.ID, "name", group.Name)

	return connect.NewResponse(&api.GetGroupResponse{Group: toAPIGroup(group)}), nil
}

// ListGroups retrieves all groups.
func (s *GroupService) ListGroups(ctx context.Context, req *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error) {
	slog.Info("ListGroups request received")

	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		slog.Error("ListGroups failed", "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	out := make([]*api.Group, len(groups))
	for i, group := range groups {
		out[i] = toAPIGroup(group)
	}

	slog.Info("ListGroups successful", "count", len(groups))

	return connect.NewResponse(&api.ListGroupsResponse{Groups: out}), nil
}

// UpdateGroup replaces a group's attributes and member list.
func (s *GroupService) UpdateGroup(ctx context.Context, req *connect.Request[api.UpdateGroupRequest]) (*connect.Response[api.UpdateGroupResponse], error) {
	slog.Info("UpdateGroup request received",
		"group_id", req.Msg.GroupId,
		"name", req.Msg.Name,
		"members_count", len(req.Msg.Members),
	)

	group := &models.Group{
		ID:      req.Msg.GroupId,
		Name:    req.Msg.Name,
		Color:   req.Msg.Color,
		Image:   req.Msg.Image,
		Members: fromAPIMembers(req.Msg.Members),
	}

	if err := s.store.UpdateGroup(ctx, group); err != nil {
		slog.Error("UpdateGroup failed", "group_id", group.ID, "error", err)
		return nil, storeError(err)
	}

	// Fetch updated group to get CreatedAt
	updated, err := s.store.GetGroup(ctx, group.ID)
	if err != nil {
		slog.Error("Failed to fetch updated group", "error", err)
		return nil, storeError(err)
	}

	slog.Info("Group updated", "group_id", group.ID)

	return connect.NewResponse(&api.UpdateGroupResponse{Group: toAPIGroup(updated)}), nil
}

// DeleteGroup removes a group by ID.
func (s *GroupService) DeleteGroup(ctx context.Context, req *connect.Request[api.DeleteGroupRequest]) (*connect.Response[api.DeleteGroupResponse], error) {
	slog.Info("DeleteGroup request received", "group_id", req.Msg.GroupId)

	if err := s.store.DeleteGroup(ctx, req.Msg.GroupId); err != nil {
		slog.Error("DeleteGroup failed", "group_id", req.Msg.GroupId, "error", err)
		return nil, storeError(err)
	}

	slog.Info("Group deleted", "group_id", req.Msg.GroupId)

	return connect.NewResponse(&api.DeleteGroupResponse{}), nil
}

// JoinGroup adds the caller to a group identified by a shared ID.
// Joining twice with the same member ID is a no-op.
func (s *GroupService) JoinGroup(ctx context.Context, req *connect.Request[api.JoinGroupRequest]) (*connect.Response[api.JoinGroupResponse], error) {
	slog.Info("JoinGroup request received", "group_id", req.Msg.GroupId)

	member := &models.GroupMember{
		ID:          req.Msg.MemberId,
		DisplayName: req.Msg.DisplayName,
		AvatarRef:   req.Msg.AvatarRef,
	}
	if err := s.store.AddMember(ctx, req.Msg.GroupId, member); err != nil {
		slog.Error("JoinGroup failed", "group_id", req.Msg.GroupId, "error", err)
		return nil, storeError(err)
	}

	group, err := s.store.GetGroup(ctx, req.Msg.GroupId)
	if err != nil {
		return nil, storeError(err)
	}

	slog.Info("Member joined group", "group_id", group.ID, "member_id", member.ID)

	return connect.NewResponse(&api.JoinGroupResponse{
		Group:  toAPIGroup(group),
		Member: &api.Member{Id: member.ID, DisplayName: member.DisplayName, AvatarRef: member.AvatarRef},
	}), nil
}
