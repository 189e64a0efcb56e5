package models

import "fmt"

// Group represents a dining group whose members search together.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "会社の仲間", "家族").
	Name string

	// Color is the theme color used to tint the group in the UI (e.g., "#6c5ce7").
	Color string

	// Image is an optional image URL for the group.
	Image string

	// Members is the stored member list. Readiness is never persisted;
	// IsReady is always false on members loaded from storage.
	Members []GroupMember

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64

	// CreatedBy is the display name or ID of whoever created the group.
	CreatedBy string
}

// GroupMember is one person in a group session.
type GroupMember struct {
	// ID is stable within a group (UUID format when generated by the store).
	ID string

	// DisplayName and AvatarRef are presentation only.
	DisplayName string
	AvatarRef   string

	// IsReady is mutated only by the readiness coordinator.
	IsReady bool
}

// Context returns the prompt-biasing view of the group.
func (g *Group) Context() *GroupContext {
	return &GroupContext{Name: g.Name, MemberCount: len(g.Members)}
}

// GroupContext is the subset of group information used to bias tag
// extraction and query optimization. It never affects scoring.
type GroupContext struct {
	Name        string
	MemberCount int
}

// InviteMessage builds the share text for inviting someone to a group by ID.
func InviteMessage(groupName, groupID string) string {
	return fmt.Sprintf(
		"Hamoriアプリであなたをグループ「%s」に招待します！\n\nグループID: %s\n\nアプリを開いて「グループに参加」からこのIDを入力してください。",
		groupName, groupID,
	)
}
