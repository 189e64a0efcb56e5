// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/hamori-app/hamori/internal/models"
)

// ErrNotFound is returned when a group does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for group storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	// CreateGroup persists a new group with its members.
	// The group.ID, CreatedAt and missing member IDs are populated by the store.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group and its members in join order.
	// Returns an error wrapping ErrNotFound if the group does not exist.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroups returns all groups, newest first.
	ListGroups(ctx context.Context) ([]*models.Group, error)

	// UpdateGroup replaces name, color, image and the member list.
	// Returns an error wrapping ErrNotFound if the group does not exist.
	UpdateGroup(ctx context.Context, group *models.Group) error

	// DeleteGroup removes a group and its members.
	DeleteGroup(ctx context.Context, groupID string) error

	// AddMember appends a member to an existing group (joining by group ID).
	// member.ID is populated when empty. Adding an existing member ID is a no-op.
	AddMember(ctx context.Context, groupID string, member *models.GroupMember) error

	// Close releases any resources held by the store.
	Close() error
}
