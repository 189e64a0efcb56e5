package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hamori-app/hamori/internal/models"
	"github.com/hamori-app/hamori/internal/storage"
)

func TestSQLiteStore(t *testing.T) {
	// Create temp directory for test database
	tempDir, err := os.MkdirTemp("", "hamori-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "nested", "test.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	t.Run("CreateGroup generates IDs", func(t *testing.T) {
		group := &models.Group{
			Name:      "会社の仲間",
			Color:     "#6c5ce7",
			CreatedBy: "たろう",
			Members: []models.GroupMember{
				{DisplayName: "たろう"},
				{DisplayName: "はなこ", AvatarRef: "avatars/hanako.png"},
			},
		}

		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		if group.ID == "" {
			t.Error("Expected group ID to be generated")
		}
		if group.CreatedAt == 0 {
			t.Error("Expected CreatedAt to be set")
		}
		for i, m := range group.Members {
			if m.ID == "" {
				t.Errorf("Expected member %d ID to be generated", i)
			}
		}
	})

	t.Run("GetGroup retrieves members in order", func(t *testing.T) {
		original := &models.Group{
			Name:  "家族",
			Image: "https://example.com/family.png",
			Members: []models.GroupMember{
				{ID: "m-3", DisplayName: "父"},
				{ID: "m-1", DisplayName: "母"},
				{ID: "m-2", DisplayName: "子"},
			},
		}
		if err := store.CreateGroup(ctx, original); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		retrieved, err := store.GetGroup(ctx, original.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}

		if retrieved.Name != "家族" || retrieved.Image != original.Image {
			t.Errorf("Unexpected group %+v", retrieved)
		}
		if len(retrieved.Members) != 3 {
			t.Fatalf("Expected 3 members, got %d", len(retrieved.Members))
		}
		for i, want := range []string{"m-3", "m-1", "m-2"} {
			if retrieved.Members[i].ID != want {
				t.Errorf("Member %d: expected %s, got %s", i, want, retrieved.Members[i].ID)
			}
			if retrieved.Members[i].IsReady {
				t.Errorf("Member %d loaded as ready; readiness is never stored", i)
			}
		}
	})

	t.Run("GetGroup returns ErrNotFound", func(t *testing.T) {
		_, err := store.GetGroup(ctx, "non-existent-id")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateGroup replaces members", func(t *testing.T) {
		group := &models.Group{
			Name:    "Before",
			Members: []models.GroupMember{{DisplayName: "A"}, {DisplayName: "B"}},
		}
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		group.Name = "After"
		group.Color = "#ff0000"
		group.Members = []models.GroupMember{{DisplayName: "C"}}
		if err := store.UpdateGroup(ctx, group); err != nil {
			t.Fatalf("UpdateGroup failed: %v", err)
		}

		got, err := store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got.Name != "After" || got.Color != "#ff0000" {
			t.Errorf("Unexpected group %+v", got)
		}
		if len(got.Members) != 1 || got.Members[0].DisplayName != "C" {
			t.Errorf("Unexpected members %+v", got.Members)
		}
	})

	t.Run("UpdateGroup missing group", func(t *testing.T) {
		err := store.UpdateGroup(ctx, &models.Group{ID: "missing", Name: "x"})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("AddMember appends and ignores duplicates", func(t *testing.T) {
		group := &models.Group{Name: "Join", Members: []models.GroupMember{{ID: "owner", DisplayName: "Owner"}}}
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		joiner := &models.GroupMember{DisplayName: "Guest"}
		if err := store.AddMember(ctx, group.ID, joiner); err != nil {
			t.Fatalf("AddMember failed: %v", err)
		}
		if joiner.ID == "" {
			t.Error("Expected member ID to be generated")
		}
		if err := store.AddMember(ctx, group.ID, &models.GroupMember{ID: "owner", DisplayName: "Dup"}); err != nil {
			t.Fatalf("AddMember duplicate failed: %v", err)
		}

		got, _ := store.GetGroup(ctx, group.ID)
		if len(got.Members) != 2 {
			t.Fatalf("Expected 2 members, got %d", len(got.Members))
		}
		if got.Members[0].DisplayName != "Owner" || got.Members[1].DisplayName != "Guest" {
			t.Errorf("Unexpected members %+v", got.Members)
		}
	})

	t.Run("AddMember missing group", func(t *testing.T) {
		err := store.AddMember(ctx, "missing", &models.GroupMember{DisplayName: "x"})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteGroup removes group", func(t *testing.T) {
		group := &models.Group{Name: "Temp", Members: []models.GroupMember{{DisplayName: "A"}}}
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		if err := store.DeleteGroup(ctx, group.ID); err != nil {
			t.Fatalf("DeleteGroup failed: %v", err)
		}
		if _, err := store.GetGroup(ctx, group.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
		if err := store.DeleteGroup(ctx, group.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("ListGroups includes members", func(t *testing.T) {
		groups, err := store.ListGroups(ctx)
		if err != nil {
			t.Fatalf("ListGroups failed: %v", err)
		}
		if len(groups) < 4 {
			t.Fatalf("Expected at least 4 groups, got %d", len(groups))
		}
		for _, g := range groups {
			if g.ID == "" || len(g.Members) == 0 {
				t.Errorf("Incomplete group in list: %+v", g)
			}
		}
	})
}
