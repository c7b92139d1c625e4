package memory

import (
	"context"
	"errors"
	"testing"

	"tandem/internal/domain"
	"tandem/internal/domain/models"
)

func TestMessageAppendAssignsIndexes(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg := &models.Message{Role: models.RoleUser, Content: "hi"}
		if err := s.Append(ctx, "a1", msg); err != nil {
			t.Fatalf("append: %v", err)
		}
		if msg.Index != i {
			t.Errorf("append %d assigned index %d", i, msg.Index)
		}
		if msg.CreatedAt.IsZero() {
			t.Error("created_at not stamped")
		}
	}

	// Indexes are per agent.
	msg := &models.Message{Role: models.RoleUser, Content: "other"}
	if err := s.Append(ctx, "a2", msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.Index != 0 {
		t.Errorf("a2 first index = %d", msg.Index)
	}
}

func TestMessageListPaging(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, "a1", &models.Message{Role: models.RoleUser, Content: "m"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	tests := []struct {
		name        string
		offset      int
		limit       int
		wantIndexes []int
	}{
		{"first page", 0, 2, []int{0, 1}},
		{"middle", 2, 2, []int{2, 3}},
		{"tail clipped", 4, 10, []int{4}},
		{"offset past end", 9, 5, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, total, err := s.List(ctx, "a1", tt.offset, tt.limit)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if total != 5 {
				t.Errorf("total = %d, want 5", total)
			}
			if len(page) != len(tt.wantIndexes) {
				t.Fatalf("page size = %d, want %d", len(page), len(tt.wantIndexes))
			}
			for i, want := range tt.wantIndexes {
				if page[i].Index != want {
					t.Errorf("page[%d].Index = %d, want %d", i, page[i].Index, want)
				}
			}
		})
	}

	t.Run("invalid bounds", func(t *testing.T) {
		if _, _, err := s.List(ctx, "a1", -1, 10); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("negative offset: err = %v", err)
		}
		if _, _, err := s.List(ctx, "a1", 0, 0); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("zero limit: err = %v", err)
		}
	})
}

func TestMessageReplaceReindexes(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.Append(ctx, "a1", &models.Message{Role: models.RoleUser, Content: "old"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	err := s.Replace(ctx, "a1", []models.Message{
		{Index: 42, Role: models.RoleUser, Content: "a"},
		{Index: 7, Role: models.RoleAssistant, Content: "b"},
		{Index: 7, Role: models.RoleTool, Content: "c", ToolCallID: "t1"},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	page, total, err := s.List(ctx, "a1", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	for i, m := range page {
		if m.Index != i {
			t.Errorf("page[%d].Index = %d", i, m.Index)
		}
	}
	if page[2].ToolCallID != "t1" {
		t.Errorf("tool_call_id lost: %+v", page[2])
	}

	if err := s.Clear(ctx, "a1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, total, _ := s.List(ctx, "a1", 0, 1); total != 0 {
		t.Errorf("total after clear = %d", total)
	}
}

func TestMessageListReturnsCopies(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()
	if err := s.Append(ctx, "a1", &models.Message{Role: models.RoleUser, Content: "x", Meta: map[string]any{"k": "v"}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	page, _, err := s.List(ctx, "a1", 0, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	page[0].Content = "mutated"
	page[0].Meta["k"] = "mutated"

	again, _, err := s.List(ctx, "a1", 0, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if again[0].Content != "x" || again[0].Meta["k"] != "v" {
		t.Errorf("store state leaked through returned page: %+v", again[0])
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()

	err := s.Save(ctx, &models.Session{
		Name:    "work",
		AgentID: "a1",
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "hi"},
			{Role: models.RoleAssistant, Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Get(ctx, "work")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AgentID != "a1" || len(got.Messages) != 2 {
		t.Fatalf("session = %+v", got)
	}

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].MessageCount != 2 {
		t.Fatalf("infos = %+v", infos)
	}

	if err := s.Rename(ctx, "work", "work2"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := s.Get(ctx, "work"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("old name still resolves: %v", err)
	}
	if _, err := s.Get(ctx, "work2"); err != nil {
		t.Errorf("new name missing: %v", err)
	}

	if err := s.Delete(ctx, "work2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "work2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("double delete err = %v", err)
	}
}

func TestSessionRenameConflicts(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()
	for _, name := range []string{"one", "two"} {
		if err := s.Save(ctx, &models.Session{Name: name, AgentID: "a1"}); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	if err := s.Rename(ctx, "one", "two"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("rename onto taken name: err = %v", err)
	}
	if err := s.Rename(ctx, "ghost", "three"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("rename unknown: err = %v", err)
	}
}

func TestSessionSaveUpsertsKeepingCreatedAt(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()
	if err := s.Save(ctx, &models.Session{Name: "work", AgentID: "a1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	first, err := s.Get(ctx, "work")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	err = s.Save(ctx, &models.Session{Name: "work", AgentID: "a2", Messages: []models.Message{{Role: models.RoleUser, Content: "x"}}})
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	second, err := s.Get(ctx, "work")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.AgentID != "a2" || len(second.Messages) != 1 {
		t.Errorf("upsert did not replace content: %+v", second)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed on upsert")
	}
}
