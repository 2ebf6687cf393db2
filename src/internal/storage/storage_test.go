package storage

import (
	"context"
	"errors"
	"testing"

	"taskherd/src/internal/tasks"
)

func setupTestStore(t *testing.T) *Storage {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func mustCreate(t *testing.T, st *Storage, d tasks.Draft) int64 {
	t.Helper()
	id, err := st.Create(context.Background(), d)
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return id
}

func TestCreateAndGetByID(t *testing.T) {
	st := setupTestStore(t)

	draft := tasks.Draft{
		Assignee: "alice",
		Creator:  "bob",
		Text:     "Ship report",
		Deadline: "2026-09-01",
	}
	id := mustCreate(t, st, draft)
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	got, err := st.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Assignee != draft.Assignee || got.Creator != draft.Creator {
		t.Errorf("user fields mismatch: %+v", got)
	}
	if got.Text != draft.Text || got.Deadline != draft.Deadline {
		t.Errorf("task fields mismatch: %+v", got)
	}
	if got.Status != tasks.StatusPending {
		t.Errorf("expected pending status, got %v", got.Status)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	st := setupTestStore(t)
	_, err := st.GetByID(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIDsAreMonotonic(t *testing.T) {
	st := setupTestStore(t)
	var prev int64
	for i := 0; i < 5; i++ {
		id := mustCreate(t, st, tasks.Draft{Assignee: "alice", Creator: "bob", Text: "t", Deadline: "2026-01-01"})
		if id <= prev {
			t.Fatalf("expected increasing ids, got %d after %d", id, prev)
		}
		prev = id
	}
}

func TestMarkCompleted_OneWay(t *testing.T) {
	st := setupTestStore(t)
	id := mustCreate(t, st, tasks.Draft{Assignee: "alice", Creator: "bob", Text: "t", Deadline: "2026-01-01"})

	if err := st.MarkCompleted(context.Background(), id); err != nil {
		t.Fatalf("first completion failed: %v", err)
	}
	got, err := st.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != tasks.StatusCompleted {
		t.Errorf("expected completed status, got %v", got.Status)
	}

	// Second completion finds no pending row.
	err = st.MarkCompleted(context.Background(), id)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on repeat completion, got %v", err)
	}
}

func TestMarkCompleted_Unknown(t *testing.T) {
	st := setupTestStore(t)
	err := st.MarkCompleted(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListByAssignee_Ordering(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	idLate := mustCreate(t, st, tasks.Draft{Assignee: "alice", Creator: "bob", Text: "late", Deadline: "2026-09-03"})
	idSoon := mustCreate(t, st, tasks.Draft{Assignee: "alice", Creator: "bob", Text: "soon", Deadline: "2026-09-01"})
	idMid := mustCreate(t, st, tasks.Draft{Assignee: "alice", Creator: "bob", Text: "mid", Deadline: "2026-09-02"})
	mustCreate(t, st, tasks.Draft{Assignee: "carol", Creator: "bob", Text: "other user", Deadline: "2026-08-01"})

	pending, err := st.ListByAssignee(ctx, "alice", tasks.StatusPending)
	if err != nil {
		t.Fatalf("ListByAssignee failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending tasks, got %d", len(pending))
	}
	wantOrder := []int64{idSoon, idMid, idLate}
	for i, id := range wantOrder {
		if pending[i].ID != id {
			t.Errorf("pending[%d]: expected id %d, got %d", i, id, pending[i].ID)
		}
	}

	for _, id := range wantOrder {
		if err := st.MarkCompleted(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	completed, err := st.ListByAssignee(ctx, "alice", tasks.StatusCompleted)
	if err != nil {
		t.Fatalf("ListByAssignee completed failed: %v", err)
	}
	if len(completed) != 3 {
		t.Fatalf("expected 3 completed tasks, got %d", len(completed))
	}
	// Completed listing is deadline-descending.
	for i, id := range []int64{idLate, idMid, idSoon} {
		if completed[i].ID != id {
			t.Errorf("completed[%d]: expected id %d, got %d", i, id, completed[i].ID)
		}
	}
}

func TestListAll_FiltersStatus(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	id1 := mustCreate(t, st, tasks.Draft{Assignee: "alice", Creator: "bob", Text: "a", Deadline: "2026-09-02"})
	mustCreate(t, st, tasks.Draft{Assignee: "carol", Creator: "bob", Text: "b", Deadline: "2026-09-01"})
	if err := st.MarkCompleted(ctx, id1); err != nil {
		t.Fatal(err)
	}

	pending, err := st.ListAll(ctx, tasks.StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Assignee != "carol" {
		t.Errorf("unexpected pending set: %+v", pending)
	}

	completed, err := st.ListAll(ctx, tasks.StatusCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if len(completed) != 1 || completed[0].ID != id1 {
		t.Errorf("unexpected completed set: %+v", completed)
	}
}

func TestListOverdue(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	idOld := mustCreate(t, st, tasks.Draft{Assignee: "alice", Creator: "bob", Text: "old", Deadline: "2026-08-20"})
	idOlder := mustCreate(t, st, tasks.Draft{Assignee: "alice", Creator: "bob", Text: "older", Deadline: "2026-08-10"})
	mustCreate(t, st, tasks.Draft{Assignee: "alice", Creator: "bob", Text: "today", Deadline: "2026-08-29"})
	mustCreate(t, st, tasks.Draft{Assignee: "alice", Creator: "bob", Text: "future", Deadline: "2026-09-01"})

	overdue, err := st.ListOverdue(ctx, "2026-08-29")
	if err != nil {
		t.Fatalf("ListOverdue failed: %v", err)
	}
	if len(overdue) != 2 {
		t.Fatalf("expected 2 overdue tasks, got %d", len(overdue))
	}
	if overdue[0].ID != idOlder || overdue[1].ID != idOld {
		t.Errorf("unexpected overdue order: %d, %d", overdue[0].ID, overdue[1].ID)
	}
}
