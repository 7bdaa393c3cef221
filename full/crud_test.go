package full

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/pagination"
	"github.com/goliatone/go-repository-mirror/pkg/testsupport"
	"github.com/goliatone/go-repository-mirror/repos/memory"
)

type note struct {
	ID   int64
	Text string
}

func noteID(n note) int64 { return n.ID }

func newNotes(t *testing.T, seed ...string) (*memory.CRUDRepo[int64, note, string], *testsupport.FlakyCRUDRepo[int64, note, string]) {
	t.Helper()
	base := memory.NewCRUDRepo[int64, note, string](memory.Sequence(), func(id int64, text string) note {
		return note{ID: id, Text: text}
	})
	if len(seed) > 0 {
		if _, err := base.Create(context.Background(), seed); err != nil {
			t.Fatalf("failed to seed origin: %v", err)
		}
	}
	return base, testsupport.NewFlakyCRUDRepo[int64, note, string](base)
}

func TestCRUD_InitialLoadAndWrites(t *testing.T) {
	ctx := context.Background()
	_, origin := newNotes(t, "one", "two")
	store := cache.NewMap[int64, note]()

	repo := NewCRUD[int64, note, string](ctx, origin, store, noteID)
	defer repo.Close()
	waitReady(t, repo.Ready())

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[int64]note{1: {ID: 1, Text: "one"}, 2: {ID: 2, Text: "two"}}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Errorf("mirror mismatch (-want +got):\n%s", diff)
	}

	created, err := repo.Create(ctx, []string{"three"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok, _ := store.Get(ctx, created[0].ID); !ok || v.Text != "three" {
		t.Errorf("expected created note mirrored, got %v %v", v, ok)
	}

	if _, ok, err := repo.Update(ctx, 1, "uno"); err != nil || !ok {
		t.Fatalf("expected update, got %v %v", ok, err)
	}
	if v, _, _ := repo.GetByID(ctx, 1); v.Text != "uno" {
		t.Errorf("expected updated note, got %v", v)
	}
	if _, ok, _ := repo.Update(ctx, 42, "ghost"); ok {
		t.Error("expected update of an unknown id to report false")
	}

	if err := repo.DeleteByID(ctx, []int64{2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := repo.Contains(ctx, 2); ok {
		t.Error("expected note 2 to be gone")
	}

	ids, _ := repo.GetIDsByPagination(ctx, pagination.FirstPage(10))
	if len(ids.Results) != 2 {
		t.Errorf("expected 2 ids, got %v", ids.Results)
	}
	page, _ := repo.GetByPagination(ctx, pagination.FirstPage(10))
	if page.Total != 2 {
		t.Errorf("expected total 2, got %d", page.Total)
	}
}

func TestCRUD_RejectedWritesLeaveStore(t *testing.T) {
	ctx := context.Background()
	_, origin := newNotes(t, "one")
	repo := NewCRUD[int64, note, string](ctx, origin, nil, noteID)
	defer repo.Close()
	waitReady(t, repo.Ready())

	origin.Fail(true)
	if _, err := repo.Create(ctx, []string{"two"}); !errors.Is(err, testsupport.ErrOriginDown) {
		t.Errorf("expected origin error, got %v", err)
	}
	if _, _, err := repo.Update(ctx, 1, "uno"); !errors.Is(err, testsupport.ErrOriginDown) {
		t.Errorf("expected origin error, got %v", err)
	}
	if err := repo.DeleteByID(ctx, []int64{1}); !errors.Is(err, testsupport.ErrOriginDown) {
		t.Errorf("expected origin error, got %v", err)
	}

	all, _ := repo.GetAll(ctx)
	if diff := cmp.Diff(map[int64]note{1: {ID: 1, Text: "one"}}, all); diff != "" {
		t.Errorf("mirror mismatch (-want +got):\n%s", diff)
	}
}

func TestCRUD_FollowsExternalWrites(t *testing.T) {
	ctx := context.Background()
	base, origin := newNotes(t)
	repo := NewCRUD[int64, note, string](ctx, origin, nil, noteID)
	defer repo.Close()
	waitReady(t, repo.Ready())

	created, _ := base.Create(ctx, []string{"external"})
	testsupport.Eventually(t, time.Second, func() bool {
		ok, _ := repo.Contains(ctx, created[0].ID)
		return ok
	}, "external create mirrored")
}

func TestReadCRUD_Invalidate(t *testing.T) {
	ctx := context.Background()
	base, _ := newNotes(t, "one")
	repo := NewReadCRUD[int64, note](base, nil)

	if count, _ := repo.Count(ctx); count != 0 {
		t.Fatalf("expected empty mirror before Invalidate, got %d", count)
	}
	if err := repo.Invalidate(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok, _ := repo.GetByID(ctx, 1); !ok || v.Text != "one" {
		t.Errorf("expected note 1, got %v %v", v, ok)
	}
}
