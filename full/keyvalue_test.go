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
	"github.com/goliatone/go-repository-mirror/reconcile"
	"github.com/goliatone/go-repository-mirror/repos/memory"
)

func newOrigin(t *testing.T, seed map[string]int) (*memory.KeyValueRepo[string, int], *testsupport.FlakyKeyValueRepo[string, int]) {
	t.Helper()
	base := memory.NewKeyValueRepo[string, int]()
	if len(seed) > 0 {
		if err := base.Set(context.Background(), seed); err != nil {
			t.Fatalf("failed to seed origin: %v", err)
		}
	}
	return base, testsupport.NewFlakyKeyValueRepo[string, int](base)
}

func waitReady(t *testing.T, ready <-chan struct{}) {
	t.Helper()
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("initial load did not finish")
	}
}

type getResult struct {
	value int
	found bool
	err   error
}

func TestKeyValue_ReadsWaitForInitialLoadAndWritesMirror(t *testing.T) {
	ctx := context.Background()
	base, origin := newOrigin(t, map[string]int{"a": 1, "b": 2})
	store := cache.NewMap[string, int]()

	origin.Hold()
	repo := NewKeyValue[string, int](ctx, origin, store,
		WithReconcileOptions(reconcile.WithClearMode(reconcile.ClearBeforeSet)),
	)
	defer repo.Close()

	early := make(chan getResult, 1)
	go func() {
		v, ok, err := repo.Get(ctx, "a")
		early <- getResult{value: v, found: ok, err: err}
	}()

	select {
	case res := <-early:
		t.Fatalf("read returned before the initial load finished: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}

	origin.Release()
	waitReady(t, repo.Ready())

	res := <-early
	if res.err != nil || !res.found || res.value != 1 {
		t.Fatalf("expected a=1 after the initial load, got %+v", res)
	}
	if v, _, _ := repo.Get(ctx, "b"); v != 2 {
		t.Errorf("expected b=2, got %v", v)
	}
	if count, _ := repo.Count(ctx); count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}

	if err := repo.Set(ctx, map[string]int{"a": 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _, _ := base.Get(ctx, "a"); v != 5 {
		t.Errorf("expected origin a=5, got %v", v)
	}
	if v, _, _ := store.Get(ctx, "a"); v != 5 {
		t.Errorf("expected mirrored a=5 without a reconciliation pass, got %v", v)
	}
	if v, _, _ := repo.Get(ctx, "a"); v != 5 {
		t.Errorf("expected a=5, got %v", v)
	}
}

func TestKeyValue_RejectedWriteLeavesStore(t *testing.T) {
	ctx := context.Background()
	_, origin := newOrigin(t, map[string]int{"a": 1})
	repo := NewKeyValue[string, int](ctx, origin, nil)
	defer repo.Close()
	waitReady(t, repo.Ready())

	origin.Fail(true)

	tests := []struct {
		name  string
		write func() error
	}{
		{name: "set", write: func() error { return repo.Set(ctx, map[string]int{"a": 9}) }},
		{name: "unset", write: func() error { return repo.Unset(ctx, []string{"a"}) }},
		{name: "unset with values", write: func() error { return repo.UnsetWithValues(ctx, []int{1}) }},
		{name: "clear", write: func() error { return repo.Clear(ctx) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.write(); !errors.Is(err, testsupport.ErrOriginDown) {
				t.Fatalf("expected origin error, got %v", err)
			}
			if v, ok, _ := repo.Get(ctx, "a"); !ok || v != 1 {
				t.Errorf("expected a=1 untouched, got %v %v", v, ok)
			}
		})
	}
}

func TestKeyValue_RemovalsMirror(t *testing.T) {
	ctx := context.Background()
	_, origin := newOrigin(t, map[string]int{"a": 1, "b": 2, "c": 1})
	repo := NewKeyValue[string, int](ctx, origin, nil)
	defer repo.Close()
	waitReady(t, repo.Ready())

	if err := repo.UnsetWithValues(ctx, []int{1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keys, _ := repo.Keys(ctx, pagination.FirstPage(10), false)
	if diff := cmp.Diff([]string{"b"}, keys.Results); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	if err := repo.Unset(ctx, []string{"b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := repo.Contains(ctx, "b"); ok {
		t.Error("expected b to be removed")
	}

	_ = repo.Set(ctx, map[string]int{"d": 4})
	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// the set event for d may still be queued behind the clear
	testsupport.Eventually(t, time.Second, func() bool {
		count, _ := repo.Count(ctx)
		return count == 0
	}, "mirror emptied by clear")
}

func TestKeyValue_FollowsExternalWrites(t *testing.T) {
	ctx := context.Background()
	base, origin := newOrigin(t, map[string]int{"a": 1})
	repo := NewKeyValue[string, int](ctx, origin, nil)
	defer repo.Close()
	waitReady(t, repo.Ready())

	_ = base.Set(ctx, map[string]int{"c": 3})
	testsupport.Eventually(t, time.Second, func() bool {
		v, ok, _ := repo.Get(ctx, "c")
		return ok && v == 3
	}, "external set mirrored")

	_ = base.Unset(ctx, []string{"a"})
	testsupport.Eventually(t, time.Second, func() bool {
		ok, _ := repo.Contains(ctx, "a")
		return !ok
	}, "external removal mirrored")
}

func TestKeyValue_FailedInitialLoadReleasesLock(t *testing.T) {
	ctx := context.Background()
	_, origin := newOrigin(t, map[string]int{"a": 1})
	origin.Fail(true)

	repo := NewKeyValue[string, int](ctx, origin, nil)
	defer repo.Close()
	waitReady(t, repo.Ready())

	if _, ok, err := repo.Get(ctx, "a"); err != nil || ok {
		t.Errorf("expected empty mirror after a failed load, got %v %v", ok, err)
	}

	origin.Fail(false)
	if err := repo.Invalidate(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok, _ := repo.Get(ctx, "a"); !ok || v != 1 {
		t.Errorf("expected a=1 after invalidate, got %v %v", v, ok)
	}
}

func TestKeyValue_CloseDuringInitialLoad(t *testing.T) {
	_, origin := newOrigin(t, map[string]int{"a": 1})
	origin.Hold()
	defer origin.Release()

	repo := NewKeyValue[string, int](context.Background(), origin, nil)

	done := make(chan struct{})
	go func() {
		_ = repo.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return while the initial load was held")
	}
	waitReady(t, repo.Ready())
	if repo.locker.IsWriteLocked() {
		t.Error("expected the lock to be released")
	}
}

func TestKeyValue_SkipStartInvalidate(t *testing.T) {
	ctx := context.Background()
	_, origin := newOrigin(t, map[string]int{"a": 1})
	store := cache.NewMap[string, int]()
	_ = store.Set(ctx, map[string]int{"seeded": 7})

	repo := NewKeyValue[string, int](ctx, origin, store, WithSkipStartInvalidate())
	defer repo.Close()

	if repo.locker.IsWriteLocked() {
		t.Fatal("expected an unlocked mirror")
	}
	if v, ok, _ := repo.Get(ctx, "seeded"); !ok || v != 7 {
		t.Errorf("expected seeded value, got %v %v", v, ok)
	}
	if origin.Calls("Keys") != 0 {
		t.Error("expected no initial load")
	}
}

func TestKeyValue_ReadHonoursContext(t *testing.T) {
	_, origin := newOrigin(t, map[string]int{"a": 1})
	origin.Hold()
	defer origin.Release()

	repo := NewKeyValue[string, int](context.Background(), origin, nil)
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := repo.Get(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error while waiting for the load, got %v", err)
	}
}

func TestReadKeyValue_LoadsOnInvalidate(t *testing.T) {
	ctx := context.Background()
	base, _ := newOrigin(t, map[string]int{"a": 1})
	repo := NewReadKeyValue[string, int](base, nil)

	if _, ok, _ := repo.Get(ctx, "a"); ok {
		t.Fatal("expected nothing before Invalidate")
	}
	if err := repo.Invalidate(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	all, _ := repo.GetAll(ctx)
	if diff := cmp.Diff(map[string]int{"a": 1}, all); diff != "" {
		t.Errorf("mirror mismatch (-want +got):\n%s", diff)
	}

	_ = base.Set(ctx, map[string]int{"b": 2})
	if ok, _ := repo.Contains(ctx, "b"); ok {
		t.Error("read mirror must not follow the origin between passes")
	}
	_ = repo.Invalidate(ctx)
	keys, _ := repo.KeysByValue(ctx, 2, pagination.FirstPage(10), false)
	if diff := cmp.Diff([]string{"b"}, keys.Results); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteKeyValue_MirrorsChangeStream(t *testing.T) {
	ctx := context.Background()
	base, _ := newOrigin(t, nil)
	store := cache.NewMap[string, int]()
	repo := NewWriteKeyValue[string, int](ctx, base, store)
	defer repo.Close()

	if err := repo.Set(ctx, map[string]int{"a": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testsupport.Eventually(t, time.Second, func() bool {
		v, ok, _ := store.Get(ctx, "a")
		return ok && v == 1
	}, "set mirrored")

	if err := repo.Invalidate(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count, _ := store.Count(ctx); count != 0 {
		t.Errorf("expected cleared store, got %d", count)
	}
}
