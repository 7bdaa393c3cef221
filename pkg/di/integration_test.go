package di

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/go-cmp/cmp"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/goliatone/go-repository-mirror/bunrepo"
	"github.com/goliatone/go-repository-mirror/cache"
	"github.com/goliatone/go-repository-mirror/pkg/testsupport"
)

// User represents a test model for integration tests
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID       string `json:"id" bun:"id,pk"`
	Name     string `json:"name" bun:"name"`
	Email    string `json:"email" bun:"email"`
	CreateTs int64  `json:"create_ts" bun:"create_ts"`
}

func userID(u User) string { return u.ID }

func withUserID(u User, id string) User {
	u.ID = id
	return u
}

var quotedID = regexp.MustCompile(`'([^']*)'`)

// mockUserRepository is the subset of a go-repository-bun repository the bun adapter uses,
// backed by a map. Every call is counted so tests can verify caching behavior.
type mockUserRepository struct {
	db        *bun.DB
	mu        sync.RWMutex
	users     map[string]User
	callCount map[string]int
	down      bool
}

func newMockUserRepository(t testing.TB) *mockUserRepository {
	t.Helper()
	sqldb, err := sql.Open("postgres", "postgres://mirror@localhost/mirror?sslmode=disable")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	return &mockUserRepository{
		db:        db,
		users:     make(map[string]User),
		callCount: make(map[string]int),
	}
}

func (m *mockUserRepository) trackCall(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[method]++
	if m.down {
		return testsupport.ErrOriginDown
	}
	return nil
}

func (m *mockUserRepository) getCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount[method]
}

func (m *mockUserRepository) setDown(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (User, error) {
	if err := m.trackCall("GetByID"); err != nil {
		return User{}, err
	}
	m.mu.RLock()
	user, exists := m.users[id]
	m.mu.RUnlock()
	if !exists {
		return User{}, goerrors.New("user not found", goerrors.CategoryNotFound)
	}
	return user, nil
}

// List returns every user ordered by id; the tables used here fit in one page.
func (m *mockUserRepository) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]User, int, error) {
	if err := m.trackCall("List"); err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, len(users), nil
}

func (m *mockUserRepository) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	if err := m.trackCall("Count"); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *mockUserRepository) CreateMany(ctx context.Context, records []User, criteria ...repository.InsertCriteria) ([]User, error) {
	if err := m.trackCall("CreateMany"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(records))
	for _, user := range records {
		if user.CreateTs == 0 {
			user.CreateTs = time.Now().Unix()
		}
		m.users[user.ID] = user
		out = append(out, user)
	}
	return out, nil
}

func (m *mockUserRepository) Update(ctx context.Context, user User, criteria ...repository.UpdateCriteria) (User, error) {
	if err := m.trackCall("Update"); err != nil {
		return User{}, err
	}
	m.mu.Lock()
	m.users[user.ID] = user
	m.mu.Unlock()
	return user, nil
}

// DeleteWhere renders the criteria and deletes the ids quoted in the IN clause.
func (m *mockUserRepository) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	if err := m.trackCall("DeleteWhere"); err != nil {
		return err
	}
	q := m.db.NewDelete().Model((*User)(nil))
	for _, c := range criteria {
		q = c(q)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, match := range quotedID.FindAllStringSubmatch(q.String(), -1) {
		delete(m.users, match[1])
	}
	return nil
}

var _ bunrepo.Store[User] = (*mockUserRepository)(nil)

func newUserOrigin(t testing.TB, users ...User) (*bunrepo.CRUDRepo[User], *mockUserRepository) {
	t.Helper()
	mock := newMockUserRepository(t)
	for _, u := range users {
		mock.users[u.ID] = u
	}
	origin, err := bunrepo.New(bunrepo.Config[User]{Store: mock, IDOf: userID, WithID: withUserID})
	if err != nil {
		t.Fatalf("bunrepo.New() failed: %v", err)
	}
	t.Cleanup(func() { _ = origin.Close() })
	return origin, mock
}

// testContainer sizes the bounded store well above the 100-user fixtures. sturdyc splits
// capacity across shards and evicts per shard, so a store sized at the working set churns.
func testContainer(t testing.TB) *Container {
	t.Helper()
	container, err := NewContainer(cache.Config{
		Capacity:           1000,
		NumShards:          4,
		TTL:                time.Minute,
		EvictionPercentage: 10,
	})
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	return container
}

// TestEndToEndReadThroughFlow wires a bun backed origin behind a read-through repository
// built by the container.
func TestEndToEndReadThroughFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	origin, mock := newUserOrigin(t, User{ID: "user-1", Name: "John Doe", Email: "john@example.com"})
	repo, err := NewReadThroughCRUD(ctx, testContainer(t), "users", origin, userID)
	if err != nil {
		t.Fatalf("NewReadThroughCRUD() failed: %v", err)
	}
	defer repo.Close()

	for i := 0; i < 3; i++ {
		user, ok, err := repo.GetByID(ctx, "user-1")
		if err != nil || !ok || user.Name != "John Doe" {
			t.Fatalf("read %d: got %v %v %v", i, user, ok, err)
		}
	}
	if calls := mock.getCallCount("GetByID"); calls != 1 {
		t.Errorf("expected 1 origin read, got %d", calls)
	}

	if _, ok, err := repo.Update(ctx, "user-1", User{Name: "Jane Doe", Email: "jane@example.com"}); err != nil || !ok {
		t.Fatalf("Update() failed: %v %v", ok, err)
	}
	reads := mock.getCallCount("GetByID")
	user, _, _ := repo.GetByID(ctx, "user-1")
	if user.Name != "Jane Doe" {
		t.Errorf("expected the updated user from cache, got %v", user)
	}
	if calls := mock.getCallCount("GetByID"); calls != reads {
		t.Errorf("expected the update to be served from cache, got %d extra reads", calls-reads)
	}

	if _, ok, err := repo.GetByID(ctx, "missing"); ok || err != nil {
		t.Errorf("expected not found, got %v %v", ok, err)
	}
}

func TestReadThroughErrorPropagation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	origin, mock := newUserOrigin(t)
	repo, err := NewReadThroughCRUD(ctx, testContainer(t), "users", origin, userID)
	if err != nil {
		t.Fatalf("NewReadThroughCRUD() failed: %v", err)
	}
	defer repo.Close()

	mock.setDown(true)
	_, _, err = repo.GetByID(ctx, "user-1")
	if !errors.Is(err, testsupport.ErrOriginDown) {
		t.Errorf("expected the origin error, got %v", err)
	}
}

func TestAutoRecacheServesCopyWhileOriginIsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := User{ID: "a", Name: "Alice"}
	bob := User{ID: "b", Name: "Bob"}
	origin, mock := newUserOrigin(t, alice, bob)

	container := testContainer(t)
	repo := NewAutoRecacheCRUD(ctx, container, "users", origin, userID)
	defer repo.Close()

	if err := repo.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate() failed: %v", err)
	}

	mock.setDown(true)
	user, ok, err := repo.GetByID(ctx, "b")
	if err != nil || !ok || user != bob {
		t.Errorf("expected Bob from the cached copy, got %v %v %v", user, ok, err)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if diff := cmp.Diff(map[string]User{"a": alice, "b": bob}, all); diff != "" {
		t.Errorf("cached copy mismatch (-want +got):\n%s", diff)
	}

	if err := repo.Invalidate(ctx); !errors.Is(err, testsupport.ErrOriginDown) {
		t.Errorf("expected Invalidate to report the outage, got %v", err)
	}
}

func TestMirrorFollowsWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	origin, mock := newUserOrigin(t, User{ID: "a", Name: "Alice"})
	mirror := NewMirrorCRUD(ctx, testContainer(t), "users", origin, userID)
	defer mirror.Close()

	select {
	case <-mirror.Ready():
	case <-time.After(time.Second):
		t.Fatal("initial load did not finish")
	}

	if _, err := mirror.Create(ctx, []User{{ID: "b", Name: "Bob", CreateTs: 1}}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := mirror.DeleteByID(ctx, []string{"a"}); err != nil {
		t.Fatalf("DeleteByID() failed: %v", err)
	}

	testsupport.Eventually(t, time.Second, func() bool {
		all, err := mirror.GetAll(ctx)
		return err == nil && cmp.Equal(map[string]User{"b": {ID: "b", Name: "Bob", CreateTs: 1}}, all)
	}, "mirror did not follow the writes")

	reads := mock.getCallCount("GetByID") + mock.getCallCount("List")
	mock.setDown(true)
	if ok, err := mirror.Contains(ctx, "b"); err != nil || !ok {
		t.Errorf("expected mirror reads to skip the origin, got %v %v", ok, err)
	}
	if calls := mock.getCallCount("GetByID") + mock.getCallCount("List"); calls != reads {
		t.Errorf("expected no origin reads, got %d", calls-reads)
	}
}
