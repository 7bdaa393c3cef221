package bunrepo

import (
	"context"
	"database/sql"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/go-cmp/cmp"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/goliatone/go-repository-mirror/pagination"
	"github.com/goliatone/go-repository-mirror/repos"
)

type widget struct {
	bun.BaseModel `bun:"table:widgets,alias:w"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name"`
}

func widgetID(w widget) string { return w.ID }

func withWidgetID(w widget, id string) widget {
	w.ID = id
	return w
}

var (
	limitRe  = regexp.MustCompile(`LIMIT (\d+)`)
	offsetRe = regexp.MustCompile(`OFFSET (\d+)`)
	quotedRe = regexp.MustCompile(`'([^']*)'`)
)

// widgetTable renders every criteria against a postgres dialect and evaluates the
// resulting LIMIT, OFFSET and IN clauses over an in-memory table.
type widgetTable struct {
	db *bun.DB

	mu      sync.Mutex
	rows    map[string]widget
	queries []string
	calls   map[string]int
}

func newWidgetTable(t *testing.T, rows ...widget) *widgetTable {
	t.Helper()
	// sql.Open does not connect; the handle only feeds the query builder.
	sqldb, err := sql.Open("postgres", "postgres://mirror@localhost/mirror?sslmode=disable")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	tbl := &widgetTable{db: db, rows: map[string]widget{}, calls: map[string]int{}}
	for _, r := range rows {
		tbl.rows[r.ID] = r
	}
	return tbl
}

func (w *widgetTable) track(method, query string) {
	w.calls[method]++
	if query != "" {
		w.queries = append(w.queries, query)
	}
}

func (w *widgetTable) lastQuery() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queries) == 0 {
		return ""
	}
	return w.queries[len(w.queries)-1]
}

func (w *widgetTable) sortedIDs() []string {
	ids := make([]string, 0, len(w.rows))
	for id := range w.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func match(re *regexp.Regexp, query string) int {
	m := re.FindStringSubmatch(query)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func (w *widgetTable) GetByID(_ context.Context, id string, _ ...repository.SelectCriteria) (widget, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.track("GetByID", "")
	row, ok := w.rows[id]
	if !ok {
		return widget{}, goerrors.New("widget not found", goerrors.CategoryNotFound)
	}
	return row, nil
}

func (w *widgetTable) List(_ context.Context, criteria ...repository.SelectCriteria) ([]widget, int, error) {
	q := w.db.NewSelect().Model((*widget)(nil))
	for _, c := range criteria {
		q = c(q)
	}
	query := q.String()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.track("List", query)

	ids := w.sortedIDs()
	offset := match(offsetRe, query)
	end := len(ids)
	if limit := match(limitRe, query); limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := []widget{}
	for i := offset; i < end; i++ {
		out = append(out, w.rows[ids[i]])
	}
	return out, len(ids), nil
}

func (w *widgetTable) Count(_ context.Context, _ ...repository.SelectCriteria) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.track("Count", "")
	return len(w.rows), nil
}

func (w *widgetTable) CreateMany(_ context.Context, records []widget, _ ...repository.InsertCriteria) ([]widget, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.track("CreateMany", "")
	for _, r := range records {
		if _, exists := w.rows[r.ID]; exists {
			return nil, goerrors.New("duplicate key", goerrors.CategoryConflict)
		}
	}
	for _, r := range records {
		w.rows[r.ID] = r
	}
	return records, nil
}

func (w *widgetTable) Update(_ context.Context, record widget, _ ...repository.UpdateCriteria) (widget, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.track("Update", "")
	w.rows[record.ID] = record
	return record, nil
}

func (w *widgetTable) DeleteWhere(_ context.Context, criteria ...repository.DeleteCriteria) error {
	q := w.db.NewDelete().Model((*widget)(nil))
	for _, c := range criteria {
		q = c(q)
	}
	query := q.String()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.track("DeleteWhere", query)
	for _, m := range quotedRe.FindAllStringSubmatch(query, -1) {
		delete(w.rows, m[1])
	}
	return nil
}

func newWidgets(t *testing.T, rows ...widget) (*CRUDRepo[widget], *widgetTable) {
	t.Helper()
	tbl := newWidgetTable(t, rows...)
	repo, err := New(Config[widget]{Store: tbl, IDOf: widgetID, WithID: withWidgetID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo, tbl
}

func TestNew_Validation(t *testing.T) {
	tbl := newWidgetTable(t)

	tests := []struct {
		name string
		cfg  Config[widget]
	}{
		{name: "missing store", cfg: Config[widget]{IDOf: widgetID, WithID: withWidgetID}},
		{name: "missing id func", cfg: Config[widget]{Store: tbl, WithID: withWidgetID}},
		{name: "missing id setter", cfg: Config[widget]{Store: tbl, IDOf: widgetID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !goerrors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCRUDRepo_GetByPaginationRendersPageQuery(t *testing.T) {
	ctx := context.Background()
	repo, tbl := newWidgets(t,
		widget{ID: "c", Name: "gamma"},
		widget{ID: "a", Name: "alpha"},
		widget{ID: "b", Name: "beta"},
	)

	page, err := repo.GetByPagination(ctx, pagination.Pagination{Page: 1, Size: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]widget{{ID: "c", Name: "gamma"}}, page.Results); diff != "" {
		t.Errorf("page mismatch (-want +got):\n%s", diff)
	}
	if page.Total != 3 || !page.IsLast() {
		t.Errorf("expected last page of 3, got total %d last %v", page.Total, page.IsLast())
	}

	query := tbl.lastQuery()
	for _, want := range []string{`FROM "widgets" AS "w"`, `ORDER BY "id" ASC`, "LIMIT 2", "OFFSET 2"} {
		if !strings.Contains(query, want) {
			t.Errorf("expected %q in %s", want, query)
		}
	}
}

func TestCRUDRepo_Reads(t *testing.T) {
	ctx := context.Background()
	repo, _ := newWidgets(t, widget{ID: "a", Name: "alpha"}, widget{ID: "b", Name: "beta"})

	ids, err := repo.GetIDsByPagination(ctx, pagination.FirstPage(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids.Results); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	if n, _ := repo.Count(ctx); n != 2 {
		t.Errorf("expected 2 widgets, got %d", n)
	}

	w, ok, err := repo.GetByID(ctx, "a")
	if err != nil || !ok || w.Name != "alpha" {
		t.Errorf("expected alpha, got %v %v %v", w, ok, err)
	}
	if _, ok, err := repo.GetByID(ctx, "zzz"); ok || err != nil {
		t.Errorf("expected not found without error, got %v %v", ok, err)
	}
	if ok, _ := repo.Contains(ctx, "b"); !ok {
		t.Error("expected Contains(b)")
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]widget{"a": {ID: "a", Name: "alpha"}, "b": {ID: "b", Name: "beta"}}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Errorf("GetAll mismatch (-want +got):\n%s", diff)
	}
}

func TestCRUDRepo_WritesPublishChanges(t *testing.T) {
	ctx := context.Background()
	repo, tbl := newWidgets(t, widget{ID: "a", Name: "alpha"})

	sub := repo.changes.Subscribe()
	defer sub.Close()

	if _, err := repo.Create(ctx, []widget{{ID: "b", Name: "beta"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, ok, err := repo.Update(ctx, "a", widget{Name: "ALPHA"})
	if err != nil || !ok {
		t.Fatalf("update: %v %v", ok, err)
	}
	if updated.ID != "a" {
		t.Errorf("expected Update to set the id, got %q", updated.ID)
	}
	if err := repo.DeleteByID(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if !strings.Contains(tbl.lastQuery(), `"id" IN ('a', 'b')`) {
		t.Errorf("unexpected delete query %s", tbl.lastQuery())
	}
	if n, _ := repo.Count(ctx); n != 0 {
		t.Errorf("expected empty table, got %d", n)
	}

	want := []repos.Change[string, widget]{
		repos.SetChange("b", widget{ID: "b", Name: "beta"}),
		repos.SetChange("a", widget{ID: "a", Name: "ALPHA"}),
		repos.RemovedChange[string, widget]("a"),
		repos.RemovedChange[string, widget]("b"),
	}
	var got []repos.Change[string, widget]
	for len(got) < len(want) {
		select {
		case c := <-sub.C():
			got = append(got, c)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d changes", len(got))
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestCRUDRepo_RejectedWritesPublishNothing(t *testing.T) {
	ctx := context.Background()
	repo, tbl := newWidgets(t, widget{ID: "a", Name: "alpha"})

	sub := repo.changes.Subscribe()
	defer sub.Close()

	if _, ok, err := repo.Update(ctx, "missing", widget{Name: "x"}); ok || err != nil {
		t.Errorf("expected unknown id to report not found, got %v %v", ok, err)
	}
	if tbl.calls["Update"] != 0 {
		t.Error("expected no update statement for an unknown id")
	}
	if _, err := repo.Create(ctx, []widget{{ID: "a"}}); !goerrors.IsCategory(err, goerrors.CategoryConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if err := repo.DeleteByID(ctx, nil); err != nil {
		t.Errorf("expected empty delete to succeed, got %v", err)
	}

	select {
	case c := <-sub.C():
		t.Errorf("unexpected change %v", c)
	default:
	}
}
