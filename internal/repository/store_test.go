package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/pagepick/backend/internal/db"
	"github.com/pagepick/backend/internal/model"
)

func newSQLiteStore(t *testing.T) SelectionStore {
	t.Helper()
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return NewSelectionRepository(testDB)
}

func newRedisTestStore(t *testing.T) SelectionStore {
	t.Helper()
	addr := os.Getenv("PAGEPICK_TEST_REDIS")
	if addr == "" {
		t.Skip("PAGEPICK_TEST_REDIS not set")
	}
	client, err := ConnectRedis(context.Background(), addr, "", 15, time.Second)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	client.FlushDB(context.Background())
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

var stores = []struct {
	name string
	open func(t *testing.T) SelectionStore
}{
	{"memory", func(*testing.T) SelectionStore { return NewMemoryStore() }},
	{"sqlite", newSQLiteStore},
	{"redis", newRedisTestStore},
}

func saved(id, url string, at time.Time, selectors ...string) *model.SavedSelection {
	return &model.SavedSelection{
		ID:         id,
		SourceURL:  url,
		Selectors:  selectors,
		Attributes: []string{"text"},
		CreatedAt:  at,
	}
}

func TestSelectionStore(t *testing.T) {
	for _, s := range stores {
		t.Run(s.name, func(t *testing.T) {
			store := s.open(t)
			ctx := context.Background()
			base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

			first := saved("id-1", "https://a.test/", base, "#app > p.lead")
			second := saved("id-2", "https://b.test/", base.Add(time.Minute), "body > ul > li", "#title")
			third := saved("id-3", "https://a.test/", base.Add(2*time.Minute), "h1")
			for _, sel := range []*model.SavedSelection{first, second, third} {
				if err := store.Save(ctx, sel); err != nil {
					t.Fatalf("failed to save %s: %v", sel.ID, err)
				}
			}

			got, err := store.GetByID(ctx, "id-2")
			if err != nil {
				t.Fatalf("failed to get: %v", err)
			}
			if got.SourceURL != "https://b.test/" || len(got.Selectors) != 2 || got.Selectors[1] != "#title" {
				t.Errorf("unexpected selection %+v", got)
			}
			if len(got.Attributes) != 1 || got.Attributes[0] != "text" {
				t.Errorf("unexpected attributes %v", got.Attributes)
			}

			all, err := store.List(ctx, "")
			if err != nil {
				t.Fatalf("failed to list: %v", err)
			}
			if len(all) != 3 || all[0].ID != "id-3" || all[2].ID != "id-1" {
				t.Errorf("expected newest first, got %v", ids(all))
			}

			forA, err := store.List(ctx, "https://a.test/")
			if err != nil {
				t.Fatalf("failed to list by url: %v", err)
			}
			if len(forA) != 2 || forA[0].ID != "id-3" || forA[1].ID != "id-1" {
				t.Errorf("unexpected url filter result %v", ids(forA))
			}

			none, err := store.List(ctx, "https://none.test/")
			if err != nil || none == nil || len(none) != 0 {
				t.Errorf("expected empty non-nil list, got %v (%v)", none, err)
			}

			if err := store.Delete(ctx, "id-1"); err != nil {
				t.Fatalf("failed to delete: %v", err)
			}
			if _, err := store.GetByID(ctx, "id-1"); !errors.Is(err, model.ErrSelectionNotFound) {
				t.Errorf("expected ErrSelectionNotFound after delete, got %v", err)
			}
			if err := store.Delete(ctx, "id-1"); !errors.Is(err, model.ErrSelectionNotFound) {
				t.Errorf("expected ErrSelectionNotFound on second delete, got %v", err)
			}
			forA, _ = store.List(ctx, "https://a.test/")
			if len(forA) != 1 {
				t.Errorf("expected deleted entry gone from the url index, got %v", ids(forA))
			}
		})
	}
}

func TestSelectionStore_RejectsInvalid(t *testing.T) {
	for _, s := range stores {
		t.Run(s.name, func(t *testing.T) {
			store := s.open(t)
			ctx := context.Background()

			if err := store.Save(ctx, saved("x", "https://a.test/", time.Now())); !errors.Is(err, model.ErrSelectorsRequired) {
				t.Errorf("expected ErrSelectorsRequired, got %v", err)
			}
			if err := store.Save(ctx, saved("x", "", time.Now(), "p")); !errors.Is(err, model.ErrSourceURLRequired) {
				t.Errorf("expected ErrSourceURLRequired, got %v", err)
			}
			if err := store.Save(ctx, nil); err == nil {
				t.Error("expected an error for a nil selection")
			}
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sel := saved("id", "https://a.test/", time.Now(), "p")
	store.Save(ctx, sel)
	sel.Selectors[0] = "changed"

	got, _ := store.GetByID(ctx, "id")
	got.Selectors = append(got.Selectors, "extra")
	again, _ := store.GetByID(ctx, "id")
	if again.Selectors[0] != "p" || len(again.Selectors) != 1 {
		t.Errorf("store shares memory with callers: %v", again.Selectors)
	}
}

func TestNewSavedSelection(t *testing.T) {
	tests := []struct {
		name    string
		req     model.SaveSelectionRequest
		wantErr error
		want    []string
	}{
		{
			name: "dedupes and trims",
			req: model.SaveSelectionRequest{
				Selectors:  []string{" #a ", "p", "#a", ""},
				Attributes: []string{"text", "href", "text"},
				SourceURL:  " https://a.test/ ",
			},
			want: []string{"#a", "p"},
		},
		{
			name:    "no selectors",
			req:     model.SaveSelectionRequest{Selectors: []string{" "}, SourceURL: "https://a.test/"},
			wantErr: model.ErrSelectorsRequired,
		},
		{
			name:    "no url",
			req:     model.SaveSelectionRequest{Selectors: []string{"p"}},
			wantErr: model.ErrSourceURLRequired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := NewSavedSelection(&tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sel.ID == "" || sel.CreatedAt.IsZero() {
				t.Error("expected id and timestamp to be set")
			}
			if sel.SourceURL != "https://a.test/" {
				t.Errorf("expected trimmed url, got %q", sel.SourceURL)
			}
			if len(sel.Selectors) != len(tt.want) || sel.Selectors[0] != tt.want[0] || sel.Selectors[1] != tt.want[1] {
				t.Errorf("expected %v, got %v", tt.want, sel.Selectors)
			}
			if len(sel.Attributes) != 2 {
				t.Errorf("expected deduped attributes, got %v", sel.Attributes)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := Open(ctx, Options{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("failed to open memory store: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", store)
	}
	closeFn()

	db.ResetDB()
	defer db.ResetDB()
	store, closeFn, err = Open(ctx, Options{Driver: DriverSQLite, SQLitePath: t.TempDir() + "/sel.db"})
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	if _, ok := store.(*SelectionRepository); !ok {
		t.Errorf("expected *SelectionRepository, got %T", store)
	}
	if err := closeFn(); err != nil {
		t.Errorf("failed to close: %v", err)
	}

	if _, _, err := Open(ctx, Options{Driver: "cassandra"}); err == nil {
		t.Error("expected an error for an unknown driver")
	}
}

func ids(list []*model.SavedSelection) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

// **Property: save integrity**
// For any valid request, the saved selection can be read back with the same
// source URL and selectors in order.
func TestSaveIntegrityProperty(t *testing.T) {
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	defer testDB.Close()

	repo := NewSelectionRepository(testDB)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("saved selections round-trip through sqlite", prop.ForAll(
		func(url string, selectors []string) bool {
			sel, err := NewSavedSelection(&model.SaveSelectionRequest{
				Selectors:  selectors,
				Attributes: []string{"text"},
				SourceURL:  "https://" + url + ".test/",
			})
			if err != nil {
				return false
			}
			if err := repo.Save(ctx, sel); err != nil {
				t.Logf("failed to save: %v", err)
				return false
			}
			got, err := repo.GetByID(ctx, sel.ID)
			if err != nil {
				return false
			}
			if got.SourceURL != sel.SourceURL || len(got.Selectors) != len(sel.Selectors) {
				return false
			}
			for i := range got.Selectors {
				if got.Selectors[i] != sel.Selectors[i] {
					return false
				}
			}
			return true
		},
		gen.Identifier(),
		gen.SliceOf(gen.Identifier()).SuchThat(func(v []string) bool { return len(v) > 0 }),
	))

	properties.TestingRun(t)
}
