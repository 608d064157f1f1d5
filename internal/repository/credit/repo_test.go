package credit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/credits/internal/db"
	"github.com/kailas-cloud/credits/internal/domain"
	domcredit "github.com/kailas-cloud/credits/internal/domain/credit"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRepo_CreateGetRoundTrip(t *testing.T) {
	repo := New(newMemStore(), "")
	ctx := context.Background()

	rec, err := domcredit.New("alice", domcredit.Params{Cap: 100, GrantValue: 10, GrantInterval: 600}, t0)
	if err != nil {
		t.Fatal(err)
	}
	rec.SetLeaseBill("7", t0.Add(30*time.Second))

	if err := repo.Create(ctx, &rec); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := repo.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Name() != "alice" || got.Balance() != 100 || got.Cap() != 100 {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.GrantValue() != 10 || got.GrantInterval() != 600 {
		t.Errorf("grant params = %d/%d", got.GrantValue(), got.GrantInterval())
	}
	if !got.GrantLastUpdate().Equal(t0) {
		t.Errorf("GrantLastUpdate() = %v", got.GrantLastUpdate())
	}
	bill, ok := got.LeaseBill("7")
	if !ok || !bill.Equal(t0.Add(30*time.Second)) {
		t.Errorf("LeaseBill(7) = %v, %v", bill, ok)
	}
}

func TestRepo_CreateDuplicate(t *testing.T) {
	repo := New(newMemStore(), "")
	rec, _ := domcredit.New("alice", domcredit.Params{Cap: 1, GrantInterval: 1}, t0)

	if err := repo.Create(context.Background(), &rec); err != nil {
		t.Fatal(err)
	}
	err := repo.Create(context.Background(), &rec)
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRepo_GetNotFound(t *testing.T) {
	repo := New(&mockStore{}, "")
	_, err := repo.Get(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepo_GetStoreError(t *testing.T) {
	repo := New(&mockStore{
		getFn: func(_ context.Context, _ string) ([]byte, error) {
			return nil, &db.Error{Op: db.OpGet, Err: context.DeadlineExceeded}
		},
	}, "")
	_, err := repo.Get(context.Background(), "alice")
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected cause to be preserved")
	}
}

func TestRepo_GetCorrupt(t *testing.T) {
	repo := New(&mockStore{
		getFn: func(_ context.Context, _ string) ([]byte, error) {
			return []byte("{not json"), nil
		},
	}, "")
	_, err := repo.Get(context.Background(), "alice")
	var se *domain.StoreError
	if !errors.As(err, &se) || se.Op != "decode" {
		t.Fatalf("expected decode StoreError, got %v", err)
	}
}

func TestRepo_CommitUsesPrefixedKey(t *testing.T) {
	var gotKey string
	repo := New(&mockStore{
		setFn: func(_ context.Context, key string, _ []byte) error {
			gotKey = key
			return nil
		},
	}, "custom:")
	rec, _ := domcredit.New("bob", domcredit.Params{Cap: 1, GrantInterval: 1}, t0)

	if err := repo.Commit(context.Background(), &rec); err != nil {
		t.Fatal(err)
	}
	if gotKey != "custom:credit:bob" {
		t.Errorf("key = %q, want custom:credit:bob", gotKey)
	}
}

func TestRepo_CommitError(t *testing.T) {
	repo := New(&mockStore{
		setFn: func(_ context.Context, _ string, _ []byte) error {
			return errors.New("READONLY")
		},
	}, "")
	rec, _ := domcredit.New("bob", domcredit.Params{Cap: 1, GrantInterval: 1}, t0)

	err := repo.Commit(context.Background(), &rec)
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func TestRepo_List(t *testing.T) {
	ms := newMemStore()
	repo := New(ms, "")
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		rec, _ := domcredit.New(name, domcredit.Params{Cap: 5, GrantInterval: 60}, t0)
		if err := repo.Create(ctx, &rec); err != nil {
			t.Fatal(err)
		}
	}
	ms.data["credits:budget:unrelated"] = []byte("1")

	records, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Name() != "alice" || records[2].Name() != "carol" {
		t.Errorf("unexpected order: %s..%s", records[0].Name(), records[2].Name())
	}
}

func TestRepo_List_SkipsVanishedAndReportsCorrupt(t *testing.T) {
	good, _ := recordToJSON(ptr(mustRecord(t, "alice")))
	repo := New(&mockStore{
		scanFn: func(_ context.Context, _ string) ([]string, error) {
			return []string{"credits:credit:alice", "credits:credit:gone", "credits:credit:bad"}, nil
		},
		getFn: func(_ context.Context, key string) ([]byte, error) {
			switch key {
			case "credits:credit:alice":
				return good, nil
			case "credits:credit:bad":
				return []byte("garbage"), nil
			}
			return nil, db.ErrKeyNotFound
		},
	}, "")

	records, err := repo.List(context.Background())
	if len(records) != 1 || records[0].Name() != "alice" {
		t.Fatalf("expected only alice, got %d records", len(records))
	}
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore for corrupt record, got %v", err)
	}
}

func TestRepo_List_DedupesScanKeys(t *testing.T) {
	good, _ := recordToJSON(ptr(mustRecord(t, "alice")))
	gets := 0
	repo := New(&mockStore{
		scanFn: func(_ context.Context, _ string) ([]string, error) {
			return []string{"credits:credit:alice", "credits:credit:alice"}, nil
		},
		getFn: func(_ context.Context, _ string) ([]byte, error) {
			gets++
			return good, nil
		},
	}, "")

	records, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 1 || gets != 1 {
		t.Errorf("records/gets = %d/%d, want 1/1", len(records), gets)
	}
}

func TestRepo_List_ScanError(t *testing.T) {
	repo := New(&mockStore{
		scanFn: func(_ context.Context, _ string) ([]string, error) {
			return nil, errors.New("conn reset")
		},
	}, "")
	if _, err := repo.List(context.Background()); !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func mustRecord(t *testing.T, name string) domcredit.Record {
	t.Helper()
	rec, err := domcredit.New(name, domcredit.Params{Cap: 10, GrantInterval: 60}, t0)
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func ptr[T any](v T) *T { return &v }
