//go:build integration

package entstore

import (
	"context"
	"testing"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/wilhg/vault/pkg/record"
	"github.com/wilhg/vault/pkg/store"
)

func TestPostgresRecordFlow(t *testing.T) {
	ctx := context.Background()
	pg, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("vault"),
		tcpostgres.WithUsername("vault"),
		tcpostgres.WithPassword("vault"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("skip: cannot start postgres: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	st, err := Open(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	for _, m := range []map[string]any{
		{"name": "Beta", "date": "2024-06-01", "rank": 1},
		{"name": "alpha", "date": "2024-01-01", "rank": 3},
		{"name": "Gamma"},
		{"name": "Ärger"},
	} {
		r, err := record.FromMap(m)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := st.Insert(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	found, err := st.Search(ctx, "ALP")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Name != "alpha" {
		t.Fatalf("search=%v", names(found))
	}
	found, err = st.Search(ctx, "är")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Name != "Ärger" {
		t.Fatalf("unicode search=%v", names(found))
	}

	sorted, err := st.Sort(ctx, store.SortSpec{Field: "name"})
	if err != nil {
		t.Fatal(err)
	}
	// COLLATE "C": uppercase before lowercase, like the SQLite and memory stores.
	if n := names(sorted); !equal(n, []string{"Beta", "Gamma", "alpha", "Ärger"}) {
		t.Fatalf("sort=%v", n)
	}

	byDate, err := st.Sort(ctx, store.SortSpec{Field: "date"})
	if err != nil {
		t.Fatal(err)
	}
	if n := names(byDate); !equal(n, []string{"Gamma", "Ärger", "alpha", "Beta"}) {
		t.Fatalf("date sort=%v", n)
	}

	byRank, err := st.Sort(ctx, store.SortSpec{Field: "rank", Order: store.Desc})
	if err != nil {
		t.Fatal(err)
	}
	if n := names(byRank); !equal(n, []string{"alpha", "Beta", "Gamma", "Ärger"}) {
		t.Fatalf("rank sort=%v", n)
	}

	if err := st.Delete(ctx, sorted[0].ID); err != nil {
		t.Fatal(err)
	}
	all, err := st.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("len=%d want 3", len(all))
	}
}
