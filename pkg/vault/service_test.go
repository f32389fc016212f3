package vault

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/vault/pkg/errmodel"
	"github.com/wilhg/vault/pkg/export"
	"github.com/wilhg/vault/pkg/record"
	"github.com/wilhg/vault/pkg/snapshot"
	"github.com/wilhg/vault/pkg/store"
	"github.com/wilhg/vault/pkg/store/memory"
)

type fixture struct {
	svc       *Service
	store     *memory.Store
	backupDir string
	exportDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	var tick int64
	clock := func() time.Time {
		tick++
		return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(tick) * time.Millisecond)
	}
	st := memory.New().WithClock(clock)
	f := &fixture{store: st, backupDir: t.TempDir(), exportDir: t.TempDir()}
	f.svc = New(st,
		WithSnapshotWriter(snapshot.New(st, snapshot.WithDir(f.backupDir), snapshot.WithClock(clock))),
		WithExporter(export.New(st, export.WithDir(f.exportDir), export.WithClock(clock))),
	)
	return f
}

func (f *fixture) backups(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.backupDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func (f *fixture) latestBackup(t *testing.T) []map[string]any {
	t.Helper()
	names := f.backups(t)
	require.NotEmpty(t, names)
	b, err := os.ReadFile(filepath.Join(f.backupDir, names[len(names)-1]))
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func ids(rs []record.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestAdd_ThenSearchByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Add(ctx, map[string]any{"name": "Zephyr-42", "color": "blue"})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	got, err := f.svc.Search(ctx, "Zephyr-42")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, "blue", got[0].Fields["color"])
}

func TestAdd_IgnoresClientOwnedKeys(t *testing.T) {
	f := newFixture(t)
	rec, err := f.svc.Add(context.Background(), map[string]any{"id": "mine", "name": "x", "createdAt": "2000-01-01"})
	require.NoError(t, err)
	assert.NotEqual(t, "mine", rec.ID)
	assert.Equal(t, 2024, rec.CreatedAt.Year())
	assert.NotContains(t, rec.Fields, "createdAt")
}

func TestAdd_RejectsBadShapes(t *testing.T) {
	f := newFixture(t)
	cases := map[string]map[string]any{
		"numeric name": {"name": 12},
		"object date":  {"date": map[string]any{"y": 2024}},
		"bad date":     {"date": "not a date"},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Add(context.Background(), payload)
			require.Error(t, err)
			assert.True(t, errmodel.IsCategory(err, errmodel.CategoryValidation))
		})
	}
	assert.Empty(t, f.backups(t))
}

func TestMutations_WriteOneSnapshotMatchingStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Add(ctx, map[string]any{"name": "Alpha", "date": "2024-01-01"})
	require.NoError(t, err)
	require.Len(t, f.backups(t), 1)

	_, err = f.svc.Add(ctx, map[string]any{"name": "Beta", "date": "2024-06-01"})
	require.NoError(t, err)
	require.Len(t, f.backups(t), 2)

	snap := f.latestBackup(t)
	require.Len(t, snap, 2)
	assert.Equal(t, "Alpha", snap[0]["name"])
	assert.Equal(t, "2024-01-01", snap[0]["date"])
	assert.Equal(t, "Beta", snap[1]["name"])

	require.NoError(t, f.svc.Delete(ctx, a.ID))
	require.Len(t, f.backups(t), 3)
	snap = f.latestBackup(t)
	require.Len(t, snap, 1)
	assert.Equal(t, "Beta", snap[0]["name"])
}

func TestDelete_NeverReturnedAfterwards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Add(ctx, map[string]any{"name": "Gone"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, rec.ID))
	require.NoError(t, f.svc.Delete(ctx, rec.ID))
	require.NoError(t, f.svc.Delete(ctx, "not-an-id"))

	found, err := f.svc.Search(ctx, "")
	require.NoError(t, err)
	assert.NotContains(t, ids(found), rec.ID)
	sorted, err := f.svc.Sort(ctx, "", "")
	require.NoError(t, err)
	assert.NotContains(t, ids(sorted), rec.ID)
	assert.Len(t, f.backups(t), 4)
}

func TestSearch_CaseInsensitiveSubstring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, n := range []string{"Alpha", "Beta", "alphabet"} {
		_, err := f.svc.Add(ctx, map[string]any{"name": n})
		require.NoError(t, err)
	}
	got, err := f.svc.Search(ctx, "alp")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alpha", got[0].Name)
	assert.Equal(t, "alphabet", got[1].Name)

	all, err := f.svc.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSort_ByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, n := range []string{"Charlie", "alpha", "Bravo", "Alpha"} {
		_, err := f.svc.Add(ctx, map[string]any{"name": n})
		require.NoError(t, err)
	}

	asc, err := f.svc.Sort(ctx, "", "")
	require.NoError(t, err)
	for i := 1; i < len(asc); i++ {
		assert.LessOrEqual(t, asc[i-1].Name, asc[i].Name)
	}

	desc, err := f.svc.Sort(ctx, "name", "DESC")
	require.NoError(t, err)
	for i := 1; i < len(desc); i++ {
		assert.GreaterOrEqual(t, desc[i-1].Name, desc[i].Name)
	}

	other, err := f.svc.Sort(ctx, "name", "sideways")
	require.NoError(t, err)
	assert.Equal(t, ids(asc), ids(other))
}

func TestStats_Empty(t *testing.T) {
	f := newFixture(t)
	st, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	b, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":0}`, string(b))
}

func TestStats_AlphaBeta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Add(ctx, map[string]any{"name": "Alpha", "date": "2024-01-01"})
	require.NoError(t, err)
	beta, err := f.svc.Add(ctx, map[string]any{"name": "Beta", "date": "2024-06-01"})
	require.NoError(t, err)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	require.NotNil(t, st.LongestName)
	assert.Equal(t, "Alpha", *st.LongestName)
	require.NotNil(t, st.EarliestDate)
	require.NotNil(t, st.LatestDate)
	assert.Equal(t, "2024-01-01", st.EarliestDate.String())
	assert.Equal(t, "2024-06-01", st.LatestDate.String())
	require.NotNil(t, st.LastModified)
	assert.True(t, st.LastModified.Equal(beta.UpdatedAt))
}

func TestExport_WritesFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Add(ctx, map[string]any{"name": "Alpha", "date": "2024-01-01"})
	require.NoError(t, err)

	path, err := f.svc.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.exportDir, filepath.Dir(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Alpha | "+rec.ID+" | 2024-01-01\n")
}

type brokenStore struct {
	store.RecordStore
	err error
}

func (b brokenStore) Insert(context.Context, record.Record) (record.Record, error) {
	return record.Record{}, b.err
}
func (b brokenStore) Delete(context.Context, string) error { return b.err }
func (b brokenStore) List(context.Context) ([]record.Record, error) {
	return nil, b.err
}

func TestStoreFailure_NoSnapshot(t *testing.T) {
	dir := t.TempDir()
	st := brokenStore{err: errors.New("boom")}
	svc := New(st, WithSnapshotWriter(snapshot.New(st, snapshot.WithDir(dir))))
	ctx := context.Background()

	_, err := svc.Add(ctx, map[string]any{"name": "x"})
	require.Error(t, err)
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryStore))

	err = svc.Delete(ctx, "x")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreUnavailable_MapsTo503(t *testing.T) {
	st := brokenStore{err: errors.Join(store.ErrUnavailable, errors.New("dial"))}
	svc := New(st)
	_, err := svc.Stats(context.Background())
	require.Error(t, err)
	ce := errmodel.From(err)
	assert.Equal(t, errmodel.CodeStoreUnavailable, ce.Code)
	assert.Equal(t, 503, errmodel.HTTPStatus(ce))
}

func TestSnapshotFailure_KeepsRecord(t *testing.T) {
	f := newFixture(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	f.svc.snapshot = snapshot.New(f.store, snapshot.WithDir(filepath.Join(blocker, "backups")))

	rec, err := f.svc.Add(context.Background(), map[string]any{"name": "kept"})
	require.Error(t, err)
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryIO))
	all, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID}, ids(all))
}

func TestDecodePayload(t *testing.T) {
	m, err := DecodePayload([]byte(`{"name":"a","n":1}`))
	require.NoError(t, err)
	assert.Equal(t, "a", m["name"])

	for _, body := range []string{``, `nope`, `[1,2]`, `"str"`, `{"name":true}`} {
		_, err := DecodePayload([]byte(body))
		require.Error(t, err, body)
		assert.True(t, errmodel.IsCategory(err, errmodel.CategoryValidation), body)
	}
}
