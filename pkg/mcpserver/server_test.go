package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/vault/pkg/snapshot"
	"github.com/wilhg/vault/pkg/store/memory"
	"github.com/wilhg/vault/pkg/vault"
)

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	svc := vault.New(st, vault.WithSnapshotWriter(snapshot.New(st, snapshot.WithDir(t.TempDir()))))
	srv := New(svc)

	ct, sst := mcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, sst, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if out != nil && !res.IsError {
		require.NotEmpty(t, res.Content)
		text, ok := res.Content[0].(*mcp.TextContent)
		require.True(t, ok)
		require.NoError(t, json.Unmarshal([]byte(text.Text), out))
	}
	return res
}

func TestTools_Listed(t *testing.T) {
	cs := connect(t)
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_records", "sort_records", "record_stats", "add_record", "delete_record"}, names)
}

func TestTools_RoundTrip(t *testing.T) {
	cs := connect(t)

	var added MutationOutput
	res := call(t, cs, "add_record", map[string]any{"fields": map[string]any{"name": "Alpha", "date": "2024-01-01"}}, &added)
	require.False(t, res.IsError)
	require.NotEmpty(t, added.ID)
	call(t, cs, "add_record", map[string]any{"fields": map[string]any{"name": "Beta", "date": "2024-06-01"}}, nil)

	var found RecordsOutput
	call(t, cs, "search_records", map[string]any{"keyword": "alp"}, &found)
	require.Len(t, found.Records, 1)
	assert.Equal(t, "Alpha", found.Records[0]["name"])
	assert.Equal(t, "2024-01-01", found.Records[0]["date"])

	var sorted RecordsOutput
	call(t, cs, "sort_records", map[string]any{"field": "name", "order": "desc"}, &sorted)
	require.Len(t, sorted.Records, 2)
	assert.Equal(t, "Beta", sorted.Records[0]["name"])

	var stats StatsOutput
	call(t, cs, "record_stats", map[string]any{}, &stats)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, "Alpha", stats.LongestName)
	assert.Equal(t, "2024-01-01", stats.EarliestDate)
	assert.Equal(t, "2024-06-01", stats.LatestDate)

	call(t, cs, "delete_record", map[string]any{"id": added.ID}, nil)
	found = RecordsOutput{}
	call(t, cs, "search_records", map[string]any{}, &found)
	require.Len(t, found.Records, 1)
	assert.Equal(t, "Beta", found.Records[0]["name"])
}

func TestTools_AddInvalidIsToolError(t *testing.T) {
	cs := connect(t)
	res := call(t, cs, "add_record", map[string]any{"fields": map[string]any{"name": 7}}, nil)
	assert.True(t, res.IsError)
}
