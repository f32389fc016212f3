// Package mcpserver exposes the vault operations as Model Context Protocol
// tools over streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/wilhg/vault/pkg/record"
)

// Vault is the subset of the record service the tools call.
type Vault interface {
	Add(ctx context.Context, fields map[string]any) (record.Record, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, keyword string) ([]record.Record, error)
	Sort(ctx context.Context, field, order string) ([]record.Record, error)
	Stats(ctx context.Context) (record.Stats, error)
}

type SearchInput struct {
	Keyword string `json:"keyword,omitempty" jsonschema:"case-insensitive substring of the record name; empty matches all"`
}

type SortInput struct {
	Field string `json:"field,omitempty" jsonschema:"field to sort by, default name"`
	Order string `json:"order,omitempty" jsonschema:"desc for descending, anything else ascending"`
}

type StatsInput struct{}

type AddInput struct {
	Fields map[string]any `json:"fields" jsonschema:"record attributes such as name and date (YYYY-MM-DD or RFC 3339)"`
}

type DeleteInput struct {
	ID string `json:"id" jsonschema:"identifier of the record to delete"`
}

type RecordsOutput struct {
	Records []map[string]any `json:"records"`
}

type StatsOutput struct {
	Total        int    `json:"total"`
	LastModified string `json:"lastModified,omitempty"`
	LongestName  string `json:"longestName,omitempty"`
	EarliestDate string `json:"earliestDate,omitempty"`
	LatestDate   string `json:"latestDate,omitempty"`
}

type MutationOutput struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

type Option func(*options)

type options struct {
	version string
	logger  *zap.Logger
}

func WithVersion(v string) Option { return func(o *options) { o.version = v } }

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// New builds an MCP server with the vault tools registered.
func New(v Vault, opts ...Option) *mcp.Server {
	o := options{version: "dev", logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	srv := mcp.NewServer(&mcp.Implementation{Name: "vault", Version: o.version}, nil)
	t := tools{vault: v, logger: o.logger}

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_records",
		Description: "Find records whose name contains a keyword, ignoring case.",
	}, t.search)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "sort_records",
		Description: "List all records sorted by a field.",
	}, t.sort)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "record_stats",
		Description: "Summarize the record collection.",
	}, t.stats)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_record",
		Description: "Add a record and write a backup snapshot.",
	}, t.add)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_record",
		Description: "Delete a record by id and write a backup snapshot.",
	}, t.delete)
	return srv
}

// Handler serves srv over streamable HTTP.
func Handler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

type tools struct {
	vault  Vault
	logger *zap.Logger
}

func (t tools) search(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, RecordsOutput, error) {
	rs, err := t.vault.Search(ctx, in.Keyword)
	if err != nil {
		return nil, RecordsOutput{}, err
	}
	out, err := toMaps(rs)
	return nil, out, err
}

func (t tools) sort(ctx context.Context, _ *mcp.CallToolRequest, in SortInput) (*mcp.CallToolResult, RecordsOutput, error) {
	rs, err := t.vault.Sort(ctx, in.Field, in.Order)
	if err != nil {
		return nil, RecordsOutput{}, err
	}
	out, err := toMaps(rs)
	return nil, out, err
}

func (t tools) stats(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, StatsOutput, error) {
	st, err := t.vault.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, err
	}
	out := StatsOutput{Total: st.Total}
	if st.LastModified != nil {
		out.LastModified = st.LastModified.UTC().Format(time.RFC3339Nano)
	}
	if st.LongestName != nil {
		out.LongestName = *st.LongestName
	}
	if st.EarliestDate != nil {
		out.EarliestDate = st.EarliestDate.String()
	}
	if st.LatestDate != nil {
		out.LatestDate = st.LatestDate.String()
	}
	return nil, out, nil
}

func (t tools) add(ctx context.Context, _ *mcp.CallToolRequest, in AddInput) (*mcp.CallToolResult, MutationOutput, error) {
	rec, err := t.vault.Add(ctx, in.Fields)
	if err != nil {
		t.logger.Warn("mcp add_record failed", zap.Error(err))
		return nil, MutationOutput{}, err
	}
	return nil, MutationOutput{Message: "Record added and backup created", ID: rec.ID}, nil
}

func (t tools) delete(ctx context.Context, _ *mcp.CallToolRequest, in DeleteInput) (*mcp.CallToolResult, MutationOutput, error) {
	if err := t.vault.Delete(ctx, in.ID); err != nil {
		t.logger.Warn("mcp delete_record failed", zap.String("id", in.ID), zap.Error(err))
		return nil, MutationOutput{}, err
	}
	return nil, MutationOutput{Message: "Record deleted and backup created"}, nil
}

// toMaps renders records through their JSON form so tool output matches the
// HTTP responses key for key.
func toMaps(rs []record.Record) (RecordsOutput, error) {
	out := RecordsOutput{Records: []map[string]any{}}
	if len(rs) == 0 {
		return out, nil
	}
	b, err := json.Marshal(rs)
	if err != nil {
		return RecordsOutput{}, err
	}
	if err := json.Unmarshal(b, &out.Records); err != nil {
		return RecordsOutput{}, err
	}
	return out, nil
}
