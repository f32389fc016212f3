package store

import (
	"regexp"
	"strings"

	"github.com/wilhg/vault/pkg/record"
)

// Order is a sort direction.
type Order int

const (
	Asc Order = iota
	Desc
)

// ParseOrder maps the query token to an Order: "desc" selects descending,
// anything else ascending.
func ParseOrder(s string) Order {
	if strings.EqualFold(s, "desc") {
		return Desc
	}
	return Asc
}

func (o Order) String() string {
	if o == Desc {
		return "desc"
	}
	return "asc"
}

// SortSpec selects the sort key and direction.
type SortSpec struct {
	Field string
	Order Order
}

// DefaultSortField is used when no field is requested.
const DefaultSortField = record.KeyName

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether field can be used as an extra-field sort key.
// Other names leave the store-native order untouched.
func IsIdentifier(field string) bool { return identRe.MatchString(field) }

// Column returns the column backing a well-known field, or "" for extra fields.
func Column(field string) string {
	switch field {
	case record.KeyID, "_id":
		return "id"
	case record.KeyName:
		return "name"
	case record.KeyDate:
		return "date"
	case record.KeyCreatedAt:
		return "created_at"
	case record.KeyUpdatedAt:
		return "updated_at"
	}
	return ""
}
