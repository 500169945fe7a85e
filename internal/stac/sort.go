package stac

import "strings"

// SortDirection represents the sort direction.
type SortDirection string

const (
	// SortAsc represents ascending sort order.
	SortAsc SortDirection = "asc"
	// SortDesc represents descending sort order.
	SortDesc SortDirection = "desc"
)

// SortbyItem represents a single sort criterion
type SortbyItem struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// PropertyField returns the sort field for an item property, prefixed with
// "properties." as item-search endpoints expect. Top level item fields are
// returned unchanged.
func PropertyField(name string) string {
	switch {
	case strings.HasPrefix(name, "properties."):
		return name
	case name == "id" || name == "collection" || name == "geometry":
		return name
	}
	return "properties." + name
}
