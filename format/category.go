package format

import "strings"

// Category selects how result rows are laid out for the answer model.
type Category int

const (
	General Category = iota
	EntityList
	Details
	Relationships
	Count
)

var categoryNames = map[Category]string{
	General:       "general",
	EntityList:    "entity_list",
	Details:       "details",
	Relationships: "relationships",
	Count:         "count",
}

var categoryAliases = map[string]Category{
	"general":       General,
	"entity_list":   EntityList,
	"entities":      EntityList,
	"list":          EntityList,
	"details":       Details,
	"detail":        Details,
	"relationships": Relationships,
	"relations":     Relationships,
	"count":         Count,
	"aggregate":     Count,
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return categoryNames[General]
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler; unknown names map to
// General.
func (c *Category) UnmarshalText(text []byte) error {
	*c = ParseCategory(string(text))
	return nil
}

// Categories returns every category in declaration order.
func Categories() []Category {
	return []Category{General, EntityList, Details, Relationships, Count}
}

// ParseCategory maps a name to a category. Unknown names yield General.
func ParseCategory(s string) Category {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	return General
}
