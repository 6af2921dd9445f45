// Package config implements the Configuration Manager (spec §4.2): a
// singleton registry of typed configuration categories persisted in the
// storage service's configuration table, with schema validation, an
// upgrade-preserving merge rule, and observer notification on every change.
package config

// ItemType is the fixed set of value types a configuration Item may declare.
type ItemType string

const (
	TypeBoolean     ItemType = "boolean"
	TypeInteger     ItemType = "integer"
	TypeString      ItemType = "string"
	TypeIPv4        ItemType = "IPv4"
	TypeIPv6        ItemType = "IPv6"
	TypeX509Cert    ItemType = "X509 certificate"
	TypeJSON        ItemType = "JSON"
)

var validTypes = map[ItemType]bool{
	TypeBoolean:  true,
	TypeInteger:  true,
	TypeString:   true,
	TypeIPv4:     true,
	TypeIPv6:     true,
	TypeX509Cert: true,
	TypeJSON:     true,
}

// Item is one entry of a configuration Category. Value is always the
// effective setting consumed by components; it defaults to Default when a
// category is first created.
type Item struct {
	Description string   `json:"description"`
	Type        ItemType `json:"type"`
	Default     string   `json:"default"`
	Value       string   `json:"value"`
}

// Category is a named group of typed configuration items (spec §3). Item
// names are unique within a category by construction (map keys).
type Category struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Items       map[string]Item `json:"items"`
}

// Clone returns a deep copy so callers can't mutate manager-owned state
// through a returned Category.
func (c Category) Clone() Category {
	items := make(map[string]Item, len(c.Items))
	for k, v := range c.Items {
		items[k] = v
	}
	return Category{Name: c.Name, Description: c.Description, Items: items}
}
