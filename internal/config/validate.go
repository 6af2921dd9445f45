package config

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/weinenglong/foglamp-sendprocess/internal/errtypes"
)

var allowedItemKeys = map[string]bool{
	"description": true,
	"type":        true,
	"default":     true,
	"value":       true,
}

// rawItemInput is the shape one entry of an input schema must satisfy before
// it is considered a valid Item: every field is a string (per spec §4.2),
// description/type/default are mandatory, value is optional.
type rawItemInput struct {
	Description string `validate:"required"`
	Type        string `validate:"required"`
	Default     string `validate:"required"`
	Value       string
	HasValue    bool
}

var itemValidator = validator.New()

// validateCategorySchema implements _validate_category_val: the input must
// be a mapping of item name -> mapping of string fields, with exactly the
// allowed keys, type drawn from the fixed set, and value handled per
// setValueFromDefault.
func validateCategorySchema(schema map[string]map[string]string, setValueFromDefault bool) (map[string]Item, error) {
	if schema == nil {
		return nil, &errtypes.ConfigError{Op: "validate_category", Detail: "schema must be a mapping"}
	}

	items := make(map[string]Item, len(schema))
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fields := schema[name]

		for key := range fields {
			if !allowedItemKeys[key] {
				return nil, &errtypes.ConfigError{
					Op:     "validate_category",
					Detail: fmt.Sprintf("item %q: unknown entry %q", name, key),
				}
			}
		}

		_, hasValue := fields["value"]
		raw := rawItemInput{
			Description: fields["description"],
			Type:        fields["type"],
			Default:     fields["default"],
			Value:       fields["value"],
			HasValue:    hasValue,
		}

		if err := itemValidator.Struct(raw); err != nil {
			return nil, &errtypes.ConfigError{
				Op:     "validate_category",
				Detail: fmt.Sprintf("item %q: missing required entry", name),
				Cause:  err,
			}
		}

		if !validTypes[ItemType(raw.Type)] {
			return nil, &errtypes.ConfigError{
				Op:     "validate_category",
				Detail: fmt.Sprintf("item %q: unsupported type %q", name, raw.Type),
			}
		}

		if setValueFromDefault && raw.HasValue {
			return nil, &errtypes.ConfigError{
				Op:     "validate_category",
				Detail: fmt.Sprintf("item %q: value given but set_value_from_default requested defaults", name),
			}
		}
		if !setValueFromDefault && !raw.HasValue {
			return nil, &errtypes.ConfigError{
				Op:     "validate_category",
				Detail: fmt.Sprintf("item %q: value is required when set_value_from_default is false", name),
			}
		}

		value := raw.Value
		if setValueFromDefault {
			value = raw.Default
		}

		items[name] = Item{
			Description: raw.Description,
			Type:        ItemType(raw.Type),
			Default:     raw.Default,
			Value:       value,
		}
	}

	return items, nil
}
