package config

// mergeCategoryValues implements _merge_category_vals(new, stored, keep):
// for items present in both, take description/type/default from new and
// value from stored, so operator-set values survive a schema upgrade. Items
// only in new are kept as-is. Items only in stored are kept only when
// keepOriginalItems is true.
func mergeCategoryValues(newItems, storedItems map[string]Item, keepOriginalItems bool) map[string]Item {
	merged := make(map[string]Item, len(newItems))

	for name, n := range newItems {
		if s, ok := storedItems[name]; ok {
			merged[name] = Item{
				Description: n.Description,
				Type:        n.Type,
				Default:     n.Default,
				Value:       s.Value,
			}
			continue
		}
		merged[name] = n
	}

	if keepOriginalItems {
		for name, s := range storedItems {
			if _, ok := merged[name]; !ok {
				merged[name] = s
			}
		}
	}

	return merged
}
