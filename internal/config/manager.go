package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/weinenglong/foglamp-sendprocess/internal/audit"
	"github.com/weinenglong/foglamp-sendprocess/internal/errtypes"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
)

// Callback is the coroutine a registered observer exposes: run(category)
// in spec terms, invoked after a change to the named category commits.
type Callback interface {
	Run(ctx context.Context, categoryName string)
}

// CallbackFunc adapts a plain function to Callback.
type CallbackFunc func(ctx context.Context, categoryName string)

func (f CallbackFunc) Run(ctx context.Context, categoryName string) { f(ctx, categoryName) }

// Manager owns the category registry: creation-with-merge, reads, writes,
// and observer notification. It is constructed once at process start and
// rejects construction without a storage client (DESIGN NOTES §9) — there is
// no hidden package-level singleton.
type Manager struct {
	storage storageclient.Client
	audit   *audit.Logger
	logger  *slog.Logger

	mu        sync.RWMutex
	callbacks map[string][]Callback

	cache *lru.Cache[string, Category]
}

// New constructs a Manager. storage must be non-nil.
func New(storage storageclient.Client, auditLogger *audit.Logger, logger *slog.Logger) (*Manager, error) {
	if storage == nil {
		return nil, &errtypes.ConfigError{Op: "new_manager", Detail: "storage client is required"}
	}
	cache, err := lru.New[string, Category](256)
	if err != nil {
		return nil, fmt.Errorf("create category cache: %w", err)
	}
	return &Manager{
		storage:   storage,
		audit:     auditLogger,
		logger:    logger,
		callbacks: map[string][]Callback{},
		cache:     cache,
	}, nil
}

// CreateCategory validates schema, then either persists it fresh (value :=
// default for every item) or merges it with whatever is already stored,
// writing back only if the merged value differs from the persisted one.
func (m *Manager) CreateCategory(ctx context.Context, name string, schema map[string]map[string]string, description string, keepOriginalItems bool) (Category, error) {
	newItems, err := validateCategorySchema(schema, true)
	if err != nil {
		return Category{}, err
	}

	existing, err := m.loadStored(ctx, name)
	if err != nil {
		return Category{}, err
	}

	if existing == nil {
		cat := Category{Name: name, Description: description, Items: newItems}
		if err := m.persist(ctx, cat); err != nil {
			return Category{}, err
		}
		m.audit.Information(ctx, "CONAD", map[string]interface{}{"category": name})
		m.setCache(cat)
		return cat.Clone(), nil
	}

	merged := mergeCategoryValues(newItems, existing.Items, keepOriginalItems)
	mergedCat := Category{Name: name, Description: description, Items: merged}

	if itemsEqual(merged, existing.Items) {
		m.setCache(*existing)
		return existing.Clone(), nil
	}

	if err := m.persist(ctx, mergedCat); err != nil {
		return Category{}, err
	}
	m.setCache(mergedCat)
	return mergedCat.Clone(), nil
}

// GetAllCategoryNames returns every known category's name and description,
// ordered by name.
func (m *Manager) GetAllCategoryNames(ctx context.Context) ([]Category, error) {
	result, err := m.storage.QueryTbl(ctx, "configuration", "")
	if err != nil {
		return nil, err
	}

	out := make([]Category, 0, len(result.Rows))
	for _, row := range result.Rows {
		cat, err := rowToCategory(row)
		if err != nil {
			return nil, err
		}
		out = append(out, Category{Name: cat.Name, Description: cat.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetCategoryAllItems returns the full item mapping for name, with current
// values.
func (m *Manager) GetCategoryAllItems(ctx context.Context, name string) (Category, error) {
	cat, err := m.loadStored(ctx, name)
	if err != nil {
		return Category{}, err
	}
	if cat == nil {
		return Category{}, &errtypes.ConfigError{Op: "get_category_all_items", Detail: fmt.Sprintf("category %q not found", name)}
	}
	return cat.Clone(), nil
}

// GetCategoryItem returns one item mapping.
func (m *Manager) GetCategoryItem(ctx context.Context, name, item string) (Item, error) {
	cat, err := m.GetCategoryAllItems(ctx, name)
	if err != nil {
		return Item{}, err
	}
	it, ok := cat.Items[item]
	if !ok {
		return Item{}, &errtypes.ConfigError{Op: "get_category_item", Detail: fmt.Sprintf("item %q not found in category %q", item, name)}
	}
	return it, nil
}

// GetCategoryItemValueEntry returns just item's effective value string.
func (m *Manager) GetCategoryItemValueEntry(ctx context.Context, name, item string) (string, error) {
	it, err := m.GetCategoryItem(ctx, name, item)
	if err != nil {
		return "", err
	}
	return it.Value, nil
}

// SetCategoryItemValueEntry updates one item's value, no-op if unchanged,
// otherwise persists, audits CONCH, and runs registered callbacks.
func (m *Manager) SetCategoryItemValueEntry(ctx context.Context, name, item, newValue string) error {
	cat, err := m.loadStored(ctx, name)
	if err != nil {
		return err
	}
	if cat == nil {
		return &errtypes.ConfigError{Op: "set_category_item_value_entry", Detail: fmt.Sprintf("category %q not found", name)}
	}

	current, ok := cat.Items[item]
	if !ok {
		return &errtypes.ConfigError{Op: "set_category_item_value_entry", Detail: fmt.Sprintf("item %q not found in category %q", item, name)}
	}
	if current.Value == newValue {
		return nil
	}

	oldValue := current.Value
	current.Value = newValue
	cat.Items[item] = current

	if err := m.persist(ctx, *cat); err != nil {
		return err
	}
	m.setCache(*cat)

	m.audit.Information(ctx, "CONCH", map[string]interface{}{
		"category": name,
		"item":     item,
		"oldValue": oldValue,
		"newValue": newValue,
	})

	m.runCallbacks(ctx, name)
	return nil
}

// RegisterInterest registers cb to run whenever categoryName changes.
// Returns *errtypes.ConfigError("unknown callback") if cb is nil.
func (m *Manager) RegisterInterest(categoryName string, cb Callback) error {
	if cb == nil {
		return &errtypes.ConfigError{Op: "register_interest", Detail: "unknown callback"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[categoryName] = append(m.callbacks[categoryName], cb)
	return nil
}

// UnregisterInterest removes cb from categoryName's observer list.
func (m *Manager) UnregisterInterest(categoryName string, cb Callback) error {
	if cb == nil {
		return &errtypes.ConfigError{Op: "unregister_interest", Detail: "unknown callback"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.callbacks[categoryName]
	for i, c := range list {
		if c == cb {
			m.callbacks[categoryName] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

// runCallbacks invokes every registered observer for categoryName.
// Callbacks are independent: one failing (panicking) callback must not
// prevent others from running.
func (m *Manager) runCallbacks(ctx context.Context, categoryName string) {
	m.mu.RLock()
	callbacks := append([]Callback(nil), m.callbacks[categoryName]...)
	m.mu.RUnlock()

	for _, cb := range callbacks {
		m.runOneCallback(ctx, categoryName, cb)
	}
}

func (m *Manager) runOneCallback(ctx context.Context, categoryName string, cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("configuration callback panicked", "category", categoryName, "recovered", r)
		}
	}()
	cb.Run(ctx, categoryName)
}

// --- internal helpers ---

func (m *Manager) setCache(cat Category) {
	m.cache.Add(cat.Name, cat.Clone())
}

func (m *Manager) loadStored(ctx context.Context, name string) (*Category, error) {
	if cat, ok := m.cache.Get(name); ok {
		clone := cat.Clone()
		return &clone, nil
	}

	payload := storageclient.NewPayloadBuilder().WHERE("key", name).Payload()
	result, err := m.storage.QueryTblWithPayload(ctx, "configuration", payload)
	if err != nil {
		return nil, err
	}

	for _, row := range result.Rows {
		key, _ := row["key"].(string)
		if key != name {
			continue
		}
		cat, err := rowToCategory(row)
		if err != nil {
			return nil, err
		}
		return &cat, nil
	}
	return nil, nil
}

func (m *Manager) persist(ctx context.Context, cat Category) error {
	payload, err := json.Marshal(map[string]interface{}{
		"key":         cat.Name,
		"description": cat.Description,
		"value":       cat.Items,
	})
	if err != nil {
		return fmt.Errorf("encode category: %w", err)
	}

	existing, err := m.loadStored(ctx, cat.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		_, err = m.storage.InsertIntoTbl(ctx, "configuration", payload)
		return err
	}

	updatePayload, err := json.Marshal(map[string]interface{}{
		"where":  map[string]interface{}{"key": cat.Name},
		"values": map[string]interface{}{"value": cat.Items},
	})
	if err != nil {
		return fmt.Errorf("encode category update: %w", err)
	}
	_, err = m.storage.UpdateTbl(ctx, "configuration", updatePayload)
	return err
}

func rowToCategory(row map[string]interface{}) (Category, error) {
	name, _ := row["key"].(string)
	description, _ := row["description"].(string)

	raw, err := json.Marshal(row["value"])
	if err != nil {
		return Category{}, fmt.Errorf("re-encode category value: %w", err)
	}
	var items map[string]Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return Category{}, fmt.Errorf("decode category value: %w", err)
	}

	return Category{Name: name, Description: description, Items: items}, nil
}

func itemsEqual(a, b map[string]Item) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		other, ok := b[k]
		if !ok || other != v {
			return false
		}
	}
	return true
}
