package storageclient

import "encoding/json"

// PayloadBuilder is a fluent builder over the storage service's JSON query
// payload format: SELECT/WHERE/SET/INSERT/AGGREGATE/ORDER_BY/LIMIT/GROUP.
// Zero value is ready to use.
type PayloadBuilder struct {
	selectCols []string
	where      map[string]interface{}
	set        map[string]interface{}
	insert     map[string]interface{}
	aggregate  []string
	orderBy    []string
	limit      int
	group      string
}

func NewPayloadBuilder() *PayloadBuilder {
	return &PayloadBuilder{}
}

func (b *PayloadBuilder) SELECT(cols ...string) *PayloadBuilder {
	b.selectCols = append(b.selectCols, cols...)
	return b
}

func (b *PayloadBuilder) WHERE(column string, value interface{}) *PayloadBuilder {
	if b.where == nil {
		b.where = map[string]interface{}{}
	}
	b.where[column] = value
	return b
}

func (b *PayloadBuilder) SET(column string, value interface{}) *PayloadBuilder {
	if b.set == nil {
		b.set = map[string]interface{}{}
	}
	b.set[column] = value
	return b
}

func (b *PayloadBuilder) INSERT(values map[string]interface{}) *PayloadBuilder {
	b.insert = values
	return b
}

// AGGREGATE adds an aggregate like AGGREGATE("min", "last_object") or
// AGGREGATE("count", "*").
func (b *PayloadBuilder) AGGREGATE(fn, column string) *PayloadBuilder {
	b.aggregate = []string{fn, column}
	return b
}

func (b *PayloadBuilder) ORDER_BY(column string) *PayloadBuilder {
	b.orderBy = append(b.orderBy, column)
	return b
}

func (b *PayloadBuilder) LIMIT(n int) *PayloadBuilder {
	b.limit = n
	return b
}

func (b *PayloadBuilder) GROUP(column string) *PayloadBuilder {
	b.group = column
	return b
}

// Payload renders the builder state into the storage service's JSON wire
// format.
func (b *PayloadBuilder) Payload() json.RawMessage {
	doc := map[string]interface{}{}
	if len(b.selectCols) > 0 {
		doc["return"] = b.selectCols
	}
	if len(b.where) > 0 {
		doc["where"] = b.where
	}
	if len(b.set) > 0 {
		doc["values"] = b.set
	}
	if b.insert != nil {
		doc["insert"] = b.insert
	}
	if len(b.aggregate) == 2 {
		doc["aggregate"] = map[string]string{"operation": b.aggregate[0], "column": b.aggregate[1]}
	}
	if len(b.orderBy) > 0 {
		doc["sort"] = b.orderBy
	}
	if b.limit > 0 {
		doc["limit"] = b.limit
	}
	if b.group != "" {
		doc["group"] = b.group
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		// doc is built from primitive maps/slices only; Marshal cannot fail.
		panic(err)
	}
	return raw
}

// AggregateScalar extracts the scalar value of the single-row aggregate
// result a query like AGGREGATE("min","last_object") returns, keyed
// "<fn>_<column>" per the storage service's naming convention.
func AggregateScalar(result *QueryResult, fn, column string) (interface{}, bool) {
	if result.Count == 0 || len(result.Rows) == 0 {
		return nil, false
	}
	key := fn + "_" + column
	v, ok := result.Rows[0][key]
	return v, ok
}
