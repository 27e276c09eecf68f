package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps documents as bson maps. Filters support equality
// (nil matches a missing or null field) and the $ne, $lt, $lte, $gt, $gte
// operators, which is all the services issue.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	maxBatch    int

	commits      int
	largestBatch int

	// CommitHook, when set, runs before a batch is applied. A non-nil error
	// fails the commit and nothing from that batch is written.
	CommitHook func(ids []primitive.ObjectID) error
}

type memoryCollection struct {
	order []string
	docs  map[string]bson.M
}

func NewMemoryStore(maxBatch int) *MemoryStore {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
		maxBatch:    maxBatch,
	}
}

func (s *MemoryStore) collection(name string) *memoryCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{docs: make(map[string]bson.M)}
		s.collections[name] = c
	}
	return c
}

func (s *MemoryStore) InsertOne(_ context.Context, collection string, doc interface{}) error {
	m, err := toDocument(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	// Documents keyed by a string _id, like users, keep it; everything else
	// gets an ObjectID.
	var id string
	switch v := m["_id"].(type) {
	case string:
		id = v
	case primitive.ObjectID:
		if !v.IsZero() {
			id = v.Hex()
		}
	}
	if id == "" {
		oid := primitive.NewObjectID()
		m["_id"] = oid
		id = oid.Hex()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	if _, exists := c.docs[id]; exists {
		return fmt.Errorf("duplicate key %s in %s", id, collection)
	}
	c.docs[id] = m
	c.order = append(c.order, id)
	return nil
}

func (s *MemoryStore) FindOne(ctx context.Context, collection string, filter bson.M, out interface{}) error {
	s.mu.RLock()
	docs, err := s.match(Query{Collection: collection, Filter: filter, Limit: 1})
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return ErrNotFound
	}
	return fromDocument(docs[0], out)
}

func (s *MemoryStore) Find(_ context.Context, q Query, out interface{}) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("out must be a pointer to a slice, got %T", out)
	}

	s.mu.RLock()
	docs, err := s.match(q)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	sliceType := rv.Elem().Type()
	elemType := sliceType.Elem()
	isPtr := elemType.Kind() == reflect.Ptr
	if isPtr {
		elemType = elemType.Elem()
	}

	result := reflect.MakeSlice(sliceType, 0, len(docs))
	for _, doc := range docs {
		item := reflect.New(elemType)
		if err := fromDocument(doc, item.Interface()); err != nil {
			return err
		}
		if isPtr {
			result = reflect.Append(result, item)
		} else {
			result = reflect.Append(result, item.Elem())
		}
	}
	rv.Elem().Set(result)
	return nil
}

func (s *MemoryStore) UpdateOne(_ context.Context, collection string, id primitive.ObjectID, set bson.M) error {
	normalized, err := toDocument(set)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collection(collection).docs[id.Hex()]
	if !ok {
		return ErrNotFound
	}
	for k, v := range normalized {
		doc[k] = v
	}
	return nil
}

func (s *MemoryStore) DeleteOne(_ context.Context, collection string, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	key := id.Hex()
	if _, ok := c.docs[key]; !ok {
		return ErrNotFound
	}
	delete(c.docs, key)
	for i, existing := range c.order {
		if existing == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) MaxBatchSize() int {
	return s.maxBatch
}

func (s *MemoryStore) NewBatch() Batch {
	return &memoryBatch{store: s}
}

// Commits returns how many non-empty batches were committed.
func (s *MemoryStore) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// LargestBatch returns the size of the biggest committed batch.
func (s *MemoryStore) LargestBatch() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.largestBatch
}

// Count returns the number of documents in a collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[collection]; ok {
		return len(c.docs)
	}
	return 0
}

// match must be called with the lock held.
func (s *MemoryStore) match(q Query) ([]bson.M, error) {
	c, ok := s.collections[q.Collection]
	if !ok {
		return nil, nil
	}

	filter, err := normalizeFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	var matched []bson.M
	for _, id := range c.order {
		doc := c.docs[id]
		if matchesFilter(doc, filter) {
			matched = append(matched, doc)
		}
	}

	if len(q.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, key := range q.Sort {
				cmp, ok := compareValues(matched[i][key.Key], matched[j][key.Key])
				if !ok || cmp == 0 {
					continue
				}
				if direction, _ := toFloat(key.Value); direction < 0 {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}

	if q.Skip > 0 {
		if q.Skip >= int64(len(matched)) {
			return nil, nil
		}
		matched = matched[q.Skip:]
	}
	if q.Limit > 0 && int64(len(matched)) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

type memoryBatch struct {
	store *MemoryStore
	ops   []stagedUpdate
}

func (b *memoryBatch) Update(collection string, id primitive.ObjectID, set bson.M) {
	b.ops = append(b.ops, stagedUpdate{collection: collection, id: id, set: set})
}

func (b *memoryBatch) Len() int {
	return len(b.ops)
}

func (b *memoryBatch) IDs() []primitive.ObjectID {
	return stagedIDs(b.ops)
}

func (b *memoryBatch) Commit(_ context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}

	normalized := make([]bson.M, len(b.ops))
	for i, op := range b.ops {
		m, err := toDocument(op.set)
		if err != nil {
			return fmt.Errorf("failed to encode update: %w", err)
		}
		normalized[i] = m
	}

	if hook := b.store.CommitHook; hook != nil {
		if err := hook(b.IDs()); err != nil {
			return err
		}
	}

	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, op := range b.ops {
		// A missing document is skipped, as an unmatched bulk update would be.
		doc, ok := s.collection(op.collection).docs[op.id.Hex()]
		if !ok {
			continue
		}
		for k, v := range normalized[i] {
			doc[k] = v
		}
	}
	s.commits++
	if len(b.ops) > s.largestBatch {
		s.largestBatch = len(b.ops)
	}
	return nil
}

func toDocument(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromDocument(doc bson.M, out interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

type condition struct {
	op    string
	value interface{}
}

// normalizeFilter pushes every filter value through the bson codec so it
// compares against stored values of the same representation.
func normalizeFilter(filter bson.M) (map[string][]condition, error) {
	out := make(map[string][]condition, len(filter))
	for field, want := range filter {
		ops, isOps := operatorMap(want)
		if !isOps {
			v, err := normalizeValue(want)
			if err != nil {
				return nil, err
			}
			out[field] = []condition{{op: "$eq", value: v}}
			continue
		}
		for op, raw := range ops {
			switch op {
			case "$eq", "$ne", "$lt", "$lte", "$gt", "$gte", "$in":
			default:
				return nil, fmt.Errorf("unsupported filter operator %s", op)
			}
			v, err := normalizeValue(raw)
			if err != nil {
				return nil, err
			}
			out[field] = append(out[field], condition{op: op, value: v})
		}
	}
	return out, nil
}

func operatorMap(v interface{}) (map[string]interface{}, bool) {
	var m map[string]interface{}
	switch typed := v.(type) {
	case bson.M:
		m = typed
	case map[string]interface{}:
		m = typed
	default:
		return nil, false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return nil, false
		}
	}
	return m, len(m) > 0
}

func normalizeValue(v interface{}) (interface{}, error) {
	m, err := toDocument(bson.M{"v": v})
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter value: %w", err)
	}
	return m["v"], nil
}

func matchesFilter(doc bson.M, filter map[string][]condition) bool {
	for field, conds := range filter {
		got, present := doc[field]
		for _, c := range conds {
			if !matchCondition(got, present, c) {
				return false
			}
		}
	}
	return true
}

func matchCondition(got interface{}, present bool, c condition) bool {
	switch c.op {
	case "$eq":
		return valuesEqual(got, present, c.value)
	case "$ne":
		return !valuesEqual(got, present, c.value)
	case "$in":
		candidates, ok := c.value.(bson.A)
		if !ok {
			return false
		}
		for _, want := range candidates {
			if valuesEqual(got, present, want) {
				return true
			}
		}
		return false
	}

	if !present || got == nil || c.value == nil {
		return false
	}
	cmp, ok := compareValues(got, c.value)
	if !ok {
		return false
	}
	switch c.op {
	case "$lt":
		return cmp < 0
	case "$lte":
		return cmp <= 0
	case "$gt":
		return cmp > 0
	case "$gte":
		return cmp >= 0
	}
	return false
}

func valuesEqual(got interface{}, present bool, want interface{}) bool {
	if want == nil {
		return !present || got == nil
	}
	if !present || got == nil {
		return false
	}
	if cmp, ok := compareValues(got, want); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(got, want)
}

func compareValues(a, b interface{}) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return compareOrdered(fa, fb), true
		}
		return 0, false
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return compareOrdered(av, bv), true
		}
	case primitive.DateTime:
		if bv, ok := b.(primitive.DateTime); ok {
			return compareOrdered(int64(av), int64(bv)), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0, true
			}
			if !av {
				return -1, true
			}
			return 1, true
		}
	case primitive.ObjectID:
		if bv, ok := b.(primitive.ObjectID); ok {
			return compareOrdered(av.Hex(), bv.Hex()), true
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func compareOrdered[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
