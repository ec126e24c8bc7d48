package memory

import (
	"sort"

	"github.com/example/autoplanner/internal/persistence"
)

// table is an insertion-ordered keyed collection. Rows are treated as
// immutable values; iteration order is the original insertion order so
// listings stay deterministic across snapshots.
type table[T any] struct {
	rows    map[string]entry[T]
	nextSeq int
}

type entry[T any] struct {
	seq int
	row T
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]entry[T])}
}

func (t *table[T]) insert(key string, row T) error {
	if _, ok := t.rows[key]; ok {
		return persistence.ErrDuplicate
	}
	t.rows[key] = entry[T]{seq: t.nextSeq, row: row}
	t.nextSeq++
	return nil
}

// put inserts or replaces, preserving the original position on replace.
func (t *table[T]) put(key string, row T) {
	if existing, ok := t.rows[key]; ok {
		t.rows[key] = entry[T]{seq: existing.seq, row: row}
		return
	}
	t.rows[key] = entry[T]{seq: t.nextSeq, row: row}
	t.nextSeq++
}

func (t *table[T]) get(key string) (T, bool) {
	e, ok := t.rows[key]
	return e.row, ok
}

func (t *table[T]) update(key string, row T) error {
	e, ok := t.rows[key]
	if !ok {
		return persistence.ErrNotFound
	}
	e.row = row
	t.rows[key] = e
	return nil
}

func (t *table[T]) delete(key string) bool {
	if _, ok := t.rows[key]; !ok {
		return false
	}
	delete(t.rows, key)
	return true
}

func (t *table[T]) list() []T {
	entries := make([]entry[T], 0, len(t.rows))
	for _, e := range t.rows {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	rows := make([]T, len(entries))
	for i, e := range entries {
		rows[i] = e.row
	}
	return rows
}

// where returns rows matching the predicate, in insertion order.
func (t *table[T]) where(match func(T) bool) []T {
	var rows []T
	for _, row := range t.list() {
		if match(row) {
			rows = append(rows, row)
		}
	}
	return rows
}

func (t *table[T]) deleteWhere(match func(T) bool) {
	for key, e := range t.rows {
		if match(e.row) {
			delete(t.rows, key)
		}
	}
}

func (t *table[T]) snapshot() *table[T] {
	rows := make(map[string]entry[T], len(t.rows))
	for k, v := range t.rows {
		rows[k] = v
	}
	return &table[T]{rows: rows, nextSeq: t.nextSeq}
}
