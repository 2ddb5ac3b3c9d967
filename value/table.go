package value

// Table is an open-addressing hash table with linear probing and tombstone
// deletion, keyed by interned *ObjString (spec §4.3). It backs globals,
// instance fields, and class method tables, and also anchors the memory
// manager's string-intern set via FindString.
type Table struct {
	count   int // live entries plus tombstones
	entries []entry
}

type entry struct {
	key   *ObjString
	value Value
}

const tableMaxLoad = 0.75

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{}
}

// Count reports the number of live (non-tombstone) entries.
func (t *Table) Count() int {
	live := 0
	for _, e := range t.entries {
		if e.key != nil {
			live++
		}
	}
	return live
}

// Keys returns every live key, in unspecified order. Used by the GC to mark
// table contents and to prune the string-intern table.
func (t *Table) Keys() []*ObjString {
	keys := make([]*ObjString, 0, len(t.entries))
	for _, e := range t.entries {
		if e.key != nil {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Get looks up key, reporting ok=false if it is absent.
func (t *Table) Get(key *ObjString) (Value, bool) {
	if len(t.entries) == 0 {
		return Nil, false
	}
	e := t.find(key)
	if e.key == nil {
		return Nil, false
	}
	return e.value, true
}

// Set inserts or overwrites key's value, returning true if this created a
// brand-new entry (as opposed to overwriting an existing one).
func (t *Table) Set(key *ObjString, v Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow(growCapacity(len(t.entries)))
	}
	e := t.find(key)
	isNew := e.key == nil
	if isNew && e.value.IsNil() {
		// Only a genuinely empty bucket (not a reused tombstone) grows count.
		t.count++
	}
	e.key = key
	e.value = v
	return isNew
}

// Delete removes key, leaving a tombstone (key=nil, value=Bool(true)) so
// later probes that passed through this bucket still find entries placed
// after it.
func (t *Table) Delete(key *ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.find(key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = Bool(true)
	return true
}

// AddAll copies every live entry of src into t. Nothing in the VM calls it:
// classes have no superclass to copy methods from.
func (t *Table) AddAll(src *Table) {
	for _, e := range src.entries {
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// FindString looks up an interned string by its raw content without first
// allocating an ObjString, so the memory manager can intern without
// allocating twice for strings it already has (spec §4.2).
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	index := hash & mask
	for {
		e := &t.entries[index]
		if e.key == nil {
			// Stop only at a true empty slot; tombstones (value=true) keep probing.
			if e.value.IsNil() {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		index = (index + 1) & mask
	}
}

func (t *Table) find(key *ObjString) *entry {
	mask := uint32(len(t.entries) - 1)
	index := key.Hash & mask
	var tombstone *entry
	for {
		e := &t.entries[index]
		switch {
		case e.key == nil:
			if e.value.IsNil() {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		case e.key == key:
			return e
		}
		index = (index + 1) & mask
	}
}

func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}

// grow rehashes every live entry into a freshly sized backing array,
// dropping tombstones in the process (spec §4.3).
func (t *Table) grow(capacity int) {
	fresh := make([]entry, capacity)
	newTable := &Table{entries: fresh}
	for _, e := range t.entries {
		if e.key == nil {
			continue
		}
		dst := newTable.find(e.key)
		dst.key = e.key
		dst.value = e.value
		newTable.count++
	}
	t.entries = newTable.entries
	t.count = newTable.count
}
