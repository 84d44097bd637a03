package workflow

// orderedMap is a name-keyed map that iterates in insertion order.
type orderedMap[V any] struct {
	keys  []string
	items map[string]V
}

func newOrderedMap[V any]() *orderedMap[V] {
	return &orderedMap[V]{items: make(map[string]V)}
}

func (m *orderedMap[V]) has(key string) bool {
	_, ok := m.items[key]
	return ok
}

func (m *orderedMap[V]) get(key string) (V, bool) {
	v, ok := m.items[key]
	return v, ok
}

// put stores v under key. It returns false without storing if key is present.
func (m *orderedMap[V]) put(key string, v V) bool {
	if m.has(key) {
		return false
	}
	m.keys = append(m.keys, key)
	m.items[key] = v
	return true
}

func (m *orderedMap[V]) len() int { return len(m.keys) }

func (m *orderedMap[V]) at(i int) (V, bool) {
	var zero V
	if i < 0 || i >= len(m.keys) {
		return zero, false
	}
	return m.items[m.keys[i]], true
}

func (m *orderedMap[V]) names() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *orderedMap[V]) values() []V {
	out := make([]V, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.items[k])
	}
	return out
}
