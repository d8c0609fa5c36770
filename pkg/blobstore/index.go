package blobstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/tailscale/hujson"
)

// orderedMap is a string-keyed map that remembers insertion order.
//
// Overwriting a key keeps its original position. Delete is O(n) in the
// number of keys, which is fine for cache-sized indexes.
type orderedMap[V any] struct {
	keys []string
	vals map[string]V
}

func newOrderedMap[V any]() *orderedMap[V] {
	return &orderedMap[V]{vals: make(map[string]V)}
}

func (m *orderedMap[V]) get(key string) (V, bool) {
	v, ok := m.vals[key]

	return v, ok
}

func (m *orderedMap[V]) has(key string) bool {
	_, ok := m.vals[key]

	return ok
}

func (m *orderedMap[V]) set(key string, v V) {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}

	m.vals[key] = v
}

func (m *orderedMap[V]) delete(key string) {
	if _, ok := m.vals[key]; !ok {
		return
	}

	delete(m.vals, key)

	if i := slices.Index(m.keys, key); i >= 0 {
		m.keys = slices.Delete(m.keys, i, i+1)
	}
}

func (m *orderedMap[V]) len() int {
	return len(m.keys)
}

// each calls fn for every entry in insertion order.
func (m *orderedMap[V]) each(fn func(key string, v V)) {
	for _, key := range m.keys {
		fn(key, m.vals[key])
	}
}

// span locates one payload inside BLOB: bytes [Start, End) with the token
// it was stored under.
type span struct {
	Token string
	Start int
	End   int
}

func (s span) size() int {
	return s.End - s.Start
}

// encodeIndex serializes idx as the MAP file: a JSON object whose members
// appear in index order, each value a ["token", start, end] tuple.
func encodeIndex(idx *orderedMap[span]) []byte {
	var buf bytes.Buffer

	buf.WriteByte('{')

	idx.each(func(key string, s span) {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}

		writeJSONString(&buf, key)
		buf.WriteString(":[")
		writeJSONString(&buf, s.Token)
		buf.WriteByte(',')
		buf.WriteString(strconv.Itoa(s.Start))
		buf.WriteByte(',')
		buf.WriteString(strconv.Itoa(s.End))
		buf.WriteByte(']')
	})

	buf.WriteByte('}')

	return buf.Bytes()
}

// writeJSONString appends s as a quoted JSON string without HTML escaping.
// Encoding a string cannot fail. merge keeps invalid UTF-8 away from here,
// since the encoder would coerce it to U+FFFD.
func writeJSONString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)

	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
}

// decodeIndex parses a MAP file and validates every range against a blob of
// blobLen bytes. Member order is preserved. Comments and trailing commas are
// tolerated; a duplicate key keeps its first position and its last value.
//
// All failures wrap [ErrCorruptSnapshot].
func decodeIndex(data []byte, blobLen int) (*orderedMap[span], error) {
	root, err := hujson.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse MAP: %w", ErrCorruptSnapshot, err)
	}

	root.Standardize()

	obj, ok := root.Value.(*hujson.Object)
	if !ok {
		return nil, fmt.Errorf("%w: MAP is not a JSON object", ErrCorruptSnapshot)
	}

	idx := newOrderedMap[span]()

	for _, member := range obj.Members {
		var key string

		err := json.Unmarshal(member.Name.Pack(), &key)
		if err != nil {
			return nil, fmt.Errorf("%w: MAP key: %w", ErrCorruptSnapshot, err)
		}

		s, err := decodeSpan(member.Value.Pack())
		if err != nil {
			return nil, fmt.Errorf("%w: MAP entry %q: %w", ErrCorruptSnapshot, key, err)
		}

		if s.End > blobLen {
			return nil, fmt.Errorf("%w: MAP entry %q: end %d beyond BLOB size %d",
				ErrCorruptSnapshot, key, s.End, blobLen)
		}

		idx.set(key, s)
	}

	return idx, nil
}

func decodeSpan(raw []byte) (span, error) {
	var tuple []json.RawMessage

	err := json.Unmarshal(raw, &tuple)
	if err != nil {
		return span{}, err
	}

	if len(tuple) != 3 {
		return span{}, fmt.Errorf("want 3 elements, got %d", len(tuple))
	}

	for i, elem := range tuple {
		if bytes.Equal(bytes.TrimSpace(elem), []byte("null")) {
			return span{}, fmt.Errorf("element %d is null", i)
		}
	}

	var s span

	err = json.Unmarshal(tuple[0], &s.Token)
	if err != nil {
		return span{}, fmt.Errorf("token: %w", err)
	}

	err = json.Unmarshal(tuple[1], &s.Start)
	if err != nil {
		return span{}, fmt.Errorf("start offset: %w", err)
	}

	err = json.Unmarshal(tuple[2], &s.End)
	if err != nil {
		return span{}, fmt.Errorf("end offset: %w", err)
	}

	if s.Start < 0 || s.End < s.Start {
		return span{}, fmt.Errorf("invalid range [%d, %d)", s.Start, s.End)
	}

	return s, nil
}
