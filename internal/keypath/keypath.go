// Package keypath handles the slash-separated paths of the hierarchical store and
// converts value trees to and from flat leaf maps.
//
// Value trees follow realtime-database rules: objects are map[string]any, null
// leaves and empty objects do not exist, and objects whose keys are exactly
// "0".."n-1" read back as arrays.
package keypath

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"live-survey-service/internal/domain"
)

const separator = "/"

// ValidSegment reports whether s can be used as a single path segment.
func ValidSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return false
		}
		switch r {
		case '.', '$', '#', '[', ']', '/', '*', '?', '\\':
			return false
		}
	}
	return true
}

// Clean validates a path and returns it without leading or trailing separators.
// The empty path addresses the root.
func Clean(path string) (string, error) {
	path = strings.Trim(path, separator)
	if path == "" {
		return "", nil
	}
	for _, seg := range strings.Split(path, separator) {
		if !ValidSegment(seg) {
			return "", fmt.Errorf("%w: %q", domain.ErrInvalidPath, path)
		}
	}
	return path, nil
}

// Join builds a path from segments without validating them.
func Join(segments ...string) string {
	return strings.Join(segments, separator)
}

// Ancestors lists the proper, non-root ancestors of path, nearest last.
func Ancestors(path string) []string {
	segs := strings.Split(path, separator)
	out := make([]string, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], separator))
	}
	return out
}

// Under reports whether leaf equals path or lies beneath it.
func Under(leaf, path string) bool {
	if path == "" || leaf == path {
		return true
	}
	return strings.HasPrefix(leaf, path+separator)
}

// Overlaps reports whether a change at one path can affect a reader of the other.
func Overlaps(a, b string) bool {
	return Under(a, b) || Under(b, a)
}

// Flatten converts value into JSON-encoded scalar leaves keyed by full path.
// A nil value or an empty object yields no leaves.
func Flatten(path string, value any) (map[string][]byte, error) {
	generic, err := toGeneric(value)
	if err != nil {
		return nil, err
	}
	leaves := make(map[string][]byte)
	if err := flatten(path, generic, leaves); err != nil {
		return nil, err
	}
	return leaves, nil
}

func toGeneric(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return generic, nil
}

func flatten(path string, value any, leaves map[string][]byte) error {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range v {
			if !ValidSegment(k) {
				return fmt.Errorf("%w: key %q", domain.ErrInvalidPath, k)
			}
			if err := flatten(Child(path, k), child, leaves); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, child := range v {
			if err := flatten(Child(path, strconv.Itoa(i)), child, leaves); err != nil {
				return err
			}
		}
		return nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		leaves[path] = raw
		return nil
	}
}

// Child appends key to path; the root path yields key itself.
func Child(path, key string) string {
	if path == "" {
		return key
	}
	return path + separator + key
}

// UpdateChildren resolves the keys of a multi-path update against path. Keys
// may span several segments but may not be empty.
func UpdateChildren(path string, partial map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(partial))
	for key, value := range partial {
		rel, err := Clean(key)
		if err != nil {
			return nil, err
		}
		if rel == "" {
			return nil, fmt.Errorf("%w: empty update key", domain.ErrInvalidPath)
		}
		out[Child(path, rel)] = value
	}
	return out, nil
}

// Assemble rebuilds the value tree at path from leaves keyed by full path.
// Leaves outside path are ignored. It returns nil when nothing lies at path.
func Assemble(path string, leaves map[string][]byte) (any, error) {
	if raw, ok := leaves[path]; ok && path != "" {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode leaf %s: %w", path, err)
		}
		return v, nil
	}
	var root map[string]any
	for leaf, raw := range leaves {
		if leaf == path || !Under(leaf, path) {
			continue
		}
		rel := leaf
		if path != "" {
			rel = leaf[len(path)+1:]
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode leaf %s: %w", leaf, err)
		}
		if root == nil {
			root = make(map[string]any)
		}
		insert(root, strings.Split(rel, separator), v)
	}
	if root == nil {
		return nil, nil
	}
	return arrays(root), nil
}

func insert(node map[string]any, segs []string, v any) {
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	node[segs[len(segs)-1]] = v
}

func arrays(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = arrays(child)
	}
	if list, ok := dense(m); ok {
		return list
	}
	return m
}

func dense(m map[string]any) ([]any, bool) {
	list := make([]any, len(m))
	for k, v := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(m) || strconv.Itoa(i) != k {
			return nil, false
		}
		list[i] = v
	}
	return list, true
}

// SortedKeys returns the keys of an object value in ascending order. Non-objects
// have no keys.
func SortedKeys(v any) []string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
