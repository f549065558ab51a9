package api

import "reflect"

// RenameKey recursively renames the given key to another name throughout a
// JSON-compatible value. The backend's canonical identifier field is "_id"
// while the rest of the client speaks "id"; every mutating request body and
// every decoded response passes through this transform.
//
// The transform is structural, not semantic:
//   - only map[string]any and []any containers are descended into
//   - slice order is preserved
//   - every other value (time.Time, []byte, readers, numbers, strings) is
//     returned unchanged
//   - shared or cyclic containers are visited at most once; a revisited
//     container is returned as-is rather than re-walked
func RenameKey(v any, from, to string) any {
	if from == to {
		return v
	}
	return renameKey(v, from, to, make(map[uintptr]bool))
}

func renameKey(v any, from, to string, seen map[uintptr]bool) any {
	switch val := v.(type) {
	case map[string]any:
		ptr := reflect.ValueOf(val).Pointer()
		if seen[ptr] {
			return val
		}
		seen[ptr] = true

		out := make(map[string]any, len(val))
		for k, child := range val {
			key := k
			if key == from {
				key = to
			}
			out[key] = renameKey(child, from, to, seen)
		}
		return out

	case []any:
		if len(val) == 0 {
			return val
		}
		ptr := reflect.ValueOf(val).Pointer()
		if seen[ptr] {
			return val
		}
		seen[ptr] = true

		out := make([]any, len(val))
		for i, child := range val {
			out[i] = renameKey(child, from, to, seen)
		}
		return out

	default:
		return v
	}
}
