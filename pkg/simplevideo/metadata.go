package simplevideo

import (
	"encoding/json"
	"strconv"
	"strings"
)

func copyMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MergeMetadata returns base with every key of patch set on top of it.
// Neither argument is modified. The merge is shallow.
func MergeMetadata(base, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// metadataInt64 reads a numeric metadata value regardless of how it was
// decoded (int64 in memory, float64 or json.Number after a JSON round trip).
func metadataInt64(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// objectMetaValue looks up a blob metadata key case-insensitively. Backends
// disagree on key casing (S3 lowercases, MinIO canonicalizes).
func objectMetaValue(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
