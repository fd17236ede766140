package cursor

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/vietddude/partsync/internal/core/domain"
)

// ToKey serializes a partition into a stable key. Attribute names are sorted,
// so insertion order never changes the key. Strings must be valid UTF-8,
// since encoding/json would fold invalid bytes into U+FFFD and merge
// distinct partitions.
func ToKey(p domain.Partition) (string, error) {
	if p == nil {
		p = domain.Partition{}
	}
	if err := checkUTF8(map[string]any(p)); err != nil {
		return "", err
	}
	// encoding/json writes map keys in sorted order
	data, err := json.Marshal(map[string]any(p))
	if err != nil {
		return "", fmt.Errorf("failed to serialize partition: %w", err)
	}
	return string(data), nil
}

// ToPartition is the inverse of ToKey. Integral numbers decode as int64,
// other numbers as float64.
func ToPartition(key string) (domain.Partition, error) {
	raw, err := domain.DecodeMap([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("malformed partition key %q: %w", key, err)
	}
	return domain.Partition(raw), nil
}

func checkUTF8(v any) error {
	switch t := v.(type) {
	case string:
		if !utf8.ValidString(t) {
			return fmt.Errorf("%w: %q", ErrInvalidPartition, t)
		}
	case map[string]any:
		for k, inner := range t {
			if err := checkUTF8(k); err != nil {
				return err
			}
			if err := checkUTF8(inner); err != nil {
				return err
			}
		}
	case domain.Partition:
		return checkUTF8(map[string]any(t))
	case []any:
		for _, inner := range t {
			if err := checkUTF8(inner); err != nil {
				return err
			}
		}
	case []string:
		for _, inner := range t {
			if err := checkUTF8(inner); err != nil {
				return err
			}
		}
	}
	return nil
}
