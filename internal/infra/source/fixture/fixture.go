// Package fixture serves a partitioned stream from a local YAML or JSON file.
// Parents become partitions, their children are the records read per slice.
package fixture

import (
	"context"
	"fmt"
	"iter"
	"os"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/partsync/internal/core/cursor"
	"github.com/vietddude/partsync/internal/core/domain"
)

// Fixture is the decoded file.
type Fixture struct {
	PartitionField    string                      `yaml:"partition_field"`
	ParentIDField     string                      `yaml:"parent_id_field"`
	ParentCursorField string                      `yaml:"parent_cursor_field"`
	Parents           []map[string]any            `yaml:"parents"`
	Records           map[string][]map[string]any `yaml:"records"`
}

// Load reads and normalizes a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return Parse(data)
}

// Parse decodes fixture content. JSON is accepted as YAML.
func Parse(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if fx.PartitionField == "" {
		fx.PartitionField = "parent_id"
	}
	if fx.ParentIDField == "" {
		fx.ParentIDField = "id"
	}

	for i, p := range fx.Parents {
		fx.Parents[i] = normalizeMap(p)
		if _, ok := fx.Parents[i][fx.ParentIDField]; !ok {
			return nil, fmt.Errorf("parent %d has no %q field", i, fx.ParentIDField)
		}
	}
	for id, records := range fx.Records {
		for i, r := range records {
			records[i] = normalizeMap(r)
		}
		fx.Records[id] = records
	}
	return &fx, nil
}

// normalizeMap converts the map[interface{}]interface{} values yaml.v2
// produces for nested mappings.
func normalizeMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[fmt.Sprint(k)] = normalizeValue(inner)
		}
		return out
	case map[string]any:
		return normalizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalizeValue(t[i])
		}
		return out
	case time.Time:
		// unquoted YAML timestamps
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

// =============================================================================
// Partition source
// =============================================================================

// Source yields one partition per parent, ordered by the parent cursor.
// Its parent state is {parent_cursor_field: max parent cursor yielded}.
type Source struct {
	fx        *Fixture
	converter cursor.StateConverter

	mu      sync.Mutex
	initial any // parsed initial parent cursor
	current map[string]any
}

// NewSource creates a partition source over the fixture's parents.
func NewSource(fx *Fixture, converter cursor.StateConverter) *Source {
	return &Source{fx: fx, converter: converter}
}

// SetInitialParentState skips parents strictly older than the state.
func (s *Source) SetInitialParentState(state map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := state[s.fx.ParentCursorField]
	if !ok {
		return
	}
	v, err := s.converter.ParseValue(raw)
	if err != nil {
		return
	}
	s.initial = v
	s.current = domain.CloneMap(state)
}

// CurrentParentState returns the parent state after the last yielded partition.
func (s *Source) CurrentParentState() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneMap(s.current)
}

type parent struct {
	record map[string]any
	raw    any
	value  any
}

func (s *Source) StreamPartitions(ctx context.Context) iter.Seq2[domain.StreamSlice, error] {
	return func(yield func(domain.StreamSlice, error) bool) {
		parents, err := s.sortedParents()
		if err != nil {
			yield(domain.StreamSlice{}, err)
			return
		}

		for _, p := range parents {
			if err := ctx.Err(); err != nil {
				yield(domain.StreamSlice{}, err)
				return
			}

			s.mu.Lock()
			if s.initial != nil && p.value != nil && s.converter.Compare(p.value, s.initial) < 0 {
				s.mu.Unlock()
				continue
			}
			if p.value != nil {
				current, hasCurrent := s.current[s.fx.ParentCursorField]
				if !hasCurrent || s.greater(p.value, current) {
					s.current = map[string]any{s.fx.ParentCursorField: p.raw}
				}
			}
			s.mu.Unlock()

			slice := domain.StreamSlice{
				Partition:   domain.Partition{s.fx.PartitionField: p.record[s.fx.ParentIDField]},
				ExtraFields: map[string]any{"parent": p.record},
			}
			if !yield(slice, nil) {
				return
			}
		}
	}
}

func (s *Source) greater(v, currentRaw any) bool {
	current, err := s.converter.ParseValue(currentRaw)
	if err != nil {
		return true
	}
	return s.converter.Compare(v, current) > 0
}

func (s *Source) sortedParents() ([]parent, error) {
	out := make([]parent, 0, len(s.fx.Parents))
	for _, record := range s.fx.Parents {
		p := parent{record: record}
		if raw, ok := record[s.fx.ParentCursorField]; ok && s.fx.ParentCursorField != "" {
			v, err := s.converter.ParseValue(raw)
			if err != nil {
				return nil, fmt.Errorf("parent %v: %w", record[s.fx.ParentIDField], err)
			}
			p.raw, p.value = raw, v
		}
		out = append(out, p)
	}

	// parents without a cursor value keep their position ahead of the rest
	slices.SortStableFunc(out, func(a, b parent) int {
		switch {
		case a.value == nil && b.value == nil:
			return 0
		case a.value == nil:
			return -1
		case b.value == nil:
			return 1
		default:
			return s.converter.Compare(a.value, b.value)
		}
	})
	return out, nil
}

// =============================================================================
// Record reader
// =============================================================================

// Reader reads the children of a partition that fall within a slice.
// Children without a usable cursor value belong to no slice; they are read
// once per partition, with whichever slice gets there first.
type Reader struct {
	fx        *Fixture
	field     cursor.CursorField
	converter cursor.StateConverter
	unsliced  sync.Map // partition id -> struct{}
}

// NewReader creates a record reader over the fixture's records.
func NewReader(fx *Fixture, field cursor.CursorField, converter cursor.StateConverter) *Reader {
	return &Reader{fx: fx, field: field, converter: converter}
}

func (r *Reader) ReadRecords(ctx context.Context, slice domain.StreamSlice) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		start, end, err := r.bounds(slice.CursorSlice)
		if err != nil {
			yield(nil, err)
			return
		}

		id := fmt.Sprint(slice.Partition[r.fx.PartitionField])
		claimed, owner := false, false
		for _, data := range r.fx.Records[id] {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			in, sliced := r.inSlice(data, start, end)
			if !sliced {
				if !claimed {
					_, taken := r.unsliced.LoadOrStore(id, struct{}{})
					claimed, owner = true, !taken
				}
				in = owner
			}
			if !in {
				continue
			}
			if !yield(domain.CloneMap(data), nil) {
				return
			}
		}
	}
}

// bounds parses the slice range. A nil bound is open.
func (r *Reader) bounds(cs domain.CursorSlice) (start, end any, err error) {
	for _, key := range []string{cursor.SliceStartKey, cursor.SliceStartValueKey} {
		if raw, ok := cs[key]; ok {
			if start, err = r.converter.ParseValue(raw); err != nil {
				return nil, nil, fmt.Errorf("invalid slice start: %w", err)
			}
			break
		}
	}
	if raw, ok := cs[cursor.SliceEndKey]; ok {
		if end, err = r.converter.ParseValue(raw); err != nil {
			return nil, nil, fmt.Errorf("invalid slice end: %w", err)
		}
	}
	return start, end, nil
}

// inSlice reports whether the record falls within [start, end]. sliced is
// false when the record has no usable cursor value.
func (r *Reader) inSlice(data map[string]any, start, end any) (in, sliced bool) {
	raw, ok := r.field.Extract(domain.Record{Data: data})
	if !ok {
		return false, false
	}
	v, err := r.converter.ParseValue(raw)
	if err != nil {
		return false, false
	}
	if start != nil && r.converter.Compare(v, start) < 0 {
		return false, true
	}
	if end != nil && r.converter.Compare(v, end) > 0 {
		return false, true
	}
	return true, true
}
