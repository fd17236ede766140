package domain

import (
	"encoding/json"
	"testing"
)

func TestManagerStateToMap(t *testing.T) {
	s := ManagerState{
		UseGlobalCursor: false,
		States: []PartitionState{
			{Partition: Partition{"id": "1"}, Cursor: CursorState{"updated_at": "2023-01-01T00:00:00Z"}},
		},
		State:          CursorState{"updated_at": "2023-01-01T00:00:00Z"},
		LookbackWindow: 3,
		ParentState:    map[string]any{"updated_at": "2022-12-31T00:00:00Z"},
	}

	m, err := s.ToMap()
	if err != nil {
		t.Fatalf("ToMap failed: %v", err)
	}
	for _, key := range []string{KeyUseGlobalCursor, KeyStates, KeyState, KeyLookbackWindow, KeyParentState} {
		if _, ok := m[key]; !ok {
			t.Errorf("expected key %q in state mapping", key)
		}
	}
}

func TestManagerStateGlobalOmitsStates(t *testing.T) {
	s := ManagerState{UseGlobalCursor: true, State: CursorState{"updated_at": "x"}}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	if _, ok := m[KeyStates]; ok {
		t.Error("global state must not carry per-partition states")
	}
	if _, ok := m[KeyParentState]; ok {
		t.Error("empty parent state must be omitted")
	}
}

func TestCloneMapIsDeep(t *testing.T) {
	orig := map[string]any{
		"nested": map[string]any{"a": 1},
		"list":   []any{map[string]any{"b": 2}},
	}
	cp := CloneMap(orig)
	cp["nested"].(map[string]any)["a"] = 99
	cp["list"].([]any)[0].(map[string]any)["b"] = 99

	if orig["nested"].(map[string]any)["a"] != 1 {
		t.Error("nested map was aliased")
	}
	if orig["list"].([]any)[0].(map[string]any)["b"] != 2 {
		t.Error("nested slice was aliased")
	}
	if CloneMap(nil) != nil {
		t.Error("expected nil clone of nil map")
	}
}

func TestDecodeMapKeepsIntegers(t *testing.T) {
	m, err := DecodeMap([]byte(`{"id":1234567890123456789,"ratio":0.5,"nested":{"ids":[1,2]}}`))
	if err != nil {
		t.Fatalf("DecodeMap failed: %v", err)
	}
	if m["id"] != int64(1234567890123456789) {
		t.Errorf("expected exact int64, got %#v", m["id"])
	}
	if m["ratio"] != 0.5 {
		t.Errorf("expected float, got %#v", m["ratio"])
	}
	ids := m["nested"].(map[string]any)["ids"].([]any)
	if ids[0] != int64(1) || ids[1] != int64(2) {
		t.Errorf("expected nested int64 values, got %#v", ids)
	}
}
