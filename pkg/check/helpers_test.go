package check

import (
	"testing"
	"time"
)

func TestString_Absent(t *testing.T) {
	_, ok, err := String(map[string]any{}, "table")
	if err != nil || ok {
		t.Errorf("expected absent without error, got ok=%v err=%v", ok, err)
	}
}

func TestString_WrongType(t *testing.T) {
	_, _, err := String(map[string]any{"table": 1}, "table")
	if err == nil {
		t.Error("expected error for non-string value")
	}
}

func TestRequiredString(t *testing.T) {
	if _, err := RequiredString(map[string]any{}, "bucket"); err == nil {
		t.Error("expected error for missing key")
	}
	if _, err := RequiredString(map[string]any{"bucket": ""}, "bucket"); err == nil {
		t.Error("expected error for empty value")
	}
	v, err := RequiredString(map[string]any{"bucket": "table-snapshots"}, "bucket")
	if err != nil || v != "table-snapshots" {
		t.Errorf("expected 'table-snapshots', got %q (%v)", v, err)
	}
}

func TestInt_Variants(t *testing.T) {
	for _, raw := range []any{10, int64(10), float64(10)} {
		v, ok, err := Int(map[string]any{"limit": raw}, "limit")
		if err != nil || !ok || v != 10 {
			t.Errorf("%T: expected 10, got %d ok=%v err=%v", raw, v, ok, err)
		}
	}
}

func TestInt_Fractional(t *testing.T) {
	_, _, err := Int(map[string]any{"limit": 1.5}, "limit")
	if err == nil {
		t.Error("expected error for fractional number")
	}
}

func TestInt_WrongType(t *testing.T) {
	_, _, err := Int(map[string]any{"limit": "10"}, "limit")
	if err == nil {
		t.Error("expected error for string number")
	}
}

func TestDuration_Variants(t *testing.T) {
	v, ok, err := Duration(map[string]any{"timeout": "30s"}, "timeout")
	if err != nil || !ok || v != 30*time.Second {
		t.Errorf("expected 30s from string, got %v ok=%v err=%v", v, ok, err)
	}
	v, ok, err = Duration(map[string]any{"timeout": 5 * time.Second}, "timeout")
	if err != nil || !ok || v != 5*time.Second {
		t.Errorf("expected 5s from Duration, got %v ok=%v err=%v", v, ok, err)
	}
}

func TestDuration_Invalid(t *testing.T) {
	if _, _, err := Duration(map[string]any{"timeout": "soon"}, "timeout"); err == nil {
		t.Error("expected error for unparsable duration")
	}
	if _, _, err := Duration(map[string]any{"timeout": 30}, "timeout"); err == nil {
		t.Error("expected error for bare number")
	}
}

func TestObject(t *testing.T) {
	v, ok, err := Object(map[string]any{"payload": map[string]any{"test": true}}, "payload")
	if err != nil || !ok || v["test"] != true {
		t.Errorf("expected payload object, got %v ok=%v err=%v", v, ok, err)
	}
	if _, _, err := Object(map[string]any{"payload": "x"}, "payload"); err == nil {
		t.Error("expected error for non-object payload")
	}
}
