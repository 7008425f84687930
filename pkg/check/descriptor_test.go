package check

import (
	"testing"
)

func TestDescriptor_ZeroValue(t *testing.T) {
	var d Descriptor
	if d.Title != "" || d.Label != "" || d.Remediation != "" {
		t.Error("zero Descriptor should be empty")
	}
}

func TestDescriptorFrom_Defaults(t *testing.T) {
	def := Descriptor{Title: "t", Label: "l", Remediation: "r"}
	d, err := DescriptorFrom(def, map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != def {
		t.Errorf("expected defaults unchanged, got %+v", d)
	}
}

func TestDescriptorFrom_Overrides(t *testing.T) {
	def := Descriptor{Title: "t", Label: "l", Remediation: "r"}
	d, err := DescriptorFrom(def, map[string]any{
		"label":       "Snapshot Index",
		"remediation": "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Label != "Snapshot Index" {
		t.Errorf("expected label override, got %q", d.Label)
	}
	if d.Remediation != "" {
		t.Errorf("expected remediation cleared, got %q", d.Remediation)
	}
	if d.Title != "t" {
		t.Errorf("expected title kept, got %q", d.Title)
	}
}

func TestDescriptorFrom_WrongType(t *testing.T) {
	_, err := DescriptorFrom(Descriptor{}, map[string]any{"label": 3})
	if err == nil {
		t.Error("expected error for non-string label")
	}
}
