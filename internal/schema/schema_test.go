package schema

import "testing"

func TestNewExtractedData_Complete(t *testing.T) {
	data := NewExtractedData()

	if len(data) != len(Fields) {
		t.Fatalf("expected %d fields, got %d", len(Fields), len(data))
	}

	for _, f := range Fields {
		v, ok := data[f]
		if !ok {
			t.Errorf("missing field %q", f)
		}
		if v != nil {
			t.Errorf("field %q: expected nil, got %v", f, v)
		}
	}
}

func TestNewExtractedData_NoExtraKeys(t *testing.T) {
	data := NewExtractedData()

	for k := range data {
		if !IsField(k) {
			t.Errorf("unexpected key %q in fresh extracted data", k)
		}
	}
}

func TestCategories_CoverVocabulary(t *testing.T) {
	seen := make(map[string]int)
	for _, cat := range Categories {
		for _, f := range cat.Fields {
			seen[f]++
		}
	}

	for _, f := range Fields {
		if seen[f] != 1 {
			t.Errorf("field %q appears %d times in categories, want 1", f, seen[f])
		}
	}
	if len(seen) != len(Fields) {
		t.Errorf("categories reference %d fields, vocabulary has %d", len(seen), len(Fields))
	}
}
