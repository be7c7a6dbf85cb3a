package keypath

import (
	"errors"
	"reflect"
	"testing"

	"live-survey-service/internal/domain"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"root", "", "", false},
		{"trims separators", "/surveys/s1/", "surveys/s1", false},
		{"email key", "admins/ana@example,com", "admins/ana@example,com", false},
		{"dot", "admins/ana@example.com", "", true},
		{"empty segment", "surveys//s1", "", true},
		{"glob", "surveys/*", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clean(tt.in)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidPath) {
					t.Fatalf("expected ErrInvalidPath, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("clean: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFlattenAndAssemble(t *testing.T) {
	value := map[string]any{
		"text":    "Favourite colour?",
		"options": []string{"red", "blue"},
		"votes":   map[string]any{},
		"gone":    nil,
		"points":  100,
	}
	leaves, err := Flatten("surveys/s1/questions/q1", value)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if len(leaves) != 4 {
		t.Fatalf("expected 4 leaves, got %d: %v", len(leaves), leaves)
	}
	if string(leaves["surveys/s1/questions/q1/options/1"]) != `"blue"` {
		t.Fatalf("unexpected option leaf %s", leaves["surveys/s1/questions/q1/options/1"])
	}

	got, err := Assemble("surveys/s1/questions/q1", leaves)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	want := map[string]any{
		"text":    "Favourite colour?",
		"options": []any{"red", "blue"},
		"points":  float64(100),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v, got %#v", want, got)
	}

	leaf, err := Assemble("surveys/s1/questions/q1/points", leaves)
	if err != nil || leaf != float64(100) {
		t.Fatalf("expected scalar leaf 100, got %v (%v)", leaf, err)
	}
	missing, err := Assemble("surveys/s2", leaves)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing path, got %v (%v)", missing, err)
	}
}

func TestSparseIndexesStayObjects(t *testing.T) {
	leaves := map[string][]byte{
		"votes/0": []byte("1"),
		"votes/2": []byte("1"),
	}
	got, err := Assemble("votes", leaves)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if _, ok := got.(map[string]any); !ok {
		t.Fatalf("expected object for sparse keys, got %T", got)
	}
}

func TestOverlaps(t *testing.T) {
	if !Overlaps("surveys/s1", "surveys/s1/questions/q1/votes/u1") {
		t.Fatalf("ancestor should overlap descendant")
	}
	if Overlaps("surveys/s1", "surveys/s10") {
		t.Fatalf("siblings sharing a prefix must not overlap")
	}
	if !Overlaps("", "winners/u1") {
		t.Fatalf("root overlaps everything")
	}
	if got := Ancestors("a/b/c"); !reflect.DeepEqual(got, []string{"a", "a/b"}) {
		t.Fatalf("unexpected ancestors %v", got)
	}
}
