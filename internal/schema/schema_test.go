package schema

import (
	"encoding/json"
	"testing"
)

type point struct {
	X int     `json:"x"`
	Y int     `json:"y"`
	Z *int    `json:"z,omitempty"`
}

func (point) Schema() Schema {
	return Object([]Property{
		{Name: "x", Schema: Number("")},
		{Name: "y", Schema: Number("")},
	}, []string{"x", "y"})
}

func TestForType_DescriberWins(t *testing.T) {
	got := ForType(point{}, "a point")
	if got.Kind != KindObject {
		t.Fatalf("Kind = %v, want object", got.Kind)
	}
	if got.Description != "a point" {
		t.Fatalf("Description = %q, want override applied", got.Description)
	}
	if len(got.Properties) != 2 {
		t.Fatalf("Properties = %d, want 2", len(got.Properties))
	}
}

type plain struct {
	Name     string `json:"name"`
	Nickname string `json:"nickname,omitempty"`
	Age      *int   `json:"age,omitempty"`
}

func TestForType_ReflectFallback(t *testing.T) {
	got := ForType(plain{}, "")
	if got.Kind != KindObject {
		t.Fatalf("Kind = %v, want object", got.Kind)
	}
	want := []string{"name"}
	if len(got.RequiredFields) != len(want) || got.RequiredFields[0] != want[0] {
		t.Fatalf("RequiredFields = %v, want %v", got.RequiredFields, want)
	}
}

func TestEnum_PanicsOnEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for empty enum")
		}
	}()
	Enum(nil)
}

func TestMergeDefault(t *testing.T) {
	s := MergeDefault(String(""), "fallback")
	if !s.HasDefault || s.Default != "fallback" {
		t.Fatalf("MergeDefault did not set default: %+v", s)
	}
}

func TestWithoutRequired(t *testing.T) {
	s := Object([]Property{{Name: "a", Schema: String("")}}, []string{"a"})
	got := WithoutRequired(s)
	if got.RequiredFields != nil {
		t.Fatalf("RequiredFields = %v, want nil", got.RequiredFields)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	original := Object([]Property{
		{Name: "name", Schema: String("the name")},
		{Name: "tags", Schema: Array(String(""))},
		{Name: "kind", Schema: Enum([]string{"a", "b"})},
	}, []string{"name"})

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Schema
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Kind != KindObject {
		t.Fatalf("decoded.Kind = %v, want object", decoded.Kind)
	}
	if len(decoded.RequiredFields) != 1 || decoded.RequiredFields[0] != "name" {
		t.Fatalf("decoded.RequiredFields = %v", decoded.RequiredFields)
	}
}

func TestWrapStructuredArray(t *testing.T) {
	obj := Object([]Property{{Name: "id", Schema: String("")}}, nil)
	wrapped := WrapStructuredArray(obj)
	if wrapped.Kind != KindObject || len(wrapped.Properties) != 1 || wrapped.Properties[0].Name != "items" {
		t.Fatalf("WrapStructuredArray(object) = %+v, want object-wrapped array", wrapped)
	}

	prim := WrapStructuredArray(String(""))
	if prim.Kind != KindArray {
		t.Fatalf("WrapStructuredArray(string) = %+v, want array", prim)
	}
}
