package cursor

import (
	"strings"
	"testing"
)

func TestCursorEncodeDecode(t *testing.T) {
	c, err := New("3f0c6c8e", 42)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	encoded, err := c.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if encoded == "" {
		t.Fatal("Encoded cursor is empty")
	}

	decoded, err := Decode(encoded, "3f0c6c8e")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.LastID != 42 || decoded.Scope != "3f0c6c8e" {
		t.Errorf("decoded %+v, want scope 3f0c6c8e and last id 42", decoded)
	}
}

func TestDecodeErrors(t *testing.T) {
	valid, _ := (&Cursor{Scope: "a", LastID: 7}).Encode()
	noID, _ := (&Cursor{Scope: "a"}).Encode()

	tests := []struct {
		name    string
		encoded string
		scope   string
		errSub  string
	}{
		{"empty", "", "a", "empty cursor"},
		{"not base64", "!!!", "a", "invalid cursor encoding"},
		{"not json", "bm90IGpzb24=", "a", "invalid cursor format"},
		{"missing id", noID, "a", "missing last ID"},
		{"other scope", valid, "b", "belongs to"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.encoded, tt.scope)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("error %q does not contain %q", err, tt.errSub)
			}
		})
	}
}

func TestNewRequiresID(t *testing.T) {
	if _, err := New("a", 0); err == nil {
		t.Error("expected error for a zero last id")
	}
}

func TestWhereClause(t *testing.T) {
	c := &Cursor{Scope: "a", LastID: 9}

	clause, params := c.WhereClause("id", true)
	if clause != "id < ?" {
		t.Errorf("descending clause = %q", clause)
	}
	if len(params) != 1 || params[0] != int64(9) {
		t.Errorf("params = %v", params)
	}

	clause, _ = c.WhereClause("id", false)
	if clause != "id > ?" {
		t.Errorf("ascending clause = %q", clause)
	}
}
