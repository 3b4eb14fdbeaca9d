package xid

import (
	"strings"
	"testing"
)

func TestNewUsesPrefixAndIsUnique(t *testing.T) {
	a := New("po")
	b := New("po")
	if !strings.HasPrefix(a, "po-") {
		t.Fatalf("expected po- prefix, got %q", a)
	}
	if a == b {
		t.Fatalf("expected unique ids, got %q twice", a)
	}
}
