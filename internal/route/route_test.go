package route

import (
	"testing"

	"github.com/blunan/Stratos/internal/addr"
)

func TestGetMissingReturnsFalse(t *testing.T) {
	tbl := New()
	if _, ok := tbl.Get(addr.Address(1)); ok {
		t.Errorf("expected no route for unknown destination")
	}
}

func TestSetThenGet(t *testing.T) {
	tbl := New()
	tbl.Set(addr.Address(10), addr.Address(20))
	got, ok := tbl.Get(addr.Address(10))
	if !ok || got != addr.Address(20) {
		t.Errorf("expected next hop 20, got %v (ok=%v)", got, ok)
	}
}

func TestSetOverwrites(t *testing.T) {
	tbl := New()
	tbl.Set(addr.Address(10), addr.Address(20))
	tbl.Set(addr.Address(10), addr.Address(30))
	got, _ := tbl.Get(addr.Address(10))
	if got != addr.Address(30) {
		t.Errorf("expected overwritten next hop 30, got %v", got)
	}
}
