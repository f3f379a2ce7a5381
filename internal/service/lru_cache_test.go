package service

import "testing"

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := newLRUCache[string](2)
	c.Put(1, "a")
	c.Put(2, "b")

	// Touch 1 so 2 becomes the eviction candidate.
	if v, ok := c.Get(1); !ok || v != "a" {
		t.Fatalf("Get(1) = %q, %v", v, ok)
	}
	c.Put(3, "c")

	if _, ok := c.Get(2); ok {
		t.Error("Get(2) hit, want evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("Get(1) miss, want kept")
	}
	if _, ok := c.Get(3); !ok {
		t.Error("Get(3) miss, want kept")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCache_UpdateDeleteClear(t *testing.T) {
	t.Parallel()

	c := newLRUCache[int](4)
	c.Put(7, 1)
	c.Put(7, 2)
	if v, _ := c.Get(7); v != 2 {
		t.Errorf("Get(7) = %d, want 2", v)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}

	c.Put(8, 3)
	c.Delete(7)
	c.Delete(99)
	if _, ok := c.Get(7); ok {
		t.Error("Get(7) hit after Delete")
	}

	c.Clear()
	if c.Size() != 0 {
		t.Errorf("Size() after Clear = %d, want 0", c.Size())
	}
	c.Put(9, 4)
	if v, ok := c.Get(9); !ok || v != 4 {
		t.Errorf("Get(9) after Clear = %d, %v", v, ok)
	}
}

func TestHashFields_Separated(t *testing.T) {
	t.Parallel()

	if hashFields("ab", "c") == hashFields("a", "bc") {
		t.Error("hashFields collides across field boundaries")
	}
	if hashFields("x") != hashFields("x") {
		t.Error("hashFields not deterministic")
	}
}
