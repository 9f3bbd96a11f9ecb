package util

import (
	"fmt"
	"sort"
	"testing"
)

func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap[string]()

	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}
	if _, exists := mh.Peek(); exists {
		t.Error("Peek on empty heap should return exists=false")
	}
	if _, exists := mh.PopMin(); exists {
		t.Error("PopMin on empty heap should return exists=false")
	}
}

func TestAddAndUpdateItem(t *testing.T) {
	mh := NewMapHeap[string]()

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 50)

	if mh.Len() != 3 {
		t.Fatalf("Heap should have 3 items, but has %d", mh.Len())
	}

	item, _ := mh.Peek()
	if item.Key != "c" || item.Priority != 50 {
		t.Errorf("Expected min item to be (c,50), got %s", item)
	}

	// moving c behind a
	mh.AddItem("c", 300)
	if mh.Len() != 3 {
		t.Errorf("Updating must not add a new item, heap has %d items", mh.Len())
	}
	item, _ = mh.Peek()
	if item.Key != "a" {
		t.Errorf("Expected min item to be a after update, got %s", item)
	}

	got, exists := mh.GetByKey("c")
	if !exists || got.Priority != 300 {
		t.Errorf("Expected c to have priority 300, got %v", got)
	}
}

func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap[string]()
	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 300)

	priority, exists := mh.RemoveByKey("b")
	if !exists || priority != 200 {
		t.Fatalf("Expected to remove b with priority 200, got %d (%v)", priority, exists)
	}
	if mh.Contains("b") {
		t.Error("Heap should not contain b after removal")
	}
	if _, exists = mh.RemoveByKey("missing"); exists {
		t.Error("RemoveByKey should return false for a missing key")
	}
}

func TestPopOrder(t *testing.T) {
	mh := NewMapHeap[string]()
	priorities := []int64{50, 30, 10, 40, 20, 60, 0}

	for i, p := range priorities {
		mh.AddItem(fmt.Sprintf("key-%d", i), p)
	}

	sorted := append([]int64(nil), priorities...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for i, expected := range sorted {
		item, ok := mh.PopMin()
		if !ok {
			t.Fatalf("Heap empty after %d items", i)
		}
		if item.Priority != expected {
			t.Errorf("Pop %d: expected priority %d, got %d", i, expected, item.Priority)
		}
		if mh.Contains(item.Key) {
			t.Errorf("Popped key %s is still indexed", item.Key)
		}
	}
}

func TestReset(t *testing.T) {
	mh := NewMapHeap[string]()
	for i := 0; i < 100; i++ {
		mh.AddItem(fmt.Sprintf("key-%d", i), int64(i))
	}
	mh.Reset()

	if mh.Len() != 0 || mh.Contains("key-1") {
		t.Errorf("Heap should be empty after Reset")
	}
}
