// Package util
//
// This file provides a priority queue with key-based access, used by the engines
// to track when entries expire.
//
// The implementation combines a binary min-heap with a hash map:
//   - O(log n) for Push, Pop and priority updates
//   - O(1) for key lookups and existence checks
//   - O(log n) for removal by key
//
// A typical expiration loop peeks at the item with the lowest priority (the
// earliest expiration timestamp) and removes it once it is due, while writes and
// deletes of a key update or remove its item directly.
//
// Note: this implementation is not thread-safe, callers must synchronize access.
//
// Example usage:
//
//	expiries := NewMapHeap[string]()
//	expiries.AddItem("session:1", expiresAt)
//
//	for {
//	    next, ok := expiries.Peek()
//	    if !ok || next.Priority > now {
//	        break
//	    }
//	    expiries.RemoveByKey(next.Key)
//	    // purge next.Key
//	}
package util

import (
	"container/heap"
	"fmt"
)

// Item is an entry of the MapHeap
type Item[K comparable] struct {
	Key      K     // Unique identifier for the item
	Priority int64 // Position in the heap (lowest first)
	index    int   // Index in the heap, maintained by the heap package
}

func (i *Item[K]) String() string {
	return fmt.Sprintf("{Key: %v, Priority: %d}", i.Key, i.Priority)
}

// MapHeap implements a min priority queue with key-based access
type MapHeap[K comparable] struct {
	items    []*Item[K]     // The actual heap slice
	itemsMap map[K]*Item[K] // Map for O(1) access by key
}

// NewMapHeap creates a new empty MapHeap
func NewMapHeap[K comparable]() *MapHeap[K] {
	return &MapHeap[K]{
		items:    make([]*Item[K], 0),
		itemsMap: make(map[K]*Item[K]),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (mh *MapHeap[K]) Len() int { return len(mh.items) }

// Less compares items by priority (part of heap.Interface)
func (mh *MapHeap[K]) Less(i, j int) bool {
	return mh.items[i].Priority < mh.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (mh *MapHeap[K]) Swap(i, j int) {
	mh.items[i], mh.items[j] = mh.items[j], mh.items[i]
	mh.items[i].index = i
	mh.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface, use AddItem instead)
func (mh *MapHeap[K]) Push(x interface{}) {
	item := x.(*Item[K])
	item.index = len(mh.items)
	mh.items = append(mh.items, item)
	mh.itemsMap[item.Key] = item
}

// Pop removes and returns the last item (part of heap.Interface, use PopMin instead)
func (mh *MapHeap[K]) Pop() interface{} {
	old := mh.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	mh.items = old[:n-1]
	delete(mh.itemsMap, item.Key)
	return item
}

// AddItem adds a new item or updates the priority of an existing one
func (mh *MapHeap[K]) AddItem(key K, priority int64) {
	if item, exists := mh.itemsMap[key]; exists {
		item.Priority = priority
		heap.Fix(mh, item.index)
		return
	}
	heap.Push(mh, &Item[K]{Key: key, Priority: priority})
}

// RemoveByKey removes an item by its key and returns its priority
func (mh *MapHeap[K]) RemoveByKey(key K) (int64, bool) {
	item, exists := mh.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(mh, item.index)
	return item.Priority, true
}

// Peek returns the item with the lowest priority without removing it
func (mh *MapHeap[K]) Peek() (*Item[K], bool) {
	if len(mh.items) == 0 {
		return nil, false
	}
	return mh.items[0], true
}

// PopMin removes and returns the item with the lowest priority
func (mh *MapHeap[K]) PopMin() (*Item[K], bool) {
	if len(mh.items) == 0 {
		return nil, false
	}
	return heap.Pop(mh).(*Item[K]), true
}

// Contains checks if a key exists in the queue
func (mh *MapHeap[K]) Contains(key K) bool {
	_, exists := mh.itemsMap[key]
	return exists
}

// GetByKey retrieves an item by its key without removing it
func (mh *MapHeap[K]) GetByKey(key K) (*Item[K], bool) {
	item, exists := mh.itemsMap[key]
	return item, exists
}

// Reset removes all items
func (mh *MapHeap[K]) Reset() {
	mh.items = make([]*Item[K], 0)
	mh.itemsMap = make(map[K]*Item[K])
}
