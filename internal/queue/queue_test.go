package queue

import "testing"

func TestNewIsEmpty(t *testing.T) {
	q := New[int]()
	if q.Len() != 0 {
		t.Errorf("expected queue to be empty but it has %d items", q.Len())
	}
}

func TestPush(t *testing.T) {
	q := New[int]()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	if q.Len() != 10 {
		t.Errorf("pushed 10 items onto the queue but it only has %d items", q.Len())
	}
}

func TestPop(t *testing.T) {
	q := New[int]()
	items := []int{0, 1, 2, 3, 4}
	for _, item := range items {
		q.Push(item)
	}
	for i := 0; i < len(items); i++ {
		popped := q.Pop()
		if popped != items[i] {
			t.Errorf("popped %v but expected %v", popped, items[i])
		}
	}
}

func TestRemove(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)
	if !q.Remove(func(v int) bool { return v == 2 }) {
		t.Errorf("expected Remove to find 2")
	}
	if got := q.Items(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("unexpected items after remove: %v", got)
	}
	if q.Remove(func(v int) bool { return v == 99 }) {
		t.Errorf("expected Remove to report false for missing item")
	}
}
