package stack

import "testing"

func TestBounded_PushPop(t *testing.T) {
	s := New[int](3)
	for i := 1; i <= 3; i++ {
		if _, evicted := s.Push(i); evicted {
			t.Fatalf("Push(%d) evicted before stack was full", i)
		}
	}

	if v, ok := s.Pop(); !ok || v != 3 {
		t.Errorf("Pop() = %d, %v, want 3, true", v, ok)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestBounded_EvictsOldest(t *testing.T) {
	s := New[string](2)
	s.Push("a")
	s.Push("b")

	oldest, evicted := s.Push("c")
	if !evicted || oldest != "a" {
		t.Errorf("Push(c) = %q, %v, want a, true", oldest, evicted)
	}

	got := s.Items()
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Items() = %v, want [b c]", got)
	}
}

func TestBounded_Empty(t *testing.T) {
	s := New[int](0)
	if s.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1", s.Cap())
	}
	if _, ok := s.Pop(); ok {
		t.Error("Pop() on empty stack returned ok")
	}
	if _, ok := s.Peek(); ok {
		t.Error("Peek() on empty stack returned ok")
	}
}

func TestBounded_Clear(t *testing.T) {
	s := New[int](5)
	s.Push(1)
	s.Push(2)
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", s.Len())
	}
	if v, ok := s.Peek(); ok {
		t.Errorf("Peek() after Clear = %d, want empty", v)
	}
}
