// Package view tracks the filter, sort and search a user is looking at,
// with its own undo and redo history. Changing the view never changes
// the data, so this history is independent of the session's data history.
package view

import (
	"github.com/danchege/Alchemist/internal/common"
	"github.com/danchege/Alchemist/internal/stack"
	"github.com/danchege/Alchemist/internal/store"
)

// DefaultMaxHistory is the number of earlier views kept.
const DefaultMaxHistory = 30

// State is one view plus the page size it was shown with.
type State struct {
	store.View
	PageSize int `json:"page_size"`
}

func (s State) clone() State {
	if s.Filter != nil {
		f := *s.Filter
		s.Filter = &f
	}
	if s.Sort != nil {
		o := *s.Sort
		s.Sort = &o
	}
	return s
}

// Query returns the query for page of this view.
func (s State) Query(page int) store.Query {
	return store.Query{View: s.clone().View, Page: page, PageSize: s.PageSize}
}

// Coordinator holds the current view and its history. It is not safe for
// concurrent use.
type Coordinator struct {
	current State
	undo    *stack.Bounded[State]
	redo    *stack.Bounded[State]
}

// New returns a coordinator with an empty view. limit <= 0 selects
// DefaultMaxHistory.
func New(limit int) *Coordinator {
	if limit <= 0 {
		limit = DefaultMaxHistory
	}
	return &Coordinator{
		undo: stack.New[State](limit),
		redo: stack.New[State](limit),
	}
}

// Current returns a copy of the current view.
func (c *Coordinator) Current() State { return c.current.clone() }

// Save makes next current. The previous view becomes undoable and the
// redo history is dropped.
func (c *Coordinator) Save(next State) {
	c.undo.Push(c.current)
	c.redo.Clear()
	c.current = next.clone()
}

// Undo restores the previous view.
func (c *Coordinator) Undo() (State, error) {
	prev, ok := c.undo.Pop()
	if !ok {
		return State{}, common.ErrNothingToUndo
	}
	c.redo.Push(c.current)
	c.current = prev
	return c.Current(), nil
}

// Redo restores the view most recently undone.
func (c *Coordinator) Redo() (State, error) {
	next, ok := c.redo.Pop()
	if !ok {
		return State{}, common.ErrNothingToRedo
	}
	c.undo.Push(c.current)
	c.current = next
	return c.Current(), nil
}

// PeekUndo returns the view Undo would restore without changing history.
func (c *Coordinator) PeekUndo() (State, error) {
	prev, ok := c.undo.Peek()
	if !ok {
		return State{}, common.ErrNothingToUndo
	}
	return prev.clone(), nil
}

// PeekRedo returns the view Redo would restore without changing history.
func (c *Coordinator) PeekRedo() (State, error) {
	next, ok := c.redo.Peek()
	if !ok {
		return State{}, common.ErrNothingToRedo
	}
	return next.clone(), nil
}

func (c *Coordinator) CanUndo() bool { return c.undo.Len() > 0 }
func (c *Coordinator) CanRedo() bool { return c.redo.Len() > 0 }

// Clear drops the history and returns to the unfiltered view.
func (c *Coordinator) Clear() {
	c.current = State{}
	c.undo.Clear()
	c.redo.Clear()
}
