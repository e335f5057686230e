package store

import "errors"

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// Page selects a window of a listing. Page numbers start at 0; a zero Size
// means no limit.
type Page struct {
	Number int
	Size   int
}

func (p Page) offset() int {
	if p.Size <= 0 || p.Number <= 0 {
		return 0
	}
	return p.Number * p.Size
}

func (p Page) limit() int {
	if p.Size <= 0 {
		return -1
	}
	return p.Size
}
