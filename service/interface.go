package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulldump/itempicker/itemstore"
)

var ErrValidation = errors.New("validation error")
var ErrItemAlreadyExists = errors.New("item already exists")

// ValidationError is returned for malformed requests, they never reach a
// queue.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

type Servicer interface {
	ListAvailable(q itemstore.Query) (*itemstore.Page, error)
	ListSelected(q itemstore.Query) (*itemstore.Page, error)
	RequestAdd(item *itemstore.Item) error
	RequestSelect(id int64) error
	RequestDeselect(id int64) error
	RequestReorder(ids []int64) error
	Stats() *Stats
	DeadLetters() []*DeadLetter
}

// ItemStore is the store the coordinator reads from and applies batches to.
type ItemStore interface {
	Exists(id int64) bool
	ListAvailable(q itemstore.Query) (*itemstore.Page, error)
	ListSelected(q itemstore.Query) (*itemstore.Page, error)
	Apply(f func(w *itemstore.Writer))
	Stats() itemstore.Stats
}

var _ Servicer = &Service{}
var _ ItemStore = &itemstore.Store{}

// Closer is implemented by servicers holding pending work.
type Closer interface {
	Close(ctx context.Context) error
}
