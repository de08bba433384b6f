package batchqueue

import (
	"errors"
	"fmt"
	"strings"
)

var ErrClosed = errors.New("queue is closed")

// EntryError reports the failure of a single entry inside a batch.
type EntryError struct {
	Key string
	Err error
}

func (e EntryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Err.Error())
}

func (e EntryError) Unwrap() error {
	return e.Err
}

// BatchError is returned by a Handler when only some entries of the batch
// failed. Entries not listed are considered applied.
type BatchError struct {
	Failed []EntryError
}

func (b *BatchError) Add(key string, err error) {
	b.Failed = append(b.Failed, EntryError{Key: key, Err: err})
}

// ErrOrNil returns nil when no entry failed.
func (b *BatchError) ErrOrNil() error {
	if b == nil || len(b.Failed) == 0 {
		return nil
	}
	return b
}

func (b *BatchError) Error() string {
	messages := make([]string, 0, len(b.Failed))
	for _, f := range b.Failed {
		messages = append(messages, f.Error())
	}
	return fmt.Sprintf("%d entries failed: %s", len(b.Failed), strings.Join(messages, "; "))
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string {
	return p.err.Error()
}

func (p *permanentError) Unwrap() error {
	return p.err
}

// Permanent marks err as not worth retrying; the entry goes straight to the
// dead letters.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
