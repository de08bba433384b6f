package service

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/fulldump/biff"

	"github.com/fulldump/itempicker/batchqueue"
	"github.com/fulldump/itempicker/itemstore"
)

func newTestService(items int) (*Service, *itemstore.Store, *batchqueue.ManualScheduler) {
	store := itemstore.New()
	store.Seed(items)

	scheduler := batchqueue.NewManualScheduler()

	c := DefaultConfig()
	c.Logger = log.New(io.Discard, "", 0)
	c.Scheduler = scheduler

	return NewService(store, c), store, scheduler
}

func TestRequestAdd(t *testing.T) {

	biff.Alternative("Setup", func(a *biff.A) {

		s, store, scheduler := newTestService(10)

		a.Alternative("Add is applied after the add delay", func(a *biff.A) {
			biff.AssertNil(s.RequestAdd(&itemstore.Item{ID: 11}))
			biff.AssertFalse(store.Exists(11))

			scheduler.Advance(9 * time.Second)
			biff.AssertFalse(store.Exists(11))

			scheduler.Advance(1 * time.Second)
			biff.AssertTrue(store.Exists(11))
			biff.AssertEqual(store.Stats().Total, 11)
		})

		a.Alternative("Existing id is rejected synchronously", func(a *biff.A) {
			err := s.RequestAdd(&itemstore.Item{ID: 3})
			biff.AssertTrue(errors.Is(err, ErrItemAlreadyExists))
			biff.AssertEqual(s.Stats().AddQueue.Pending, 0)
		})

		a.Alternative("Second add while first is pending collapses", func(a *biff.A) {
			biff.AssertNil(s.RequestAdd(&itemstore.Item{ID: 20, Payload: map[string]any{"v": 1}}))
			biff.AssertNil(s.RequestAdd(&itemstore.Item{ID: 20, Payload: map[string]any{"v": 2}}))
			biff.AssertEqual(s.Stats().AddQueue.Pending, 1)

			scheduler.Advance(10 * time.Second)
			biff.AssertTrue(store.Exists(20))
			biff.AssertEqual(store.Stats().Total, 11)
			biff.AssertEqual(store.Get(20).Payload["v"], 2)

			a.Alternative("Once applied the id is rejected", func(a *biff.A) {
				err := s.RequestAdd(&itemstore.Item{ID: 20})
				biff.AssertTrue(errors.Is(err, ErrItemAlreadyExists))
			})
		})

		a.Alternative("Invalid items are rejected", func(a *biff.A) {
			biff.AssertTrue(errors.Is(s.RequestAdd(nil), ErrValidation))
			biff.AssertTrue(errors.Is(s.RequestAdd(&itemstore.Item{ID: 0}), ErrValidation))
		})
	})
}

func TestRequestSelect(t *testing.T) {

	biff.Alternative("Setup", func(a *biff.A) {

		s, store, scheduler := newTestService(10)

		a.Alternative("Select is applied after the update delay", func(a *biff.A) {
			biff.AssertNil(s.RequestSelect(5))
			biff.AssertFalse(store.IsSelected(5))

			scheduler.Advance(1 * time.Second)
			biff.AssertTrue(store.IsSelected(5))
		})

		a.Alternative("Select then deselect in the same batch", func(a *biff.A) {
			biff.AssertNil(s.RequestSelect(5))
			biff.AssertNil(s.RequestDeselect(5))
			biff.AssertEqual(s.Stats().UpdateQueue.Pending, 2)

			scheduler.Advance(1 * time.Second)
			biff.AssertFalse(store.IsSelected(5))
			biff.AssertEqual(s.Stats().UpdateQueue.Applied, int64(2))
		})

		a.Alternative("Order is preserved in the same batch", func(a *biff.A) {
			biff.AssertNil(s.RequestSelect(3))
			biff.AssertNil(s.RequestSelect(1))
			biff.AssertNil(s.RequestSelect(2))

			scheduler.Advance(1 * time.Second)
			biff.AssertEqual(store.SelectedIDs(), []int64{3, 1, 2})
		})

		a.Alternative("Order is preserved across batches", func(a *biff.A) {
			biff.AssertNil(s.RequestSelect(3))
			scheduler.Advance(1 * time.Second)
			biff.AssertNil(s.RequestSelect(1))
			scheduler.Advance(1 * time.Second)
			biff.AssertNil(s.RequestSelect(2))
			scheduler.Advance(1 * time.Second)

			biff.AssertEqual(store.SelectedIDs(), []int64{3, 1, 2})
		})

		a.Alternative("Repeated selects are idempotent", func(a *biff.A) {
			biff.AssertNil(s.RequestSelect(4))
			scheduler.Advance(1 * time.Second)
			biff.AssertNil(s.RequestSelect(4))
			scheduler.Advance(1 * time.Second)

			biff.AssertEqual(store.SelectedIDs(), []int64{4})
		})

		a.Alternative("Unknown id is a no-op", func(a *biff.A) {
			biff.AssertNil(s.RequestSelect(999))
			scheduler.Advance(1 * time.Second)

			biff.AssertEqual(store.SelectedIDs(), []int64{})
			biff.AssertEqual(len(s.DeadLetters()), 0)
		})

		a.Alternative("Invalid id is rejected", func(a *biff.A) {
			biff.AssertTrue(errors.Is(s.RequestSelect(-1), ErrValidation))
			biff.AssertTrue(errors.Is(s.RequestDeselect(0), ErrValidation))
		})
	})
}

func TestRequestReorder(t *testing.T) {

	biff.Alternative("Setup", func(a *biff.A) {

		s, store, scheduler := newTestService(10)
		store.ApplySelect(1)
		store.ApplySelect(2)

		a.Alternative("Reorders collapse to the last one", func(a *biff.A) {
			biff.AssertNil(s.RequestReorder([]int64{1, 2}))
			biff.AssertNil(s.RequestReorder([]int64{2, 1}))
			biff.AssertEqual(s.Stats().UpdateQueue.Pending, 1)
			biff.AssertEqual(s.Stats().UpdateQueue.Overwritten, int64(1))

			scheduler.Advance(1 * time.Second)
			biff.AssertEqual(store.SelectedIDs(), []int64{2, 1})
		})

		a.Alternative("Reorder that is not a permutation goes to dead letters", func(a *biff.A) {
			biff.AssertNil(s.RequestReorder([]int64{2, 7}))

			scheduler.Advance(1 * time.Second)
			biff.AssertEqual(store.SelectedIDs(), []int64{1, 2})

			deadLetters := s.DeadLetters()
			biff.AssertEqual(len(deadLetters), 1)
			biff.AssertEqual(deadLetters[0].Queue, "update")
			biff.AssertEqual(deadLetters[0].Key, "reorder")
			biff.AssertEqual(deadLetters[0].Attempts, 1)
		})

		a.Alternative("Dead letters are observed", func(a *biff.A) {
			observed := []*DeadLetter{}
			c := DefaultConfig()
			c.Logger = log.New(io.Discard, "", 0)
			c.Scheduler = scheduler
			c.OnDeadLetter = func(d *DeadLetter) {
				observed = append(observed, d)
			}
			s := NewService(store, c)

			biff.AssertNil(s.RequestReorder([]int64{1}))
			scheduler.Advance(1 * time.Second)

			biff.AssertEqual(len(observed), 1)
			biff.AssertEqual(observed[0].Key, "reorder")
			biff.AssertEqual(observed[0].Payload, UpdatePayload{Action: ActionReorder, IDs: []int64{1}})
		})

		a.Alternative("Failing reorder does not abort siblings", func(a *biff.A) {
			biff.AssertNil(s.RequestSelect(3))
			biff.AssertNil(s.RequestReorder([]int64{9}))
			biff.AssertNil(s.RequestSelect(4))

			scheduler.Advance(1 * time.Second)
			biff.AssertEqual(store.SelectedIDs(), []int64{1, 2, 3, 4})
			biff.AssertEqual(s.Stats().UpdateQueue.Applied, int64(2))
			biff.AssertEqual(s.Stats().UpdateQueue.Failed, int64(1))
		})

		a.Alternative("Duplicated ids are rejected", func(a *biff.A) {
			err := s.RequestReorder([]int64{1, 1})
			biff.AssertTrue(errors.Is(err, ErrValidation))
		})
	})
}

func TestListDefaults(t *testing.T) {

	s, _, _ := newTestService(2000)

	page, err := s.ListAvailable(itemstore.Query{})
	biff.AssertNil(err)
	biff.AssertEqual(page.Page, 1)
	biff.AssertEqual(len(page.Items), 20)
	biff.AssertTrue(page.HasMore)

	page, err = s.ListAvailable(itemstore.Query{Page: 1, Limit: 5000})
	biff.AssertNil(err)
	biff.AssertEqual(len(page.Items), 1000)

	page, err = s.ListSelected(itemstore.Query{Page: -3})
	biff.AssertNil(err)
	biff.AssertEqual(page.Page, 1)
	biff.AssertEqual(page.Total, 0)
}

func TestClose(t *testing.T) {

	s, store, scheduler := newTestService(10)

	biff.AssertNil(s.RequestAdd(&itemstore.Item{ID: 11}))
	biff.AssertNil(s.RequestSelect(2))

	biff.AssertNil(s.Close(context.Background()))
	biff.AssertTrue(store.Exists(11))
	biff.AssertTrue(store.IsSelected(2))
	biff.AssertEqual(scheduler.Pending(), 0)

	err := s.RequestSelect(3)
	biff.AssertTrue(errors.Is(err, batchqueue.ErrClosed))
}
