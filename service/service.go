package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fulldump/itempicker/batchqueue"
	"github.com/fulldump/itempicker/itemstore"
)

type Action string

const (
	ActionSelect   Action = "select"
	ActionDeselect Action = "deselect"
	ActionReorder  Action = "reorder"
)

type AddPayload struct {
	Item *itemstore.Item `json:"item"`
}

type UpdatePayload struct {
	Action Action  `json:"action"`
	ID     int64   `json:"id,omitempty"`
	IDs    []int64 `json:"ids,omitempty"`
}

type Config struct {
	AddDelay      time.Duration
	UpdateDelay   time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	DefaultLimit  int
	MaxLimit      int

	Logger    *log.Logger
	Scheduler batchqueue.Scheduler
	Metrics   *batchqueue.Metrics

	// OnDeadLetter is called for every entry a queue gives up on
	OnDeadLetter func(d *DeadLetter)
}

func DefaultConfig() *Config {
	return &Config{
		AddDelay:      10 * time.Second,
		UpdateDelay:   1 * time.Second,
		MaxRetries:    3,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
		DefaultLimit:  20,
		MaxLimit:      1000,
	}
}

type Stats struct {
	Items       itemstore.Stats  `json:"items"`
	AddQueue    batchqueue.Stats `json:"add_queue"`
	UpdateQueue batchqueue.Stats `json:"update_queue"`
}

// DeadLetter is a queue dead letter with its payload type erased.
type DeadLetter struct {
	Queue     string    `json:"queue"`
	BatchID   string    `json:"batch_id"`
	Key       string    `json:"key"`
	Payload   any       `json:"payload"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Service turns user intents into queue entries and applies flushed batches
// to the store. Adds go through a long delay queue, select, deselect and
// reorder share a short delay queue.
type Service struct {
	store        ItemStore
	logger       *log.Logger
	defaultLimit int
	maxLimit     int
	addQueue     *batchqueue.Queue[AddPayload]
	updateQueue  *batchqueue.Queue[UpdatePayload]
}

func NewService(store ItemStore, c *Config) *Service {
	if c == nil {
		c = DefaultConfig()
	}

	s := &Service{
		store:        store,
		logger:       c.Logger,
		defaultLimit: c.DefaultLimit,
		maxLimit:     c.MaxLimit,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = 20
	}

	scheduler := c.Scheduler
	if scheduler == nil {
		scheduler = batchqueue.RealScheduler
	}

	onDeadLetter := c.OnDeadLetter
	if onDeadLetter == nil {
		onDeadLetter = func(d *DeadLetter) {}
	}

	s.addQueue = batchqueue.New[AddPayload](s.applyAdds, c.AddDelay,
		batchqueue.WithName[AddPayload]("add"),
		batchqueue.WithLogger[AddPayload](s.logger),
		batchqueue.WithScheduler[AddPayload](scheduler),
		batchqueue.WithRetry[AddPayload](c.MaxRetries, c.RetryDelay, c.MaxRetryDelay),
		batchqueue.WithMetrics[AddPayload](c.Metrics),
		batchqueue.WithDeadLetter[AddPayload](func(d *batchqueue.DeadLetter[AddPayload]) {
			onDeadLetter(eraseDeadLetter(d))
		}),
	)

	s.updateQueue = batchqueue.New[UpdatePayload](s.applyUpdates, c.UpdateDelay,
		batchqueue.WithName[UpdatePayload]("update"),
		batchqueue.WithLogger[UpdatePayload](s.logger),
		batchqueue.WithScheduler[UpdatePayload](scheduler),
		batchqueue.WithRetry[UpdatePayload](c.MaxRetries, c.RetryDelay, c.MaxRetryDelay),
		batchqueue.WithMetrics[UpdatePayload](c.Metrics),
		batchqueue.WithDeadLetter[UpdatePayload](func(d *batchqueue.DeadLetter[UpdatePayload]) {
			onDeadLetter(eraseDeadLetter(d))
		}),
	)

	return s
}

func (s *Service) query(q itemstore.Query) itemstore.Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = s.defaultLimit
	}
	if s.maxLimit > 0 && q.Limit > s.maxLimit {
		q.Limit = s.maxLimit
	}
	return q
}

func (s *Service) ListAvailable(q itemstore.Query) (*itemstore.Page, error) {
	return s.store.ListAvailable(s.query(q))
}

func (s *Service) ListSelected(q itemstore.Query) (*itemstore.Page, error) {
	return s.store.ListSelected(s.query(q))
}

func validateID(id int64) error {
	if id <= 0 {
		return &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return nil
}

// RequestAdd rejects identifiers already present in the store. An add still
// waiting in the queue is not visible to this check, so a second request for
// the same identifier is accepted and collapses with the first one.
func (s *Service) RequestAdd(item *itemstore.Item) error {
	if item == nil {
		return &ValidationError{Field: "item", Reason: "is mandatory"}
	}
	if err := validateID(item.ID); err != nil {
		return err
	}

	if s.store.Exists(item.ID) {
		return fmt.Errorf("%w: id %d", ErrItemAlreadyExists, item.ID)
	}

	return s.addQueue.Enqueue(addKey(item.ID), AddPayload{Item: item})
}

func (s *Service) RequestSelect(id int64) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.updateQueue.Enqueue("select-"+strconv.FormatInt(id, 10), UpdatePayload{
		Action: ActionSelect,
		ID:     id,
	})
}

func (s *Service) RequestDeselect(id int64) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.updateQueue.Enqueue("deselect-"+strconv.FormatInt(id, 10), UpdatePayload{
		Action: ActionDeselect,
		ID:     id,
	})
}

// RequestReorder queues the full selection order. All reorders share one key:
// within a batch window only the last one survives.
func (s *Service) RequestReorder(ids []int64) error {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if err := validateID(id); err != nil {
			return &ValidationError{Field: "items", Reason: fmt.Sprintf("id %d must be a positive integer", id)}
		}
		if _, duplicated := seen[id]; duplicated {
			return &ValidationError{Field: "items", Reason: fmt.Sprintf("id %d is duplicated", id)}
		}
		seen[id] = struct{}{}
	}

	return s.updateQueue.Enqueue("reorder", UpdatePayload{
		Action: ActionReorder,
		IDs:    append([]int64{}, ids...),
	})
}

func addKey(id int64) string {
	return "add-" + strconv.FormatInt(id, 10)
}

// isolate keeps a failing entry from aborting its siblings.
func isolate(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f()
}

func (s *Service) applyAdds(ctx context.Context, batch []*batchqueue.Entry[AddPayload]) error {
	failures := &batchqueue.BatchError{}

	s.store.Apply(func(w *itemstore.Writer) {
		for _, entry := range batch {
			err := isolate(func() error {
				item := entry.Payload.Item
				if w.Add(item) {
					s.logger.Printf("added item %d", item.ID)
				}
				return nil
			})
			if err != nil {
				failures.Add(entry.Key, err)
			}
		}
	})

	return failures.ErrOrNil()
}

func (s *Service) applyUpdates(ctx context.Context, batch []*batchqueue.Entry[UpdatePayload]) error {
	failures := &batchqueue.BatchError{}

	s.store.Apply(func(w *itemstore.Writer) {
		for _, entry := range batch {
			err := isolate(func() error {
				return s.applyUpdate(w, entry.Payload)
			})
			if err != nil {
				failures.Add(entry.Key, err)
			}
		}
	})

	return failures.ErrOrNil()
}

func (s *Service) applyUpdate(w *itemstore.Writer, p UpdatePayload) error {
	switch p.Action {
	case ActionSelect:
		if w.Select(p.ID) {
			s.logger.Printf("selected item %d", p.ID)
		}
	case ActionDeselect:
		if w.Deselect(p.ID) {
			s.logger.Printf("deselected item %d", p.ID)
		}
	case ActionReorder:
		err := w.Reorder(p.IDs)
		if err != nil {
			return batchqueue.Permanent(err)
		}
		s.logger.Printf("reordered %d selected items", len(p.IDs))
	default:
		return batchqueue.Permanent(fmt.Errorf("unknown action '%s'", p.Action))
	}
	return nil
}

func (s *Service) Stats() *Stats {
	return &Stats{
		Items:       s.store.Stats(),
		AddQueue:    s.addQueue.Stats(),
		UpdateQueue: s.updateQueue.Stats(),
	}
}

func eraseDeadLetter[T any](d *batchqueue.DeadLetter[T]) *DeadLetter {
	return &DeadLetter{
		Queue:     d.Queue,
		BatchID:   d.BatchID,
		Key:       d.Key,
		Payload:   d.Payload,
		Attempts:  d.Attempts,
		Error:     d.Error,
		Timestamp: d.Timestamp,
	}
}

// DeadLetters returns the recent dead letters of the add queue followed by
// the ones of the update queue.
func (s *Service) DeadLetters() []*DeadLetter {
	result := []*DeadLetter{}
	for _, d := range s.addQueue.DeadLetters() {
		result = append(result, eraseDeadLetter(d))
	}
	for _, d := range s.updateQueue.DeadLetters() {
		result = append(result, eraseDeadLetter(d))
	}
	return result
}

// Flush applies everything pending in both queues without waiting for their
// timers.
func (s *Service) Flush(ctx context.Context) {
	s.addQueue.Flush(ctx)
	s.updateQueue.Flush(ctx)
}

// Close flushes both queues one last time and rejects further requests.
func (s *Service) Close(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.addQueue.Close(ctx)
	})
	g.Go(func() error {
		return s.updateQueue.Close(ctx)
	})
	return g.Wait()
}
