package itemstore

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/SierraSoftworks/connor"
	"github.com/google/btree"
)

var ErrInvalidReorder = errors.New("invalid reorder")

// Store holds the master collection and the ordered selected sub-collection.
// It knows nothing about batching, mutations arrive already coalesced.
type Store struct {
	mu       sync.RWMutex
	items    *btree.BTreeG[*Item]
	index    map[int64]*Item
	selected *roaring64.Bitmap
	order    []*Item
}

func New() *Store {
	return &Store{
		items: btree.NewG(32, func(a, b *Item) bool {
			return a.ID < b.ID
		}),
		index:    map[int64]*Item{},
		selected: roaring64.New(),
		order:    []*Item{},
	}
}

// Seed creates items 1..n, skipping identifiers that already exist.
func (s *Store) Seed(n int) {
	s.Apply(func(w *Writer) {
		for id := int64(1); id <= int64(n); id++ {
			w.Add(&Item{ID: id})
		}
	})
}

type Query struct {
	Page   int
	Limit  int
	Filter string
	Where  map[string]any
}

type Page struct {
	Items   []*Item `json:"items"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	HasMore bool    `json:"hasMore"`
}

type Stats struct {
	Total     int `json:"total"`
	Selected  int `json:"selected"`
	Available int `json:"available"`
}

// window returns the [start, end) range of the page, saturated at
// math.MaxInt for pages far beyond any store.
func (q Query) window() (start, end int) {
	if q.Page < 1 || q.Limit < 1 {
		return 0, 0
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt, math.MaxInt
	}
	start = (q.Page - 1) * q.Limit
	if start > math.MaxInt-q.Limit {
		return start, math.MaxInt
	}
	return start, start + q.Limit
}

func (q Query) match(item *Item) (bool, error) {
	if q.Filter != "" && !strings.Contains(strconv.FormatInt(item.ID, 10), q.Filter) {
		return false, nil
	}
	if len(q.Where) > 0 {
		match, err := connor.Match(q.Where, item.document())
		if err != nil {
			return false, fmt.Errorf("match: %w", err)
		}
		return match, nil
	}
	return true, nil
}

func (q Query) unfiltered() bool {
	return q.Filter == "" && len(q.Where) == 0
}

func newPage(q Query) *Page {
	return &Page{
		Items: []*Item{},
		Page:  q.Page,
	}
}

func (p *Page) finish(q Query) *Page {
	_, end := q.window()
	p.HasMore = end < p.Total
	return p
}

// ListAvailable returns the items not selected, ordered by ID.
func (s *Store) ListAvailable(q Query) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := newPage(q)
	start, end := q.window()

	if q.unfiltered() {
		page.Total = s.items.Len() - int(s.selected.GetCardinality())
		if start >= page.Total {
			return page.finish(q), nil
		}
		i := 0
		s.items.Ascend(func(item *Item) bool {
			if s.selected.Contains(uint64(item.ID)) {
				return true
			}
			if i >= start {
				page.Items = append(page.Items, item)
			}
			i++
			return i < end
		})
		return page.finish(q), nil
	}

	var err error
	s.items.Ascend(func(item *Item) bool {
		if s.selected.Contains(uint64(item.ID)) {
			return true
		}
		var match bool
		match, err = q.match(item)
		if err != nil {
			return false
		}
		if !match {
			return true
		}
		if page.Total >= start && page.Total < end {
			page.Items = append(page.Items, item)
		}
		page.Total++
		return true
	})
	if err != nil {
		return nil, err
	}

	return page.finish(q), nil
}

// ListSelected returns the selected items in their explicit order.
func (s *Store) ListSelected(q Query) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := newPage(q)
	start, end := q.window()

	for _, item := range s.order {
		match, err := q.match(item)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		if page.Total >= start && page.Total < end {
			page.Items = append(page.Items, item)
		}
		page.Total++
	}

	return page.finish(q), nil
}

func (s *Store) Exists(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.index[id]
	return exists
}

func (s *Store) IsSelected(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected.Contains(uint64(id))
}

// Get returns the item with the given identifier or nil.
func (s *Store) Get(id int64) *Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index[id]
}

// SelectedIDs returns the selected identifiers in order.
func (s *Store) SelectedIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, len(s.order))
	for i, item := range s.order {
		ids[i] = item.ID
	}
	return ids
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.index)
	selected := len(s.order)
	return Stats{
		Total:     total,
		Selected:  selected,
		Available: total - selected,
	}
}

// Apply runs f holding the write lock: readers observe either none or all of
// the changes made by f.
func (s *Store) Apply(f func(w *Writer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&Writer{s: s})
}

func (s *Store) ApplyAdd(item *Item) bool {
	var added bool
	s.Apply(func(w *Writer) {
		added = w.Add(item)
	})
	return added
}

func (s *Store) ApplySelect(id int64) bool {
	var selected bool
	s.Apply(func(w *Writer) {
		selected = w.Select(id)
	})
	return selected
}

func (s *Store) ApplyDeselect(id int64) bool {
	var deselected bool
	s.Apply(func(w *Writer) {
		deselected = w.Deselect(id)
	})
	return deselected
}

func (s *Store) ApplyReorder(ids []int64) error {
	var err error
	s.Apply(func(w *Writer) {
		err = w.Reorder(ids)
	})
	return err
}

// Writer mutates a Store whose write lock is already held. It is only valid
// inside Apply.
type Writer struct {
	s *Store
}

// Add inserts item unless its identifier already exists.
func (w *Writer) Add(item *Item) bool {
	s := w.s
	if _, exists := s.index[item.ID]; exists {
		return false
	}
	s.index[item.ID] = item
	s.items.ReplaceOrInsert(item)
	return true
}

// Select appends an existing, not yet selected item to the selection.
func (w *Writer) Select(id int64) bool {
	s := w.s
	item, exists := s.index[id]
	if !exists {
		return false
	}
	if !s.selected.CheckedAdd(uint64(id)) {
		return false
	}
	s.order = append(s.order, item)
	return true
}

func (w *Writer) Deselect(id int64) bool {
	s := w.s
	if !s.selected.CheckedRemove(uint64(id)) {
		return false
	}
	for i, item := range s.order {
		if item.ID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Reorder replaces the selection order. ids must be a permutation of the
// current selection, otherwise nothing changes.
func (w *Writer) Reorder(ids []int64) error {
	s := w.s
	if len(ids) != len(s.order) {
		return fmt.Errorf("%w: got %d ids, %d are selected", ErrInvalidReorder, len(ids), len(s.order))
	}

	seen := make(map[int64]struct{}, len(ids))
	order := make([]*Item, 0, len(ids))
	for _, id := range ids {
		if !s.selected.Contains(uint64(id)) {
			return fmt.Errorf("%w: item %d is not selected", ErrInvalidReorder, id)
		}
		if _, duplicated := seen[id]; duplicated {
			return fmt.Errorf("%w: item %d is duplicated", ErrInvalidReorder, id)
		}
		seen[id] = struct{}{}
		order = append(order, s.index[id])
	}

	s.order = order
	return nil
}
