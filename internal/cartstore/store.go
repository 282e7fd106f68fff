// Package cartstore is the in-memory local cart: the single source of truth the UI reads.
// Every mutation is synchronous and serialised by the store's own lock.
package cartstore

import (
	"errors"
	"sync"

	"cartsync/internal/domain/model"
	"cartsync/internal/metrics"
)

var (
	// 在庫の無いサイズ、または提示されていないサイズ
	ErrSizeUnavailable = errors.New("size not available for this line")

	// 同じバリアントの別の行がそのサイズを持っている
	ErrSizeTaken = errors.New("size already in cart for this variant")
)

// Listener は変更後のスナップショットを受け取る。
// 並行変更時は Version の大きい方が新しい。
type Listener func(model.CartState)

type Store struct {
	mu        sync.RWMutex
	lines     []model.CartLine
	version   uint64
	listeners map[int]Listener
	nextID    int
	metrics   *metrics.Sync
}

func New(m *metrics.Sync) *Store {
	return &Store{
		listeners: make(map[int]Listener),
		metrics:   m,
	}
}

// Subscribe は変更通知を登録し、解除関数を返す。
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Read は不変のスナップショットを返す。
func (s *Store) Read() model.CartState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) Get(lineID string) (model.CartLine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(lineID); i >= 0 {
		return s.lines[i].Clone(), true
	}
	return model.CartLine{}, false
}

// ReplaceAll は状態を丸ごと置き換える。(variant,size) の重複は数量を合算して1行にする。
func (s *Store) ReplaceAll(lines []model.CartLine) {
	s.mutate(func() bool {
		prev := s.lines
		s.lines = make([]model.CartLine, 0, len(lines))
		for _, l := range lines {
			s.upsertLocked(l)
		}
		return !linesEqual(prev, s.lines)
	})
}

// Upsert は ID か (variant,size) が一致する行に数量を足す。無ければ追加。
func (s *Store) Upsert(line model.CartLine) {
	s.mutate(func() bool {
		return s.upsertLocked(line)
	})
}

// Adopt はサーバーが別の行として返した明細を、既存の行に合算せずに追加する。
// 同じ (variant,size) の行があれば、そのサイズはローカルで選んだだけなので外してから追加する。
// 外せない（未選択の行が既にある）ときは何もせず false を返す。次の照合で反映される。
func (s *Store) Adopt(line model.CartLine) bool {
	if line.ID == "" || line.Quantity <= 0 {
		return false
	}
	adopted := false
	s.mutate(func() bool {
		if s.indexLocked(line.ID) >= 0 {
			return false
		}
		if j := s.keyIndexLocked(line.Key()); j >= 0 {
			if line.Size == nil {
				return false
			}
			if k := s.keyIndexLocked(model.LineKey{VariantID: line.VariantID}); k >= 0 {
				return false
			}
			s.lines[j].Size = nil
		}
		s.lines = append(s.lines, line.Clone())
		adopted = true
		return true
	})
	return adopted
}

// AdjustQuantity は数量を delta だけ変える。0 以下になれば削除。未知の ID は何もしない。
func (s *Store) AdjustQuantity(lineID string, delta int64) {
	s.mutate(func() bool {
		i := s.indexLocked(lineID)
		if i < 0 || delta == 0 {
			return false
		}
		return s.setQuantityLocked(i, s.lines[i].Quantity+delta)
	})
}

// SetQuantity は 0 以下なら Remove と同じ。未知の ID は何もしない。
func (s *Store) SetQuantity(lineID string, quantity int64) {
	s.mutate(func() bool {
		i := s.indexLocked(lineID)
		if i < 0 {
			return false
		}
		return s.setQuantityLocked(i, quantity)
	})
}

// SetSize はサイズを選び直す。nil で未選択に戻す。未知の ID は何もしない。
func (s *Store) SetSize(lineID string, size *string) error {
	var err error
	s.mutate(func() bool {
		i := s.indexLocked(lineID)
		if i < 0 {
			return false
		}
		line := s.lines[i]
		if size == nil {
			if line.Size == nil {
				return false
			}
			if j := s.keyIndexLocked(model.LineKey{VariantID: line.VariantID}); j >= 0 && j != i {
				err = ErrSizeTaken
				return false
			}
			s.lines[i].Size = nil
			return true
		}

		if line.Size != nil && *line.Size == *size {
			return false
		}
		if !line.OffersSize(*size) {
			err = ErrSizeUnavailable
			return false
		}
		key := model.LineKey{VariantID: line.VariantID, Size: *size, HasSize: true}
		if j := s.keyIndexLocked(key); j >= 0 && j != i {
			err = ErrSizeTaken
			return false
		}
		s.lines[i].Size = model.SizePtr(*size)
		return true
	})
	return err
}

func (s *Store) Remove(lineID string) {
	s.mutate(func() bool {
		i := s.indexLocked(lineID)
		if i < 0 {
			return false
		}
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
		return true
	})
}

func (s *Store) Clear() {
	s.mutate(func() bool {
		if len(s.lines) == 0 {
			return false
		}
		s.lines = nil
		return true
	})
}

// mutate はロック内で fn を実行し、変更があればロック外で通知する。
func (s *Store) mutate(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	if !changed {
		s.mu.Unlock()
		return
	}
	s.version++
	snap := s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	s.metrics.SetLines(len(snap.Lines))
	for _, l := range listeners {
		l(snap)
	}
}

func (s *Store) upsertLocked(line model.CartLine) bool {
	if line.ID == "" || line.Quantity <= 0 {
		return false
	}
	i := s.indexLocked(line.ID)
	if i < 0 {
		i = s.keyIndexLocked(line.Key())
	}
	if i < 0 {
		s.lines = append(s.lines, line.Clone())
		return true
	}

	cur := s.lines[i]
	merged := line.Clone()
	merged.ID = cur.ID
	merged.Quantity = cur.Quantity + line.Quantity
	if merged.Size == nil {
		merged.Size = cur.Size
	}
	s.lines[i] = merged
	return true
}

func (s *Store) setQuantityLocked(i int, quantity int64) bool {
	if quantity <= 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
		return true
	}
	if s.lines[i].Quantity == quantity {
		return false
	}
	s.lines[i].Quantity = quantity
	return true
}

func (s *Store) indexLocked(lineID string) int {
	for i, l := range s.lines {
		if l.ID == lineID {
			return i
		}
	}
	return -1
}

func (s *Store) keyIndexLocked(key model.LineKey) int {
	for i, l := range s.lines {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() model.CartState {
	lines := make([]model.CartLine, len(s.lines))
	for i, l := range s.lines {
		lines[i] = l.Clone()
	}
	return model.CartState{Lines: lines, Version: s.version}
}

func linesEqual(a, b []model.CartLine) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !lineEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func lineEqual(a, b model.CartLine) bool {
	if a.ID != b.ID || a.VariantID != b.VariantID || a.Quantity != b.Quantity {
		return false
	}
	if a.Key() != b.Key() || !a.UnitPrice.Equal(b.UnitPrice) || a.Display != b.Display {
		return false
	}
	if len(a.Sizes) != len(b.Sizes) {
		return false
	}
	for i := range a.Sizes {
		if a.Sizes[i] != b.Sizes[i] {
			return false
		}
	}
	return true
}
