package cartstore

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartsync/internal/domain/model"
)

func line(id, variant string, size *string, qty int64, price int64) model.CartLine {
	return model.CartLine{
		ID:        id,
		VariantID: variant,
		Size:      size,
		Quantity:  qty,
		UnitPrice: decimal.NewFromInt(price),
		Sizes:     []model.SizeOption{{Size: "41", Stock: 2}, {Size: "42", Stock: 1}, {Size: "43", Stock: 0}},
	}
}

func TestUpsert_SameVariantAndSizeCollapses(t *testing.T) {
	s := New(nil)

	s.Upsert(line("a", "v1", model.SizePtr("42"), 1, 100))
	s.Upsert(line("b", "v1", model.SizePtr("42"), 2, 100))

	st := s.Read()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, "a", st.Lines[0].ID)
	assert.Equal(t, int64(3), st.Lines[0].Quantity)
}

func TestUpsert_SameIDSums(t *testing.T) {
	s := New(nil)
	s.Upsert(line("a", "v1", nil, 1, 100))
	s.Upsert(line("a", "v1", nil, 1, 120))

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Quantity)
	assert.True(t, decimal.NewFromInt(120).Equal(got.UnitPrice))
}

func TestUpsert_DifferentSizeIsSeparateLine(t *testing.T) {
	s := New(nil)
	s.Upsert(line("a", "v1", model.SizePtr("41"), 1, 100))
	s.Upsert(line("b", "v1", model.SizePtr("42"), 1, 100))
	s.Upsert(line("c", "v1", nil, 1, 100))

	assert.Equal(t, 3, s.Read().Len())
}

func TestUpsert_IgnoresInvalidLines(t *testing.T) {
	s := New(nil)
	s.Upsert(line("", "v1", nil, 1, 100))
	s.Upsert(line("a", "v1", nil, 0, 100))

	assert.True(t, s.Read().IsEmpty())
	assert.Equal(t, uint64(0), s.Read().Version)
}

func TestReplaceAll_CollapsesDuplicates(t *testing.T) {
	s := New(nil)
	s.Upsert(line("old", "v9", nil, 5, 1))

	s.ReplaceAll([]model.CartLine{
		line("a", "v1", model.SizePtr("42"), 1, 100),
		line("b", "v1", model.SizePtr("42"), 2, 100),
		line("c", "v2", nil, 1, 50),
	})

	st := s.Read()
	require.Len(t, st.Lines, 2)
	_, ok := st.Find("old")
	assert.False(t, ok)
	a, _ := st.Find("a")
	assert.Equal(t, int64(3), a.Quantity)
}

func TestReplaceAll_UnchangedKeepsVersion(t *testing.T) {
	s := New(nil)
	lines := []model.CartLine{line("a", "v1", nil, 2, 100)}

	s.ReplaceAll(lines)
	first := s.Read()
	s.ReplaceAll(lines)
	second := s.Read()

	assert.Equal(t, first, second)
}

func TestAdjustQuantity(t *testing.T) {
	s := New(nil)
	s.Upsert(line("a", "v1", nil, 2, 100))

	s.AdjustQuantity("a", 3)
	got, _ := s.Get("a")
	assert.Equal(t, int64(5), got.Quantity)

	s.AdjustQuantity("missing", 1)
	assert.Equal(t, 1, s.Read().Len())

	s.AdjustQuantity("a", -5)
	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestSetQuantity_NonPositiveRemoves(t *testing.T) {
	s := New(nil)
	s.Upsert(line("a", "v1", nil, 2, 100))
	s.Upsert(line("b", "v2", nil, 2, 100))

	s.SetQuantity("a", 7)
	got, _ := s.Get("a")
	assert.Equal(t, int64(7), got.Quantity)

	s.SetQuantity("a", 0)
	s.SetQuantity("b", -1)
	s.SetQuantity("missing", 3)
	assert.True(t, s.Read().IsEmpty())
}

func TestSetSize(t *testing.T) {
	s := New(nil)
	s.Upsert(line("a", "v1", nil, 1, 100))
	s.Upsert(line("b", "v1", model.SizePtr("41"), 1, 100))

	require.NoError(t, s.SetSize("a", model.SizePtr("42")))
	got, _ := s.Get("a")
	assert.Equal(t, "42", got.SizeValue())

	assert.ErrorIs(t, s.SetSize("a", model.SizePtr("43")), ErrSizeUnavailable)
	assert.ErrorIs(t, s.SetSize("a", model.SizePtr("99")), ErrSizeUnavailable)
	assert.ErrorIs(t, s.SetSize("a", model.SizePtr("41")), ErrSizeTaken)
	assert.NoError(t, s.SetSize("missing", model.SizePtr("41")))

	require.NoError(t, s.SetSize("a", nil))
	got, _ = s.Get("a")
	assert.Nil(t, got.Size)
}

func TestRead_IsImmutableSnapshot(t *testing.T) {
	s := New(nil)
	s.Upsert(line("a", "v1", model.SizePtr("41"), 1, 100))

	snap := s.Read()
	snap.Lines[0].Quantity = 99
	*snap.Lines[0].Size = "XX"
	snap.Lines[0].Sizes[0].Stock = 0

	got, _ := s.Get("a")
	assert.Equal(t, int64(1), got.Quantity)
	assert.Equal(t, "41", got.SizeValue())
	assert.Equal(t, int64(2), got.Sizes[0].Stock)
}

func TestSubscribe_NotifiesOnChangeOnly(t *testing.T) {
	s := New(nil)
	var versions []uint64
	unsubscribe := s.Subscribe(func(st model.CartState) { versions = append(versions, st.Version) })

	s.Upsert(line("a", "v1", nil, 1, 100))
	s.SetQuantity("a", 1)
	s.Remove("missing")
	s.Clear()
	s.Clear()

	assert.Equal(t, []uint64{1, 2}, versions)

	unsubscribe()
	s.Upsert(line("b", "v1", nil, 1, 100))
	assert.Len(t, versions, 2)
}

func TestConcurrentMutations(t *testing.T) {
	s := New(nil)
	s.Upsert(line("a", "v1", nil, 1, 100))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AdjustQuantity("a", 1)
			_ = s.Read()
		}()
	}
	wg.Wait()

	got, _ := s.Get("a")
	assert.Equal(t, int64(51), got.Quantity)
}

func TestAdopt_KeepsServerLinesApart(t *testing.T) {
	s := New(nil)
	s.Upsert(line("x", "v1", nil, 2, 100))
	require.NoError(t, s.SetSize("x", model.SizePtr("42")))

	// x の 42 はローカルだけの選択なので外れる
	assert.True(t, s.Adopt(line("y", "v1", model.SizePtr("42"), 1, 100)))

	st := s.Read()
	require.Len(t, st.Lines, 2)
	x, _ := s.Get("x")
	assert.Nil(t, x.Size)
	assert.Equal(t, int64(2), x.Quantity)
	y, _ := s.Get("y")
	assert.Equal(t, "42", y.SizeValue())
	assert.Equal(t, int64(1), y.Quantity)
}

func TestAdopt_SkipsWhenNoFreeSlot(t *testing.T) {
	s := New(nil)
	s.Upsert(line("x", "v1", model.SizePtr("42"), 1, 100))
	s.Upsert(line("z", "v1", nil, 1, 100))
	before := s.Read()

	assert.False(t, s.Adopt(line("y", "v1", model.SizePtr("42"), 1, 100)))
	assert.False(t, s.Adopt(line("x", "v1", model.SizePtr("41"), 1, 100)))
	assert.Equal(t, before, s.Read())
}
