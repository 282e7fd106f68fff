package model

// CartState はローカルカートの読み取り専用スナップショット。
// Lines の順序は表示用で、正しさには関係しない。
type CartState struct {
	Lines   []CartLine `json:"lines"`
	Version uint64     `json:"version"`
}

func (s CartState) Find(lineID string) (CartLine, bool) {
	for _, l := range s.Lines {
		if l.ID == lineID {
			return l, true
		}
	}
	return CartLine{}, false
}

func (s CartState) Len() int {
	return len(s.Lines)
}

func (s CartState) IsEmpty() bool {
	return len(s.Lines) == 0
}

// 全行の数量合計
func (s CartState) TotalQuantity() int64 {
	var n int64
	for _, l := range s.Lines {
		n += l.Quantity
	}
	return n
}
