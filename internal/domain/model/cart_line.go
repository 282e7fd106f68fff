package model

import "github.com/shopspring/decimal"

// カートの1行。ID はサーバーが採番する。
// (VariantID, Size) の組はカート内で一意。
type CartLine struct {
	ID        string          `json:"id"`
	VariantID string          `json:"variant_id"`
	Quantity  int64           `json:"quantity"`
	Size      *string         `json:"size"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Sizes     []SizeOption    `json:"sizes"`
	Display   DisplayMetadata `json:"display"`
}

// サーバーが提示する選択可能サイズ
type SizeOption struct {
	Size  string `json:"size"`
	Stock int64  `json:"stock"`
}

// 表示用スナップショット（読み取り専用）
type DisplayMetadata struct {
	Brand    string `json:"brand"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
	Color    string `json:"color"`
}

// LineKey は重複判定のキー。
type LineKey struct {
	VariantID string
	Size      string
	HasSize   bool
}

func (l CartLine) Key() LineKey {
	if l.Size == nil {
		return LineKey{VariantID: l.VariantID}
	}
	return LineKey{VariantID: l.VariantID, Size: *l.Size, HasSize: true}
}

// サイズ未選択なら空文字
func (l CartLine) SizeValue() string {
	if l.Size == nil {
		return ""
	}
	return *l.Size
}

// Clone はポインタとスライスも含めてコピーする。
func (l CartLine) Clone() CartLine {
	out := l
	if l.Size != nil {
		s := *l.Size
		out.Size = &s
	}
	if l.Sizes != nil {
		out.Sizes = make([]SizeOption, len(l.Sizes))
		copy(out.Sizes, l.Sizes)
	}
	return out
}

// 在庫のあるサイズだけ返す
func (l CartLine) AvailableSizes() []SizeOption {
	out := make([]SizeOption, 0, len(l.Sizes))
	for _, s := range l.Sizes {
		if s.Stock > 0 {
			out = append(out, s)
		}
	}
	return out
}

// OffersSize はサイズ一覧が無い行では常に true。
func (l CartLine) OffersSize(size string) bool {
	if len(l.Sizes) == 0 {
		return true
	}
	for _, s := range l.Sizes {
		if s.Size == size && s.Stock > 0 {
			return true
		}
	}
	return false
}

// 行の小計（単価×数量）
func (l CartLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

func SizePtr(s string) *string {
	return &s
}
