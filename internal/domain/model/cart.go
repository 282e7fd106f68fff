package model

import "time"

type CartStatus string

const (
	CartStatusActive     CartStatus = "ACTIVE"
	CartStatusCheckedOut CartStatus = "CHECKED_OUT"
)

// Cart はサーバー側で明細を束ねる入れ物。
// ユーザーごとに ACTIVE は高々1つで、注文が確定すると CHECKED_OUT になり次の追加で新しく作られる。
type Cart struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64      `gorm:"not null;index:idx_carts_user_status" json:"user_id"`
	Status       CartStatus `gorm:"type:varchar(20);not null;index:idx_carts_user_status" json:"status"`
	CheckedOutAt *time.Time `json:"checked_out_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// Open は明細を追加・変更できる状態か。
func (c Cart) Open() bool {
	return c.Status == CartStatusActive && c.CheckedOutAt == nil
}
