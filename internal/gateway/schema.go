package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"cartsync/internal/domain/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// GET /cart/items の応答。data[0] が明細の配列。
type linesEnvelope struct {
	Success *bool        `json:"success"`
	Message string       `json:"message"`
	Data    [][]wireLine `json:"data" validate:"required,min=1,dive,dive"`
}

// POST /cart/items の応答。data[0] が追加された明細。
type lineEnvelope struct {
	Success *bool      `json:"success"`
	Message string     `json:"message"`
	Data    []wireLine `json:"data" validate:"required,min=1,dive"`
}

// 更新・削除系の応答
type statusEnvelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

type wireLine struct {
	ID        string           `json:"id" validate:"required"`
	VariantID string           `json:"variant_id" validate:"required"`
	Quantity  int64            `json:"quantity" validate:"min=1"`
	Size      *string          `json:"size" validate:"omitempty,min=1"`
	UnitPrice *decimal.Decimal `json:"unit_price" validate:"required"`
	Sizes     []wireSize       `json:"sizes" validate:"dive"`
	Display   wireDisplay      `json:"display"`
}

type wireSize struct {
	Size  string `json:"size" validate:"required"`
	Stock int64  `json:"stock" validate:"min=0"`
}

type wireDisplay struct {
	Brand    string `json:"brand"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
	Color    string `json:"color"`
}

type couponResponse struct {
	Value   *decimal.Decimal `json:"value" validate:"required"`
	Message string           `json:"message"`
}

func checkStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid fields: %s", strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}

func (w wireLine) toModel() (model.CartLine, error) {
	if w.UnitPrice.IsNegative() {
		return model.CartLine{}, fmt.Errorf("line %s: negative unit_price", w.ID)
	}

	line := model.CartLine{
		ID:        w.ID,
		VariantID: w.VariantID,
		Quantity:  w.Quantity,
		UnitPrice: *w.UnitPrice,
		Display: model.DisplayMetadata{
			Brand:    w.Display.Brand,
			Name:     w.Display.Name,
			ImageURL: w.Display.ImageURL,
			Color:    w.Display.Color,
		},
	}
	if w.Size != nil {
		line.Size = model.SizePtr(*w.Size)
	}
	if len(w.Sizes) > 0 {
		line.Sizes = make([]model.SizeOption, 0, len(w.Sizes))
		for _, s := range w.Sizes {
			line.Sizes = append(line.Sizes, model.SizeOption{Size: s.Size, Stock: s.Stock})
		}
	}
	return line, nil
}
