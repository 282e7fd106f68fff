package gateway

import (
	"context"
	"net/http"
	"net/url"

	"cartsync/internal/domain/model"
)

// 操作名（ログ・メトリクス用）
const (
	OpFetchLines  = "fetch_lines"
	OpAddLine     = "add_line"
	OpSetQuantity = "set_quantity"
	OpRemoveLine  = "remove_line"
	OpClear       = "clear"
)

// CartGateway はカートサービスへの要求層。
type CartGateway struct {
	c *restClient
}

func NewCartGateway(opts Options) *CartGateway {
	return &CartGateway{c: newRESTClient(opts)}
}

type AddLineInput struct {
	VariantID string  `json:"variant_id"`
	Size      *string `json:"size,omitempty"`
	Quantity  int64   `json:"quantity"`
}

type setQuantityRequest struct {
	ID       string `json:"id"`
	Quantity int64  `json:"quantity"`
}

// FetchLines はサーバー側のカート明細を取得する。
func (g *CartGateway) FetchLines(ctx context.Context, token string) ([]model.CartLine, error) {
	data, err := g.c.do(ctx, OpFetchLines, http.MethodGet, "/cart/items", token, nil)
	if err != nil {
		return nil, err
	}

	var env linesEnvelope
	if err := decode(OpFetchLines, data, &env); err != nil {
		return nil, err
	}
	if err := checkSuccess(OpFetchLines, env.Success, env.Message); err != nil {
		return nil, err
	}
	if err := checkStruct(env); err != nil {
		return nil, &SchemaError{Op: OpFetchLines, Err: err}
	}

	lines := make([]model.CartLine, 0, len(env.Data[0]))
	for _, w := range env.Data[0] {
		line, err := w.toModel()
		if err != nil {
			return nil, &SchemaError{Op: OpFetchLines, Err: err}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// AddLine は商品を追加し、サーバーが返した明細を返す。
func (g *CartGateway) AddLine(ctx context.Context, token string, in AddLineInput) (model.CartLine, error) {
	data, err := g.c.do(ctx, OpAddLine, http.MethodPost, "/cart/items", token, in)
	if err != nil {
		return model.CartLine{}, err
	}

	var env lineEnvelope
	if err := decode(OpAddLine, data, &env); err != nil {
		return model.CartLine{}, err
	}
	if err := checkSuccess(OpAddLine, env.Success, env.Message); err != nil {
		return model.CartLine{}, err
	}
	if err := checkStruct(env); err != nil {
		return model.CartLine{}, &SchemaError{Op: OpAddLine, Err: err}
	}

	line, err := env.Data[0].toModel()
	if err != nil {
		return model.CartLine{}, &SchemaError{Op: OpAddLine, Err: err}
	}
	return line, nil
}

func (g *CartGateway) SetQuantity(ctx context.Context, token string, lineID string, quantity int64) error {
	data, err := g.c.do(ctx, OpSetQuantity, http.MethodPatch, "/cart/items", token, setQuantityRequest{ID: lineID, Quantity: quantity})
	if err != nil {
		return err
	}
	return g.status(OpSetQuantity, data)
}

func (g *CartGateway) RemoveLine(ctx context.Context, token string, lineID string) error {
	data, err := g.c.do(ctx, OpRemoveLine, http.MethodDelete, "/cart/items/"+url.PathEscape(lineID), token, nil)
	if err != nil {
		return err
	}
	return g.status(OpRemoveLine, data)
}

func (g *CartGateway) Clear(ctx context.Context, token string) error {
	data, err := g.c.do(ctx, OpClear, http.MethodDelete, "/cart", token, nil)
	if err != nil {
		return err
	}
	return g.status(OpClear, data)
}

// 空ボディは成功扱い
func (g *CartGateway) status(op string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var env statusEnvelope
	if err := decode(op, data, &env); err != nil {
		return err
	}
	return checkSuccess(op, env.Success, env.Message)
}
