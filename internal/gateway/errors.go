package gateway

import (
	"errors"
	"fmt"
)

// errors.Is で判定するための番兵
var (
	ErrNetwork   = errors.New("network error")
	ErrRejected  = errors.New("rejected by server")
	ErrMalformed = errors.New("malformed response")
)

// NetworkError は通信失敗・タイムアウト・5xx。再試行してよい。
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// RejectedError はサーバーが失敗ペイロードで明示的に断ったもの。
type RejectedError struct {
	Op      string
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: rejected (%d): %s", e.Op, e.Status, e.Message)
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// SchemaError は応答の形が想定と違う。状態に流し込まずに止める。
type SchemaError struct {
	Op  string
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Is(target error) bool { return target == ErrMalformed }
