// Package clock abstracts time so debounce timers can be driven by tests.
package clock

import "time"

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer は AfterFunc で予約した処理のハンドル。
type Timer interface {
	// Stop は発火前に止められたら true。
	Stop() bool
}

type realClock struct{}

func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
