package editor

import "time"

// Timer 是可取消的定时任务句柄。
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks; tests substitute a manual implementation.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock 基于 time.AfterFunc。
var RealClock Clock = realClock{}
