package sdk

import "time"

// Clock is the session's only source of time.
type Clock interface {
	NowMillis() uint64
	Sleep(ms uint64)
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) NowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

func (SystemClock) Sleep(ms uint64) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

func millis(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Millisecond)
}
