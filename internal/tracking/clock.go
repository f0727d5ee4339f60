package tracking

import "time"

// Clock 墙上时钟，测试中可替换为固定时间
type Clock interface {
	Now() time.Time
}

// SystemClock 系统时钟
type SystemClock struct{}

// Now 返回当前 UTC 时间
func (SystemClock) Now() time.Time { return time.Now().UTC() }
