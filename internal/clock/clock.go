// Package clock supplies the current time for the response packet, from a
// battery-backed RTC when it is running and from the system clock otherwise.
package clock

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var ErrNotRunning = errors.New("clock: rtc not running")

// DateTime is the calendar tuple an RTC reports. Values are UTC.
type DateTime struct {
	Year   uint16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
}

func FromTime(t time.Time) DateTime {
	t = t.UTC()
	return DateTime{
		Year:   uint16(t.Year()),
		Month:  uint8(t.Month()),
		Day:    uint8(t.Day()),
		Hour:   uint8(t.Hour()),
		Minute: uint8(t.Minute()),
		Second: uint8(t.Second()),
	}
}

func (d DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

// Unix converts the tuple to epoch seconds using the days-from-civil count
// (March-based years), truncated to 32 bits.
func (d DateTime) Unix() uint32 {
	y := int64(d.Year)
	m := int64(d.Month)
	if m <= 2 {
		y--
		m += 12
	}
	days := 365*y + y/4 - y/100 + y/400 + (153*m-457)/5 + int64(d.Day) - 1
	secs := days*86400 + int64(d.Hour)*3600 + int64(d.Minute)*60 + int64(d.Second)
	return uint32(secs - 719468*86400)
}

// RTC is the data contract of a real-time clock chip.
type RTC interface {
	IsRunning() (bool, error)
	ReadTime() (DateTime, error)
}

// Clock reads the RTC and falls back to the system clock when the RTC is
// absent, stopped or unreadable.
type Clock struct {
	rtc    RTC
	system func() time.Time
	logger *slog.Logger
}

// New returns a Clock. rtc may be nil.
func New(rtc RTC, logger *slog.Logger) *Clock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clock{rtc: rtc, system: time.Now, logger: logger}
}

// Now returns the current time as epoch seconds.
func (c *Clock) Now() uint32 {
	dt, err := c.read()
	if err != nil {
		c.logger.Warn("rtc unavailable, using system clock", "error", err)
		return uint32(c.system().Unix())
	}
	return dt.Unix()
}

func (c *Clock) read() (DateTime, error) {
	if c.rtc == nil {
		return DateTime{}, errors.New("clock: no rtc configured")
	}
	running, err := c.rtc.IsRunning()
	if err != nil {
		return DateTime{}, err
	}
	if !running {
		return DateTime{}, ErrNotRunning
	}
	return c.rtc.ReadTime()
}
