package clock

import (
	"fmt"

	"tinygo.org/x/drivers"
)

// BM8563 register map (PCF8563 compatible).
const (
	BM8563Address = 0x51

	regControl1     = 0x00
	regSeconds      = 0x02
	regDays         = 0x05
	regTimerControl = 0x0E

	vlBit      = 0x80
	centuryBit = 0x80
)

// BM8563 drives the RTC over any bus with a Tx method: a periph.io bus on
// Linux or a machine.I2C under TinyGo.
type BM8563 struct {
	bus  drivers.I2C
	addr uint16
}

func NewBM8563(bus drivers.I2C) *BM8563 {
	return &BM8563{bus: bus, addr: BM8563Address}
}

// Begin puts the chip in normal mode, sets the timer control register and
// reports whether the oscillator is running.
func (d *BM8563) Begin() (bool, error) {
	if err := d.write(regControl1, 0x00); err != nil {
		return false, err
	}
	// written twice, matching the vendor init sequence
	if err := d.write(regControl1, 0x00); err != nil {
		return false, err
	}
	if err := d.write(regTimerControl, 0x03); err != nil {
		return false, err
	}
	return d.IsRunning()
}

// IsRunning is false when the VL (voltage low) flag is set, meaning the
// time is not trustworthy.
func (d *BM8563) IsRunning() (bool, error) {
	var sec [1]byte
	if err := d.read(regSeconds, sec[:]); err != nil {
		return false, fmt.Errorf("read rtc status: %w", err)
	}
	return sec[0]&vlBit == 0, nil
}

func (d *BM8563) ReadTime() (DateTime, error) {
	var t [3]byte
	if err := d.read(regSeconds, t[:]); err != nil {
		return DateTime{}, fmt.Errorf("read rtc time: %w", err)
	}
	var date [4]byte
	if err := d.read(regDays, date[:]); err != nil {
		return DateTime{}, fmt.Errorf("read rtc date: %w", err)
	}

	century := uint16(2000)
	if date[2]&centuryBit != 0 {
		century = 1900
	}
	return DateTime{
		Second: bcd2dec(t[0] & 0x7F),
		Minute: bcd2dec(t[1] & 0x7F),
		Hour:   bcd2dec(t[2] & 0x3F),
		Day:    bcd2dec(date[0] & 0x3F),
		Month:  bcd2dec(date[2] & 0x1F),
		Year:   uint16(bcd2dec(date[3])) + century,
	}, nil
}

// SetTime programs the clock. Writing the seconds register also clears VL.
func (d *BM8563) SetTime(dt DateTime) error {
	month := dec2bcd(dt.Month)
	if dt.Year < 2000 {
		month |= centuryBit
	}
	timeRegs := []byte{dec2bcd(dt.Second), dec2bcd(dt.Minute), dec2bcd(dt.Hour)}
	dateRegs := []byte{dec2bcd(dt.Day), weekday(dt.Year, dt.Month, dt.Day), month, dec2bcd(uint8(dt.Year % 100))}

	if err := d.write(regSeconds, timeRegs...); err != nil {
		return fmt.Errorf("write rtc time: %w", err)
	}
	if err := d.write(regDays, dateRegs...); err != nil {
		return fmt.Errorf("write rtc date: %w", err)
	}
	return nil
}

func (d *BM8563) read(reg byte, buf []byte) error {
	return d.bus.Tx(d.addr, []byte{reg}, buf)
}

func (d *BM8563) write(reg byte, data ...byte) error {
	w := append([]byte{reg}, data...)
	return d.bus.Tx(d.addr, w, nil)
}

// weekday returns 0 for Sunday through 6 for Saturday.
func weekday(year uint16, month, day uint8) uint8 {
	y := int(year)
	m := int(month)
	if m < 3 {
		y--
		m += 12
	}
	c := y / 100
	return uint8((y + y>>2 - c + c>>2 + (13*m+8)/5 + int(day)) % 7)
}

func bcd2dec(b byte) uint8 {
	return (b>>4)*10 + b&0x0F
}

func dec2bcd(v uint8) byte {
	return (v/10)<<4 | v%10
}
