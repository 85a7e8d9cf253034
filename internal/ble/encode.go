package ble

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/tao-j/helvetic/internal/measurement"
)

const (
	WeightScaleSize     = 10
	BodyCompositionSize = 19
	ServiceDataSize     = 13
	// MaxGenericSize is the longest generic line that is still sent.
	MaxGenericSize = 127

	unitKilogram = 0x02

	wssFlags = 0x02   // kg, timestamp present
	bcsFlags = 0x0021 // timestamp, body fat present

	serviceDataFinished  = 1 << 5
	serviceDataImpedance = 1 << 1
)

// Payloads are the four encodings of one record. They are always built
// together from the same record.
type Payloads struct {
	WeightScale     [WeightScaleSize]byte
	BodyComposition [BodyCompositionSize]byte
	// Generic is nil when the line did not fit.
	Generic     []byte
	ServiceData [ServiceDataSize]byte
}

func Encode(r measurement.Record) Payloads {
	generic, _ := EncodeGeneric(r)
	return Payloads{
		WeightScale:     EncodeWeightScale(r),
		BodyComposition: EncodeBodyComposition(r),
		Generic:         generic,
		ServiceData:     EncodeServiceData(r),
	}
}

// CalendarBytes renders an epoch timestamp as year (u16 LE), month, day,
// hour, minute, second in UTC.
func CalendarBytes(ts uint32) [7]byte {
	t := time.Unix(int64(ts), 0).UTC()
	year := uint16(t.Year())
	return [7]byte{
		byte(year),
		byte(year >> 8),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
	}
}

// scaleU16 multiplies, truncates toward zero and saturates to the u16 range.
func scaleU16(v, factor float64) uint16 {
	x := v * factor
	switch {
	case math.IsNaN(x) || x <= 0:
		return 0
	case x >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(x)
}

// EncodeWeightScale builds the 0x2A9D weight measurement: flags, weight in
// 0.005 kg steps, timestamp.
func EncodeWeightScale(r measurement.Record) [WeightScaleSize]byte {
	var b [WeightScaleSize]byte
	b[0] = wssFlags
	binary.LittleEndian.PutUint16(b[1:3], scaleU16(r.Weight, 200))
	ts := CalendarBytes(r.Timestamp)
	copy(b[3:10], ts[:])
	return b
}

// EncodeBodyComposition builds the 0x2A9C measurement: flags, body fat in
// 0.1 % steps, timestamp, eight reserved bytes.
func EncodeBodyComposition(r measurement.Record) [BodyCompositionSize]byte {
	var b [BodyCompositionSize]byte
	binary.LittleEndian.PutUint16(b[0:2], bcsFlags)
	binary.LittleEndian.PutUint16(b[2:4], scaleU16(r.BodyFat, 10))
	ts := CalendarBytes(r.Timestamp)
	copy(b[4:11], ts[:])
	return b
}

// EncodeGeneric builds the ASCII line for HM-10 style modules. ok is false
// when the line would exceed MaxGenericSize; nothing must be sent then.
func EncodeGeneric(r measurement.Record) (line []byte, ok bool) {
	t := r.Time()
	year, month, day := t.Year(), int(t.Month()), t.Day()
	hour, minute := t.Hour(), t.Minute()

	// water and muscle contribute 0
	checksum := int(r.UserID) ^ year ^ month ^ day ^ hour ^ minute ^ int(r.Weight) ^ int(r.BodyFat)

	s := fmt.Sprintf("$D$%d,%d,%d,%d,%d,%d,%.1f,%.1f,0.0,0.0,%d\n",
		r.UserID, year, month, day, hour, minute, r.Weight, r.BodyFat, checksum)
	if len(s) > MaxGenericSize {
		return nil, false
	}
	return []byte(s), true
}

// EncodeServiceData builds the 13-byte 0x181B advertisement snapshot.
func EncodeServiceData(r measurement.Record) [ServiceDataSize]byte {
	var b [ServiceDataSize]byte
	b[0] = unitKilogram
	b[1] = serviceDataFinished
	if r.Impedance != 0 {
		b[1] |= serviceDataImpedance
	}
	ts := CalendarBytes(r.Timestamp)
	copy(b[2:9], ts[:])
	binary.LittleEndian.PutUint16(b[9:11], uint16(r.Impedance))
	binary.LittleEndian.PutUint16(b[11:13], scaleU16(r.Weight, 200))
	return b
}

// ServiceData is a decoded advertisement snapshot.
type ServiceData struct {
	Unit         byte
	Flags        byte
	Time         time.Time
	Impedance    uint16
	Weight       float64
	HasImpedance bool
}

// DecodeServiceData reverses EncodeServiceData, for scanners.
func DecodeServiceData(b []byte) (ServiceData, error) {
	if len(b) < ServiceDataSize {
		return ServiceData{}, fmt.Errorf("service data too short: %d", len(b))
	}
	if b[0] != unitKilogram {
		return ServiceData{}, fmt.Errorf("unsupported unit: %02X", b[0])
	}
	year := int(binary.LittleEndian.Uint16(b[2:4]))
	return ServiceData{
		Unit:         b[0],
		Flags:        b[1],
		Time:         time.Date(year, time.Month(b[4]), int(b[5]), int(b[6]), int(b[7]), int(b[8]), 0, time.UTC),
		Impedance:    binary.LittleEndian.Uint16(b[9:11]),
		Weight:       float64(binary.LittleEndian.Uint16(b[11:13])) / 200.0,
		HasImpedance: b[1]&serviceDataImpedance != 0,
	}, nil
}
