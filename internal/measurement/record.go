// Package measurement holds the canonical body-composition record and the
// stores that keep the single most recent one across restarts.
package measurement

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// RecordSize is the length of the persisted binary image.
//
// Layout (little-endian):
//
//	0  weight      float64 (kg)
//	8  bodyFat     float64 (%)
//	16 water       float64 (%)
//	24 muscle      float64 (%)
//	32 impedance   uint32  (ohm)
//	36 timestamp   uint32  (unix seconds)
//	40 userID      uint8
//	41 stabilized  uint8   (0 or 1)
//	42 reserved    6 bytes
const RecordSize = 48

var ErrSizeMismatch = errors.New("measurement: record size mismatch")

// Record is the canonical measurement. It is replaced wholesale, never
// merged field by field.
type Record struct {
	Weight       float64
	Impedance    uint32
	BodyFat      float64
	Water        float64
	Muscle       float64
	Timestamp    uint32
	UserID       uint8
	IsStabilized bool
}

// Time returns the measurement timestamp as UTC.
func (r Record) Time() time.Time {
	return time.Unix(int64(r.Timestamp), 0).UTC()
}

// UserIDFromWire narrows a 32-bit wire user id to the canonical 8-bit field.
// The upper 24 bits are discarded. Uploads do not use it: their user id is
// left at 0 until a scale profile maps wire ids to users.
func UserIDFromWire(wire uint32) uint8 {
	return uint8(wire)
}

func (r Record) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(r.Weight))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(r.BodyFat))
	binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(r.Water))
	binary.LittleEndian.PutUint64(buf[24:32], math.Float64bits(r.Muscle))
	binary.LittleEndian.PutUint32(buf[32:36], r.Impedance)
	binary.LittleEndian.PutUint32(buf[36:40], r.Timestamp)
	buf[40] = r.UserID
	if r.IsStabilized {
		buf[41] = 1
	}
	return buf, nil
}

func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(data), RecordSize)
	}
	*r = Record{
		Weight:       math.Float64frombits(binary.LittleEndian.Uint64(data[0:8])),
		BodyFat:      math.Float64frombits(binary.LittleEndian.Uint64(data[8:16])),
		Water:        math.Float64frombits(binary.LittleEndian.Uint64(data[16:24])),
		Muscle:       math.Float64frombits(binary.LittleEndian.Uint64(data[24:32])),
		Impedance:    binary.LittleEndian.Uint32(data[32:36]),
		Timestamp:    binary.LittleEndian.Uint32(data[36:40]),
		UserID:       data[40],
		IsStabilized: data[41] != 0,
	}
	return nil
}
