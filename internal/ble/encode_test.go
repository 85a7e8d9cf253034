package ble

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tao-j/helvetic/internal/measurement"
)

// 2023-11-14 22:13:20 UTC
var sample = measurement.Record{
	Weight:       65.0,
	Impedance:    500,
	BodyFat:      25.0,
	Timestamp:    1700000000,
	IsStabilized: true,
}

func TestCalendarBytes(t *testing.T) {
	assert.Equal(t, [7]byte{0xE7, 0x07, 11, 14, 22, 13, 20}, CalendarBytes(1700000000))
	assert.Equal(t, [7]byte{0xB2, 0x07, 1, 1, 0, 0, 0}, CalendarBytes(0))
}

func TestEncodeWeightScale(t *testing.T) {
	got := EncodeWeightScale(sample)
	assert.Equal(t, [WeightScaleSize]byte{0x02, 0xC8, 0x32, 0xE7, 0x07, 11, 14, 22, 13, 20}, got)
}

func TestEncodeWeightScale_RoundTrip(t *testing.T) {
	for _, w := range []float64{0.005, 1.234, 65.0, 72.3, 99.995, 150.42, 327.67} {
		b := EncodeWeightScale(measurement.Record{Weight: w})
		back := float64(uint16(b[1])|uint16(b[2])<<8) / 200.0
		assert.InDelta(t, w, back, 0.005, "weight %v", w)
	}
}

func TestEncodeWeightScale_Saturates(t *testing.T) {
	hi := EncodeWeightScale(measurement.Record{Weight: 1000})
	assert.Equal(t, []byte{0xFF, 0xFF}, hi[1:3])

	lo := EncodeWeightScale(measurement.Record{Weight: -3})
	assert.Equal(t, []byte{0x00, 0x00}, lo[1:3])

	nan := EncodeWeightScale(measurement.Record{Weight: math.NaN()})
	assert.Equal(t, []byte{0x00, 0x00}, nan[1:3])
}

func TestEncodeBodyComposition(t *testing.T) {
	got := EncodeBodyComposition(sample)
	want := [BodyCompositionSize]byte{
		0x21, 0x00,
		0xFA, 0x00,
		0xE7, 0x07, 11, 14, 22, 13, 20,
		0, 0, 0, 0, 0, 0, 0, 0,
	}
	assert.Equal(t, want, got)
}

func TestEncodeGeneric(t *testing.T) {
	line, ok := EncodeGeneric(sample)
	require.True(t, ok)
	assert.Equal(t, "$D$0,2023,11,14,22,13,65.0,25.0,0.0,0.0,1953\n", string(line))
	assert.LessOrEqual(t, len(line), MaxGenericSize)
}

func TestEncodeGeneric_TooLong(t *testing.T) {
	line, ok := EncodeGeneric(measurement.Record{Weight: 1e120, Timestamp: 1700000000})
	assert.False(t, ok)
	assert.Nil(t, line)

	p := Encode(measurement.Record{Weight: 1e120, Timestamp: 1700000000})
	assert.Nil(t, p.Generic)
}

func TestEncodeServiceData(t *testing.T) {
	got := EncodeServiceData(sample)
	want := [ServiceDataSize]byte{
		0x02, 0x22,
		0xE7, 0x07, 11, 14, 22, 13, 20,
		0xF4, 0x01,
		0xC8, 0x32,
	}
	assert.Equal(t, want, got)
}

func TestEncodeServiceData_Flags(t *testing.T) {
	noImp := EncodeServiceData(measurement.Record{Weight: 50, Timestamp: 1700000000})
	assert.Equal(t, byte(0x20), noImp[1])

	// only the low 16 bits of the impedance fit
	wide := EncodeServiceData(measurement.Record{Impedance: 0x1_0001F4})
	assert.Equal(t, byte(0x22), wide[1])
	assert.Equal(t, []byte{0xF4, 0x01}, wide[9:11])
}

func TestDecodeServiceData(t *testing.T) {
	b := EncodeServiceData(sample)
	sd, err := DecodeServiceData(b[:])
	require.NoError(t, err)

	assert.Equal(t, byte(0x02), sd.Unit)
	assert.True(t, sd.HasImpedance)
	assert.Equal(t, uint16(500), sd.Impedance)
	assert.InDelta(t, 65.0, sd.Weight, 0.005)
	assert.True(t, sd.Time.Equal(time.Unix(1700000000, 0)))

	_, err = DecodeServiceData(b[:12])
	assert.Error(t, err)

	bad := b
	bad[0] = 0x01
	_, err = DecodeServiceData(bad[:])
	assert.Error(t, err)
}

func TestEncode_Idempotent(t *testing.T) {
	assert.Equal(t, Encode(sample), Encode(sample))
}
