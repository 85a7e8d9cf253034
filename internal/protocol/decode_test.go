package protocol

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tao-j/helvetic/internal/measurement"
)

func testHeader(count uint32) Header {
	return Header{
		ProtocolVersion:  3,
		BatteryPercent:   87,
		MAC:              [6]byte{0x00, 0x24, 0xE4, 0x12, 0x34, 0x56},
		AuthCode:         [16]byte{0xAA, 0xBB, 0xCC},
		FirmwareVersion:  39,
		Reserved:         7,
		ScaleTimestamp:   1700000500,
		MeasurementCount: count,
	}
}

func encodeUpload(t *testing.T, u Upload) []byte {
	t.Helper()
	b, err := u.MarshalBinary()
	require.NoError(t, err)
	return b
}

func TestDecode_TooShort(t *testing.T) {
	for _, n := range []int{0, 1, 30, HeaderSize - 1} {
		_, err := Decode(make([]byte, n))
		assert.ErrorIs(t, err, ErrTooShort, "len %d", n)
	}
}

func TestDecode_HeaderOffsets(t *testing.T) {
	payload := encodeUpload(t, Upload{Header: testHeader(0)})
	require.Len(t, payload, HeaderSize)

	// spot check raw offsets independent of MarshalBinary
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(payload[0:]))
	assert.Equal(t, uint32(1700000500), binary.LittleEndian.Uint32(payload[38:]))

	u, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, testHeader(0), u.Header)
	assert.Equal(t, "00:24:e4:12:34:56", u.Header.MACString())
	assert.Empty(t, u.Blocks)
	assert.Empty(t, u.Records())
	assert.Zero(t, u.LastWeight())
}

func TestDecode_SingleMeasurement(t *testing.T) {
	payload := encodeUpload(t, Upload{
		Header: testHeader(1),
		Blocks: []Block{{
			ID:         1,
			Impedance:  500,
			Weight:     65000,
			Timestamp:  1700000000,
			UserID:     0x0102,
			Fat1:       25000,
			Covariance: 9,
			Fat2:       24000,
		}},
	})

	u, err := Decode(payload)
	require.NoError(t, err)

	require.Equal(t, []measurement.Record{{
		Weight:       65.0,
		Impedance:    500,
		BodyFat:      25.0,
		Timestamp:    1700000000,
		IsStabilized: true,
	}}, u.Records())
	assert.Equal(t, uint32(65000), u.LastWeight())
	assert.Equal(t, uint32(0x0102), u.Blocks[0].UserID, "wire user id is kept on the block")
	assert.False(t, u.Truncated())
}

func TestDecode_ScalesByThousand(t *testing.T) {
	u, err := Decode(encodeUpload(t, Upload{
		Header: testHeader(1),
		Blocks: []Block{{Weight: 250, Fat1: 250}},
	}))
	require.NoError(t, err)
	r := u.Records()[0]
	assert.InDelta(t, 0.25, r.Weight, 1e-12)
	assert.InDelta(t, 0.25, r.BodyFat, 1e-12)
}

func TestBlockRecord_Float32Rounding(t *testing.T) {
	tests := []struct {
		raw  uint32
		want string
	}{
		{65050, "65.1"},
		{65000, "65.0"},
		{72349, "72.3"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			r := Block{Weight: tt.raw, Fat1: tt.raw}.Record()
			assert.Equal(t, tt.want, fmt.Sprintf("%.1f", r.Weight))
			assert.Equal(t, tt.want, fmt.Sprintf("%.1f", r.BodyFat))
		})
	}
}

func TestDecode_BlocksInOrder(t *testing.T) {
	blocks := []Block{
		{ID: 1, Weight: 70100, Timestamp: 100},
		{ID: 2, Weight: 70200, Timestamp: 200},
		{ID: 3, Weight: 70300, Timestamp: 300},
	}
	payload := encodeUpload(t, Upload{Header: testHeader(3), Blocks: blocks})
	// trailing garbage shorter than a block is ignored
	payload = append(payload, 0xDE, 0xAD)

	u, err := Decode(payload)
	require.NoError(t, err)
	recs := u.Records()
	require.Len(t, recs, 3)
	for i, r := range recs {
		assert.InDelta(t, float64(blocks[i].Weight)/1000.0, r.Weight, 1e-5)
		assert.Equal(t, blocks[i].Timestamp, r.Timestamp)
	}
	assert.Equal(t, uint32(70300), u.LastWeight())
}

func TestDecode_TruncatedTrailingBlockDropped(t *testing.T) {
	payload := encodeUpload(t, Upload{
		Header: testHeader(3),
		Blocks: []Block{{ID: 1, Weight: 60000}, {ID: 2, Weight: 61000}, {ID: 3, Weight: 62000}},
	})
	payload = payload[:len(payload)-10]

	u, err := Decode(payload)
	require.NoError(t, err)
	require.Len(t, u.Blocks, 2)
	assert.True(t, u.Truncated())
	assert.Equal(t, uint32(61000), u.LastWeight())
}

func TestDecode_CountLargerThanBody(t *testing.T) {
	payload := encodeUpload(t, Upload{
		Header: testHeader(0xFFFFFFFF),
		Blocks: []Block{{ID: 1, Weight: 60000}},
	})

	u, err := Decode(payload)
	require.NoError(t, err)
	assert.Len(t, u.Blocks, 1)
	assert.True(t, u.Truncated())
}

func TestDecode_CountSmallerThanBody(t *testing.T) {
	payload := encodeUpload(t, Upload{
		Header: testHeader(1),
		Blocks: []Block{{ID: 1, Weight: 60000}, {ID: 2, Weight: 61000}},
	})

	u, err := Decode(payload)
	require.NoError(t, err)
	require.Len(t, u.Blocks, 1)
	assert.Equal(t, uint32(1), u.Blocks[0].ID)
}
