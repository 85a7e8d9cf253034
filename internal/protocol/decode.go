// Package protocol implements the scale upload protocol: decoding the
// binary upload body and encoding the 104-byte acknowledgement packet.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/tao-j/helvetic/internal/measurement"
)

const (
	SessionHeaderSize     = 30
	MeasurementHeaderSize = 16
	HeaderSize            = SessionHeaderSize + MeasurementHeaderSize
	BlockSize             = 32
)

var ErrTooShort = errors.New("protocol: payload too short")

// Header is the session header followed by the measurement header.
type Header struct {
	ProtocolVersion  uint32
	BatteryPercent   uint32
	MAC              [6]byte
	AuthCode         [16]byte
	FirmwareVersion  uint32
	Reserved         uint32
	ScaleTimestamp   uint32
	MeasurementCount uint32
}

func (h Header) MACString() string {
	return net.HardwareAddr(h.MAC[:]).String()
}

// Block is one 32-byte measurement block as sent on the wire.
type Block struct {
	ID         uint32
	Impedance  uint32
	Weight     uint32 // grams
	Timestamp  uint32
	UserID     uint32
	Fat1       uint32 // percent x 1000
	Covariance uint32
	Fat2       uint32
}

// Record maps the block onto the canonical record. Covariance and Fat2 are
// not carried over, and UserID stays 0 instead of going through
// measurement.UserIDFromWire. Scaling is done in float32, the precision the
// scale's own firmware records use, so formatted values round the same way.
func (b Block) Record() measurement.Record {
	return measurement.Record{
		Weight:       float64(float32(b.Weight) / 1000),
		Impedance:    b.Impedance,
		BodyFat:      float64(float32(b.Fat1) / 1000),
		Timestamp:    b.Timestamp,
		IsStabilized: true,
	}
}

type Upload struct {
	Header Header
	Blocks []Block
}

// Records returns the canonical records in block order.
func (u Upload) Records() []measurement.Record {
	out := make([]measurement.Record, 0, len(u.Blocks))
	for _, b := range u.Blocks {
		out = append(out, b.Record())
	}
	return out
}

// LastWeight is the raw weight of the last decoded block, or 0 when no block
// was decoded. The response packet derives its tolerances from it.
func (u Upload) LastWeight() uint32 {
	if len(u.Blocks) == 0 {
		return 0
	}
	return u.Blocks[len(u.Blocks)-1].Weight
}

// Truncated reports whether the header announced more blocks than the body
// carried.
func (u Upload) Truncated() bool {
	return uint32(len(u.Blocks)) < u.Header.MeasurementCount
}

// Decode parses an upload body. A trailing block shorter than 32 bytes ends
// decoding without an error; only a body too short for the headers fails.
func Decode(payload []byte) (Upload, error) {
	if len(payload) < HeaderSize {
		return Upload{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrTooShort, len(payload), HeaderSize)
	}

	le := binary.LittleEndian
	var h Header
	h.ProtocolVersion = le.Uint32(payload[0:4])
	h.BatteryPercent = le.Uint32(payload[4:8])
	copy(h.MAC[:], payload[8:14])
	copy(h.AuthCode[:], payload[14:30])
	h.FirmwareVersion = le.Uint32(payload[30:34])
	h.Reserved = le.Uint32(payload[34:38])
	h.ScaleTimestamp = le.Uint32(payload[38:42])
	h.MeasurementCount = le.Uint32(payload[42:46])

	available := uint32((len(payload) - HeaderSize) / BlockSize)
	n := min(h.MeasurementCount, available)

	blocks := make([]Block, 0, n)
	for i := uint32(0); i < n; i++ {
		off := HeaderSize + int(i)*BlockSize
		b := payload[off : off+BlockSize]
		blocks = append(blocks, Block{
			ID:         le.Uint32(b[0:4]),
			Impedance:  le.Uint32(b[4:8]),
			Weight:     le.Uint32(b[8:12]),
			Timestamp:  le.Uint32(b[12:16]),
			UserID:     le.Uint32(b[16:20]),
			Fat1:       le.Uint32(b[20:24]),
			Covariance: le.Uint32(b[24:28]),
			Fat2:       le.Uint32(b[28:32]),
		})
	}

	return Upload{Header: h, Blocks: blocks}, nil
}
