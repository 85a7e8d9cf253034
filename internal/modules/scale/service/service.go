package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tao-j/helvetic/internal/ble"
	"github.com/tao-j/helvetic/internal/config"
	"github.com/tao-j/helvetic/internal/measurement"
	"github.com/tao-j/helvetic/internal/protocol"
	"github.com/tao-j/helvetic/internal/publish"
	"github.com/tao-j/helvetic/internal/utils"
)

// FanOut receives each new record once it is current.
type FanOut interface {
	OnNewMeasurement(ctx context.Context, r measurement.Record) ble.Payloads
}

// Clock supplies the epoch seconds written into responses.
type Clock interface {
	Now() uint32
}

type Service struct {
	// mu spans a whole upload, so the current, advertised and persisted
	// records always come from the same block.
	mu sync.Mutex

	current   *measurement.Current
	fanout    FanOut
	publisher publish.Publisher
	clock     Clock
	profile   config.Profile
}

// NewService wires the upload path. publisher may be nil.
func NewService(current *measurement.Current, fanout FanOut, publisher publish.Publisher, clock Clock, profile config.Profile) *Service {
	return &Service{
		current:   current,
		fanout:    fanout,
		publisher: publisher,
		clock:     clock,
		profile:   profile,
	}
}

// Result is what one upload produced.
type Result struct {
	Upload   protocol.Upload
	Response [protocol.ResponseSize]byte
}

// HandleUpload decodes body, makes each block current in order, fans it
// out and publishes it, then builds the acknowledgement. Only a malformed
// body is an error; nothing changes in that case.
func (s *Service) HandleUpload(ctx context.Context, body []byte) (Result, error) {
	logBody(body)

	upload, err := protocol.Decode(body)
	if err != nil {
		return Result{}, fmt.Errorf("decode upload: %w", err)
	}

	h := upload.Header
	slog.Info("upload received",
		"mac", h.MACString(),
		"battery_pct", h.BatteryPercent,
		"firmware", h.FirmwareVersion,
		"scale_ts", h.ScaleTimestamp,
		"announced", h.MeasurementCount,
		"blocks", len(upload.Blocks),
	)
	if upload.Truncated() {
		slog.Warn("upload shorter than announced, trailing blocks dropped",
			"announced", h.MeasurementCount,
			"decoded", len(upload.Blocks),
		)
	}

	// The record is current as soon as it is replaced; saving and publishing
	// it must not depend on the client staying connected.
	bg := context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range upload.Blocks {
		slog.Debug("block parsed",
			"id", b.ID,
			"impedance", b.Impedance,
			"weight_kg", float64(b.Weight)/1000.0,
			"timestamp", b.Timestamp,
			"user_id", b.UserID,
			"fat1", b.Fat1,
			"covariance", b.Covariance,
			"fat2", b.Fat2,
		)

		r := b.Record()
		s.current.Replace(r)
		if s.fanout != nil {
			s.fanout.OnNewMeasurement(bg, r)
		}
		if s.publisher != nil {
			msg := measurement.NewMessage(s.profile.DeviceName, r)
			if err := s.publisher.Publish(bg, msg); err != nil {
				slog.Warn("publish measurement failed", "error", err)
			}
		}
	}

	resp := protocol.EncodeResponse(protocol.ResponseParams{
		Now:            s.clock.Now(),
		LastWeight:     upload.LastWeight(),
		ScaleTimestamp: h.ScaleTimestamp,
		User:           s.profile.User,
	})
	slog.Debug("response built",
		"crc", utils.Hex4(uint16(resp[100])|uint16(resp[101])<<8),
		"hex", utils.BytesToHex(resp[:]),
	)

	return Result{Upload: upload, Response: resp}, nil
}

// Latest returns the current record.
func (s *Service) Latest() measurement.Record {
	return s.current.Get()
}

// Profile returns the configured device and user.
func (s *Service) Profile() config.Profile {
	return s.profile
}

func logBody(body []byte) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	if len(body) < protocol.HeaderSize {
		slog.Debug("upload body", "len", len(body), "hex", utils.BytesToHex(body))
		return
	}
	slog.Debug("upload session header", "hex", utils.BytesToHex(body[:protocol.SessionHeaderSize]))
	slog.Debug("upload measurement header", "hex", utils.BytesToHex(body[protocol.SessionHeaderSize:protocol.HeaderSize]))
	rest := body[protocol.HeaderSize:]
	for i := 0; len(rest) > 0; i++ {
		n := min(protocol.BlockSize, len(rest))
		slog.Debug("upload block", "index", i, "hex", utils.BytesToHex(rest[:n]))
		rest = rest[n:]
	}
}
