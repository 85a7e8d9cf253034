package ble

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// Sighting is one advertisement carrying a scale snapshot.
type Sighting struct {
	Address   string
	RSSI      int16
	LocalName string
	Data      ServiceData
	Raw       []byte
	SeenAt    time.Time
}

type ScanOptions struct {
	Adapter   string // "hci0" by default
	LocalName string // empty matches any name
	// AllRepeats reports every advertisement, not only changed snapshots.
	AllRepeats bool
}

// snapshotFilter remembers the last snapshot per address. Advertisements
// repeat every few milliseconds, so unchanged snapshots are dropped.
type snapshotFilter struct {
	mu   sync.Mutex
	last map[string][]byte
}

func newSnapshotFilter() *snapshotFilter {
	return &snapshotFilter{last: make(map[string][]byte)}
}

// fresh reports whether data differs from the last snapshot of addr.
func (f *snapshotFilter) fresh(addr string, data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.last[addr]; ok && bytes.Equal(prev, data) {
		return false
	}
	f.last[addr] = append([]byte(nil), data...)
	return true
}

// Scanner watches for other scales advertising 0x181B service data.
type Scanner struct {
	adapter *bluetooth.Adapter
	opts    ScanOptions
	logger  *slog.Logger
}

func NewScanner(opts ScanOptions, logger *slog.Logger) *Scanner {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		logger:  logger,
	}
}

// Run scans until ctx is done. Cancellation is a clean stop.
func (s *Scanner) Run(ctx context.Context, onSighting func(Sighting)) error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", s.opts.Adapter, err)
	}

	go func() {
		<-ctx.Done()
		_ = s.adapter.StopScan()
	}()

	seen := newSnapshotFilter()
	s.logger.Info("ble: scanning started", "adapter", s.opts.Adapter, "filter_name", s.opts.LocalName)

	// Scan blocks until StopScan() or error.
	err := s.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		name := r.LocalName()
		if s.opts.LocalName != "" && name != s.opts.LocalName {
			return
		}
		for _, sd := range r.ServiceData() {
			if sd.UUID != BodyCompositionServiceUUID {
				continue
			}
			decoded, err := DecodeServiceData(sd.Data)
			if err != nil {
				s.logger.Debug("ble: undecodable service data", "address", r.Address.String(), "error", err)
				continue
			}
			addr := r.Address.String()
			if !s.opts.AllRepeats && !seen.fresh(addr, sd.Data) {
				return
			}
			if onSighting != nil {
				onSighting(Sighting{
					Address:   addr,
					RSSI:      r.RSSI,
					LocalName: name,
					Data:      decoded,
					Raw:       append([]byte(nil), sd.Data...),
					SeenAt:    time.Now(),
				})
			}
			return
		}
	})

	if ctx.Err() != nil {
		s.logger.Info("ble: scanning stopped (context canceled)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}
	return nil
}
