// Package ble turns the canonical record into the three characteristic
// payloads and the advertisement snapshot, and serves them over BlueZ.
package ble

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tao-j/helvetic/internal/measurement"
)

type Characteristic int

const (
	WeightScale Characteristic = iota
	BodyComposition
	Generic
)

func (c Characteristic) String() string {
	switch c {
	case WeightScale:
		return "weight_scale"
	case BodyComposition:
		return "body_composition"
	case Generic:
		return "generic"
	default:
		return "unknown"
	}
}

// Peripheral is what the fan-out needs from a GATT server.
type Peripheral interface {
	// Notify sets the characteristic value and notifies subscribers.
	Notify(c Characteristic, value []byte) error
	// SetServiceData stops advertising, swaps the 0x181B service data and
	// starts advertising again.
	SetServiceData(data []byte) error
}

type discard struct{}

func (discard) Notify(Characteristic, []byte) error { return nil }
func (discard) SetServiceData([]byte) error         { return nil }

// Discard is a Peripheral for hosts without a usable adapter.
var Discard Peripheral = discard{}

// FanOut pushes each new record to the peripheral and then persists it.
// Calls are serialized, so one record's four payloads are all sent before
// the next record is encoded.
type FanOut struct {
	mu         sync.Mutex
	peripheral Peripheral
	store      measurement.Store
	logger     *slog.Logger
	last       Payloads
}

// NewFanOut wires a fan-out. store may be nil, in which case records are
// only kept in memory by the caller.
func NewFanOut(p Peripheral, store measurement.Store, logger *slog.Logger) *FanOut {
	if p == nil {
		p = Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FanOut{peripheral: p, store: store, logger: logger}
}

// Prime advertises a record loaded at startup. Nothing is notified or saved.
func (f *FanOut) Prime(r measurement.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = Encode(r)
	return f.peripheral.SetServiceData(f.last.ServiceData[:])
}

// OnNewMeasurement encodes r once, replaces the advertisement, notifies all
// three characteristics and persists r. Peripheral and store failures are
// logged; the record stays current either way.
func (f *FanOut) OnNewMeasurement(ctx context.Context, r measurement.Record) Payloads {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := Encode(r)
	f.last = p

	if err := f.peripheral.SetServiceData(p.ServiceData[:]); err != nil {
		f.logger.Warn("ble: update service data failed", "error", err)
	}
	f.notify(WeightScale, p.WeightScale[:])
	f.notify(BodyComposition, p.BodyComposition[:])
	if p.Generic != nil {
		f.notify(Generic, p.Generic)
	} else {
		f.logger.Warn("ble: generic line too long, not sent")
	}

	f.logger.Info("ble: measurement sent",
		"weight_kg", r.Weight,
		"body_fat_pct", r.BodyFat,
		"impedance", r.Impedance,
		"timestamp", r.Timestamp,
	)

	if f.store != nil {
		if err := f.store.Save(ctx, r); err != nil {
			f.logger.Error("persist measurement failed", "error", err)
		}
	}
	return p
}

// Last returns the payloads of the most recent record.
func (f *FanOut) Last() Payloads {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *FanOut) notify(c Characteristic, value []byte) {
	if err := f.peripheral.Notify(c, value); err != nil {
		f.logger.Warn("ble: notify failed", "characteristic", c.String(), "error", err)
	}
}
