package ble

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

var (
	WeightScaleServiceUUID     = bluetooth.New16BitUUID(0x181D)
	WeightMeasurementUUID      = bluetooth.New16BitUUID(0x2A9D)
	BodyCompositionServiceUUID = bluetooth.New16BitUUID(0x181B)
	BodyCompositionUUID        = bluetooth.New16BitUUID(0x2A9C)
	GenericServiceUUID         = bluetooth.New16BitUUID(0xFFE0)
	GenericCharacteristicUUID  = bluetooth.New16BitUUID(0xFFE1)
)

const (
	DefaultLocalName = "openScale"
	// DefaultInterval sits inside the 0x20-0x40 (20-40 ms) window.
	DefaultInterval = 20 * time.Millisecond
)

var ErrNotStarted = errors.New("ble: adapter not started")

// advertisement is the part of *bluetooth.Advertisement the adapter drives.
type advertisement interface {
	Configure(options bluetooth.AdvertisementOptions) error
	Start() error
	Stop() error
}

type AdapterOptions struct {
	Adapter   string // "hci0" by default
	LocalName string
	Interval  time.Duration
}

// Adapter is a BlueZ GATT server exposing the weight scale, body
// composition and generic services, and advertising the latest snapshot.
type Adapter struct {
	opts    AdapterOptions
	adapter *bluetooth.Adapter
	adv     advertisement
	logger  *slog.Logger

	mu          sync.Mutex
	started     bool
	serviceData []byte
	listener    Listener
	chars       map[Characteristic]*bluetooth.Characteristic
}

func NewAdapter(opts AdapterOptions, logger *slog.Logger) *Adapter {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if opts.LocalName == "" {
		opts.LocalName = DefaultLocalName
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		opts:    opts,
		adapter: bluetooth.NewAdapter(opts.Adapter),
		logger:  logger,
		chars:   make(map[Characteristic]*bluetooth.Characteristic, 3),
	}
}

// SetListener replaces the event listener. Without one, writes and
// disconnects are ignored.
func (a *Adapter) SetListener(l Listener) {
	a.mu.Lock()
	a.listener = l
	a.mu.Unlock()
}

func (a *Adapter) currentListener() Listener {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listener
}

// Start enables the adapter, registers the services seeded with initial and
// begins advertising.
func (a *Adapter) Start(initial Payloads) error {
	a.logger.Info("ble: enabling adapter", "adapter", a.opts.Adapter)
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", a.opts.Adapter, err)
	}

	var wss, bcs, generic bluetooth.Characteristic
	services := []*bluetooth.Service{
		{
			UUID: WeightScaleServiceUUID,
			Characteristics: []bluetooth.CharacteristicConfig{{
				Handle: &wss,
				UUID:   WeightMeasurementUUID,
				Value:  append([]byte(nil), initial.WeightScale[:]...),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			}},
		},
		{
			UUID: BodyCompositionServiceUUID,
			Characteristics: []bluetooth.CharacteristicConfig{{
				Handle: &bcs,
				UUID:   BodyCompositionUUID,
				Value:  append([]byte(nil), initial.BodyComposition[:]...),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			}},
		},
		{
			UUID: GenericServiceUUID,
			Characteristics: []bluetooth.CharacteristicConfig{{
				Handle: &generic,
				UUID:   GenericCharacteristicUUID,
				Value:  append([]byte(nil), initial.Generic...),
				Flags: bluetooth.CharacteristicReadPermission |
					bluetooth.CharacteristicNotifyPermission |
					bluetooth.CharacteristicWritePermission,
				WriteEvent: func(_ bluetooth.Connection, _ int, value []byte) {
					if l := a.currentListener(); l != nil {
						l.OnWrite(append([]byte(nil), value...))
					}
				},
			}},
		},
	}
	for _, svc := range services {
		if err := a.adapter.AddService(svc); err != nil {
			return fmt.Errorf("ble add service %s: %w", svc.UUID.String(), err)
		}
	}

	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		a.logger.Info("ble: connection changed", "address", device.Address.String(), "connected", connected)
		if connected {
			return
		}
		if l := a.currentListener(); l != nil {
			l.OnDisconnect()
		}
	})

	a.mu.Lock()
	a.chars[WeightScale] = &wss
	a.chars[BodyComposition] = &bcs
	a.chars[Generic] = &generic
	a.serviceData = append([]byte(nil), initial.ServiceData[:]...)
	a.adv = a.adapter.DefaultAdvertisement()
	a.started = true
	err := a.advertiseLocked()
	a.mu.Unlock()
	if err != nil {
		return err
	}

	a.logger.Info("ble: advertising started", "local_name", a.opts.LocalName, "interval", a.opts.Interval)
	return nil
}

func (a *Adapter) advertiseLocked() error {
	err := a.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName: a.opts.LocalName,
		ServiceUUIDs: []bluetooth.UUID{
			WeightScaleServiceUUID,
			BodyCompositionServiceUUID,
		},
		ServiceData: []bluetooth.ServiceDataElement{
			{UUID: BodyCompositionServiceUUID, Data: a.serviceData},
		},
		Interval: bluetooth.NewDuration(a.opts.Interval),
	})
	if err != nil {
		return fmt.Errorf("ble configure advertisement: %w", err)
	}
	if err := a.adv.Start(); err != nil {
		return fmt.Errorf("ble start advertisement: %w", err)
	}
	return nil
}

// Notify writes value to the characteristic. BlueZ sends the notification
// to every subscribed central.
func (a *Adapter) Notify(c Characteristic, value []byte) error {
	a.mu.Lock()
	ch, ok := a.chars[c]
	a.mu.Unlock()
	if !ok {
		return ErrNotStarted
	}
	if _, err := ch.Write(value); err != nil {
		return fmt.Errorf("ble notify %s: %w", c, err)
	}
	return nil
}

// SetServiceData restarts advertising with the new 0x181B snapshot.
func (a *Adapter) SetServiceData(data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.serviceData = append(a.serviceData[:0], data...)
	if !a.started {
		return nil
	}
	return a.restartLocked()
}

// StartAdvertising resumes advertising with the current snapshot.
func (a *Adapter) StartAdvertising() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return ErrNotStarted
	}
	return a.restartLocked()
}

// restartLocked stops the advertisement and registers it again with the
// current snapshot. BlueZ can drop an advertisement on its own, for example
// when a central connects; Stop then reports it as not started while the
// library still counts it as running and refuses to Configure it. Registering
// the stale object once more and stopping it clears that state.
func (a *Adapter) restartLocked() error {
	if err := a.adv.Stop(); err != nil {
		if !isNotStarted(err) {
			a.logger.Debug("ble: stop advertisement", "error", err)
			return a.advertiseLocked()
		}
		a.logger.Warn("ble: advertisement dropped by bluez, re-registering")
		if err := a.adv.Start(); err != nil {
			a.logger.Debug("ble: re-register advertisement", "error", err)
		}
		if err := a.adv.Stop(); err != nil {
			return fmt.Errorf("ble reset advertisement: %w", err)
		}
	}
	return a.advertiseLocked()
}

// isNotStarted matches the unexported not-started error of the BlueZ backend.
func isNotStarted(err error) bool {
	return strings.Contains(err.Error(), "advertisement is not started")
}

// Stop ends advertising.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.started = false
	return a.adv.Stop()
}
