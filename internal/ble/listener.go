package ble

import (
	"log/slog"

	"github.com/tao-j/helvetic/internal/utils"
)

// Listener receives GATT server events.
type Listener interface {
	OnWrite(value []byte)
	OnDisconnect()
}

type advertiser interface {
	StartAdvertising() error
}

// ConnectionListener logs writes to the generic characteristic and brings
// advertising back after a central disconnects.
type ConnectionListener struct {
	adv    advertiser
	logger *slog.Logger
}

func NewConnectionListener(adv advertiser, logger *slog.Logger) *ConnectionListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionListener{adv: adv, logger: logger}
}

func (l *ConnectionListener) OnWrite(value []byte) {
	l.logger.Info("ble: generic characteristic written",
		"len", len(value),
		"data", utils.BytesToHex(value),
	)
}

func (l *ConnectionListener) OnDisconnect() {
	l.logger.Info("ble: central disconnected, restarting advertising")
	if err := l.adv.StartAdvertising(); err != nil {
		l.logger.Warn("ble: restart advertising failed", "error", err)
	}
}
