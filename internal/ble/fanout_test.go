package ble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tao-j/helvetic/internal/measurement"
)

type event struct {
	kind  string
	value []byte
}

type recorder struct {
	mu     sync.Mutex
	events []event
	err    error
}

func (r *recorder) Notify(c Characteristic, value []byte) error {
	r.add(c.String(), value)
	return r.err
}

func (r *recorder) SetServiceData(data []byte) error {
	r.add("service_data", data)
	return r.err
}

func (r *recorder) add(kind string, value []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind, append([]byte(nil), value...)})
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

type memStore struct {
	mu    sync.Mutex
	saved []measurement.Record
	err   error
	trace *recorder
}

func (s *memStore) Load(context.Context) (measurement.Record, error) {
	return measurement.Record{}, nil
}

func (s *memStore) Save(_ context.Context, r measurement.Record) error {
	if s.trace != nil {
		s.trace.add("save", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, r)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanOut_Order(t *testing.T) {
	rec := &recorder{}
	store := &memStore{trace: rec}
	f := NewFanOut(rec, store, quietLogger())

	p := f.OnNewMeasurement(context.Background(), sample)

	assert.Equal(t, []string{"service_data", "weight_scale", "body_composition", "generic", "save"}, rec.kinds())
	assert.Equal(t, p.ServiceData[:], rec.events[0].value)
	assert.Equal(t, p.WeightScale[:], rec.events[1].value)
	assert.Equal(t, p.BodyComposition[:], rec.events[2].value)
	assert.Equal(t, p.Generic, rec.events[3].value)
	assert.Equal(t, []measurement.Record{sample}, store.saved)
	assert.Equal(t, p, f.Last())
}

func TestFanOut_SkipsOversizedGeneric(t *testing.T) {
	rec := &recorder{}
	f := NewFanOut(rec, nil, quietLogger())

	f.OnNewMeasurement(context.Background(), measurement.Record{Weight: 1e120, Timestamp: 1700000000})
	assert.Equal(t, []string{"service_data", "weight_scale", "body_composition"}, rec.kinds())
}

func TestFanOut_FailuresAreLogged(t *testing.T) {
	rec := &recorder{err: errors.New("adapter gone")}
	store := &memStore{err: errors.New("disk full")}
	f := NewFanOut(rec, store, quietLogger())

	p := f.OnNewMeasurement(context.Background(), sample)
	assert.Len(t, rec.kinds(), 4)
	assert.Empty(t, store.saved)
	assert.Equal(t, Encode(sample), p)
}

func TestFanOut_Prime(t *testing.T) {
	rec := &recorder{}
	store := &memStore{}
	f := NewFanOut(rec, store, quietLogger())

	require.NoError(t, f.Prime(sample))
	assert.Equal(t, []string{"service_data"}, rec.kinds())
	assert.Empty(t, store.saved)
	assert.Equal(t, Encode(sample).ServiceData, f.Last().ServiceData)
}

func TestFanOut_NilPeripheral(t *testing.T) {
	f := NewFanOut(nil, nil, nil)
	assert.NotPanics(t, func() { f.OnNewMeasurement(context.Background(), sample) })
}

func TestFanOut_Serialized(t *testing.T) {
	rec := &recorder{}
	f := NewFanOut(rec, nil, quietLogger())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.OnNewMeasurement(context.Background(), measurement.Record{Weight: float64(50 + i), Timestamp: 1700000000})
		}()
	}
	wg.Wait()

	kinds := rec.kinds()
	require.Len(t, kinds, 32)
	for i := 0; i < len(kinds); i += 4 {
		assert.Equal(t, []string{"service_data", "weight_scale", "body_composition", "generic"}, kinds[i:i+4], fmt.Sprintf("group %d", i/4))
		// all four payloads of a group come from the same record
		sd, err := DecodeServiceData(rec.events[i].value)
		require.NoError(t, err)
		wss := rec.events[i+1].value
		assert.InDelta(t, sd.Weight, float64(uint16(wss[1])|uint16(wss[2])<<8)/200.0, 0.001)
	}
}

type advStub struct {
	calls int
	err   error
}

func (a *advStub) StartAdvertising() error {
	a.calls++
	return a.err
}

func TestConnectionListener(t *testing.T) {
	adv := &advStub{}
	l := NewConnectionListener(adv, quietLogger())

	l.OnWrite([]byte{0x01, 0xAB})
	assert.Equal(t, 0, adv.calls)

	l.OnDisconnect()
	assert.Equal(t, 1, adv.calls)

	adv.err = errors.New("busy")
	assert.NotPanics(t, l.OnDisconnect)
	assert.Equal(t, 2, adv.calls)

	var _ Listener = l
}

func TestCharacteristic_String(t *testing.T) {
	assert.Equal(t, "weight_scale", WeightScale.String())
	assert.Equal(t, "body_composition", BodyComposition.String())
	assert.Equal(t, "generic", Generic.String())
	assert.Equal(t, "unknown", Characteristic(9).String())
}
