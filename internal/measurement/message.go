package measurement

import "time"

// Message is the JSON form of a record, used by the HTTP API and the
// MQTT/AMQP publishers.
type Message struct {
	Device     string    `json:"device,omitempty"`
	WeightKg   float64   `json:"weight_kg"`
	Impedance  uint32    `json:"impedance_ohm"`
	BodyFat    float64   `json:"body_fat_pct"`
	Water      float64   `json:"water_pct"`
	Muscle     float64   `json:"muscle_pct"`
	Timestamp  uint32    `json:"timestamp"`
	UserID     uint8     `json:"user_id"`
	Stabilized bool      `json:"stabilized"`
	MeasuredAt time.Time `json:"measured_at"`
}

func NewMessage(device string, r Record) Message {
	return Message{
		Device:     device,
		WeightKg:   r.Weight,
		Impedance:  r.Impedance,
		BodyFat:    r.BodyFat,
		Water:      r.Water,
		Muscle:     r.Muscle,
		Timestamp:  r.Timestamp,
		UserID:     r.UserID,
		Stabilized: r.IsStabilized,
		MeasuredAt: r.Time(),
	}
}
