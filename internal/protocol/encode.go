package protocol

import "encoding/binary"

// MarshalBinary renders the upload back into wire form. MeasurementCount is
// written as given, so a header may announce more blocks than follow.
func (u Upload) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize+len(u.Blocks)*BlockSize)
	le := binary.LittleEndian

	h := u.Header
	le.PutUint32(buf[0:4], h.ProtocolVersion)
	le.PutUint32(buf[4:8], h.BatteryPercent)
	copy(buf[8:14], h.MAC[:])
	copy(buf[14:30], h.AuthCode[:])
	le.PutUint32(buf[30:34], h.FirmwareVersion)
	le.PutUint32(buf[34:38], h.Reserved)
	le.PutUint32(buf[38:42], h.ScaleTimestamp)
	le.PutUint32(buf[42:46], h.MeasurementCount)

	for i, b := range u.Blocks {
		p := buf[HeaderSize+i*BlockSize:]
		le.PutUint32(p[0:4], b.ID)
		le.PutUint32(p[4:8], b.Impedance)
		le.PutUint32(p[8:12], b.Weight)
		le.PutUint32(p[12:16], b.Timestamp)
		le.PutUint32(p[16:20], b.UserID)
		le.PutUint32(p[20:24], b.Fat1)
		le.PutUint32(p[24:28], b.Covariance)
		le.PutUint32(p[28:32], b.Fat2)
	}
	return buf, nil
}
