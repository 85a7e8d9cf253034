package protocol

import "encoding/binary"

const (
	ResponseSize = 104

	// MaxUserNameLen leaves room for the terminating NUL in the 20-byte field.
	MaxUserNameLen = 19

	weightTolerance = 4000 // raw units, 4 kg
	messageSize     = 0x19 + 1*0x4D
)

type Gender uint8

const (
	Female Gender = 0
	Male   Gender = 2
)

func (g Gender) String() string {
	if g == Female {
		return "female"
	}
	return "male"
}

// Profile is the single user the emulated scale reports back to the app.
type Profile struct {
	Name   string
	Gender Gender
	Age    uint32
	Height uint32 // mm
}

func DefaultProfile() Profile {
	return Profile{Name: "You", Gender: Male, Age: 18, Height: 1800}
}

// ResponseParams are the inputs to EncodeResponse.
type ResponseParams struct {
	Now            uint32
	LastWeight     uint32
	ScaleTimestamp uint32
	User           Profile
}

// EncodeResponse builds the acknowledgement packet. All integers are
// little-endian. The constants below are what the vendor app expects and must
// stay byte-exact.
//
//	0   current time            u32
//	4   unit (0x00 = lbs)       u8
//	5   status 0x32             u8
//	6   0x01                    u8
//	7   user count = 1          u32
//	11  user id = 0x1234        u32
//	15  zero                    16 bytes
//	31  user name, NUL-padded   20 bytes
//	51  min tolerance           u32
//	55  max tolerance           u32
//	59  age                     u32
//	63  gender                  u8
//	64  height (mm)             u32
//	68  zero                    16 bytes
//	84  scale timestamp - 1000  u32
//	88  zero                    u32
//	92  3                       u32
//	96  zero                    u32
//	100 CRC16 over 0..99        u16
//	102 message size 0x66       u16
func EncodeResponse(p ResponseParams) [ResponseSize]byte {
	var buf [ResponseSize]byte
	le := binary.LittleEndian

	le.PutUint32(buf[0:4], p.Now)
	buf[4] = 0x00
	buf[5] = 0x32
	buf[6] = 0x01
	le.PutUint32(buf[7:11], 1)
	le.PutUint32(buf[11:15], 0x1234)

	name := p.User.Name
	if len(name) > MaxUserNameLen {
		name = name[:MaxUserNameLen]
	}
	copy(buf[31:51], name)

	// uint32 arithmetic wraps for weights under 4 kg
	le.PutUint32(buf[51:55], p.LastWeight-weightTolerance)
	le.PutUint32(buf[55:59], p.LastWeight+weightTolerance)

	le.PutUint32(buf[59:63], p.User.Age)
	buf[63] = byte(p.User.Gender)
	le.PutUint32(buf[64:68], p.User.Height)

	le.PutUint32(buf[84:88], p.ScaleTimestamp-1000)
	le.PutUint32(buf[92:96], 3)

	le.PutUint16(buf[100:102], CRC16(buf[:100]))
	le.PutUint16(buf[102:104], messageSize)
	return buf
}
