package processing

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// DeviceTag identifies which of the two sensors a packet came from. Both
// sensors advertise the same name over the air and are told apart only by
// the packet header.
type DeviceTag int

const (
	DeviceA DeviceTag = iota
	DeviceB
	DeviceUnknown
)

const NumDevices = 2

const (
	HeaderDeviceA = "ABE"
	HeaderDeviceB = "ABB"

	SamplesPerPacket = 7

	headerHexLen = 4 // 3 header chars + 1 sequence digit
	groupHexLen  = 24
	packetHexLen = headerHexLen + SamplesPerPacket*groupHexLen

	// MinPayloadLen is the shortest raw notification that can hold the
	// header plus seven sample groups once hex encoded.
	MinPayloadLen = packetHexLen / 2
)

// sub-field offsets within one 24-char sample group
const (
	t2Start = 6
	t2End   = 12
	t4Start = 18
	t4End   = 24
)

func (t DeviceTag) String() string {
	switch t {
	case DeviceA:
		return HeaderDeviceA
	case DeviceB:
		return HeaderDeviceB
	default:
		return "unknown"
	}
}

// SampleGroup is one sampling instant: one reading per measurement site.
type SampleGroup struct {
	T2 int32
	T4 int32
}

type DecodedPacket struct {
	Device  DeviceTag
	Seq     uint32
	Samples [SamplesPerPacket]SampleGroup
}

type MalformedPacketError struct {
	Reason     string
	PayloadLen int
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("[processing] malformed packet (%d bytes): %s", e.PayloadLen, e.Reason)
}

// Decode parses one raw notification payload. The sensors speak a hex-text
// protocol: the payload is interpreted as an uppercase hex string in which
// chars 0-2 carry the device header, char 3 a single-digit sequence counter,
// and the rest seven 24-char sample groups. A payload whose header matches
// neither sensor decodes to DeviceUnknown with no further parsing; that is
// not an error, third-party frames share the notification channel.
func Decode(raw []byte) (DecodedPacket, error) {
	var pkt DecodedPacket

	if len(raw) < MinPayloadLen {
		return pkt, &MalformedPacketError{
			Reason:     "payload shorter than header plus seven sample groups",
			PayloadLen: len(raw),
		}
	}

	hexStr := strings.ToUpper(hex.EncodeToString(raw))

	switch hexStr[:3] {
	case HeaderDeviceA:
		pkt.Device = DeviceA
	case HeaderDeviceB:
		pkt.Device = DeviceB
	default:
		pkt.Device = DeviceUnknown
		return pkt, nil
	}

	seq, err := strconv.ParseUint(hexStr[3:4], 16, 32)
	if err != nil {
		return DecodedPacket{Device: DeviceUnknown}, &MalformedPacketError{
			Reason:     "sequence counter is not a hex digit",
			PayloadLen: len(raw),
		}
	}
	pkt.Seq = uint32(seq)

	for i := 0; i < SamplesPerPacket; i++ {
		group := hexStr[headerHexLen+i*groupHexLen : headerHexLen+(i+1)*groupHexLen]

		t2, err := strconv.ParseUint(group[t2Start:t2End], 16, 32)
		if err != nil {
			return DecodedPacket{Device: DeviceUnknown}, &MalformedPacketError{
				Reason:     fmt.Sprintf("t2 field of group %d is not valid hex", i),
				PayloadLen: len(raw),
			}
		}
		t4, err := strconv.ParseUint(group[t4Start:t4End], 16, 32)
		if err != nil {
			return DecodedPacket{Device: DeviceUnknown}, &MalformedPacketError{
				Reason:     fmt.Sprintf("t4 field of group %d is not valid hex", i),
				PayloadLen: len(raw),
			}
		}

		pkt.Samples[i] = SampleGroup{T2: int32(t2), T4: int32(t4)}
	}

	return pkt, nil
}
