// Package rtp implements the wire framing from spec §3/§6: the 12-byte
// RTP header, optional extension header, and the internal control
// extension (payload type 99) used to carry player state/volume changes
// in-band.
//
// Header encode/decode is grounded on github.com/pion/rtp's Header type,
// retrieved from the pack's WebRTC-family repos (the HandleJitter adapter
// in media-sdk, the go-midi-rtp packetizer). We wrap rather than embed
// pion/rtp.Packet directly because spec's control-extension payload
// layout (a versioned {id,len,data16} command block) is bespoke and does
// not correspond to any generic RTP header extension profile Pion models.
package rtp

import (
	"fmt"

	pionrtp "github.com/pion/rtp"
)

// Reserved payload types per spec §3/§6.
const (
	PTMP3     uint8 = 14
	PTPCM     uint8 = 11
	PTFLAC    uint8 = 46
	PTControl uint8 = 99
)

// Packet is one parsed RTP packet: header fields plus payload.
type Packet struct {
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	Extension      []byte // raw extension payload, if Header.Extension was set
	ExtensionID    uint8  // one-byte RFC5285 extension element id
	Payload        []byte
}

// Marshal encodes p into an RTP packet using pion/rtp's header codec.
func Marshal(p Packet) ([]byte, error) {
	h := pionrtp.Header{
		Version:        2,
		Marker:         p.Marker,
		PayloadType:    p.PayloadType,
		SequenceNumber: p.SequenceNumber,
		Timestamp:      p.Timestamp,
		SSRC:           p.SSRC,
	}
	if len(p.Extension) > 0 {
		h.Extension = true
		if err := h.SetExtension(p.ExtensionID, p.Extension); err != nil {
			return nil, fmt.Errorf("rtp: set extension: %w", err)
		}
	}
	pkt := pionrtp.Packet{Header: h, Payload: p.Payload}
	return pkt.Marshal()
}

// Unmarshal parses buf into a Packet.
func Unmarshal(buf []byte) (Packet, error) {
	var pkt pionrtp.Packet
	if err := pkt.Unmarshal(buf); err != nil {
		return Packet{}, fmt.Errorf("rtp: unmarshal: %w", err)
	}
	out := Packet{
		Marker:         pkt.Header.Marker,
		PayloadType:    pkt.Header.PayloadType,
		SequenceNumber: pkt.Header.SequenceNumber,
		Timestamp:      pkt.Header.Timestamp,
		SSRC:           pkt.Header.SSRC,
		Payload:        pkt.Payload,
	}
	if pkt.Header.Extension {
		ids := pkt.Header.GetExtensionIDs()
		if len(ids) > 0 {
			out.ExtensionID = ids[0]
			out.Extension = pkt.Header.GetExtension(ids[0])
		}
	}
	return out, nil
}
