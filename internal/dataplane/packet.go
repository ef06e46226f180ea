// Package dataplane implements the UDP attack surface: a flooder that
// sends fixed-size packets as fast as the scheduler allows, and a
// responder that samples ACKs at 10 Hz rather than per-packet, so the ACK
// channel never carries enough bandwidth to mask real overload. It is
// deliberately decoupled from Raft — only the 5s metrics summary crosses
// into the log.
package dataplane

import (
	"encoding/binary"
	"fmt"
)

const (
	// PayloadSize is the fixed packet body size (spec.md §6).
	PayloadSize = 1024

	// packetHeaderSize is 8 bytes seq + 8 bytes ts_us.
	packetHeaderSize = 16
	// PacketSize is the full wire size of one attack datagram.
	PacketSize = packetHeaderSize + PayloadSize

	// ackSize is 8 bytes highest_seq + 8 bytes total_received.
	ackSize = 16
)

// Packet is one attack datagram: {seq, ts_us, 1024-byte payload}, all
// fields big-endian per spec.md §6.
type Packet struct {
	Seq     uint64
	TsUs    uint64
	Payload [PayloadSize]byte
}

// Encode serializes p into a fixed PacketSize-byte buffer.
func (p *Packet) Encode() []byte {
	buf := make([]byte, PacketSize)
	binary.BigEndian.PutUint64(buf[0:8], p.Seq)
	binary.BigEndian.PutUint64(buf[8:16], p.TsUs)
	copy(buf[packetHeaderSize:], p.Payload[:])
	return buf
}

// DecodePacket parses buf as an attack datagram.
func DecodePacket(buf []byte) (Packet, error) {
	if len(buf) < packetHeaderSize {
		return Packet{}, fmt.Errorf("dataplane: packet too short (%d bytes)", len(buf))
	}
	var p Packet
	p.Seq = binary.BigEndian.Uint64(buf[0:8])
	p.TsUs = binary.BigEndian.Uint64(buf[8:16])
	copy(p.Payload[:], buf[packetHeaderSize:])
	return p, nil
}

// Ack is the responder's periodic sample: {highest_seq, total_received}.
type Ack struct {
	HighestSeq    uint64
	TotalReceived uint64
}

// Encode serializes a into a fixed ackSize-byte buffer.
func (a Ack) Encode() []byte {
	buf := make([]byte, ackSize)
	binary.BigEndian.PutUint64(buf[0:8], a.HighestSeq)
	binary.BigEndian.PutUint64(buf[8:16], a.TotalReceived)
	return buf
}

// DecodeAck parses buf as an ACK.
func DecodeAck(buf []byte) (Ack, error) {
	if len(buf) < ackSize {
		return Ack{}, fmt.Errorf("dataplane: ack too short (%d bytes)", len(buf))
	}
	return Ack{
		HighestSeq:    binary.BigEndian.Uint64(buf[0:8]),
		TotalReceived: binary.BigEndian.Uint64(buf[8:16]),
	}, nil
}
