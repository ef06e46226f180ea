package dataplane

import "testing"

func TestPacketRoundTrip(t *testing.T) {
	p := Packet{Seq: 42, TsUs: 123456789}
	p.Payload[0] = 0xAB
	p.Payload[PayloadSize-1] = 0xCD

	decoded, err := DecodePacket(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Seq != p.Seq || decoded.TsUs != p.TsUs {
		t.Fatalf("header mismatch: got %+v", decoded)
	}
	if decoded.Payload[0] != 0xAB || decoded.Payload[PayloadSize-1] != 0xCD {
		t.Fatalf("payload mismatch")
	}
}

func TestAckRoundTrip(t *testing.T) {
	a := Ack{HighestSeq: 7, TotalReceived: 5}
	decoded, err := DecodeAck(a.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != a {
		t.Fatalf("ack mismatch: got %+v, want %+v", decoded, a)
	}
}

func TestDecodePacketRejectsShortBuffer(t *testing.T) {
	if _, err := DecodePacket(make([]byte, 4)); err == nil {
		t.Fatal("expected error decoding a too-short buffer")
	}
}
