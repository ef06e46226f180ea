package wire

import (
	"bytes"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := AppendEntriesRequest{
		Term:         7,
		LeaderID:     "tile-1",
		PrevLogIndex: 3,
		PrevLogTerm:  6,
		Entries:      []LogEntry{{Index: 4, Term: 7, Payload: []byte("hi")}},
		LeaderCommit: 3,
	}

	if err := WriteMessage(&buf, OpAppendEntries, req); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	header, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if header.OpCode != OpAppendEntries {
		t.Fatalf("opcode = %d, want %d", header.OpCode, OpAppendEntries)
	}

	var got AppendEntriesRequest
	if err := ReadBody(&buf, header.Length, &got); err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	if got.Term != req.Term || got.LeaderID != req.LeaderID || len(got.Entries) != 1 {
		t.Fatalf("round-tripped request mismatch: got %+v", got)
	}
}

func TestBlankBodyRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, OpError, nil); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	header, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if header.Length != 0 {
		t.Fatalf("expected zero length body, got %d", header.Length)
	}
}
