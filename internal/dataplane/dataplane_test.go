package dataplane

import (
	"context"
	"testing"
	"time"
)

func TestFlooderAgainstResponderConvergesToLowLoss(t *testing.T) {
	resp, err := newResponderOnAddr("127.0.0.1:0", 10*1024*1024)
	if err != nil {
		t.Fatalf("new responder: %v", err)
	}
	defer resp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go resp.Run(ctx)

	f, err := NewFlooder(resp.LocalAddr())
	if err != nil {
		t.Fatalf("new flooder: %v", err)
	}
	f.Start(ctx)
	defer f.Stop()

	time.Sleep(500 * time.Millisecond)

	if f.Sent() == 0 {
		t.Fatal("expected the flooder to have sent packets")
	}
	if loss := f.PacketLoss(); loss > 0.5 {
		t.Fatalf("expected low loss against an unsaturated responder, got %v", loss)
	}
}

func TestResponderDropsPacketsPastCapacityBudget(t *testing.T) {
	// A minuscule capacity (in bytes/sec) yields an ~zero packet budget,
	// so the responder must drop without acking rather than panic.
	resp, err := newResponderOnAddr("127.0.0.1:0", 1)
	if err != nil {
		t.Fatalf("new responder: %v", err)
	}
	defer resp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go resp.Run(ctx)

	f, err := NewFlooder(resp.LocalAddr())
	if err != nil {
		t.Fatalf("new flooder: %v", err)
	}
	f.Start(ctx)
	defer f.Stop()

	time.Sleep(300 * time.Millisecond)

	if f.Sent() == 0 {
		t.Fatal("expected the flooder to have attempted sends")
	}
	if loss := f.PacketLoss(); loss < 0.5 {
		t.Fatalf("expected a saturated responder to cause high loss, got %v", loss)
	}
}
