package dataplane

import (
	"context"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	ackInterval    = 100 * time.Millisecond
	bytesPerAck    = 16
	backoffOnDrop  = 10 * time.Millisecond
)

// peerState tracks what the responder has seen from one attacking address.
type peerState struct {
	highestSeq    uint64
	totalReceived uint64
}

// Responder is the always-on UDP listener every tile runs. It ACKs each
// attacking peer at a fixed 100ms cadence (far below the attack rate, so
// the ACK channel cannot be used to fake health) and enforces the tile's
// own output budget by dropping incoming packets, unacknowledged, once
// that budget is exhausted.
type Responder struct {
	conn *net.UDPConn

	limiter *rate.Limiter

	mu    sync.Mutex
	peers map[string]*peerState

	bytesReceived atomic.Uint64
}

// NewResponder binds 0.0.0.0:8081 and sizes the backpressure limiter from
// the tile's node_capacity (bytes/sec): max_packets_per_second ≈
// capacity / 16B_per_ACK, per spec.md §5.
func NewResponder(capacityBytesPerSec uint64) (*Responder, error) {
	return newResponderOnAddr("0.0.0.0:8081", capacityBytesPerSec)
}

func newResponderOnAddr(bindAddr string, capacityBytesPerSec uint64) (*Responder, error) {
	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	maxPacketsPerSec := float64(capacityBytesPerSec) / bytesPerAck
	if maxPacketsPerSec <= 0 {
		maxPacketsPerSec = 1
	}

	return &Responder{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(maxPacketsPerSec), int(maxPacketsPerSec)),
		peers:   make(map[string]*peerState),
	}, nil
}

// LocalAddr returns the bound UDP address, used by tests that bind to an
// ephemeral port.
func (r *Responder) LocalAddr() string { return r.conn.LocalAddr().String() }

// Close releases the UDP socket.
func (r *Responder) Close() error { return r.conn.Close() }

// Run drives both the receive loop and the 100ms ACK ticker until ctx is
// cancelled.
func (r *Responder) Run(ctx context.Context) {
	go r.ackLoop(ctx)
	r.receiveLoop(ctx)
}

func (r *Responder) receiveLoop(ctx context.Context) {
	buf := make([]byte, PacketSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = r.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue // deadline or transient error; loop back and check ctx
		}

		if !r.limiter.Allow() {
			// Output budget exhausted: drop without ACKing, which the
			// flooder on the other end observes as packet loss.
			time.Sleep(backoffOnDrop)
			continue
		}

		pkt, err := DecodePacket(buf[:n])
		if err != nil {
			continue
		}

		r.bytesReceived.Add(uint64(n))
		r.recordFrom(addr.String(), pkt.Seq)
	}
}

func (r *Responder) recordFrom(peer string, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.peers[peer]
	if !ok {
		st = &peerState{}
		r.peers[peer] = st
	}
	st.totalReceived++
	if seq > st.highestSeq {
		st.highestSeq = seq
	}
}

func (r *Responder) ackLoop(ctx context.Context) {
	ticker := time.NewTicker(ackInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sendAcks()
		}
	}
}

func (r *Responder) sendAcks() {
	r.mu.Lock()
	snapshot := make(map[string]peerState, len(r.peers))
	for peer, st := range r.peers {
		snapshot[peer] = *st
	}
	r.mu.Unlock()

	for peer, st := range snapshot {
		addr, err := net.ResolveUDPAddr("udp", peer)
		if err != nil {
			continue
		}
		ack := Ack{HighestSeq: st.highestSeq, TotalReceived: st.totalReceived}
		if _, err := r.conn.WriteToUDP(ack.Encode(), addr); err != nil {
			log.Printf("dataplane: ack to %s: %v", peer, err)
		}
	}
}

// BandwidthInSince returns bytes received since the last call, divided by
// the elapsed wall time, then resets the counter to zero — the exact
// "swap to zero" aggregation spec.md §4.5 mandates for the 5s metrics tick.
func (r *Responder) BandwidthInSince(elapsed time.Duration) uint64 {
	n := r.bytesReceived.Swap(0)
	if elapsed <= 0 {
		return 0
	}
	return uint64(float64(n) / elapsed.Seconds())
}
