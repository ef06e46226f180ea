package dataplane

import (
	"context"
	"log"
	"time"

	"github.com/kartikbazzad/territory/internal/grid"
)

// finalKillDuration is the fixed window a captured player's killer gets to
// flood the former client IP, spec.md §4.4.
const finalKillDuration = 10 * time.Second

// FinalKiller launches the local, log-free flood aimed at a dead player's
// client IP from every tile the capturing player owns.
type FinalKiller struct {
	addrPort string // UDP port the client side listens on for the final-kill flood
}

// NewFinalKiller builds a FinalKiller that floods toIP on the client
// dataplane port.
func NewFinalKiller(addrPort string) *FinalKiller {
	return &FinalKiller{addrPort: addrPort}
}

// LaunchFinalKill starts a Flooder toward toIP and stops it after 10
// seconds or ctx cancellation, whichever comes first. fromCoord is used
// only for log context; the flood itself is anonymous UDP traffic.
func (k *FinalKiller) LaunchFinalKill(ctx context.Context, fromCoord grid.Coord, toIP string) {
	target := toIP + ":" + k.addrPort
	f, err := NewFlooder(target)
	if err != nil {
		log.Printf("dataplane: final kill from %s to %s: %v", fromCoord, target, err)
		return
	}

	killCtx, cancel := context.WithTimeout(ctx, finalKillDuration)
	f.Start(killCtx)

	go func() {
		defer cancel()
		<-killCtx.Done()
		f.Stop()
	}()
}
