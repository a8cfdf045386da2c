package acquisition

import (
	"context"
	"time"

	"github.com/banshee-data/scanprofile/internal/gige"
	"github.com/banshee-data/scanprofile/internal/monitoring"
)

// DefaultBuffers is the size of the grab ring.
const DefaultBuffers = 2

// DefaultStatsInterval is how often Run logs frame rates unless the
// Interface was given another interval.
const DefaultStatsInterval = 10 * time.Second

// Run streams frames from d into iface until ctx is done or the transport
// fails. Cancelling ctx waits for the frame in flight. Transport errors
// are returned without retrying.
func Run(ctx context.Context, d gige.Digitizer, iface *Interface, nbBuffers int) error {
	if nbBuffers <= 0 {
		nbBuffers = DefaultBuffers
	}
	iface.attach(d)

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go iface.stats.LogEvery(statsCtx, iface.StatsInterval())

	monitoring.Logf("Acquisition started: mode=%s chain=%s buffers=%d",
		iface.process.Kind(), iface.Chain(), nbBuffers)
	err := d.Process(ctx, nbBuffers, iface.Hook)

	tot := iface.stats.Totals()
	monitoring.Logf("Acquisition stopped: %d frames, %d failed, %d dropped",
		tot.Frames, tot.Failures, d.Dropped())
	return err
}
