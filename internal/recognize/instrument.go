package recognize

import (
	"context"
	"time"

	"github.com/MrWong99/tunetrace/internal/observe"
	"github.com/MrWong99/tunetrace/pkg/provider/recognition"
	"github.com/MrWong99/tunetrace/pkg/track"
)

// instrumented records request, latency and error metrics for every call to
// the wrapped provider.
type instrumented struct {
	next    recognition.Provider
	metrics *observe.Metrics
}

// Instrument wraps p so every Identify call is recorded in m under p's name.
// Wrap each concrete provider before combining them in a failover group so
// the metrics stay per provider.
func Instrument(p recognition.Provider, m *observe.Metrics) recognition.Provider {
	return &instrumented{next: p, metrics: m}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Identify(ctx context.Context, payload []byte) ([]track.Candidate, error) {
	start := time.Now()
	cands, err := i.next.Identify(ctx, payload)
	elapsed := time.Since(start).Seconds()

	name := i.next.Name()
	switch {
	case err != nil:
		kind := recognition.Transient
		if recognition.IsPermanent(err) {
			kind = recognition.Permanent
		}
		i.metrics.RecordProviderRequest(ctx, name, "error", elapsed)
		i.metrics.RecordProviderError(ctx, name, kind.String())
	case len(cands) == 0:
		i.metrics.RecordProviderRequest(ctx, name, "no_match", elapsed)
	default:
		i.metrics.RecordProviderRequest(ctx, name, "ok", elapsed)
	}
	return cands, err
}
