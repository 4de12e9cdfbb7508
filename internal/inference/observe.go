package inference

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"visionchat/internal/imageres"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "visionchat",
			Subsystem: "inference",
			Name:      "requests_total",
			Help:      "Total number of generations by outcome",
		},
		[]string{"backend", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "visionchat",
			Subsystem: "inference",
			Name:      "duration_seconds",
			Help:      "Duration of generations in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration)
}

type observed struct {
	next    Generator
	backend string
	log     zerolog.Logger
}

// WithLogging wraps gen so every call is logged and counted under backend.
func WithLogging(gen Generator, backend string, log zerolog.Logger) Generator {
	return &observed{next: gen, backend: backend, log: log}
}

func (o *observed) Generate(ctx context.Context, text string, img *imageres.Image) (string, error) {
	start := time.Now()
	out, err := o.next.Generate(ctx, text, img)
	dur := time.Since(start)
	requestDuration.WithLabelValues(o.backend).Observe(dur.Seconds())

	outcome := "ok"
	switch {
	case err == nil:
	case IsUnavailable(err):
		outcome = "unavailable"
	case ctx.Err() != nil:
		outcome = "canceled"
	default:
		outcome = "error"
	}
	requestsTotal.WithLabelValues(o.backend, outcome).Inc()

	ev := o.log.Debug()
	if err != nil {
		ev = o.log.Warn().Err(err)
	}
	ev.Str("backend", o.backend).
		Int("prompt_chars", len(text)).
		Bool("image", img != nil).
		Int("response_chars", len(out)).
		Dur("duration", dur).
		Str("outcome", outcome).
		Msg("generate")
	return out, err
}

// Close forwards to the wrapped generator when it holds resources.
func (o *observed) Close() error {
	if c, ok := o.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
