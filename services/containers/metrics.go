package containers

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tagforge",
		Name:      "generations_total",
		Help:      "Container generation attempts by kind and outcome.",
	}, []string{"kind", "outcome"})

	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tagforge",
		Name:      "downloads_total",
		Help:      "Download requests by outcome.",
	}, []string{"outcome"})

	downloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tagforge",
		Name:      "download_bytes_total",
		Help:      "Artifact bytes served to clients.",
	})
)

// downloadOutcome classifies a token error for metrics. The client response
// stays uniform regardless.
func downloadOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrInvalidSignature):
		return "bad_signature"
	case errors.Is(err, ErrIncompleteToken):
		return "incomplete"
	case errors.Is(err, ErrOrderMismatch):
		return "order_mismatch"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrArtifactMissing):
		return "artifact_missing"
	default:
		return "error"
	}
}
