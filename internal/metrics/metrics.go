// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels of ICRCChecksTotal.
const (
	ResultValid          = "valid"
	ResultInvalid        = "invalid"
	ResultMissingTrailer = "missing_trailer"
	ResultNotRoCE        = "not_roce"
	ResultError          = "error"
)

var (
	// FramesCraftedTotal counts frames built from templates
	FramesCraftedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rocev2_frames_crafted_total",
			Help: "Total number of frames crafted from templates",
		},
		[]string{"template", "opcode"},
	)

	// FramesSentTotal counts frames handed to a sender
	FramesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rocev2_frames_sent_total",
			Help: "Total number of frames sent",
		},
		[]string{"sender"},
	)

	// SendErrorsTotal counts frames a sender failed to write
	SendErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rocev2_send_errors_total",
			Help: "Total number of frames that failed to send",
		},
		[]string{"sender"},
	)

	// SendLatencySeconds measures a single frame write
	SendLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rocev2_send_latency_seconds",
			Help:    "Latency of a single frame write in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		},
		[]string{"sender"},
	)

	// FramesCapturedTotal counts frames read from a source
	FramesCapturedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rocev2_frames_captured_total",
			Help: "Total number of frames read from a source",
		},
		[]string{"source"},
	)

	// ICRCChecksTotal counts iCRC verifications by result
	ICRCChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rocev2_icrc_checks_total",
			Help: "Total number of iCRC verifications by result",
		},
		[]string{"result"},
	)

	// DecodeErrorsTotal counts frames that failed to decode
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rocev2_decode_errors_total",
			Help: "Total number of frames that failed to decode",
		},
		[]string{"source"},
	)
)
