// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReceiverPacketsTotal counts well-formed probe packets recorded by tag
	ReceiverPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udptrain_receiver_packets_total",
			Help: "Total number of probe packets recorded by the collector",
		},
		[]string{"tag"},
	)

	// ReceiverMalformedTotal counts datagrams discarded for a short header
	ReceiverMalformedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "udptrain_receiver_malformed_total",
			Help: "Total number of datagrams discarded as malformed",
		},
	)

	// ReceiverDelimitersTotal counts idle-gap delimiter lines
	ReceiverDelimitersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "udptrain_receiver_delimiters_total",
			Help: "Total number of idle delimiter lines written to the capture buffer",
		},
	)

	// ReceiverFlushesTotal counts capture files written
	ReceiverFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udptrain_receiver_flushes_total",
			Help: "Total number of capture buffer flushes",
		},
		[]string{"result"},
	)

	// ReceiverFlushedBytesTotal counts bytes written to capture files
	ReceiverFlushedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "udptrain_receiver_flushed_bytes_total",
			Help: "Total number of bytes written to capture files",
		},
	)

	// ReceiverBufferBytes tracks the size of the in-memory capture buffer
	ReceiverBufferBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "udptrain_receiver_buffer_bytes",
			Help: "Current size of the capture buffer in bytes",
		},
	)

	// SenderPacketsTotal counts probe packets handed to the socket by class
	SenderPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udptrain_sender_packets_total",
			Help: "Total number of probe packets sent",
		},
		[]string{"class"},
	)

	// SenderErrorsTotal counts best-effort sends that failed
	SenderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udptrain_sender_errors_total",
			Help: "Total number of failed probe sends",
		},
		[]string{"class"},
	)
)

// Flush results
const (
	FlushOK     = "ok"
	FlushFailed = "failed"
)
