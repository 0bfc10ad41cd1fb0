package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission pipeline metrics
var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_submissions_total",
			Help: "Total number of submission webhooks by final outcome",
		},
		[]string{"outcome"}, // sent, config_error, bad_payload, provider_error
	)

	ProviderSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_provider_sends_total",
			Help: "Total number of ESP send attempts",
		},
		[]string{"provider", "status"}, // status: sent, failed
	)

	ProviderSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_provider_send_duration_seconds",
			Help:    "Duration of ESP send calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

// Attachment metrics
var (
	AttachmentsAdmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_attachments_admitted_total",
			Help: "Total number of file references fetched and attached",
		},
	)

	AttachmentsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_attachments_dropped_total",
			Help: "Total number of file references dropped before attachment",
		},
		[]string{"reason"}, // excess, status, oversize, budget, network
	)
)

// Backup forwarder metrics
var (
	BackupForwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_backup_forwards_total",
			Help: "Total number of backup mirror attempts",
		},
		[]string{"status"}, // ok, error
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
