// Package metrics defines the Prometheus metrics exported by this
// process, all under the "preboot_oxide_" namespace, grounded on
// athena-dhcpd's internal/metrics/metrics.go (one promauto-registered
// var block per subsystem).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "preboot_oxide"

// --- DHCP proxy metrics (§4.4) ---

var (
	// DHCPFramesTotal counts every DHCP frame the proxy observed, by
	// message type.
	DHCPFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dhcp_frames_total",
		Help:      "Total DHCP frames observed, by message type.",
	}, []string{"type"})

	// DHCPProxyRepliesTotal counts proxy OFFER/ACK frames sent.
	DHCPProxyRepliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dhcp_proxy_replies_total",
		Help:      "Total proxy DHCP replies sent, by message type.",
	}, []string{"type"})

	// DHCPResolveErrorsTotal counts config-resolution failures, by reason.
	DHCPResolveErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dhcp_resolve_errors_total",
		Help:      "Total boot configuration resolution errors, by reason.",
	}, []string{"reason"})

	// SessionsActive is a gauge of sessions currently tracked.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of DHCP transactions currently tracked.",
	})

	// SessionsReapedTotal counts sessions removed by the TTL reaper, by
	// reason.
	SessionsReapedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_reaped_total",
		Help:      "Total sessions removed by the TTL reaper, by reason.",
	}, []string{"reason"})

	// SessionsEvictedTotal counts sessions evicted for capacity.
	SessionsEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_evicted_total",
		Help:      "Total sessions evicted to make room under max_sessions.",
	})
)

// --- TFTP server metrics (§4.5) ---

var (
	// TFTPTransfersTotal counts completed transfers, by outcome.
	TFTPTransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tftp_transfers_total",
		Help:      "Total TFTP transfers, by outcome.",
	}, []string{"outcome"})

	// TFTPBytesSentTotal counts bytes streamed to clients.
	TFTPBytesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tftp_bytes_sent_total",
		Help:      "Total bytes sent over all TFTP transfers.",
	})

	// TFTPRetransmitsTotal counts DATA window retransmits.
	TFTPRetransmitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tftp_retransmits_total",
		Help:      "Total TFTP window retransmits.",
	})

	// TFTPTransfersActive is a gauge of in-flight transfers.
	TFTPTransfersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tftp_transfers_active",
		Help:      "Number of TFTP transfers currently in flight.",
	})
)
