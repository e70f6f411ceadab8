// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional collaborator a caller attaches via
// Config.Metrics, a pointer the caller may leave nil: every call site
// checks for nil before touching it, so a Session never requires a
// registered collector.
type Metrics struct {
	BytesSent       prometheus.Counter
	BytesReceived   prometheus.Counter
	PacketsSent     prometheus.Counter
	PacketsReceived prometheus.Counter
	Rekeys          prometheus.Counter
	ChannelsOpened  prometheus.Counter
	ActiveChannels  prometheus.Gauge
	DroppedPackets  prometheus.Counter
}

// NewMetrics builds a Metrics with every collector registered under
// namespace (e.g. "zssh"), ready to pass to prometheus.MustRegister or a
// prometheus.Registry of the caller's choosing.
func NewMetrics(namespace string) *Metrics {
	const subsystem = "ssh"
	return &Metrics{
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "bytes_sent_total",
			Help: "Total payload bytes sent through Session.SendRaw, before framing and encryption.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "bytes_received_total",
			Help: "Total payload bytes of packets read on the Session's receive path, after decryption.",
		}),
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "packets_sent_total",
			Help: "Total packets sent through Session.Send and Session.SendRaw.",
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "packets_received_total",
			Help: "Total packets read on the Session's receive path (Recv, RequestService, Handle).",
		}),
		Rekeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "rekeys_total",
			Help: "Total key re-exchanges completed.",
		}),
		ChannelsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "channels_opened_total",
			Help: "Total connection-layer channels opened, either role.",
		}),
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "channels_active",
			Help: "Connection-layer channels currently open.",
		}),
		DroppedPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "packets_dropped_total",
			Help: "Connection-layer messages referencing an unknown channel, dropped rather than treated as fatal.",
		}),
	}
}
