// Package telemetry records chat widget analytics. A Recorder is constructed
// explicitly and handed to whatever needs it; nothing registers at import time.
package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives widget events.
type Recorder interface {
	ConnectAttempt(retry bool)
	ConnectionState(state string)
	FrameReceived(frameType string)
	FrameDropped(reason string)
	MessageSent(path string)
	DuplicateReplyDropped(source string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) ConnectAttempt(bool)          {}
func (Nop) ConnectionState(string)       {}
func (Nop) FrameReceived(string)         {}
func (Nop) FrameDropped(string)          {}
func (Nop) MessageSent(string)           {}
func (Nop) DuplicateReplyDropped(string) {}

var connectionStates = []string{"disconnected", "connecting", "connected"}

// Prometheus records events as prometheus metrics on a caller-owned registry.
type Prometheus struct {
	reg prometheus.Registerer

	connectAttempts *prometheus.CounterVec
	state           *prometheus.GaugeVec
	framesReceived  *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	messagesSent    *prometheus.CounterVec
	duplicates      *prometheus.CounterVec
}

// NewPrometheus registers the chat metrics on reg. Close unregisters them.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		reg: reg,
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobchat",
			Name:      "connect_attempts_total",
			Help:      "Websocket connection attempts, split by initial connect and retry.",
		}, []string{"kind"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jobchat",
			Name:      "connection_state",
			Help:      "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobchat",
			Name:      "frames_received_total",
			Help:      "Inbound frames by type.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobchat",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped before reaching the message log.",
		}, []string{"reason"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobchat",
			Name:      "messages_sent_total",
			Help:      "User messages sent, by delivery path.",
		}, []string{"path"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobchat",
			Name:      "duplicate_replies_dropped_total",
			Help:      "Bot replies dropped because their exchange was already resolved.",
		}, []string{"source"}),
	}

	var registered []prometheus.Collector
	for _, c := range p.collectors() {
		if err := reg.Register(c); err != nil {
			for _, r := range registered {
				reg.Unregister(r)
			}
			return nil, err
		}
		registered = append(registered, c)
	}
	p.ConnectionState("disconnected")
	return p, nil
}

func (p *Prometheus) collectors() []prometheus.Collector {
	return []prometheus.Collector{p.connectAttempts, p.state, p.framesReceived, p.framesDropped, p.messagesSent, p.duplicates}
}

// Close unregisters every metric.
func (p *Prometheus) Close() error {
	var errs []error
	for _, c := range p.collectors() {
		if !p.reg.Unregister(c) {
			errs = append(errs, errors.New("telemetry: collector was not registered"))
		}
	}
	return errors.Join(errs...)
}

func (p *Prometheus) ConnectAttempt(retry bool) {
	kind := "initial"
	if retry {
		kind = "retry"
	}
	p.connectAttempts.WithLabelValues(kind).Inc()
}

func (p *Prometheus) ConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		p.state.WithLabelValues(s).Set(v)
	}
}

func (p *Prometheus) FrameReceived(frameType string) {
	p.framesReceived.WithLabelValues(frameType).Inc()
}

func (p *Prometheus) FrameDropped(reason string) {
	p.framesDropped.WithLabelValues(reason).Inc()
}

func (p *Prometheus) MessageSent(path string) {
	p.messagesSent.WithLabelValues(path).Inc()
}

func (p *Prometheus) DuplicateReplyDropped(source string) {
	p.duplicates.WithLabelValues(source).Inc()
}
