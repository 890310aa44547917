package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	WebhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "waresponder_webhook_requests_total", Help: "Inbound webhook requests"},
		[]string{"endpoint", "status"},
	)
	PipelineOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "waresponder_pipeline_outcomes_total", Help: "Reply pipeline outcomes"},
		[]string{"outcome"},
	)
	GatewaySend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "waresponder_gateway_send_total", Help: "Outbound gateway send outcomes"},
		[]string{"result", "http_status"},
	)
	GatewayLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "waresponder_gateway_send_latency_seconds", Help: "Outbound gateway send latency"},
	)
	AICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "waresponder_ai_calls_total", Help: "AI vendor call outcomes"},
		[]string{"vendor", "result"},
	)
	AILatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "waresponder_ai_call_latency_seconds", Help: "AI vendor call latency"},
	)
	BroadcastItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "waresponder_broadcast_items_total", Help: "Broadcast queue item outcomes"},
		[]string{"result"},
	)
	OwnerAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "waresponder_owner_alerts_total", Help: "Best-effort owner alert outcomes"},
		[]string{"result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(WebhookRequests, PipelineOutcomes, GatewaySend, GatewayLatency,
		AICalls, AILatency, BroadcastItems, OwnerAlerts)
}
