package consumer

import "github.com/prometheus/client_golang/prometheus"

const metricsSubsystem = "streak_consumer"

func eventCounter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studytrack",
		Subsystem: metricsSubsystem,
		Name:      name,
		Help:      help,
	}, []string{"topic", "event_type"})
}

var (
	processedCounter    = eventCounter("events_applied_total", "Study events applied and committed.")
	handlerErrorCounter = eventCounter("events_failed_total", "Study events whose handler failed for good.")
	retryCounter        = eventCounter("handler_retries_total", "Handler attempts repeated after a transient failure.")

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studytrack",
		Subsystem: metricsSubsystem,
		Name:      "decode_errors_total",
		Help:      "Records skipped because their framing or headers were invalid.",
	}, []string{"topic"})

	lastEventGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "studytrack",
		Subsystem: metricsSubsystem,
		Name:      "last_event_timestamp_seconds",
		Help:      "Kafka timestamp of the newest applied event per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, retryCounter, decodeErrorCounter, lastEventGauge)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastEventGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordRetry(msg Message) {
	retryCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
