package broadcast

import "time"

// StreamType is one of the fan-out channels the broadcaster carries.
type StreamType string

const (
	StreamSecurityEvent     StreamType = "security_event"
	StreamCorrelationAlert  StreamType = "correlation_alert"
	StreamScanProgress      StreamType = "scan_progress"
	StreamSystemMetrics     StreamType = "system_metrics"
	StreamThreatIntelStatus StreamType = "threat_intel_status"
)

// Message is one unit of fan-out: an opaque, already-serialized payload
// tagged with the stream it belongs to and when it was produced. Producers
// (the pipeline, the correlation engine, a scan scheduler) build the
// payload; the broadcaster never inspects it.
type Message struct {
	Stream    StreamType
	Payload   interface{}
	ProducedAt time.Time
}
