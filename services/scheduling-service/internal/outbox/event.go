package outbox

// Event is the envelope written to outbox_events. The Kafka topic is the
// EventType, optionally prefixed per deployment.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
