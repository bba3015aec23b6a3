package rabbitmq

// QueueConfig names the durable exchange/queue/DLQ trio one consumer works
// against. The publisher and the consumer must agree on these values.
type QueueConfig struct {
	Exchange      string
	Queue         string
	RoutingKey    string
	DLX           string
	DLQ           string
	DLQRoutingKey string
}

var (
	// FinalizeQueue carries chunked-finalize jobs.
	FinalizeQueue = QueueConfig{
		Exchange:      "recording_exchange",
		Queue:         "recording_finalize_queue",
		RoutingKey:    "recording.finalize.request",
		DLX:           "recording_exchange_dlx",
		DLQ:           "recording_finalize_queue_dlq",
		DLQRoutingKey: "dlq.recording.finalize.request",
	}

	// SimpleStoreQueue carries simple-upload store jobs.
	SimpleStoreQueue = QueueConfig{
		Exchange:      "recording_exchange",
		Queue:         "recording_store_queue",
		RoutingKey:    "recording.store.request",
		DLX:           "recording_exchange_dlx",
		DLQ:           "recording_store_queue_dlq",
		DLQRoutingKey: "dlq.recording.store.request",
	}
)
