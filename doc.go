// Package analytics provides a Go client SDK for the PulseKit event
// ingestion API.
//
// Events are validated and enriched synchronously on the calling goroutine,
// then buffered and delivered in batches by a background worker. Delivery
// failures are classified per response: retryable conditions (timeouts,
// throttling, server errors, network failures) are rescheduled with
// exponential backoff, oversized payloads are split and resent, and terminal
// rejections are reported through callbacks. Track never blocks on the
// network.
//
// Basic usage:
//
//	client, err := analytics.NewClient("api-key")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Shutdown(context.Background())
//
//	event := analytics.NewEvent("button_clicked")
//	event.UserID = "user-42"
//	event.EventProperties = analytics.NewProperties().
//		Set("button", "signup").
//		Set("page", "/pricing")
//	if err := client.Track(event); err != nil {
//		log.Printf("invalid event: %v", err)
//	}
//
// The pipeline is extensible through plugins: EnrichmentPlugin implementations
// transform or filter events before buffering, and DestinationPlugin
// implementations deliver them to additional backends (see KafkaDestination).
package analytics
