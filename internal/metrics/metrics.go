package metrics

import (
	"context"
	"sync"

	"github.com/eventlane/ticketing/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Booking counters
	BookingsCreated   *telemetry.Counter
	BookingsConfirmed *telemetry.Counter
	BookingsCancelled *telemetry.Counter
	BookingsCheckedIn *telemetry.Counter
	BookingsExpired   *telemetry.Counter
	BookingsRejected  *telemetry.Counter

	// Webhook counters
	WebhookReplays   *telemetry.Counter
	WebhookConflicts *telemetry.Counter
	WebhookUnknown   *telemetry.Counter

	// Refund counter
	RefundsRequired *telemetry.Counter

	// Histograms
	ConfirmationLatency *telemetry.Histogram

	// Gauges
	PendingBookings *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all booking metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	BookingsCreated, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_bookings_created_total",
		Description: "Total number of bookings created",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsConfirmed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_bookings_confirmed_total",
		Description: "Total number of bookings confirmed by payment",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsCancelled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_bookings_cancelled_total",
		Description: "Total number of cancelled bookings by actor",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsCheckedIn, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_bookings_checked_in_total",
		Description: "Total number of checked-in bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsExpired, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_bookings_expired_total",
		Description: "Total number of pending bookings expired by the sweeper",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsRejected, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_bookings_rejected_total",
		Description: "Total number of rejected booking attempts by reason",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhookReplays, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_webhook_replays_total",
		Description: "Total number of idempotent webhook replays",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhookConflicts, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_webhook_conflicts_total",
		Description: "Total number of contradictory webhook deliveries",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhookUnknown, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_webhook_unknown_total",
		Description: "Total number of webhook deliveries for unknown transactions",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RefundsRequired, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_refunds_required_total",
		Description: "Total number of cancellations needing a refund",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	ConfirmationLatency, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "ticketing_confirmation_latency_seconds",
		Description: "Time from booking creation to payment confirmation",
		Unit:        "s",
	}, []float64{1, 5, 10, 30, 60, 120, 300, 600, 900})
	if err != nil {
		return err
	}

	PendingBookings, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "ticketing_pending_bookings",
		Description: "Current number of pending bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordBookingCreated records a new pending booking
func RecordBookingCreated(ctx context.Context, eventID, ticketTypeID string, quantity int) {
	if BookingsCreated != nil {
		BookingsCreated.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("ticket_type_id", ticketTypeID),
			attribute.Int("quantity", quantity),
		)
	}
	if PendingBookings != nil {
		PendingBookings.Inc(ctx)
	}
}

// RecordBookingRejected records a rejected booking attempt
func RecordBookingRejected(ctx context.Context, ticketTypeID, reason string) {
	if BookingsRejected != nil {
		BookingsRejected.Inc(ctx,
			attribute.String("ticket_type_id", ticketTypeID),
			attribute.String("reason", reason),
		)
	}
}

// RecordConfirmation records a booking confirmed by payment
func RecordConfirmation(ctx context.Context, eventID string, latencySeconds float64) {
	if BookingsConfirmed != nil {
		BookingsConfirmed.Inc(ctx,
			attribute.String("event_id", eventID),
		)
	}
	if ConfirmationLatency != nil {
		ConfirmationLatency.Record(ctx, latencySeconds,
			attribute.String("event_id", eventID),
		)
	}
	if PendingBookings != nil {
		PendingBookings.Dec(ctx)
	}
}

// RecordCancellation records a cancelled booking
func RecordCancellation(ctx context.Context, eventID, actor string, wasPending bool) {
	if BookingsCancelled != nil {
		BookingsCancelled.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("actor", actor),
		)
	}
	if wasPending && PendingBookings != nil {
		PendingBookings.Dec(ctx)
	}
}

// RecordCheckIn records a checked-in booking
func RecordCheckIn(ctx context.Context, eventID string) {
	if BookingsCheckedIn != nil {
		BookingsCheckedIn.Inc(ctx,
			attribute.String("event_id", eventID),
		)
	}
}

// RecordExpiration records sweeper expirations
func RecordExpiration(ctx context.Context, count int64) {
	if count <= 0 {
		return
	}
	if BookingsExpired != nil {
		BookingsExpired.Add(ctx, count)
	}
	if PendingBookings != nil {
		PendingBookings.Add(ctx, -count)
	}
}

// RecordWebhookReplay records an idempotent webhook replay
func RecordWebhookReplay(ctx context.Context, gateway string) {
	if WebhookReplays != nil {
		WebhookReplays.Inc(ctx,
			attribute.String("gateway", gateway),
		)
	}
}

// RecordWebhookConflict records a contradictory webhook delivery
func RecordWebhookConflict(ctx context.Context, gateway string) {
	if WebhookConflicts != nil {
		WebhookConflicts.Inc(ctx,
			attribute.String("gateway", gateway),
		)
	}
}

// RecordWebhookUnknown records a webhook for an unknown transaction
func RecordWebhookUnknown(ctx context.Context, gateway string) {
	if WebhookUnknown != nil {
		WebhookUnknown.Inc(ctx,
			attribute.String("gateway", gateway),
		)
	}
}

// RecordRefundRequired records a cancellation that needs a refund
func RecordRefundRequired(ctx context.Context, eventID string) {
	if RefundsRequired != nil {
		RefundsRequired.Inc(ctx,
			attribute.String("event_id", eventID),
		)
	}
}
