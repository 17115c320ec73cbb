package fabric

import "strings"

// Topology shared by both services. Topics group related traffic; routing keys
// select it; queues are the named consumer endpoints.
const (
	TicketTopic = "ticket.exchange"
	OrderTopic  = "order.exchange"

	TicketReserveKey      = "ticket.reserve"
	TicketReleaseKey      = "ticket.release"
	TicketSoldKey         = "ticket.sold"
	TicketStatusUpdateKey = "ticket.status.update"

	OrderCreatedKey    = "order.created"
	OrderCompletedKey  = "order.completed"
	OrderCancelledKey  = "order.cancelled"
	OrderExpiredKey    = "order.expired"
	OrderExpirationKey = "order.expiration"

	TicketReservationQueue   = "ticket.reservation.queue"
	TicketStatusUpdateQueue  = "ticket.status.update.queue"
	OrderStatusQueue         = "order.status.queue"
	OrderExpirationQueue     = "order.expiration.queue"
)

// TicketReservationBinding routes all reservation intents to the ticket
// service.
func TicketReservationBinding() QueueBinding {
	return QueueBinding{
		Queue:    TicketReservationQueue,
		Topic:    TicketTopic,
		Patterns: []string{TicketReserveKey, TicketReleaseKey, TicketSoldKey},
	}
}

// TicketStatusBinding routes transition outcomes back to the order service.
func TicketStatusBinding() QueueBinding {
	return QueueBinding{
		Queue:    TicketStatusUpdateQueue,
		Topic:    TicketTopic,
		Patterns: []string{TicketStatusUpdateKey},
	}
}

// OrderStatusBinding collects every order lifecycle event on one queue.
func OrderStatusBinding() QueueBinding {
	return QueueBinding{
		Queue:    OrderStatusQueue,
		Topic:    OrderTopic,
		Patterns: []string{"order.created", "order.completed", "order.cancelled", "order.expired"},
	}
}

// OrderExpirationBinding routes scheduled TTL notices.
func OrderExpirationBinding() QueueBinding {
	return QueueBinding{
		Queue:    OrderExpirationQueue,
		Topic:    OrderTopic,
		Patterns: []string{OrderExpirationKey},
	}
}

// MatchKey reports whether a routing key matches a binding pattern. Both are
// dot-separated; "*" matches exactly one segment, "#" matches zero or more
// trailing segments.
func MatchKey(pattern, key string) bool {
	ps := strings.Split(pattern, ".")
	ks := strings.Split(key, ".")

	for i, p := range ps {
		if p == "#" {
			return true
		}
		if i >= len(ks) {
			return false
		}
		if p != "*" && p != ks[i] {
			return false
		}
	}
	return len(ps) == len(ks)
}

func (b QueueBinding) matches(key string) bool {
	for _, p := range b.Patterns {
		if MatchKey(p, key) {
			return true
		}
	}
	return false
}
