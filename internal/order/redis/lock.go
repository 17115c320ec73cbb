package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ticket-marketplace/internal/logger"
)

// Redis enforces the at-most-one-PENDING-order-per-ticket invariant at order
// creation time. A hold is a SetNX key owned by the order that placed it; the
// TTL is a safety net so a crashed process cannot strand a ticket past its
// order's expiry window.
type Redis struct {
	Client  *redis.Client
	HoldTTL time.Duration
	Logger  *logger.Logger
}

func NewRedis(client *redis.Client, holdTTL time.Duration, log *logger.Logger) *Redis {
	return &Redis{Client: client, HoldTTL: holdTTL, Logger: log}
}

func holdKey(ticketID string) string {
	return "ticket_hold:" + ticketID
}

// HoldTicket claims the ticket for the given order. Returns false when
// another pending order already holds it.
func (r *Redis) HoldTicket(ticketID, orderID string) (bool, error) {
	ok, err := r.Client.SetNX(context.Background(), holdKey(ticketID), orderID, r.HoldTTL).Result()
	if err != nil {
		return false, fmt.Errorf("hold ticket %s: %w", ticketID, err)
	}
	return ok, nil
}

// ReleaseHold drops the hold, but only if this order still owns it. Releasing
// an absent or foreign hold is a no-op so duplicate releases are safe.
func (r *Redis) ReleaseHold(ticketID, orderID string) error {
	ctx := context.Background()
	key := holdKey(ticketID)

	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release hold %s: %w", ticketID, err)
	}
	if val != orderID {
		r.Logger.Warn("REDIS", fmt.Sprintf("hold on %s owned by %s, not %s; leaving it", ticketID, val, orderID))
		return nil
	}

	_, err = r.Client.Del(ctx, key).Result()
	return err
}

// HeldBy reports the order currently holding the ticket, if any.
func (r *Redis) HeldBy(ticketID string) (string, error) {
	val, err := r.Client.Get(context.Background(), holdKey(ticketID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}
