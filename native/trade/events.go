package trade

import (
	"encoding/hex"
	"strconv"

	"tradevault/core/types"
)

const (
	EventTypeTradeCreated   = "trade.created"
	EventTypeTradeConfirmed = "trade.confirmed"
	EventTypeTradeCanceled  = "trade.canceled"
	EventTypeTradeExpired   = "trade.expired"
	EventTypeTradeWithdrawn = "trade.withdrawn"
)

type tradeEvent struct {
	evt *types.Event
}

func (e tradeEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e tradeEvent) Event() *types.Event { return e.evt }

// NewTradeCreatedEvent returns the canonical payload for a newly created
// trade, keyed by id, seller and buyer.
func NewTradeCreatedEvent(t *Trade) *types.Event {
	return newTradeEvent(EventTypeTradeCreated, t)
}

// NewTradeConfirmedEvent returns the payload emitted on atomic settlement.
func NewTradeConfirmedEvent(t *Trade) *types.Event {
	return newTradeEvent(EventTypeTradeConfirmed, t)
}

// NewTradeCanceledEvent returns the payload emitted when a party cancels.
func NewTradeCanceledEvent(t *Trade) *types.Event {
	return newTradeEvent(EventTypeTradeCanceled, t)
}

// NewTradeExpiredEvent returns the payload emitted by the expiry sweep.
func NewTradeExpiredEvent(t *Trade) *types.Event {
	return newTradeEvent(EventTypeTradeExpired, t)
}

// NewTradeWithdrawnEvent returns the payload emitted when the seller reclaims
// an expired trade's offered leg.
func NewTradeWithdrawnEvent(t *Trade) *types.Event {
	return newTradeEvent(EventTypeTradeWithdrawn, t)
}

func newTradeEvent(eventType string, t *Trade) *types.Event {
	attrs := make(map[string]string)
	if t == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(t.ID, 10)
	attrs["seller"] = hex.EncodeToString(t.Seller[:])
	attrs["buyer"] = hex.EncodeToString(t.Buyer[:])
	attrs["status"] = t.Status.String()
	attrs["deadline"] = strconv.FormatInt(t.Deadline, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
