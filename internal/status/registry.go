// Package status holds the canonical order status vocabulary and the
// normalization rules that map frontend and legacy variants onto it.
package status

import "strings"

// Status is a canonical order status value.
type Status string

const (
	StatusIntake                 Status = "intake"
	StatusConfirmed              Status = "confirmed"
	StatusPacked                 Status = "packed"
	StatusAssigned               Status = "assigned"
	StatusHandoverToCourier      Status = "handover_to_courier"
	StatusInTransit              Status = "in_transit"
	StatusOutForDelivery         Status = "out_for_delivery"
	StatusDelivered              Status = "delivered"
	StatusCancelled              Status = "cancelled"
	StatusRTOInitiated           Status = "rto_initiated"
	StatusRTOVerificationPending Status = "rto_verification_pending"
	StatusReturned               Status = "returned"
	StatusLostInTransit          Status = "lost_in_transit"
	StatusExchanged              Status = "exchanged"
)

// FulfillmentType distinguishes how an order is fulfilled.
type FulfillmentType string

const (
	FulfillmentInsideValley  FulfillmentType = "inside_valley"
	FulfillmentOutsideValley FulfillmentType = "outside_valley"
	FulfillmentStore         FulfillmentType = "store"
)

// LeadStatus is the pre-order lead lifecycle.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusFollowUp  LeadStatus = "follow_up"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusDropped   LeadStatus = "dropped"
)

// All enumerates every canonical order status.
var All = []Status{
	StatusIntake,
	StatusConfirmed,
	StatusPacked,
	StatusAssigned,
	StatusHandoverToCourier,
	StatusInTransit,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
	StatusRTOInitiated,
	StatusRTOVerificationPending,
	StatusReturned,
	StatusLostInTransit,
	StatusExchanged,
}

// Terminal statuses permit no further transition.
var Terminal = map[Status]bool{
	StatusDelivered:     true,
	StatusCancelled:     true,
	StatusReturned:      true,
	StatusLostInTransit: true,
}

// Editable statuses still allow the order contents to change.
var Editable = map[Status]bool{
	StatusIntake:    true,
	StatusConfirmed: true,
	StatusPacked:    true,
}

// StockRestoring statuses imply previously committed stock returns to
// available inventory when entered.
var StockRestoring = map[Status]bool{
	StatusCancelled: true,
	StatusReturned:  true,
	StatusExchanged: true,
}

// StockCommitting statuses are those whose entry has already decremented
// stock, so a later stock-restoring transition must reverse it.
var StockCommitting = map[Status]bool{
	StatusPacked:                 true,
	StatusAssigned:               true,
	StatusHandoverToCourier:      true,
	StatusInTransit:              true,
	StatusOutForDelivery:         true,
	StatusRTOInitiated:           true,
	StatusRTOVerificationPending: true,
}

// legacy frontend and v1 API spellings, keyed by canonical value.
var aliases = map[Status][]string{
	StatusIntake:                 {"order_placed", "new_order"},
	StatusConfirmed:              {"verified"},
	StatusAssigned:               {"rider_assigned"},
	StatusHandoverToCourier:      {"sent_to_courier", "courier_handover"},
	StatusInTransit:              {"shipped", "on_the_way"},
	StatusOutForDelivery:         {"sent_for_delivery", "ofd"},
	StatusDelivered:              {"completed"},
	StatusCancelled:              {"canceled", "order_cancelled"},
	StatusRTOInitiated:           {"rto", "return_initiated"},
	StatusRTOVerificationPending: {"rto_pending", "return_received"},
	StatusReturned:               {"return_completed"},
	StatusLostInTransit:          {"lost"},
}

// lookup is built once: lower-cased canonical values plus every alias,
// all with separators collapsed to underscores.
var lookup = buildLookup()

func buildLookup() map[string]Status {
	m := make(map[string]Status, len(All)*2)
	for _, s := range All {
		m[string(s)] = s
	}
	for canonical, list := range aliases {
		for _, alias := range list {
			m[alias] = canonical
		}
	}
	return m
}

func fold(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// Normalize resolves a raw status string to its canonical value. The second
// return is false when the input is not recognized; callers must treat that
// as a validation failure rather than an empty request.
func Normalize(raw string) (Status, bool) {
	if raw == "" {
		return "", false
	}
	s, ok := lookup[fold(raw)]
	return s, ok
}

// NormalizeMany splits a comma separated list, normalizes each element,
// drops unrecognized entries and de-duplicates preserving first-seen order.
func NormalizeMany(csv string) []Status {
	parts := strings.Split(csv, ",")
	seen := make(map[Status]bool, len(parts))
	var out []Status
	for _, p := range parts {
		s, ok := Normalize(p)
		if !ok || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// deliveryStatuses are statuses tied to physical courier movement.
var deliveryStatuses = map[Status]bool{
	StatusAssigned:          true,
	StatusHandoverToCourier: true,
	StatusInTransit:         true,
	StatusOutForDelivery:    true,
}

// ValidForFulfillment reports whether a status is reachable for the given
// fulfillment type. Inside-valley orders are delivered by own riders, so the
// courier statuses are off limits; outside valley is courier-only; store
// pickups never enter the delivery pipeline.
func ValidForFulfillment(s Status, ft FulfillmentType) bool {
	switch ft {
	case FulfillmentInsideValley:
		return s != StatusHandoverToCourier && s != StatusInTransit
	case FulfillmentOutsideValley:
		return s != StatusAssigned && s != StatusOutForDelivery
	case FulfillmentStore:
		return !deliveryStatuses[s]
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is permitted.
func (s Status) IsTerminal() bool { return Terminal[s] }

// IsValid reports membership in the canonical enumeration.
func (s Status) IsValid() bool {
	_, ok := lookup[string(s)]
	return ok && lookup[string(s)] == s
}
