package orders

import (
	"strings"

	"github.com/saman-erp/saman-erp/internal/status"
)

// Courier identifies an external delivery partner.
type Courier string

const (
	CourierNCM      Courier = "ncm"
	CourierGaauBesi Courier = "gaau_besi"
)

// Courier vocabularies map partner status strings onto canonical statuses.
// Return-completed signals land in rto_verification_pending, never directly
// in returned: stock restoration waits for warehouse verification. The
// lost_in_transit status is deliberately absent from both tables; it is
// reachable only through the explicit dispute action.
var ncmStatuses = map[string]status.Status{
	"booked":             status.StatusHandoverToCourier,
	"pickup complete":    status.StatusHandoverToCourier,
	"dispatched":         status.StatusInTransit,
	"in transit":         status.StatusInTransit,
	"out for delivery":   status.StatusOutForDelivery,
	"delivered":          status.StatusDelivered,
	"undelivered":        status.StatusRTOInitiated,
	"return in transit":  status.StatusRTOInitiated,
	"rto":                status.StatusRTOVerificationPending,
	"returned":           status.StatusRTOVerificationPending,
	"return completed":   status.StatusRTOVerificationPending,
	"delivery cancelled": status.StatusRTOInitiated,
}

var gaauBesiStatuses = map[string]status.Status{
	"order placed":      status.StatusHandoverToCourier,
	"package picked up": status.StatusHandoverToCourier,
	"on the way":        status.StatusInTransit,
	"out for delivery":  status.StatusOutForDelivery,
	"delivered":         status.StatusDelivered,
	"rejected":          status.StatusRTOInitiated,
	"return to vendor":  status.StatusRTOInitiated,
	"return received":   status.StatusRTOVerificationPending,
}

var courierTables = map[Courier]map[string]status.Status{
	CourierNCM:      ncmStatuses,
	CourierGaauBesi: gaauBesiStatuses,
}

// MapCourierStatus resolves a partner status string. The second return is
// false for an unknown courier or an unmapped code.
func MapCourierStatus(courier Courier, raw string) (status.Status, bool) {
	table, ok := courierTables[courier]
	if !ok {
		return "", false
	}
	s, ok := table[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}
