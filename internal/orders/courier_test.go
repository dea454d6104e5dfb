package orders

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/saman-erp/saman-erp/internal/status"
)

func TestMapCourierStatusNCM(t *testing.T) {
	cases := []struct {
		raw  string
		want status.Status
	}{
		{"Booked", status.StatusHandoverToCourier},
		{"in transit", status.StatusInTransit},
		{"OUT FOR DELIVERY", status.StatusOutForDelivery},
		{"Delivered", status.StatusDelivered},
		{"Undelivered", status.StatusRTOInitiated},
		{"Return in Transit", status.StatusRTOInitiated},
		{"Returned", status.StatusRTOVerificationPending},
		{"RTO", status.StatusRTOVerificationPending},
		{"Return Completed", status.StatusRTOVerificationPending},
	}
	for _, tc := range cases {
		got, ok := MapCourierStatus(CourierNCM, tc.raw)
		require.True(t, ok, "code %q", tc.raw)
		require.Equal(t, tc.want, got, "code %q", tc.raw)
	}
}

func TestMapCourierStatusGaauBesi(t *testing.T) {
	cases := []struct {
		raw  string
		want status.Status
	}{
		{"Order Placed", status.StatusHandoverToCourier},
		{"On the Way", status.StatusInTransit},
		{"Delivered", status.StatusDelivered},
		{"Rejected", status.StatusRTOInitiated},
		{"Return Received", status.StatusRTOVerificationPending},
	}
	for _, tc := range cases {
		got, ok := MapCourierStatus(CourierGaauBesi, tc.raw)
		require.True(t, ok, "code %q", tc.raw)
		require.Equal(t, tc.want, got, "code %q", tc.raw)
	}
}

func TestMapCourierStatusUnknown(t *testing.T) {
	_, ok := MapCourierStatus(CourierNCM, "Mystery Status")
	require.False(t, ok)

	_, ok = MapCourierStatus(Courier("pathao"), "Delivered")
	require.False(t, ok)

	_, ok = MapCourierStatus(CourierGaauBesi, "")
	require.False(t, ok)
}

func TestCourierTablesMapOntoCanonicalSet(t *testing.T) {
	for courier, table := range courierTables {
		for code, mapped := range table {
			require.True(t, mapped.IsValid(), "%s code %q maps to %q", courier, code, mapped)
		}
	}
}
