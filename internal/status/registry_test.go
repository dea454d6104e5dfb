package status

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAliases(t *testing.T) {
	cases := map[string]Status{
		"SENT_FOR_DELIVERY": StatusOutForDelivery,
		"sent-for-delivery": StatusOutForDelivery,
		"Shipped":           StatusInTransit,
		"canceled":          StatusCancelled,
		"RTO":               StatusRTOInitiated,
		"return_completed":  StatusReturned,
		"delivered":         StatusDelivered,
		" Delivered ":       StatusDelivered,
		"rto pending":       StatusRTOVerificationPending,
		"lost":              StatusLostInTransit,
	}
	for raw, want := range cases {
		got, ok := Normalize(raw)
		require.True(t, ok, "normalize %q", raw)
		require.Equal(t, want, got, "normalize %q", raw)
	}
}

func TestNormalizeUnknown(t *testing.T) {
	for _, raw := range []string{"", "warehouse_party", "deliveredd", "unknown"} {
		_, ok := Normalize(raw)
		require.False(t, ok, "expected %q to be unrecognized", raw)
	}
}

func TestNormalizeMany(t *testing.T) {
	got := NormalizeMany("Delivered,shipped, bogus ,SENT_FOR_DELIVERY,delivered")
	require.Equal(t, []Status{StatusDelivered, StatusInTransit, StatusOutForDelivery}, got)

	require.Empty(t, NormalizeMany("nope,also-nope"))
}

func TestDerivedSetsReferenceCanonicalValues(t *testing.T) {
	canonical := make(map[Status]bool, len(All))
	for _, s := range All {
		canonical[s] = true
	}
	for name, set := range map[string]map[Status]bool{
		"terminal":         Terminal,
		"editable":         Editable,
		"stock_restoring":  StockRestoring,
		"stock_committing": StockCommitting,
	} {
		for s := range set {
			require.Truef(t, canonical[s], "%s set contains non-canonical value %q", name, s)
		}
	}
}

func TestAliasesNeverShadowCanonicalValues(t *testing.T) {
	for canonical, list := range aliases {
		for _, alias := range list {
			got, ok := Normalize(alias)
			require.True(t, ok)
			require.Equal(t, canonical, got)
			require.NotContains(t, All, Status(alias))
		}
	}
}

func TestValidForFulfillment(t *testing.T) {
	require.False(t, ValidForFulfillment(StatusHandoverToCourier, FulfillmentInsideValley))
	require.False(t, ValidForFulfillment(StatusInTransit, FulfillmentInsideValley))
	require.True(t, ValidForFulfillment(StatusOutForDelivery, FulfillmentInsideValley))

	require.False(t, ValidForFulfillment(StatusAssigned, FulfillmentOutsideValley))
	require.False(t, ValidForFulfillment(StatusOutForDelivery, FulfillmentOutsideValley))
	require.True(t, ValidForFulfillment(StatusInTransit, FulfillmentOutsideValley))

	for s := range deliveryStatuses {
		require.False(t, ValidForFulfillment(s, FulfillmentStore))
	}
	require.True(t, ValidForFulfillment(StatusDelivered, FulfillmentStore))

	require.False(t, ValidForFulfillment(StatusDelivered, FulfillmentType("bogus")))
}
