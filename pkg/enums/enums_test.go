package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTerminal(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderStatusPending:        false,
		OrderStatusConfirmed:      false,
		OrderStatusPreparing:      false,
		OrderStatusReady:          false,
		OrderStatusOutForDelivery: false,
		OrderStatusDelivered:      true,
		OrderStatusCompleted:      true,
		OrderStatusCancelled:      true,
		OrderStatusRejected:       true,
	}
	for status, want := range terminal {
		assert.Equal(t, want, status.IsTerminal(), "status %s", status)
		assert.True(t, status.IsValid())
	}
}

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus("out_for_delivery")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusOutForDelivery, got)

	_, err = ParseOrderStatus("lost")
	assert.Error(t, err)
}

func TestUnitTypeIsPiece(t *testing.T) {
	assert.True(t, UnitTypePiece.IsPiece())
	assert.True(t, UnitType("").IsPiece())
	assert.False(t, UnitTypeKg.IsPiece())
	assert.False(t, UnitTypeMl.IsPiece())

	_, err := ParseUnitType("pound")
	assert.Error(t, err)
}

func TestParseVerticalAndMethods(t *testing.T) {
	v, err := ParseVertical("market")
	require.NoError(t, err)
	assert.Equal(t, VerticalMarket, v)

	_, err = ParseDeliveryMethod("drone")
	assert.Error(t, err)

	d, err := ParseDeliveryMethod(" Pickup ")
	require.NoError(t, err)
	assert.Equal(t, DeliveryMethodPickup, d)

	p, err := ParsePaymentMethod("card")
	require.NoError(t, err)
	assert.True(t, p.IsValid())
}
