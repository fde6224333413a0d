package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositStatus(t *testing.T) {
	for _, name := range []string{"pending", "approved", "rejected"} {
		st, err := ParseDepositStatus(name)
		require.NoError(t, err)
		assert.True(t, st.Valid())
		assert.Equal(t, name, st.String())
	}

	_, err := ParseDepositStatus("PENDING")
	assert.Error(t, err)

	var zero DepositStatus
	assert.False(t, zero.Valid())
	_, err = zero.Value()
	assert.Error(t, err)

	assert.False(t, DepositPending.Terminal())
	assert.True(t, DepositApproved.Terminal())
	assert.True(t, DepositRejected.Terminal())
}

func TestDepositStatus_Scan(t *testing.T) {
	var st DepositStatus
	require.NoError(t, st.Scan("approved"))
	assert.Equal(t, DepositApproved, st)
	require.NoError(t, st.Scan([]byte("rejected")))
	assert.Equal(t, DepositRejected, st)
	assert.Error(t, st.Scan(int64(1)))
	assert.Error(t, st.Scan("refunded"))
}

func TestOrderStatus(t *testing.T) {
	for _, name := range []string{"pending", "completed", "cancelled"} {
		st, err := ParseOrderStatus(name)
		require.NoError(t, err)
		assert.Equal(t, name, st.String())

		var scanned OrderStatus
		require.NoError(t, scanned.Scan(name))
		assert.Equal(t, st, scanned)
	}

	_, err := ParseOrderStatus("shipped")
	assert.Error(t, err)

	var zero OrderStatus
	assert.False(t, zero.Valid())
}

func TestStatus_JSON(t *testing.T) {
	b, err := json.Marshal(Order{Status: OrderCompleted})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":"completed"`)

	_, err = json.Marshal(Order{})
	assert.Error(t, err)

	var d Deposit
	require.NoError(t, json.Unmarshal([]byte(`{"status":"pending"}`), &d))
	assert.Equal(t, DepositPending, d.Status)
	assert.Error(t, json.Unmarshal([]byte(`{"status":"done"}`), &d))
}

func TestEventType_AffectsBalance(t *testing.T) {
	assert.True(t, EventOrderCreated.AffectsBalance())
	assert.True(t, EventCheckoutCompleted.AffectsBalance())
	assert.True(t, EventDepositApproved.AffectsBalance())
	assert.True(t, EventOrderCancelled.AffectsBalance())
	assert.False(t, EventDepositSubmitted.AffectsBalance())
	assert.False(t, EventDepositRejected.AffectsBalance())
	assert.False(t, EventOrderApproved.AffectsBalance())
}

func TestPaymentMethod_Valid(t *testing.T) {
	assert.True(t, PaymentBkash.Valid())
	assert.True(t, PaymentRocket.Valid())
	assert.False(t, PaymentMethod("nagad").Valid())
}
