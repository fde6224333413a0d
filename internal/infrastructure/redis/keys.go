package redis

import (
	"fmt"

	"github.com/google/uuid"
)

func TokenKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:token", userID)
}

// BalanceVersionKey is incremented after every committed balance change.
// Cached balances live under the version they were read at, so a reader that
// raced a mutation writes to a key nobody looks up anymore.
func BalanceVersionKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:balance_version", userID)
}

func BalanceKey(userID uuid.UUID, version int64) string {
	return fmt.Sprintf("user:%s:balance:%d", userID, version)
}

func AdminRoleKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:is_admin", userID)
}

// RequestKey scopes a client supplied idempotency key to its user.
func RequestKey(userID uuid.UUID, requestID string) string {
	return fmt.Sprintf("request:%s:%s", userID, requestID)
}
