package models

import (
	"database/sql/driver"
	"fmt"
)

// DepositStatus is the closed set of deposit states. The zero value is not a
// valid status, so an unset field never passes for "pending".
type DepositStatus uint8

const (
	DepositPending DepositStatus = iota + 1
	DepositApproved
	DepositRejected
)

var depositStatusNames = map[DepositStatus]string{
	DepositPending:  "pending",
	DepositApproved: "approved",
	DepositRejected: "rejected",
}

func ParseDepositStatus(s string) (DepositStatus, error) {
	for st, name := range depositStatusNames {
		if name == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown deposit status %q", s)
}

func (s DepositStatus) String() string {
	if name, ok := depositStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("DepositStatus(%d)", uint8(s))
}

func (s DepositStatus) Valid() bool {
	_, ok := depositStatusNames[s]
	return ok
}

// Terminal reports whether no further transition is allowed.
func (s DepositStatus) Terminal() bool {
	return s == DepositApproved || s == DepositRejected
}

func (s DepositStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid deposit status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *DepositStatus) UnmarshalText(b []byte) error {
	st, err := ParseDepositStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s DepositStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid deposit status %d", uint8(s))
	}
	return s.String(), nil
}

func (s *DepositStatus) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into DepositStatus", src)
	}
}

// OrderStatus is the closed set of order states.
type OrderStatus uint8

const (
	OrderPending OrderStatus = iota + 1
	OrderCompleted
	OrderCancelled
)

var orderStatusNames = map[OrderStatus]string{
	OrderPending:   "pending",
	OrderCompleted: "completed",
	OrderCancelled: "cancelled",
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	for st, name := range orderStatusNames {
		if name == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown order status %q", s)
}

func (s OrderStatus) String() string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("OrderStatus(%d)", uint8(s))
}

func (s OrderStatus) Valid() bool {
	_, ok := orderStatusNames[s]
	return ok
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid order status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *OrderStatus) UnmarshalText(b []byte) error {
	st, err := ParseOrderStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s OrderStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid order status %d", uint8(s))
	}
	return s.String(), nil
}

func (s *OrderStatus) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into OrderStatus", src)
	}
}

// PaymentMethod is the mobile wallet a deposit was paid from.
type PaymentMethod string

const (
	PaymentBkash  PaymentMethod = "bkash"
	PaymentRocket PaymentMethod = "rocket"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentBkash || m == PaymentRocket
}

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)
