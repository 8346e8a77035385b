package models

import (
	"encoding/json"
	"errors"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipping   OrderStatus = "Shipping"
	OrderStatusCompleted  OrderStatus = "Completed"
	OrderStatusCancelled  OrderStatus = "Cancelled"
	OrderStatusReturning  OrderStatus = "Returning"
	OrderStatusInspection OrderStatus = "Inspection"
	OrderStatusReturned   OrderStatus = "Returned"
)

// IsTerminal reports whether no further transition leaves the status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "CashOnDelivery"
	PaymentMethodBankTransfer   PaymentMethod = "BankTransfer"
	PaymentMethodCard           PaymentMethod = "Card"
	PaymentMethodWallet         PaymentMethod = "Wallet"
)

func (m *PaymentMethod) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("payment method must be string")
	}
	switch str {
	case "CashOnDelivery":
		*m = PaymentMethodCashOnDelivery
	case "BankTransfer":
		*m = PaymentMethodBankTransfer
	case "Card":
		*m = PaymentMethodCard
	case "Wallet":
		*m = PaymentMethodWallet
	default:
		return errors.New("invalid payment method")
	}
	return nil
}

// IsSynchronous reports whether the method settles without a gateway
// round trip (no redirect, immediate success signal).
func (m PaymentMethod) IsSynchronous() bool {
	return m == PaymentMethodCashOnDelivery || m == PaymentMethodBankTransfer
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "Pending"
	PaymentStatusSettled PaymentStatus = "Settled"
	PaymentStatusFailed  PaymentStatus = "Failed"
)

type ShippingMethod string

const (
	ShippingMethodStandard ShippingMethod = "Standard"
	ShippingMethodExpress  ShippingMethod = "Express"
	ShippingMethodPickup   ShippingMethod = "Pickup"
)

func (m *ShippingMethod) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("shipping method must be string")
	}
	switch str {
	case "Standard":
		*m = ShippingMethodStandard
	case "Express":
		*m = ShippingMethodExpress
	case "Pickup":
		*m = ShippingMethodPickup
	default:
		return errors.New("invalid shipping method")
	}
	return nil
}

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "P"
	DiscountTypeAmount     DiscountType = "A"
)

func (t *DiscountType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("discount type must be string")
	}
	switch str {
	case "P":
		*t = DiscountTypePercentage
	case "A":
		*t = DiscountTypeAmount
	default:
		return errors.New("invalid discount type")
	}
	return nil
}

type DiscountStatus string

const (
	DiscountStatusInactive DiscountStatus = "Inactive"
	DiscountStatusActive   DiscountStatus = "Active"
	DiscountStatusExpired  DiscountStatus = "Expired"
)

type SaleStatus string

const (
	SaleStatusInactive SaleStatus = "Inactive"
	SaleStatusActive   SaleStatus = "Active"
	SaleStatusExpired  SaleStatus = "Expired"
)

type StockDirection string

const (
	StockDirectionIn  StockDirection = "IN"
	StockDirectionOut StockDirection = "OUT"
)

type ProductStatus string

const (
	ProductStatusComingSoon   ProductStatus = "ComingSoon"
	ProductStatusOnSale       ProductStatus = "OnSale"
	ProductStatusDiscontinued ProductStatus = "Discontinued"
)

type CustomerTier string

const (
	CustomerTierBronze   CustomerTier = "Bronze"
	CustomerTierSilver   CustomerTier = "Silver"
	CustomerTierGold     CustomerTier = "Gold"
	CustomerTierPlatinum CustomerTier = "Platinum"
)

// tierRank orders tiers for "at least tier X" comparisons.
func tierRank(t CustomerTier) int {
	switch t {
	case CustomerTierBronze:
		return 0
	case CustomerTierSilver:
		return 1
	case CustomerTierGold:
		return 2
	case CustomerTierPlatinum:
		return 3
	}
	return -1
}

type StaffRole string

const (
	StaffRoleAdmin   StaffRole = "Admin"
	StaffRoleManager StaffRole = "Manager"
	StaffRoleStaff   StaffRole = "Staff"
)

func (r StaffRole) rank() int {
	switch r {
	case StaffRoleStaff:
		return 1
	case StaffRoleManager:
		return 2
	case StaffRoleAdmin:
		return 3
	}
	return 0
}

func (r StaffRole) AtLeast(required StaffRole) bool {
	return r.rank() >= required.rank() && r.rank() > 0
}
