package domain

import (
	"strings"
	"time"
)

// OrderStatus is the work status of an order. Only Pending is produced today.
type OrderStatus string

const OrderPending OrderStatus = "Pending"

// PaymentStatus moves one way, Unpaid to Paid.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "Unpaid"
	PaymentPaid   PaymentStatus = "Paid"
)

// ParsePaymentStatus matches case-insensitively.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.EqualFold(raw, string(PaymentPaid)):
		return PaymentPaid, true
	case strings.EqualFold(raw, string(PaymentUnpaid)):
		return PaymentUnpaid, true
	}
	return "", false
}

// Vehicle is the free-text vehicle descriptor captured at the counter.
type Vehicle struct {
	Make  string
	Model string
	Year  string
	Plate string
}

// LineItem is a priced unit on an order. Catalog items carry a copy of the offering's name,
// price and image at the time of sale.
type LineItem struct {
	ID       string
	Name     string
	Price    Amount
	Custom   bool
	ImageURL string
	Category ServiceCategory
	Tier     Tier
}

// Operator is the staff member who created an order.
type Operator struct {
	Name string
	Role string
}

// Order is a persisted sale.
type Order struct {
	ID            string
	CustomerName  string
	CustomerPhone string
	Vehicle       Vehicle
	Items         []LineItem
	Subtotal      Amount
	Discount      Amount
	Total         Amount
	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaidAt        *time.Time
	CreatedAt     time.Time
	Operator      Operator
	Note          string
}

// IsPaid reports whether payment has been recorded.
func (o Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid
}

// ServiceIDs lists the catalog offerings referenced by the order, in item order.
func (o Order) ServiceIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if !item.Custom && item.ID != "" {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

// ComputeTotals returns subtotal and total for items after discount. Total never goes below zero.
func ComputeTotals(items []LineItem, discount Amount) (subtotal, total Amount) {
	for _, item := range items {
		subtotal += item.Price
	}
	total = subtotal - discount
	if total < 0 {
		total = 0
	}
	return subtotal, total
}

// OrderFilter narrows ledger reads.
type OrderFilter struct {
	PaymentStatus PaymentStatus
	Created       TimeRange
	Pagination    Pagination
}
