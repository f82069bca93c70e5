package services

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/textutil"
)

const maxSuggestions = 5

// OrderCreator is the ledger operation the composer submits to.
type OrderCreator interface {
	Create(ctx context.Context, draft OrderDraft) (Order, error)
}

// DraftCustomer is the customer and vehicle section of a draft.
type DraftCustomer struct {
	Name    string
	Phone   string
	Vehicle domain.Vehicle
	Note    string
}

// SubmitInput carries the form fields read at submission time.
type SubmitInput = DraftCustomer

// DraftView is a read-only copy of a draft.
type DraftView struct {
	Customer  DraftCustomer
	Items     []LineItem
	Subtotal  domain.Amount
	Discount  domain.Amount
	Total     domain.Amount
	UpdatedAt time.Time
}

// OrderComposer assembles one order. It is not safe for concurrent use; DraftStore guards
// each composer with its own lock.
type OrderComposer struct {
	ledger   OrderCreator
	newID    func() string
	clock    func() time.Time
	customer DraftCustomer
	items    []LineItem
	discount domain.Amount
	subtotal domain.Amount
	updated  time.Time
}

// NewOrderComposer returns an empty draft that submits to ledger.
func NewOrderComposer(ledger OrderCreator, newID func() string, clock func() time.Time) *OrderComposer {
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	if clock == nil {
		clock = time.Now
	}
	return &OrderComposer{ledger: ledger, newID: newID, clock: clock, updated: clock()}
}

// ToggleService adds offering if absent, otherwise removes it. Inactive offerings are never
// added.
func (c *OrderComposer) ToggleService(offering ServiceOffering) {
	if idx := c.indexOf(offering.ID); idx >= 0 {
		c.items = slices.Delete(c.items, idx, idx+1)
		c.touch()
		return
	}
	if !offering.Selectable() || offering.Price < 0 {
		return
	}
	c.items = append(c.items, LineItem{
		ID:       offering.ID,
		Name:     offering.Name,
		Price:    offering.Price,
		ImageURL: offering.ImageURL,
		Category: offering.Category,
		Tier:     offering.Tier,
	})
	c.touch()
}

// Has reports whether the draft holds a line item with id.
func (c *OrderComposer) Has(id string) bool {
	return c.indexOf(id) >= 0
}

// AddCustomItem appends an ad-hoc item. Empty names and prices that are not non-negative
// numbers are ignored and report false.
func (c *OrderComposer) AddCustomItem(name, rawPrice string) bool {
	name = textutil.Clean(name, maxItemNameRunes)
	if name == "" {
		return false
	}
	price, err := domain.ParseAmount(rawPrice)
	if err != nil {
		return false
	}
	c.items = append(c.items, LineItem{ID: c.newID(), Name: name, Price: price, Custom: true})
	c.touch()
	return true
}

// RemoveLineItem removes the item with id. Unknown ids are ignored.
func (c *OrderComposer) RemoveLineItem(id string) {
	if idx := c.indexOf(id); idx >= 0 {
		c.items = slices.Delete(c.items, idx, idx+1)
		c.touch()
	}
}

// ComputeTotal is the sum of line-item prices minus the discount.
func (c *OrderComposer) ComputeTotal() domain.Amount {
	_, total := domain.ComputeTotals(c.items, c.discount)
	return total
}

// Subtotal is the sum of line-item prices as of the last change.
func (c *OrderComposer) Subtotal() domain.Amount {
	return c.subtotal
}

// SetCustomer replaces the customer section of the draft.
func (c *OrderComposer) SetCustomer(customer DraftCustomer) {
	c.customer = customer
	c.touch()
}

// Submit creates the order through the ledger. It is a no-op reporting false when the
// customer name is blank after sanitizing or the draft has no items. The draft is cleared only after the
// ledger accepted the order.
func (c *OrderComposer) Submit(ctx context.Context, input SubmitInput) (Order, bool, error) {
	if textutil.Clean(input.Name, maxCustomerNameRunes) == "" || len(c.items) == 0 {
		return Order{}, false, nil
	}
	operator := operatorFrom(ctx)
	order, err := c.ledger.Create(ctx, OrderDraft{
		CustomerName:  input.Name,
		CustomerPhone: input.Phone,
		Vehicle:       input.Vehicle,
		Items:         slices.Clone(c.items),
		Note:          input.Note,
		Operator:      operator,
	})
	if err != nil {
		return Order{}, false, err
	}
	c.Reset()
	return order, true, nil
}

// Reset empties the draft.
func (c *OrderComposer) Reset() {
	c.customer = DraftCustomer{}
	c.items = nil
	c.touch()
}

// View returns a copy of the draft state.
func (c *OrderComposer) View() DraftView {
	subtotal, total := domain.ComputeTotals(c.items, c.discount)
	return DraftView{
		Customer:  c.customer,
		Items:     slices.Clone(c.items),
		Subtotal:  subtotal,
		Discount:  c.discount,
		Total:     total,
		UpdatedAt: c.updated,
	}
}

// Customer returns the stored customer section.
func (c *OrderComposer) Customer() DraftCustomer {
	return c.customer
}

func (c *OrderComposer) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(c.items, func(item LineItem) bool { return item.ID == id })
}

func (c *OrderComposer) touch() {
	c.subtotal, _ = domain.ComputeTotals(c.items, c.discount)
	c.updated = c.clock()
}

// SuggestCustomers filters the directory by case-insensitive substring on name and keeps the
// first five matches in directory order. An empty query suggests nothing.
func SuggestCustomers(customers []Customer, query string) []Customer {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	out := make([]Customer, 0, maxSuggestions)
	for _, customer := range customers {
		if textutil.ContainsFold(customer.Name, query) {
			out = append(out, customer)
			if len(out) == maxSuggestions {
				break
			}
		}
	}
	return out
}
