package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sauber-detailing/pos-api/internal/domain"
	"github.com/sauber-detailing/pos-api/internal/platform/httpx"
	"github.com/sauber-detailing/pos-api/internal/services"
)

const dateLayout = "2006-01-02"

var errInvalidDate = errors.New("handlers: invalid date")

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

// decodeJSONBody decodes into dst and writes the 400/413 envelope on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	if err := httpx.DecodeJSON(r, limit, dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err))
		return false
	}
	return true
}

func writeUnavailable(w http.ResponseWriter, r *http.Request, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, http.StatusServiceUnavailable))
}

func writeInvalid(w http.ResponseWriter, r *http.Request, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// parseDateParam accepts RFC3339 timestamps or calendar dates in loc. A calendar date used
// as an upper bound covers the whole day.
func parseDateParam(raw string, loc *time.Location, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, errInvalidDate
	}
	if endOfDay {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}

func parseRangeParams(r *http.Request, loc *time.Location) (domain.TimeRange, error) {
	query := r.URL.Query()
	from, err := parseDateParam(query.Get("from"), loc, false)
	if err != nil {
		return domain.TimeRange{}, err
	}
	to, err := parseDateParam(query.Get("to"), loc, true)
	if err != nil {
		return domain.TimeRange{}, err
	}
	return domain.TimeRange{From: from, To: to}, nil
}

type vehiclePayload struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  string `json:"year"`
	Plate string `json:"plate"`
}

func newVehiclePayload(v domain.Vehicle) vehiclePayload {
	return vehiclePayload{Make: v.Make, Model: v.Model, Year: v.Year, Plate: v.Plate}
}

func (v vehiclePayload) toDomain() domain.Vehicle {
	return domain.Vehicle{Make: v.Make, Model: v.Model, Year: v.Year, Plate: v.Plate}
}

type lineItemPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	PriceMinor int64  `json:"price_minor"`
	Custom     bool   `json:"custom"`
	ImageURL   string `json:"image_url,omitempty"`
	Category   string `json:"category,omitempty"`
	Tier       string `json:"tier,omitempty"`
}

func newLineItemPayloads(items []domain.LineItem) []lineItemPayload {
	out := make([]lineItemPayload, 0, len(items))
	for _, item := range items {
		out = append(out, lineItemPayload{
			ID:         item.ID,
			Name:       item.Name,
			Price:      item.Price.Decimal(),
			PriceMinor: int64(item.Price),
			Custom:     item.Custom,
			ImageURL:   item.ImageURL,
			Category:   string(item.Category),
			Tier:       string(item.Tier),
		})
	}
	return out
}

type orderPayload struct {
	ID            string            `json:"id"`
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
	Vehicle       vehiclePayload    `json:"vehicle"`
	Items         []lineItemPayload `json:"items"`
	Subtotal      string            `json:"subtotal"`
	SubtotalMinor int64             `json:"subtotal_minor"`
	Discount      string            `json:"discount"`
	DiscountMinor int64             `json:"discount_minor"`
	Total         string            `json:"total"`
	TotalMinor    int64             `json:"total_minor"`
	TotalDisplay  string            `json:"total_display"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	PaidAt        string            `json:"paid_at,omitempty"`
	CreatedAt     string            `json:"created_at"`
	OperatorName  string            `json:"operator_name"`
	OperatorRole  string            `json:"operator_role"`
	Note          string            `json:"note,omitempty"`
}

func newOrderPayload(o domain.Order) orderPayload {
	return orderPayload{
		ID:            o.ID,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		Vehicle:       newVehiclePayload(o.Vehicle),
		Items:         newLineItemPayloads(o.Items),
		Subtotal:      o.Subtotal.Decimal(),
		SubtotalMinor: int64(o.Subtotal),
		Discount:      o.Discount.Decimal(),
		DiscountMinor: int64(o.Discount),
		Total:         o.Total.Decimal(),
		TotalMinor:    int64(o.Total),
		TotalDisplay:  o.Total.Display(),
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		PaidAt:        formatTimePtr(o.PaidAt),
		CreatedAt:     formatTime(o.CreatedAt),
		OperatorName:  o.Operator.Name,
		OperatorRole:  o.Operator.Role,
		Note:          o.Note,
	}
}

func newOrderPayloads(orders []domain.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderPayload(o))
	}
	return out
}

type draftPayload struct {
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
	Vehicle       vehiclePayload    `json:"vehicle"`
	Note          string            `json:"note,omitempty"`
	Items         []lineItemPayload `json:"items"`
	Subtotal      string            `json:"subtotal"`
	SubtotalMinor int64             `json:"subtotal_minor"`
	Discount      string            `json:"discount"`
	DiscountMinor int64             `json:"discount_minor"`
	Total         string            `json:"total"`
	TotalMinor    int64             `json:"total_minor"`
	UpdatedAt     string            `json:"updated_at,omitempty"`
}

func newDraftPayload(view services.DraftView) draftPayload {
	return draftPayload{
		CustomerName:  view.Customer.Name,
		CustomerPhone: view.Customer.Phone,
		Vehicle:       newVehiclePayload(view.Customer.Vehicle),
		Note:          view.Customer.Note,
		Items:         newLineItemPayloads(view.Items),
		Subtotal:      view.Subtotal.Decimal(),
		SubtotalMinor: int64(view.Subtotal),
		Discount:      view.Discount.Decimal(),
		DiscountMinor: int64(view.Discount),
		Total:         view.Total.Decimal(),
		TotalMinor:    int64(view.Total),
		UpdatedAt:     formatTime(view.UpdatedAt),
	}
}

type servicePayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Category     string `json:"category"`
	Price        string `json:"price"`
	PriceMinor   int64  `json:"price_minor"`
	VehicleType  string `json:"vehicle_type"`
	Status       string `json:"status"`
	Supplier     string `json:"supplier,omitempty"`
	Discountable bool   `json:"discountable"`
	ImageURL     string `json:"image_url,omitempty"`
	Tier         string `json:"tier,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

func newServicePayload(s domain.ServiceOffering) servicePayload {
	return servicePayload{
		ID:           s.ID,
		Name:         s.Name,
		Description:  s.Description,
		Category:     string(s.Category),
		Price:        s.Price.Decimal(),
		PriceMinor:   int64(s.Price),
		VehicleType:  string(s.VehicleType),
		Status:       string(s.Status),
		Supplier:     s.Supplier,
		Discountable: s.Discountable,
		ImageURL:     s.ImageURL,
		Tier:         string(s.Tier),
		CreatedAt:    formatTime(s.CreatedAt),
		UpdatedAt:    formatTime(s.UpdatedAt),
	}
}

type customerPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Vehicle   string `json:"vehicle,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func newCustomerPayload(c domain.Customer) customerPayload {
	return customerPayload{
		ID:        c.ID,
		Name:      c.Name,
		Phone:     c.Phone,
		Vehicle:   c.Vehicle,
		CreatedAt: formatTime(c.CreatedAt),
	}
}

func newCustomerPayloads(customers []domain.Customer) []customerPayload {
	out := make([]customerPayload, 0, len(customers))
	for _, c := range customers {
		out = append(out, newCustomerPayload(c))
	}
	return out
}

// priceText accepts either a JSON number or a numeric string.
func priceText(n json.Number) string {
	return strings.TrimSpace(n.String())
}
