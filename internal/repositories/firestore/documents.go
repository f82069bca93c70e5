package firestore

import (
	"time"

	"github.com/sauber-detailing/pos-api/internal/domain"
)

type serviceDocument struct {
	Name         string    `firestore:"name"`
	Description  string    `firestore:"description,omitempty"`
	Category     string    `firestore:"category"`
	Price        int64     `firestore:"price"`
	VehicleType  string    `firestore:"vehicleType"`
	Status       string    `firestore:"status"`
	Supplier     string    `firestore:"supplier,omitempty"`
	Discountable bool      `firestore:"discountable"`
	ImageURL     string    `firestore:"imageUrl,omitempty"`
	Tier         string    `firestore:"tier,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func fromDomainService(s domain.ServiceOffering) serviceDocument {
	return serviceDocument{
		Name:         s.Name,
		Description:  s.Description,
		Category:     string(s.Category),
		Price:        int64(s.Price),
		VehicleType:  string(s.VehicleType),
		Status:       string(s.Status),
		Supplier:     s.Supplier,
		Discountable: s.Discountable,
		ImageURL:     s.ImageURL,
		Tier:         string(s.Tier),
		CreatedAt:    s.CreatedAt.UTC(),
		UpdatedAt:    s.UpdatedAt.UTC(),
	}
}

func (d serviceDocument) toDomain(id string) domain.ServiceOffering {
	status := domain.ServiceStatus(d.Status)
	if status == "" {
		status = domain.ServiceActive
	}
	vehicle := domain.VehicleType(d.VehicleType)
	if vehicle == "" {
		vehicle = domain.VehicleAny
	}
	tier, _ := domain.ParseTier(d.Tier)
	return domain.ServiceOffering{
		ID:           id,
		Name:         d.Name,
		Description:  d.Description,
		Category:     domain.ServiceCategory(d.Category),
		Price:        domain.Amount(max(d.Price, 0)),
		VehicleType:  vehicle,
		Status:       status,
		Supplier:     d.Supplier,
		Discountable: d.Discountable,
		ImageURL:     d.ImageURL,
		Tier:         tier,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type customerDocument struct {
	Name      string    `firestore:"name"`
	Phone     string    `firestore:"phone"`
	Vehicle   string    `firestore:"vehicle"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func fromDomainCustomer(c domain.Customer) customerDocument {
	return customerDocument{Name: c.Name, Phone: c.Phone, Vehicle: c.Vehicle, CreatedAt: c.CreatedAt.UTC()}
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{ID: id, Name: d.Name, Phone: d.Phone, Vehicle: d.Vehicle, CreatedAt: d.CreatedAt}
}

type lineItemDocument struct {
	ID       string `firestore:"id"`
	Name     string `firestore:"name"`
	Price    int64  `firestore:"price"`
	Custom   bool   `firestore:"custom,omitempty"`
	ImageURL string `firestore:"imageUrl,omitempty"`
	Category string `firestore:"category,omitempty"`
	Tier     string `firestore:"tier,omitempty"`
}

type orderDocument struct {
	CustomerName  string             `firestore:"customerName"`
	CustomerPhone string             `firestore:"customerPhone,omitempty"`
	VehicleMake   string             `firestore:"vehicleMake,omitempty"`
	VehicleModel  string             `firestore:"vehicleModel,omitempty"`
	VehicleYear   string             `firestore:"vehicleYear,omitempty"`
	VehiclePlate  string             `firestore:"vehiclePlate,omitempty"`
	Services      []lineItemDocument `firestore:"services"`
	ServiceIDs    []string           `firestore:"serviceIds"`
	Subtotal      int64              `firestore:"subtotal"`
	Discount      int64              `firestore:"discount"`
	Total         int64              `firestore:"total"`
	Status        string             `firestore:"status"`
	PaymentStatus string             `firestore:"paymentStatus"`
	PaidAt        *time.Time         `firestore:"paidAt,omitempty"`
	CreatedAt     time.Time          `firestore:"createdAt"`
	OperatorName  string             `firestore:"operatorName"`
	OperatorRole  string             `firestore:"operatorRole"`
	Note          string             `firestore:"note,omitempty"`
}

func fromDomainOrder(o domain.Order) orderDocument {
	items := make([]lineItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, lineItemDocument{
			ID:       item.ID,
			Name:     item.Name,
			Price:    int64(item.Price),
			Custom:   item.Custom,
			ImageURL: item.ImageURL,
			Category: string(item.Category),
			Tier:     string(item.Tier),
		})
	}
	doc := orderDocument{
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		VehicleMake:   o.Vehicle.Make,
		VehicleModel:  o.Vehicle.Model,
		VehicleYear:   o.Vehicle.Year,
		VehiclePlate:  o.Vehicle.Plate,
		Services:      items,
		ServiceIDs:    o.ServiceIDs(),
		Subtotal:      int64(o.Subtotal),
		Discount:      int64(o.Discount),
		Total:         int64(o.Total),
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		CreatedAt:     o.CreatedAt.UTC(),
		OperatorName:  o.Operator.Name,
		OperatorRole:  o.Operator.Role,
		Note:          o.Note,
	}
	if o.PaidAt != nil {
		paid := o.PaidAt.UTC()
		doc.PaidAt = &paid
	}
	return doc
}

// toDomain fills defaults for fields older documents may lack.
func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.LineItem, 0, len(d.Services))
	for _, item := range d.Services {
		tier, _ := domain.ParseTier(item.Tier)
		items = append(items, domain.LineItem{
			ID:       item.ID,
			Name:     item.Name,
			Price:    domain.Amount(max(item.Price, 0)),
			Custom:   item.Custom,
			ImageURL: item.ImageURL,
			Category: domain.ServiceCategory(item.Category),
			Tier:     tier,
		})
	}
	status := domain.OrderStatus(d.Status)
	if status == "" {
		status = domain.OrderPending
	}
	payment, ok := domain.ParsePaymentStatus(d.PaymentStatus)
	if !ok {
		payment = domain.PaymentUnpaid
	}
	return domain.Order{
		ID:            id,
		CustomerName:  d.CustomerName,
		CustomerPhone: d.CustomerPhone,
		Vehicle: domain.Vehicle{
			Make:  d.VehicleMake,
			Model: d.VehicleModel,
			Year:  d.VehicleYear,
			Plate: d.VehiclePlate,
		},
		Items:         items,
		Subtotal:      domain.Amount(d.Subtotal),
		Discount:      domain.Amount(d.Discount),
		Total:         domain.Amount(d.Total),
		Status:        status,
		PaymentStatus: payment,
		PaidAt:        d.PaidAt,
		CreatedAt:     d.CreatedAt,
		Operator:      domain.Operator{Name: d.OperatorName, Role: d.OperatorRole},
		Note:          d.Note,
	}
}

type staffDocument struct {
	Name      string    `firestore:"name"`
	FirstName string    `firestore:"firstName,omitempty"`
	LastName  string    `firestore:"lastName,omitempty"`
	Email     string    `firestore:"email"`
	Role      string    `firestore:"role"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func fromDomainStaff(m domain.StaffMember) staffDocument {
	return staffDocument{
		Name:      m.Name,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Email:     m.Email,
		Role:      m.Role,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

func (d staffDocument) toDomain(uid string) domain.StaffMember {
	return domain.StaffMember{
		UID:       uid,
		Name:      d.Name,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Email:     d.Email,
		Role:      d.Role,
		CreatedAt: d.CreatedAt,
	}
}
