package domain

import (
	"strings"
	"time"
)

// ServiceCategory groups offerings on the counter screen.
type ServiceCategory string

const (
	CategoryPackage ServiceCategory = "Package"
	CategoryAddOn   ServiceCategory = "Add-on"
	CategoryExtra   ServiceCategory = "Extra"
)

// VehicleType is the car size an offering applies to.
type VehicleType string

const (
	VehicleSmall  VehicleType = "Small Car"
	VehicleMedium VehicleType = "Medium Car"
	VehicleLarge  VehicleType = "Large Car"
	VehicleSUV    VehicleType = "SUV"
	VehicleAny    VehicleType = "Any Car"
)

// ServiceStatus controls whether an offering can be sold.
type ServiceStatus string

const (
	ServiceActive   ServiceStatus = "Active"
	ServiceInactive ServiceStatus = "Inactive"
)

// Tier is the package level used by the category breakdown. Empty means unspecified.
type Tier string

const (
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
	TierPlatin Tier = "platin"
)

var (
	serviceCategories = []ServiceCategory{CategoryPackage, CategoryAddOn, CategoryExtra}
	vehicleTypes      = []VehicleType{VehicleSmall, VehicleMedium, VehicleLarge, VehicleSUV, VehicleAny}
)

// ParseServiceCategory matches case-insensitively.
func ParseServiceCategory(raw string) (ServiceCategory, bool) {
	for _, c := range serviceCategories {
		if strings.EqualFold(strings.TrimSpace(raw), string(c)) {
			return c, true
		}
	}
	return "", false
}

// ParseVehicleType matches case-insensitively.
func ParseVehicleType(raw string) (VehicleType, bool) {
	for _, v := range vehicleTypes {
		if strings.EqualFold(strings.TrimSpace(raw), string(v)) {
			return v, true
		}
	}
	return "", false
}

// ParseServiceStatus matches case-insensitively.
func ParseServiceStatus(raw string) (ServiceStatus, bool) {
	switch {
	case strings.EqualFold(strings.TrimSpace(raw), string(ServiceActive)):
		return ServiceActive, true
	case strings.EqualFold(strings.TrimSpace(raw), string(ServiceInactive)):
		return ServiceInactive, true
	}
	return "", false
}

// ParseTier accepts silver, gold, platin or platinum. Empty input yields an empty tier.
func ParseTier(raw string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", true
	case "silver":
		return TierSilver, true
	case "gold":
		return TierGold, true
	case "platin", "platinum":
		return TierPlatin, true
	}
	return "", false
}

// ServiceOffering is a purchasable service in the catalog.
type ServiceOffering struct {
	ID           string
	Name         string
	Description  string
	Category     ServiceCategory
	Price        Amount
	VehicleType  VehicleType
	Status       ServiceStatus
	Supplier     string
	Discountable bool
	ImageURL     string
	Tier         Tier
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Selectable reports whether the composer may add the offering to a draft.
func (s ServiceOffering) Selectable() bool {
	return s.Status == ServiceActive
}

// ServiceFilter narrows catalog listings. Empty fields match everything.
type ServiceFilter struct {
	Status      ServiceStatus
	Category    ServiceCategory
	VehicleType VehicleType
}
