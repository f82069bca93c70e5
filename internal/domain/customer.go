package domain

import "time"

// Customer is an entry in the customer directory.
type Customer struct {
	ID        string
	Name      string
	Phone     string
	Vehicle   string
	CreatedAt time.Time
}

// CustomerQuery filters the directory for the maintenance screen.
type CustomerQuery struct {
	Search  string
	Created TimeRange
	Page    int
	Size    int
}
