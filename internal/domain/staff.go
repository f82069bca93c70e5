package domain

import "time"

// StaffMember is a user profile stored alongside the Firebase account.
// Name is the display name; FirstName and LastName are set once the member edits their
// own profile.
type StaffMember struct {
	UID       string
	Name      string
	FirstName string
	LastName  string
	Email     string
	Role      string
	CreatedAt time.Time
}
