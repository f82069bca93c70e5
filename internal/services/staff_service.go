package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	"github.com/sauber-detailing/pos-api/internal/platform/textutil"
	"github.com/sauber-detailing/pos-api/internal/repositories"
)

const (
	minPasswordLength = 8
	maxNamePartRunes  = 60
)

var (
	// ErrStaffInvalidInput signals invalid account fields.
	ErrStaffInvalidInput = errors.New("staff: invalid input")
	// ErrStaffConflict is returned when the email already has an account.
	ErrStaffConflict = errors.New("staff: account already exists")
	// ErrStaffNotFound is returned when no profile is stored for the member.
	ErrStaffNotFound = errors.New("staff: not found")
	// ErrStaffUnavailable wraps identity provider or store failures.
	ErrStaffUnavailable = errors.New("staff: unavailable")
)

// CreateStaffCommand describes a new staff login.
type CreateStaffCommand struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// UpdateProfileCommand carries the name fields a member may edit on their own profile.
type UpdateProfileCommand struct {
	FirstName string
	LastName  string
}

// StaffServiceDeps bundles collaborators required to construct the staff service.
type StaffServiceDeps struct {
	Staff    repositories.StaffRepository
	Accounts StaffAccounts
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// StaffDirectory manages staff accounts and resolves their stored profile for the
// authentication middleware.
type StaffDirectory struct {
	staff    repositories.StaffRepository
	accounts StaffAccounts
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

var (
	_ StaffService       = (*StaffDirectory)(nil)
	_ auth.ProfileLoader = (*StaffDirectory)(nil)
)

// NewStaffService constructs the staff directory.
func NewStaffService(deps StaffServiceDeps) (*StaffDirectory, error) {
	if deps.Staff == nil {
		return nil, errors.New("staff service: staff repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &StaffDirectory{
		staff:    deps.Staff,
		accounts: deps.Accounts,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *StaffDirectory) CreateStaff(ctx context.Context, cmd CreateStaffCommand) (StaffMember, error) {
	if s.accounts == nil {
		return StaffMember{}, fmt.Errorf("%w: account provisioning is not configured", ErrStaffUnavailable)
	}
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return StaffMember{}, fmt.Errorf("%w: email is invalid", ErrStaffInvalidInput)
	}
	if len(cmd.Password) < minPasswordLength {
		return StaffMember{}, fmt.Errorf("%w: password must have at least %d characters", ErrStaffInvalidInput, minPasswordLength)
	}
	name := textutil.Clean(cmd.Name, maxCustomerNameRunes)
	if name == "" {
		return StaffMember{}, fmt.Errorf("%w: name is required", ErrStaffInvalidInput)
	}
	role, ok := auth.ParseRole(cmd.Role)
	if !ok {
		return StaffMember{}, fmt.Errorf("%w: role must be admin or cashier", ErrStaffInvalidInput)
	}

	uid, err := s.accounts.CreateStaffAccount(ctx, auth.NewStaffAccount{Email: email, Password: cmd.Password, DisplayName: name, Role: role})
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			return StaffMember{}, fmt.Errorf("%w: %s", ErrStaffConflict, email)
		}
		if uid == "" {
			return StaffMember{}, fmt.Errorf("%w: %v", ErrStaffUnavailable, err)
		}
		// The login exists; the stored profile below still carries the role.
		s.logger(ctx, "staff.role_claim_failed", map[string]any{"uid": uid, "error": err.Error()})
	}

	member := StaffMember{UID: uid, Name: name, Email: email, Role: string(role), CreatedAt: s.clock()}
	if err := s.staff.Upsert(ctx, member); err != nil {
		return StaffMember{}, fmt.Errorf("%w: %v", ErrStaffUnavailable, err)
	}
	s.logger(ctx, "staff.created", map[string]any{"uid": uid, "role": member.Role})
	return member, nil
}

func (s *StaffDirectory) ListStaff(ctx context.Context) ([]StaffMember, error) {
	members, err := s.staff.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStaffUnavailable, err)
	}
	return members, nil
}

// UpdateProfile renames the member. The display name becomes "first last" and is what later
// requests see as the operator name.
func (s *StaffDirectory) UpdateProfile(ctx context.Context, uid string, cmd UpdateProfileCommand) (StaffMember, error) {
	if strings.TrimSpace(uid) == "" {
		return StaffMember{}, fmt.Errorf("%w: uid is required", ErrStaffInvalidInput)
	}
	first := textutil.Clean(cmd.FirstName, maxNamePartRunes)
	if first == "" {
		return StaffMember{}, fmt.Errorf("%w: first name is required", ErrStaffInvalidInput)
	}
	last := textutil.Clean(cmd.LastName, maxNamePartRunes)

	member, err := s.staff.FindByUID(ctx, uid)
	if err != nil {
		return StaffMember{}, translateStaffError(err)
	}
	member.FirstName, member.LastName = first, last
	member.Name = strings.TrimSpace(first + " " + last)
	if err := s.staff.UpdateProfile(ctx, member); err != nil {
		return StaffMember{}, translateStaffError(err)
	}
	s.logger(ctx, "staff.profile_updated", map[string]any{"uid": uid})
	return member, nil
}

func translateStaffError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrStaffNotFound
	}
	return fmt.Errorf("%w: %v", ErrStaffUnavailable, err)
}

// LoadProfile implements auth.ProfileLoader.
func (s *StaffDirectory) LoadProfile(ctx context.Context, uid string) (auth.StaffProfile, bool, error) {
	member, err := s.staff.FindByUID(ctx, uid)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return auth.StaffProfile{}, false, nil
		}
		return auth.StaffProfile{}, false, err
	}
	return auth.StaffProfile{Name: member.Name, Role: member.Role}, true, nil
}
