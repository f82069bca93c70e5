package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/sauber-detailing/pos-api/internal/platform/config"
)

// ErrEmailTaken is returned when a staff account already exists for the email.
var ErrEmailTaken = errors.New("auth: email already registered")

// NewStaffAccount describes a staff login to create.
type NewStaffAccount struct {
	Email       string
	Password    string
	DisplayName string
	Role        Role
}

// FirebaseClient wraps the Admin SDK auth client: token verification plus staff
// account provisioning.
type FirebaseClient struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// NewFirebaseClient initialises the Admin SDK for the configured project.
func NewFirebaseClient(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("firebase project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return &FirebaseClient{client: client, timeout: defaultVerifyTimeout}, nil
}

// VerifyIDToken implements TokenVerifier.
func (c *FirebaseClient) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.VerifyIDToken(ctx, idToken)
}

// CreateStaffAccount creates the login and stamps the role custom claim. It returns the
// new uid.
func (c *FirebaseClient) CreateStaffAccount(ctx context.Context, account NewStaffAccount) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := (&firebaseauth.UserToCreate{}).
		Email(account.Email).
		Password(account.Password).
		DisplayName(account.DisplayName)
	record, err := c.client.CreateUser(ctx, params)
	if err != nil {
		if firebaseauth.IsEmailAlreadyExists(err) {
			return "", ErrEmailTaken
		}
		return "", fmt.Errorf("auth: create user: %w", err)
	}
	if err := c.client.SetCustomUserClaims(ctx, record.UID, map[string]any{defaultRoleClaim: string(account.Role)}); err != nil {
		return record.UID, fmt.Errorf("auth: set role claim: %w", err)
	}
	return record.UID, nil
}
