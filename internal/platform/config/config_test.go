package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "sauber-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "sauber-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "sauber-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.OrderEventsTopic != defaultOrderEventsTopic {
		t.Errorf("unexpected topic %q", cfg.PubSub.OrderEventsTopic)
	}
	if cfg.Reports.Timezone != "Africa/Accra" || cfg.Reports.Currency != "GHS" {
		t.Errorf("unexpected reports defaults: %+v", cfg.Reports)
	}
	if cfg.Reports.RecentOrderWindow != 10 {
		t.Errorf("expected recent order window 10, got %d", cfg.Reports.RecentOrderWindow)
	}
	if cfg.RateLimits.SuggestPerMinute != defaultSuggestPerMinute {
		t.Errorf("unexpected suggest rate limit: %d", cfg.RateLimits.SuggestPerMinute)
	}
	if cfg.Drafts.TTL != defaultDraftTTL {
		t.Errorf("unexpected draft ttl: %s", cfg.Drafts.TTL)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != defaultSecurityIssuer {
		t.Errorf("expected default issuer, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                 "9090",
		"API_SERVER_READ_TIMEOUT":         "20s",
		"API_FIREBASE_PROJECT_ID":         "sauber-prod",
		"API_FIRESTORE_PROJECT_ID":        "sauber-db",
		"API_STORAGE_IMAGES_BUCKET":       "sauber-images",
		"API_STORAGE_EXPORTS_BUCKET":      "sauber-exports",
		"API_STORAGE_SIGNER_CREDENTIALS":  "sm://storage-signer",
		"API_PUBSUB_ORDER_EVENTS_TOPIC":   "orders",
		"API_REPORTS_TIMEZONE":            "UTC",
		"API_REPORTS_CURRENCY":            "ghs",
		"API_REPORTS_RECENT_ORDER_WINDOW": "25",
		"API_SECURITY_ENVIRONMENT":        "PROD",
		"API_SECURITY_OIDC_AUDIENCES":     "prod=https://pos.example.com, dev=https://dev.example.com",
		"API_SECURITY_OIDC_ISSUERS":       "https://accounts.google.com, https://cloud.google.com/iap",
		"API_IDEMPOTENCY_TTL":             "48h",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://storage-signer" {
			t.Fatalf("unexpected secret ref %q", ref)
		}
		return `{"client_email":"signer@example.com"}`, nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "sauber-db" {
		t.Errorf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Storage.SignerCredentials != `{"client_email":"signer@example.com"}` {
		t.Errorf("expected resolved signer credentials, got %q", cfg.Storage.SignerCredentials)
	}
	if cfg.Reports.Currency != "GHS" || cfg.Reports.RecentOrderWindow != 25 {
		t.Errorf("unexpected reports config: %+v", cfg.Reports)
	}
	if cfg.Reports.Location() != time.UTC {
		t.Errorf("expected UTC location")
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.Audience != "https://pos.example.com" {
		t.Errorf("expected audience from environment map, got %s", cfg.Security.OIDC.Audience)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("expected two issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# local\nexport API_FIREBASE_PROJECT_ID=\"dotenv-project\"\nAPI_SERVER_PORT=7070\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"API_SERVER_PORT": "6060",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "dotenv-project" {
		t.Errorf("expected dotenv project, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected explicit map to win over dotenv, got %s", cfg.Server.Port)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(""), WithEnvMap(map[string]string{
		"API_REPORTS_TIMEZONE": "Mars/Olympus",
	}))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	want := map[string]bool{"Firebase.ProjectID": false, "Firestore.ProjectID": false, "Reports.Timezone": false}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in %v", field, fields)
		}
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":        "sauber-dev",
		"API_STORAGE_SIGNER_CREDENTIALS": "secret://missing",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected ref %q", secretErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected unconfigured resolver cause, got %v", err)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("API_FIREBASE_PROJECT_ID=dotenv\nAPI_ONLY_DOTENV=yes\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{"API_EXPLICIT": "1"}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if values["API_FIREBASE_PROJECT_ID"] != "os-project" {
		t.Errorf("expected process env to win over dotenv, got %q", values["API_FIREBASE_PROJECT_ID"])
	}
	if values["API_ONLY_DOTENV"] != "yes" || values["API_EXPLICIT"] != "1" {
		t.Errorf("expected dotenv and explicit values, got %v", values)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{"API_FIREBASE_PROJECT_ID": "sauber-dev"}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets("Storage.SignerCredentials"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Storage.SignerCredentials" {
		t.Errorf("unexpected names %v", names)
	}
	if redacted := missing.RedactedNames(); len(redacted) != 1 || redacted[0] == "Storage.SignerCredentials" {
		t.Errorf("expected redacted name, got %v", redacted)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		if _, ok := rec.(*MissingSecretsError); !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
	}()
	_, _ = Load(context.Background(), WithEnvMap(map[string]string{"API_FIREBASE_PROJECT_ID": "p"}),
		WithoutSystemEnv(), WithEnvFile(""), WithRequiredSecrets("Storage.SignerCredentials"), WithPanicOnMissingSecrets())
}
