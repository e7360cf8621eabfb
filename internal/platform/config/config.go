package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultEnvironment         = "local"
	defaultJobEventsTopic      = "job-events"
	defaultTransportTimeout    = 10 * time.Second
	defaultImmediateLead       = 5 * time.Minute
	defaultCancellationWindow  = 24 * time.Hour
	defaultTimezone            = "Europe/Stockholm"
	defaultNightStart          = "22:00"
	defaultNightEnd            = "06:00"
	defaultBusinessStart       = "09:00"
	defaultPushAndroidSound    = "normal_booking"
	defaultPushIOSSound        = "normal_booking.mp3"
	defaultPushAndroidUrgent   = "emergency_booking"
	defaultPushIOSUrgent       = "emergency_booking.mp3"
	defaultExpiryAlertInterval = 15 * time.Minute
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Environment string
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Push        PushConfig
	SMS         SMSConfig
	Mail        MailConfig
	Booking     BookingConfig
	Schedule    ScheduleConfig
	Audit       AuditConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig names the project and topic used for job domain events.
type PubSubConfig struct {
	ProjectID      string
	JobEventsTopic string
}

// PushConfig holds the push gateway endpoint and credentials.
type PushConfig struct {
	Endpoint    string
	AppID       string
	APIKey      string
	Timeout     time.Duration
	NormalSound SoundPair
	UrgentSound SoundPair
}

// SoundPair names the per-platform notification sounds.
type SoundPair struct {
	Android string
	IOS     string
}

// SMSConfig holds the SMS gateway endpoint and credentials.
type SMSConfig struct {
	Endpoint   string
	APIKey     string
	FromNumber string
	Timeout    time.Duration
}

// MailConfig holds the transactional mail API settings.
type MailConfig struct {
	Endpoint    string
	APIKey      string
	FromAddress string
	FromName    string
	Timeout     time.Duration
}

// BookingConfig tunes lifecycle policy values.
type BookingConfig struct {
	// ImmediateLead is added to "now" to compute the due instant of
	// immediate bookings.
	ImmediateLead time.Duration
	// CancellationWindow is the minimum distance to the due instant for a
	// translator cancellation to leave the booking reopenable.
	CancellationWindow time.Duration
	// ExpiryAlertInterval throttles back-office expiring-booking alerts.
	ExpiryAlertInterval time.Duration
}

// ScheduleConfig defines the night-time window and business hours used by the
// delayed-push policy.
type ScheduleConfig struct {
	Timezone      string
	NightStart    string
	NightEnd      string
	BusinessStart string
}

// AuditConfig feeds the audit trail hasher.
type AuditConfig struct {
	// HashSalt is mixed into the digests of sensitive metadata values.
	// Usually supplied as a secret:// reference.
	HashSalt string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.secrets) == 0 {
		return "missing required secrets"
	}
	names := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		names = append(names, secret.redacted)
	}
	sort.Strings(names)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(names, ", "))
}

// RedactedNames returns a copy of the redacted secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.redacted)
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// EnvironmentValues returns the effective key/value environment map after applying the same
// precedence rules as Load (dotenv < OS env < explicit env map). Callers can use the result to
// initialise dependencies before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			if key == "" {
				continue
			}
			values[key] = parts[1]
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers match the config field names recorded by the loader
// (e.g. "Push.APIKey").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "TOLK_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "TOLK_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "TOLK_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "TOLK_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Environment: strings.ToLower(stringWithDefault(lookup, "TOLK_ENVIRONMENT", defaultEnvironment)),
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "TOLK_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "TOLK_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:      stringWithDefault(lookup, "TOLK_PUBSUB_PROJECT_ID", ""),
			JobEventsTopic: stringWithDefault(lookup, "TOLK_PUBSUB_JOB_EVENTS_TOPIC", defaultJobEventsTopic),
		},
		Push: PushConfig{
			Endpoint: stringWithDefault(lookup, "TOLK_PUSH_ENDPOINT", ""),
			AppID:    stringWithDefault(lookup, "TOLK_PUSH_APP_ID", ""),
			APIKey:   stringWithDefault(lookup, "TOLK_PUSH_API_KEY", ""),
			Timeout:  durationWithDefault(lookup, "TOLK_PUSH_TIMEOUT", defaultTransportTimeout),
			NormalSound: SoundPair{
				Android: stringWithDefault(lookup, "TOLK_PUSH_SOUND_ANDROID", defaultPushAndroidSound),
				IOS:     stringWithDefault(lookup, "TOLK_PUSH_SOUND_IOS", defaultPushIOSSound),
			},
			UrgentSound: SoundPair{
				Android: stringWithDefault(lookup, "TOLK_PUSH_SOUND_ANDROID_URGENT", defaultPushAndroidUrgent),
				IOS:     stringWithDefault(lookup, "TOLK_PUSH_SOUND_IOS_URGENT", defaultPushIOSUrgent),
			},
		},
		SMS: SMSConfig{
			Endpoint:   stringWithDefault(lookup, "TOLK_SMS_ENDPOINT", ""),
			APIKey:     stringWithDefault(lookup, "TOLK_SMS_API_KEY", ""),
			FromNumber: stringWithDefault(lookup, "TOLK_SMS_FROM_NUMBER", ""),
			Timeout:    durationWithDefault(lookup, "TOLK_SMS_TIMEOUT", defaultTransportTimeout),
		},
		Mail: MailConfig{
			Endpoint:    stringWithDefault(lookup, "TOLK_MAIL_ENDPOINT", ""),
			APIKey:      stringWithDefault(lookup, "TOLK_MAIL_API_KEY", ""),
			FromAddress: stringWithDefault(lookup, "TOLK_MAIL_FROM_ADDRESS", ""),
			FromName:    stringWithDefault(lookup, "TOLK_MAIL_FROM_NAME", ""),
			Timeout:     durationWithDefault(lookup, "TOLK_MAIL_TIMEOUT", defaultTransportTimeout),
		},
		Booking: BookingConfig{
			ImmediateLead:       durationWithDefault(lookup, "TOLK_BOOKING_IMMEDIATE_LEAD", defaultImmediateLead),
			CancellationWindow:  durationWithDefault(lookup, "TOLK_BOOKING_CANCELLATION_WINDOW", defaultCancellationWindow),
			ExpiryAlertInterval: durationWithDefault(lookup, "TOLK_BOOKING_EXPIRY_ALERT_INTERVAL", defaultExpiryAlertInterval),
		},
		Schedule: ScheduleConfig{
			Timezone:      stringWithDefault(lookup, "TOLK_SCHEDULE_TIMEZONE", defaultTimezone),
			NightStart:    stringWithDefault(lookup, "TOLK_SCHEDULE_NIGHT_START", defaultNightStart),
			NightEnd:      stringWithDefault(lookup, "TOLK_SCHEDULE_NIGHT_END", defaultNightEnd),
			BusinessStart: stringWithDefault(lookup, "TOLK_SCHEDULE_BUSINESS_START", defaultBusinessStart),
		},
		Audit: AuditConfig{
			HashSalt: stringWithDefault(lookup, "TOLK_AUDIT_HASH_SALT", ""),
		},
	}

	// PubSub project defaults to the Firestore project when unspecified.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Push.APIKey", &cfg.Push.APIKey},
		{"SMS.APIKey", &cfg.SMS.APIKey},
		{"Mail.APIKey", &cfg.Mail.APIKey},
		{"Audit.HashSalt", &cfg.Audit.HashSalt},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
		resolvedSecrets[target.name] = strings.TrimSpace(resolved)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if strings.TrimSpace(cfg.PubSub.JobEventsTopic) == "" {
		missing = append(missing, "PubSub.JobEventsTopic")
	}
	if cfg.Booking.ImmediateLead <= 0 {
		missing = append(missing, "Booking.ImmediateLead")
	}
	if cfg.Booking.CancellationWindow <= 0 {
		missing = append(missing, "Booking.CancellationWindow")
	}
	for _, clock := range []struct {
		name  string
		value string
	}{
		{"Schedule.NightStart", cfg.Schedule.NightStart},
		{"Schedule.NightEnd", cfg.Schedule.NightEnd},
		{"Schedule.BusinessStart", cfg.Schedule.BusinessStart},
	} {
		if _, err := time.Parse("15:04", clock.value); err != nil {
			missing = append(missing, clock.name)
		}
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	if len(required) == 0 {
		return nil
	}
	missing := make([]missingSecret, 0, len(required))
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if value := strings.TrimSpace(resolved[trimmed]); value != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(parts[1]), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
