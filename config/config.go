package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultHostname is used when neither JMAP_HOSTNAME nor --hostname is set.
const DefaultHostname = "api.fastmail.com"

var (
	// ErrUsage marks errors caused by missing invocation input.
	ErrUsage = errors.New("usage error")

	ErrMissingReaction    = fmt.Errorf("%w: a message id and a reaction are required", ErrUsage)
	ErrMissingCredentials = fmt.Errorf("%w: JMAP_USERNAME and JMAP_TOKEN environment variables are required", ErrUsage)
)

// Credentials identify the account and server to talk to.
type Credentials struct {
	Username string
	Token    string
	Hostname string
}

// Config holds the validated configuration for a single run.
type Config struct {
	Credentials

	TargetID string
	Reaction string
	// Message is the optional body, nil when no extra words were given.
	// Words that join to "" still yield a non-nil empty message.
	Message *string

	Strategy string
	DryRun   bool
	Timeout  time.Duration
}

// Invocation is the raw command-line input before validation.
type Invocation struct {
	TargetID string
	Reaction string
	Message  []string

	Hostname string // overrides JMAP_HOSTNAME when non-empty
	Strategy string
	DryRun   bool
	Timeout  time.Duration
}

// Load reads configuration from environment variables and .env file and
// combines it with the command-line invocation.
func Load(inv Invocation) (*Config, error) {
	if inv.Reaction == "" {
		return nil, ErrMissingReaction
	}

	creds, err := LoadCredentials(inv.Hostname)
	if err != nil {
		return nil, err
	}

	var message *string
	if len(inv.Message) > 0 {
		m := strings.Join(inv.Message, " ")
		message = &m
	}

	return &Config{
		Credentials: *creds,
		TargetID:    inv.TargetID,
		Reaction:    inv.Reaction,
		Message:     message,
		Strategy:    inv.Strategy,
		DryRun:      inv.DryRun,
		Timeout:     inv.Timeout,
	}, nil
}

// LoadCredentials reads the JMAP account settings from the environment.
func LoadCredentials(hostnameOverride string) (*Credentials, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	username := os.Getenv("JMAP_USERNAME")
	token := os.Getenv("JMAP_TOKEN")
	if username == "" || token == "" {
		return nil, ErrMissingCredentials
	}

	hostname := hostnameOverride
	if hostname == "" {
		hostname = os.Getenv("JMAP_HOSTNAME")
	}
	if hostname == "" {
		hostname = DefaultHostname
	}

	return &Credentials{
		Username: username,
		Token:    token,
		Hostname: hostname,
	}, nil
}
