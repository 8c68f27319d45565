package auth

import (
	"os"
	"strconv"
	"time"
)

const (
	EnvOAuthToken = "ZESTER_OAUTH_TOKEN"
	EnvClientID   = "ZESTER_CLIENT_ID"
	EnvUserID     = "ZESTER_USER_ID"
)

// EnvironmentStore is a read-only CredentialStore over ZESTER_* variables
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve builds an account from the environment. The name is informational
// since the environment holds a single login.
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	token := os.Getenv(EnvOAuthToken)
	clientID := os.Getenv(EnvClientID)
	if token == "" || clientID == "" {
		return nil, ErrCredentialsNotFound
	}

	if name == "" {
		name = "env"
	}

	account := &Account{
		Name:         name,
		OAuthToken:   token,
		ClientID:     clientID,
		LastModified: time.Now(),
	}
	if raw := os.Getenv(EnvUserID); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			account.UserID = id
		}
	}
	return account, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(EnvOAuthToken) != "" && os.Getenv(EnvClientID) != ""
}
