package secrets

import (
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

// SecretManager resolves provider credentials by name, e.g. "OPENAI_API_KEY".
type SecretManager interface {
	GetSecret(secretName string) (string, error)
	SetSecret(secretName string, secret string) error
	DeleteSecret(secretName string) error
	GetType() SecretManagerType
}

type SecretManagerType string

const (
	EnvSecretManagerType     SecretManagerType = "env"
	MockSecretManagerType    SecretManagerType = "mock"
	KeyringSecretManagerType SecretManagerType = "keyring"
)

const keyringService = "chatrelay"

// EnvSecretManager reads secrets from environment variables. A CHATRELAY_
// prefixed variable takes precedence over the bare conventional name, so
// CHATRELAY_OPENAI_API_KEY shadows OPENAI_API_KEY when both are set.
type EnvSecretManager struct{}

func (e EnvSecretManager) GetSecret(secretName string) (string, error) {
	if secret := os.Getenv(fmt.Sprintf("CHATRELAY_%s", secretName)); secret != "" {
		return secret, nil
	}
	if secret := os.Getenv(secretName); secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("secret %s not found in environment", secretName)
}

func (e EnvSecretManager) SetSecret(secretName string, secret string) error {
	return fmt.Errorf("cannot set secrets in environment secret manager - secrets must be set as environment variables")
}

func (e EnvSecretManager) DeleteSecret(secretName string) error {
	return fmt.Errorf("cannot delete secrets in environment secret manager - secrets must be managed via environment variables")
}

func (e EnvSecretManager) GetType() SecretManagerType {
	return EnvSecretManagerType
}

// KeyringSecretManager stores secrets in the OS keyring.
type KeyringSecretManager struct{}

func (k KeyringSecretManager) GetSecret(secretName string) (string, error) {
	secret, err := keyring.Get(keyringService, secretName)
	if err != nil {
		return "", fmt.Errorf("error retrieving %s from keyring: %w", secretName, err)
	}
	return secret, nil
}

func (k KeyringSecretManager) SetSecret(secretName string, secret string) error {
	err := keyring.Set(keyringService, secretName, secret)
	if err != nil {
		return fmt.Errorf("error setting %s in keyring: %w", secretName, err)
	}
	return nil
}

func (k KeyringSecretManager) DeleteSecret(secretName string) error {
	err := keyring.Delete(keyringService, secretName)
	if err != nil {
		return fmt.Errorf("error deleting %s from keyring: %w", secretName, err)
	}
	return nil
}

func (k KeyringSecretManager) GetType() SecretManagerType {
	return KeyringSecretManagerType
}

// MockSecretManager is an in-memory secret store for tests.
type MockSecretManager struct {
	Secrets map[string]string
}

func (m MockSecretManager) GetSecret(secretName string) (string, error) {
	if secret, ok := m.Secrets[secretName]; ok {
		return secret, nil
	}
	return "", fmt.Errorf("secret %s not found", secretName)
}

func (m MockSecretManager) SetSecret(secretName string, secret string) error {
	if m.Secrets == nil {
		return fmt.Errorf("mock secret manager not initialized")
	}
	m.Secrets[secretName] = secret
	return nil
}

func (m MockSecretManager) DeleteSecret(secretName string) error {
	delete(m.Secrets, secretName)
	return nil
}

func (m MockSecretManager) GetType() SecretManagerType {
	return MockSecretManagerType
}

// GetSecretManager selects a manager by type name, defaulting to env.
func GetSecretManager(managerType string) SecretManager {
	switch SecretManagerType(managerType) {
	case KeyringSecretManagerType:
		return KeyringSecretManager{}
	case MockSecretManagerType:
		return MockSecretManager{Secrets: map[string]string{}}
	default:
		return EnvSecretManager{}
	}
}
