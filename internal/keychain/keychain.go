package keychain

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	serviceName  = "botpoll"
	tokenAccount = "bot-token"
)

// ErrNoToken is returned when neither the environment nor the keychain
// provides a bot token.
var ErrNoToken = errors.New("no bot token configured")

// Token returns the bot token stored in the system keychain.
func Token() (string, error) {
	token, err := keyring.Get(serviceName, tokenAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read keychain: %w", err)
	}
	return token, nil
}

// SetToken stores the bot token in the system keychain.
func SetToken(token string) error {
	if token == "" {
		return errors.New("token is empty")
	}
	if err := keyring.Set(serviceName, tokenAccount, token); err != nil {
		return fmt.Errorf("write keychain: %w", err)
	}
	return nil
}

// ResolveToken prefers an explicitly configured token and falls back to the
// keychain.
func ResolveToken(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return Token()
}
