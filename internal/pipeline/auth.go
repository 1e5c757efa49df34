package pipeline

import (
	"context"
	"fmt"

	"github.com/bardlex/stobixd/internal/wallet"
	"github.com/bardlex/stobixd/pkg/errors"
	"github.com/bardlex/stobixd/pkg/log"
)

// FallbackMessage is signed when the nonce reply carries no message
func FallbackMessage(nonce string) string {
	return fmt.Sprintf("Sign this message to authenticate: %s", nonce)
}

// Authenticator performs the nonce, sign and verify exchange
type Authenticator struct {
	api    API
	logger *log.Logger
}

// NewAuthenticator creates an Authenticator
func NewAuthenticator(api API, logger *log.Logger) *Authenticator {
	return &Authenticator{api: api, logger: logger}
}

// Authenticate returns a bearer token for the wallet
func (a *Authenticator) Authenticate(ctx context.Context, w *wallet.Wallet) (string, error) {
	address := w.Address()

	nonce, err := a.api.Nonce(ctx, address)
	if err != nil {
		return "", authError(err, "nonce request failed")
	}
	if nonce.Nonce == "" {
		return "", errors.New(errors.ErrorTypeAuthentication, "authenticate", "server returned an empty nonce")
	}

	message := nonce.Message
	if message == "" {
		message = FallbackMessage(nonce.Nonce)
	}

	signature, err := w.SignMessage(message)
	if err != nil {
		return "", authError(err, "signing failed")
	}
	a.logger.Debug("challenge signed", "nonce", nonce.Nonce)

	verified, err := a.api.Verify(ctx, nonce.Nonce, signature)
	if err != nil {
		return "", authError(err, "signature verification failed")
	}
	if verified.Token == "" {
		return "", errors.New(errors.ErrorTypeAuthentication, "authenticate", "verify response has no token")
	}

	a.logger.Info("login successful")
	return verified.Token, nil
}

func authError(cause error, message string) *errors.ServiceError {
	var se *errors.ServiceError
	if errors.As(cause, &se) {
		message = fmt.Sprintf("%s: %s", message, se.Message)
	}
	return errors.Wrap(cause, errors.ErrorTypeAuthentication, "authenticate", message)
}
