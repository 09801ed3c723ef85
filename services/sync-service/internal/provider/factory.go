package provider

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/stoik/mailsync/services/sync-service/internal/models"
)

// Factory builds the client matching an origin's provider
type Factory struct {
	API    Config
	IMAP   IMAPConfig
	Logger *slog.Logger
}

// ForOrigin returns a client already bound to the origin's account
func (f *Factory) ForOrigin(origin *models.Origin) (Client, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var c Client
	switch origin.Provider {
	case models.ProviderAPI:
		c = NewAPIClient(f.API, logger)
	case models.ProviderIMAP:
		c = NewIMAPClient(f.IMAP, logger)
	default:
		return nil, fmt.Errorf("unsupported provider %q for origin %s", origin.Provider, origin.ID)
	}

	if err := c.SetActiveAccount(origin); err != nil {
		return nil, err
	}
	return c, nil
}

// Release closes clients that hold a connection
func Release(c Client) error {
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
