package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/SafeBirth/internal/notify"
	"github.com/BTreeMap/SafeBirth/internal/util"
)

// ChainSender tries each transport in order and moves on only when a transport
// reports ErrNoTransport. Any other error stops the chain.
type ChainSender struct {
	names    []string
	services []Service
}

var _ notify.Sender = (*ChainSender)(nil)

// NewChainSender creates an empty ChainSender; add transports with Add.
func NewChainSender() *ChainSender {
	return &ChainSender{}
}

// Add appends a transport to the chain under name (used in logs).
func (c *ChainSender) Add(name string, svc Service) *ChainSender {
	c.names = append(c.names, name)
	c.services = append(c.services, svc)
	return c
}

// Len returns the number of transports in the chain.
func (c *ChainSender) Len() int {
	return len(c.services)
}

// SendMessage delivers body through the first transport able to take it.
func (c *ChainSender) SendMessage(ctx context.Context, to string, body string) error {
	for i, svc := range c.services {
		err := svc.SendMessage(ctx, to, body)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNoTransport) {
			return fmt.Errorf("%s transport: %w", c.names[i], err)
		}
		slog.Debug("ChainSender.SendMessage: transport unavailable, trying next", "transport", c.names[i], "to", util.MaskPhone(to))
	}
	return ErrNoTransport
}
