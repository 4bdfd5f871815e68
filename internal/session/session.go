// Package session brackets a test run with the collection service's session
// boundary commands. The transport carries no acknowledgment, so fixed settle
// windows stand in for a handshake: one after NEW_SESSION so the service can
// rotate its artifact, one before END_SESSION so in-flight records flush.
package session

import (
	"context"
	"time"

	"github.com/FairForge/streamtest/internal/udpclient"
	"go.uber.org/zap"
)

// Sender is the slice of the transport client the controller needs.
type Sender interface {
	SendCommand(name string) error
}

// Controller opens and closes one logical session.
type Controller struct {
	client      Sender
	startSettle time.Duration
	flushSettle time.Duration
	logger      *zap.Logger
}

// NewController creates a session controller with the given settle windows.
func NewController(client Sender, startSettle, flushSettle time.Duration, logger *zap.Logger) *Controller {
	return &Controller{
		client:      client,
		startSettle: startSettle,
		flushSettle: flushSettle,
		logger:      logger,
	}
}

// Begin opens a new session and waits for the service to settle.
func (c *Controller) Begin(ctx context.Context) error {
	c.logger.Info("opening session")
	if err := c.client.SendCommand(udpclient.CmdNewSession); err != nil {
		return err
	}
	return sleep(ctx, c.startSettle)
}

// End waits for in-flight records to flush, then closes the session.
func (c *Controller) End(ctx context.Context) error {
	if err := sleep(ctx, c.flushSettle); err != nil {
		return err
	}
	c.logger.Info("closing session")
	return c.client.SendCommand(udpclient.CmdEndSession)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
