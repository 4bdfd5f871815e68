package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	commands []string
}

func (f *fakeSender) SendCommand(name string) error {
	f.commands = append(f.commands, name)
	return nil
}

func TestController_BeginEnd(t *testing.T) {
	sender := &fakeSender{}
	ctl := NewController(sender, time.Millisecond, time.Millisecond, zap.NewNop())

	require.NoError(t, ctl.Begin(context.Background()))
	require.NoError(t, ctl.End(context.Background()))

	assert.Equal(t, []string{"NEW_SESSION", "END_SESSION"}, sender.commands)
}

func TestController_BeginSettles(t *testing.T) {
	sender := &fakeSender{}
	settle := 50 * time.Millisecond
	ctl := NewController(sender, settle, 0, zap.NewNop())

	start := time.Now()
	require.NoError(t, ctl.Begin(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), settle)
}

func TestController_EndCanceled(t *testing.T) {
	sender := &fakeSender{}
	ctl := NewController(sender, 0, time.Minute, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ctl.End(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	// The close command must not go out if the flush window was interrupted.
	assert.Empty(t, sender.commands)
}

func TestController_ZeroSettle(t *testing.T) {
	sender := &fakeSender{}
	ctl := NewController(sender, 0, 0, zap.NewNop())

	require.NoError(t, ctl.Begin(context.Background()))
	require.NoError(t, ctl.End(context.Background()))
	assert.Len(t, sender.commands, 2)
}
