package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/DrmagicE/gmqtt"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type stubRunner struct {
	err error
}

func (stubRunner) Run() {}

func (s stubRunner) Stop(context.Context) error { return s.err }

// TestNewServer_Runner tests that the gmqtt server exposes the lifecycle BrokerService drives.
func TestNewServer_Runner(t *testing.T) {
	var srv runner = gmqtt.NewServer()
	assert.NotNil(t, srv)
}

// TestBrokerService_Stop_Error tests that a failed shutdown is reported and the service is released.
func TestBrokerService_Stop_Error(t *testing.T) {
	b := NewBrokerService("127.0.0.1:0", zerolog.Nop())
	b.server = stubRunner{err: errors.New("context deadline exceeded")}

	err := b.Stop()
	assert.ErrorContains(t, err, "failed to stop broker")
	assert.ErrorContains(t, err, "context deadline exceeded")
	assert.Equal(t, "", b.Addr())

	assert.EqualError(t, b.Stop(), "broker service is not running")
}
