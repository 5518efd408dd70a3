package service_registry_test

import (
	"errors"
	"testing"

	"github.com/benmeehan/kitchen-simulator/internal/mocks"
	"github.com/benmeehan/kitchen-simulator/internal/service_registry"
	"github.com/benmeehan/kitchen-simulator/internal/utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingService appends its name to a shared log on Start and Stop.
type recordingService struct {
	name     string
	log      *[]string
	startErr error
	stopErr  error
}

func (r *recordingService) Start() error {
	*r.log = append(*r.log, "start "+r.name)
	return r.startErr
}

func (r *recordingService) Stop() error {
	*r.log = append(*r.log, "stop "+r.name)
	return r.stopErr
}

// TestServiceRegistry_Order tests start in order and stop in reverse order.
func TestServiceRegistry_Order(t *testing.T) {
	var log []string
	sr := service_registry.NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("broker", &recordingService{name: "broker", log: &log})
	sr.RegisterService("panel", &recordingService{name: "panel", log: &log})
	sr.RegisterService("panel", &recordingService{name: "duplicate", log: &log})
	sr.RegisterService("api", &recordingService{name: "api", log: &log})

	require.NoError(t, sr.StartServices())
	require.NoError(t, sr.StopServices())

	assert.Equal(t, []string{
		"start broker", "start panel", "start api",
		"stop api", "stop panel", "stop broker",
	}, log)
}

// TestServiceRegistry_StartFailure tests rollback of started services.
func TestServiceRegistry_StartFailure(t *testing.T) {
	var log []string
	sr := service_registry.NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("broker", &recordingService{name: "broker", log: &log})
	sr.RegisterService("panel", &recordingService{name: "panel", log: &log, startErr: errors.New("boom")})
	sr.RegisterService("api", &recordingService{name: "api", log: &log})

	err := sr.StartServices()
	assert.ErrorContains(t, err, "failed to start panel")
	assert.Equal(t, []string{"start broker", "start panel", "stop broker"}, log)
}

// TestServiceRegistry_StopErrorsJoined tests that every stop failure is reported.
func TestServiceRegistry_StopErrorsJoined(t *testing.T) {
	var log []string
	errA, errB := errors.New("a"), errors.New("b")
	sr := service_registry.NewServiceRegistry(zerolog.Nop())
	sr.RegisterService("a", &recordingService{name: "a", log: &log, stopErr: errA})
	sr.RegisterService("b", &recordingService{name: "b", log: &log, stopErr: errB})

	err := sr.StopServices()
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

// TestServiceRegistry_RegisterServices tests the configured service set.
func TestServiceRegistry_RegisterServices(t *testing.T) {
	config := utils.DefaultConfig()
	config.API.Listen = "127.0.0.1:0"
	config.Broker.Enabled = true
	config.Broker.Listen = "127.0.0.1:0"

	sr := service_registry.NewServiceRegistry(zerolog.Nop())
	require.NoError(t, sr.RegisterServices(config, service_registry.Dependencies{
		FileClient: new(mocks.MockFileOperations),
	}))
	require.NotNil(t, sr.Panel())

	require.NoError(t, sr.StartServices())
	assert.Len(t, sr.Panel().Emitters(), 2)
	require.NoError(t, sr.StopServices())
}
