package emitter_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/kitchen-simulator/internal/constants"
	"github.com/benmeehan/kitchen-simulator/internal/emitter"
	"github.com/benmeehan/kitchen-simulator/internal/metrics"
	"github.com/benmeehan/kitchen-simulator/internal/mocks"
	"github.com/benmeehan/kitchen-simulator/internal/models"
	"github.com/benmeehan/kitchen-simulator/internal/scheduler"
	http_utils "github.com/benmeehan/kitchen-simulator/pkg/httpUtils"
	"github.com/benmeehan/kitchen-simulator/pkg/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
	quiet   = 50 * time.Millisecond
)

// fakeTransport records delivered messages and returns err for each of them.
type fakeTransport struct {
	mu       sync.Mutex
	messages []models.Message
	err      error
	block    chan struct{}
}

func (f *fakeTransport) Deliver(ctx context.Context, msg models.Message) error {
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	block, err := f.block, f.err
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return err
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeTransport) message(i int) models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[i]
}

func (f *fakeTransport) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

type fixture struct {
	emitter   *emitter.Emitter
	transport *fakeTransport
	clock     *mocks.FakeClock
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics
	logs      *syncBuffer
}

func newFixture(t *testing.T, opts emitter.Options) *fixture {
	t.Helper()

	f := &fixture{
		transport: &fakeTransport{},
		clock:     mocks.NewFakeClock(time.Date(2025, 5, 7, 14, 10, 0, 0, time.UTC)),
		metrics:   metrics.NewMetrics(nil),
		logs:      &syncBuffer{},
	}
	logger := zerolog.New(f.logs)
	f.scheduler = scheduler.NewScheduler(f.clock, logger)

	var err error
	f.emitter, err = emitter.NewEmitter(opts, f.transport, f.scheduler, f.metrics, logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		f.emitter.Stop()
		f.scheduler.Shutdown()
		f.emitter.Wait()
	})
	return f
}

func httpOptions(payload string, interval time.Duration) emitter.Options {
	return emitter.Options{
		Name:     constants.CameraEmitter,
		Device:   "Smart Shopping Camera",
		Kind:     constants.KindHTTP,
		Target:   models.Target{HTTP: &models.HTTPTarget{Method: "POST", Endpoint: "http://localhost:9090/api/v1/token/telemetry"}},
		Payload:  payload,
		Interval: interval,
	}
}

func mqttOptions(payload string, interval time.Duration) emitter.Options {
	return emitter.Options{
		Name:     constants.FridgeEmitter,
		Device:   "Smart Fridge Inventory",
		Kind:     constants.KindMQTT,
		Target:   models.Target{MQTT: &models.MQTTTarget{Broker: "tcp://localhost:1883", Topic: "v1/devices/me/telemetry", QOS: 1}},
		Payload:  payload,
		Interval: interval,
	}
}

// TestEmitter_Send_InvalidPayload leaves history and run state untouched.
func TestEmitter_Send_InvalidPayload(t *testing.T) {
	for _, payload := range []string{
		`{"item": }`, ``, `   `, `maito`, `{'item': 'maito'}`,
		`{"count": 01}`, `{"n": 1.}`, `{"n": -01}`, `{"n": 00.5}`, `{} {}`,
	} {
		t.Run(fmt.Sprintf("%q", payload), func(t *testing.T) {
			f := newFixture(t, httpOptions(payload, constants.IntervalOff))

			err := f.emitter.Send(context.Background())

			var perr *emitter.PayloadSyntaxError
			require.True(t, errors.As(err, &perr), "got %v", err)
			assert.Equal(t, constants.CameraEmitter, perr.Emitter)
			assert.Empty(t, f.emitter.History())
			assert.False(t, f.emitter.Running())
			assert.Equal(t, 0, f.transport.count())
		})
	}
}

// TestEmitter_Send_RecordsAndCapsHistory grows the history by one per send and evicts the oldest.
func TestEmitter_Send_RecordsAndCapsHistory(t *testing.T) {
	f := newFixture(t, httpOptions(`{"item":"maito"}`, constants.IntervalOff))

	for i := 1; i <= constants.HistoryLimit+2; i++ {
		payload := fmt.Sprintf(`{"item": "maito", "n": %d}`, i)
		require.NoError(t, f.emitter.SetField(constants.FieldPayload, payload))
		require.NoError(t, f.emitter.Send(context.Background()))

		history := f.emitter.History()
		assert.Len(t, history, min(i, constants.HistoryLimit))
		assert.Equal(t, payload, history[len(history)-1].Payload)
		assert.Equal(t, f.clock.Now(), history[len(history)-1].Timestamp)
	}

	history := f.emitter.History()
	assert.Equal(t, `{"item": "maito", "n": 3}`, history[0].Payload)

	state := f.emitter.State()
	assert.Equal(t, constants.HistoryLimit+2, state.SentCount)
	require.NotNil(t, state.LastSent)
	assert.Equal(t, f.clock.Now(), *state.LastSent)
}

// TestEmitter_Send_CompactsPayload sends the compact form and records the text as typed.
func TestEmitter_Send_CompactsPayload(t *testing.T) {
	payload := "{\n  \"items\": [\"maito\", \"juusto\"]\n}"
	f := newFixture(t, mqttOptions(payload, constants.IntervalOff))

	require.NoError(t, f.emitter.Send(context.Background()))

	require.Equal(t, 1, f.transport.count())
	msg := f.transport.message(0)
	assert.JSONEq(t, payload, string(msg.Payload))
	assert.Equal(t, `{"items":["maito","juusto"]}`, string(msg.Payload))
	assert.Equal(t, "v1/devices/me/telemetry", msg.Target.MQTT.Topic)
	assert.Equal(t, payload, f.emitter.History()[0].Payload)
}

// TestEmitter_Send_TransportFailure reports the failure and keeps history unchanged.
func TestEmitter_Send_TransportFailure(t *testing.T) {
	f := newFixture(t, httpOptions(`{"item":"maito"}`, constants.IntervalOff))
	f.transport.setErr(&http_utils.StatusError{Code: 503, Status: "503 Service Unavailable"})

	err := f.emitter.Send(context.Background())

	var terr *emitter.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 503, terr.StatusCode())
	assert.Empty(t, f.emitter.History())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SendsTotal.WithLabelValues(constants.CameraEmitter, constants.OutcomeTransportError)))

	f.transport.setErr(errors.New("connection refused"))
	err = f.emitter.Send(context.Background())
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 0, terr.StatusCode())
}

// TestEmitter_Send_IdleSkip does not record a send the transport skipped.
func TestEmitter_Send_IdleSkip(t *testing.T) {
	f := newFixture(t, mqttOptions(`{"items":[]}`, constants.IntervalOff))
	f.transport.setErr(emitter.ErrEmitterIdle)

	err := f.emitter.Send(context.Background())
	assert.ErrorIs(t, err, emitter.ErrEmitterIdle)
	assert.Empty(t, f.emitter.History())
}

// TestEmitter_Toggle_ImmediateSendWithIntervalOff sends exactly once when the interval is off.
func TestEmitter_Toggle_ImmediateSendWithIntervalOff(t *testing.T) {
	f := newFixture(t, httpOptions(`{}`, constants.IntervalOff))
	require.NoError(t, f.emitter.SetField(constants.FieldPayload, `{"item":"maito"}`))

	running, err := f.emitter.Toggle()
	require.NoError(t, err)
	assert.True(t, running)

	assert.Eventually(t, func() bool { return len(f.emitter.History()) == 1 }, waitFor, tick)
	assert.Equal(t, 0, f.clock.Tickers())

	f.clock.Advance(48 * time.Hour)
	assert.Never(t, func() bool { return f.transport.count() > 1 }, quiet, tick)
	assert.Equal(t, `{"item":"maito"}`, f.emitter.History()[0].Payload)
	assert.True(t, f.transport.message(0).Running)
}

// TestEmitter_Toggle_PeriodicSends fires twice more over twenty minutes at a ten minute interval.
func TestEmitter_Toggle_PeriodicSends(t *testing.T) {
	f := newFixture(t, mqttOptions(`{"items":["maito","juusto"]}`, constants.IntervalTenMinutes))

	_, err := f.emitter.Toggle()
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(f.emitter.History()) == 1 }, waitFor, tick)

	f.clock.Advance(10 * time.Minute)
	assert.Eventually(t, func() bool { return len(f.emitter.History()) == 2 }, waitFor, tick)

	f.clock.Advance(10 * time.Minute)
	assert.Eventually(t, func() bool { return len(f.emitter.History()) == 3 }, waitFor, tick)

	assert.Never(t, func() bool { return f.transport.count() > 3 }, quiet, tick)
	for _, entry := range f.emitter.History() {
		assert.Equal(t, `{"items":["maito","juusto"]}`, entry.Payload)
	}
}

// TestEmitter_Toggle_Stop prevents any further scheduled send.
func TestEmitter_Toggle_Stop(t *testing.T) {
	f := newFixture(t, httpOptions(`{"item":"maito"}`, constants.IntervalTenMinutes))

	_, err := f.emitter.Toggle()
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return f.transport.count() == 1 }, waitFor, tick)

	running, err := f.emitter.Toggle()
	require.NoError(t, err)
	assert.False(t, running)
	assert.Equal(t, 0, f.clock.Tickers())

	f.clock.Advance(30 * time.Minute)
	assert.Never(t, func() bool { return f.transport.count() > 1 }, quiet, tick)

	// history is not retracted
	assert.Len(t, f.emitter.History(), 1)
	assert.Equal(t, constants.StateIdle, f.emitter.State().State)
}

// TestEmitter_Toggle_InvalidPayload fails validation on the immediate send but keeps running.
func TestEmitter_Toggle_InvalidPayload(t *testing.T) {
	f := newFixture(t, httpOptions(`{"item": }`, constants.IntervalOff))

	running, err := f.emitter.Toggle()
	require.NoError(t, err)
	assert.True(t, running)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.SendsTotal.WithLabelValues(constants.CameraEmitter, constants.OutcomePayloadError)) == 1
	}, waitFor, tick)
	assert.Contains(t, f.logs.String(), "Payload is not valid")
	assert.Empty(t, f.emitter.History())
	assert.Equal(t, 0, f.transport.count())
	assert.True(t, f.emitter.Running())
}

// TestEmitter_IntervalChangeWhileRunning reschedules without a second timer.
func TestEmitter_IntervalChangeWhileRunning(t *testing.T) {
	f := newFixture(t, httpOptions(`{"item":"maito"}`, constants.IntervalTenMinutes))

	_, err := f.emitter.Toggle()
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return f.transport.count() == 1 }, waitFor, tick)

	require.NoError(t, f.emitter.SetField(constants.FieldInterval, "3600000"))
	assert.Equal(t, 1, f.clock.Tickers())
	assert.Equal(t, int64(3600000), f.emitter.State().IntervalMs)

	for i := 0; i < 5; i++ {
		f.clock.Advance(10 * time.Minute)
	}
	assert.Never(t, func() bool { return f.transport.count() > 1 }, quiet, tick)

	f.clock.Advance(10 * time.Minute)
	assert.Eventually(t, func() bool { return f.transport.count() == 2 }, waitFor, tick)
	assert.Never(t, func() bool { return f.transport.count() > 2 }, quiet, tick)

	require.NoError(t, f.emitter.SetField(constants.FieldInterval, "off"))
	assert.Equal(t, 0, f.clock.Tickers())
	assert.True(t, f.emitter.Running())
}

// TestEmitter_IntervalChangeWhileIdle does not start a schedule.
func TestEmitter_IntervalChangeWhileIdle(t *testing.T) {
	f := newFixture(t, httpOptions(`{"item":"maito"}`, constants.IntervalOff))

	require.NoError(t, f.emitter.SetField(constants.FieldInterval, "5h"))
	assert.Equal(t, 0, f.clock.Tickers())
	assert.Equal(t, (5 * time.Hour).Milliseconds(), f.emitter.State().IntervalMs)
}

// TestEmitter_OverlappingDeliveries lets a slow delivery overlap the next firing.
func TestEmitter_OverlappingDeliveries(t *testing.T) {
	f := newFixture(t, httpOptions(`{"item":"maito"}`, constants.IntervalTenMinutes))
	release := make(chan struct{})
	f.transport.block = release

	_, err := f.emitter.Toggle()
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return f.transport.count() == 1 }, waitFor, tick)

	f.clock.Advance(10 * time.Minute)
	assert.Eventually(t, func() bool { return f.transport.count() == 2 }, waitFor, tick)
	assert.Empty(t, f.emitter.History())

	close(release)
	f.emitter.Wait()
	assert.Len(t, f.emitter.History(), 2)
}

// TestEmitter_SetField covers field validation.
func TestEmitter_SetField(t *testing.T) {
	f := newFixture(t, httpOptions(`{}`, constants.IntervalOff))

	require.NoError(t, f.emitter.SetField(constants.FieldMethod, "put"))
	require.NoError(t, f.emitter.SetField(constants.FieldEndpoint, "http://example.test/telemetry"))
	require.NoError(t, f.emitter.SetField(constants.FieldPayload, `not json yet`))

	state := f.emitter.State()
	assert.Equal(t, "PUT", state.Target.HTTP.Method)
	assert.Equal(t, "http://example.test/telemetry", state.Target.HTTP.Endpoint)
	assert.Equal(t, `not json yet`, state.Payload)

	assert.ErrorIs(t, f.emitter.SetField(constants.FieldMethod, "PATCH"), emitter.ErrInvalidField)
	assert.ErrorIs(t, f.emitter.SetField(constants.FieldInterval, "15m"), emitter.ErrInvalidField)
	assert.ErrorIs(t, f.emitter.SetField(constants.FieldTopic, "kitchen"), emitter.ErrInvalidField)
	assert.ErrorIs(t, f.emitter.SetField("colour", "blue"), emitter.ErrInvalidField)

	// rejected values leave the state unchanged
	assert.Equal(t, "PUT", f.emitter.State().Target.HTTP.Method)
	assert.Equal(t, int64(0), f.emitter.State().IntervalMs)
}

// TestEmitter_SetField_MQTT updates the broker descriptor.
func TestEmitter_SetField_MQTT(t *testing.T) {
	f := newFixture(t, mqttOptions(`{}`, constants.IntervalOff))

	require.NoError(t, f.emitter.SetField(constants.FieldBroker, "tcp://broker.local:1883"))
	require.NoError(t, f.emitter.SetField(constants.FieldTopic, "kitchen/fridge"))
	assert.ErrorIs(t, f.emitter.SetField(constants.FieldMethod, "GET"), emitter.ErrInvalidField)

	target := f.emitter.State().Target.MQTT
	assert.Equal(t, "tcp://broker.local:1883", target.Broker)
	assert.Equal(t, "kitchen/fridge", target.Topic)
}

// TestEmitter_SchemaViolation is treated like a syntax error.
func TestEmitter_SchemaViolation(t *testing.T) {
	validator, err := schema.NewValidator(`{"type":"object","required":["items"]}`)
	require.NoError(t, err)

	opts := mqttOptions(`{"item":"maito"}`, constants.IntervalOff)
	opts.Schema = validator
	f := newFixture(t, opts)

	var perr *emitter.PayloadSyntaxError
	assert.True(t, errors.As(f.emitter.Send(context.Background()), &perr))

	require.NoError(t, f.emitter.SetField(constants.FieldPayload, `{"items":["maito"]}`))
	assert.NoError(t, f.emitter.Send(context.Background()))
}

// TestEmitter_EmittersAreIndependent shares a scheduler without sharing state.
func TestEmitter_EmittersAreIndependent(t *testing.T) {
	f := newFixture(t, httpOptions(`{"item":"maito"}`, constants.IntervalTenMinutes))
	other, err := emitter.NewEmitter(mqttOptions(`{"items":[]}`, constants.IntervalOneHour), f.transport, f.scheduler, nil, zerolog.Nop())
	require.NoError(t, err)
	defer other.Wait()
	defer other.Stop()

	_, err = f.emitter.Toggle()
	require.NoError(t, err)
	_, err = other.Toggle()
	require.NoError(t, err)
	assert.Equal(t, 2, f.clock.Tickers())

	_, err = f.emitter.Toggle()
	require.NoError(t, err)
	assert.True(t, other.Running())
	assert.Equal(t, 1, f.clock.Tickers())

	assert.Eventually(t, func() bool { return len(other.History()) == 1 }, waitFor, tick)
	assert.Eventually(t, func() bool { return len(f.emitter.History()) == 1 }, waitFor, tick)
}

// TestEmitter_Toggle_StopRightAfterStart still delivers the immediate send.
func TestEmitter_Toggle_StopRightAfterStart(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, mqttOptions(`{"items":["voi"]}`, constants.IntervalTenMinutes))

		_, err := f.emitter.Toggle()
		require.NoError(t, err)
		f.emitter.Stop()

		f.scheduler.Shutdown()
		f.emitter.Wait()
		require.Len(t, f.emitter.History(), 1, "iteration %d", i)
		msg := f.transport.message(0)
		assert.True(t, msg.Running)
		assert.Equal(t, 0, f.clock.Tickers())
	}
}

// TestEmitter_SetFields applies all fields or none.
func TestEmitter_SetFields(t *testing.T) {
	f := newFixture(t, httpOptions(`{}`, constants.IntervalOff))

	err := f.emitter.SetFields(map[string]string{
		constants.FieldInterval: "10m",
		constants.FieldMethod:   "BOGUS",
		constants.FieldEndpoint: "http://x",
		constants.FieldPayload:  `{"item":"maito"}`,
	})
	assert.ErrorIs(t, err, emitter.ErrInvalidField)

	state := f.emitter.State()
	assert.Equal(t, int64(0), state.IntervalMs)
	assert.Equal(t, "POST", state.Target.HTTP.Method)
	assert.Equal(t, "http://localhost:9090/api/v1/token/telemetry", state.Target.HTTP.Endpoint)
	assert.Equal(t, `{}`, state.Payload)

	require.NoError(t, f.emitter.SetFields(map[string]string{
		constants.FieldInterval: "10m",
		constants.FieldMethod:   "put",
		constants.FieldEndpoint: "http://x",
	}))
	state = f.emitter.State()
	assert.Equal(t, (10 * time.Minute).Milliseconds(), state.IntervalMs)
	assert.Equal(t, "PUT", state.Target.HTTP.Method)
	assert.Equal(t, "http://x", state.Target.HTTP.Endpoint)
}

func TestNewEmitter_RejectsBadOptions(t *testing.T) {
	sched := scheduler.NewScheduler(mocks.NewFakeClock(time.Now()), zerolog.Nop())
	defer sched.Shutdown()

	bad := []emitter.Options{
		{Kind: constants.KindHTTP},
		{Name: "camera", Kind: constants.KindHTTP},
		{Name: "fridge", Kind: constants.KindMQTT},
		{Name: "oven", Kind: "zigbee"},
		func() emitter.Options { o := httpOptions(`{}`, 0); o.Target.HTTP.Method = "HEAD"; return o }(),
		httpOptions(`{}`, 7*time.Minute),
	}
	for _, opts := range bad {
		_, err := emitter.NewEmitter(opts, &fakeTransport{}, sched, nil, zerolog.Nop())
		assert.Error(t, err)
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"0", 0, true},
		{"off", 0, true},
		{"", 0, true},
		{"600000", 10 * time.Minute, true},
		{"3600000", time.Hour, true},
		{"18000000", 5 * time.Hour, true},
		{"86400000", 24 * time.Hour, true},
		{"10m", 10 * time.Minute, true},
		{"24h", 24 * time.Hour, true},
		{"60000", 0, false},
		{"fortnight", 0, false},
	}

	for _, tt := range tests {
		got, err := emitter.ParseInterval(tt.in)
		if !tt.ok {
			assert.ErrorIs(t, err, emitter.ErrInvalidField, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
