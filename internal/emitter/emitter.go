package emitter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/kitchen-simulator/internal/constants"
	"github.com/benmeehan/kitchen-simulator/internal/metrics"
	"github.com/benmeehan/kitchen-simulator/internal/models"
	"github.com/benmeehan/kitchen-simulator/internal/scheduler"
	"github.com/benmeehan/kitchen-simulator/internal/utils"
	"github.com/benmeehan/kitchen-simulator/pkg/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Transport delivers a validated payload to an emitter's target.
type Transport interface {
	Deliver(ctx context.Context, msg models.Message) error
}

// Options holds the initial configuration of an Emitter.
type Options struct {
	Name     string
	Device   string
	Kind     constants.EmitterKind
	Target   models.Target
	Payload  string
	Interval time.Duration
	Schema   *schema.Validator // Optional; checked after the payload parses
}

// Emitter is one simulated device endpoint. It owns an editable payload, a
// target, a send interval, a run flag and a bounded history of sent payloads.
//
// State changes happen under mu. Scheduled sends validate synchronously and
// hand delivery to a dispatcher, so overlapping deliveries are allowed and may
// complete out of order.
type Emitter struct {
	name      string
	device    string
	kind      constants.EmitterKind
	schema    *schema.Validator
	transport Transport
	scheduler *scheduler.Scheduler
	inflight  *utils.Dispatcher
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu        sync.Mutex
	target    models.Target
	payload   string
	interval  time.Duration
	running   bool
	history   *History
	sentCount int
	lastSent  time.Time
}

// NewEmitter initializes a new Emitter in the Idle state.
func NewEmitter(opts Options, transport Transport, sched *scheduler.Scheduler, m *metrics.Metrics, logger zerolog.Logger) (*Emitter, error) {
	if opts.Name == "" {
		return nil, errors.New("emitter name is required")
	}
	switch opts.Kind {
	case constants.KindHTTP:
		if opts.Target.HTTP == nil {
			return nil, fmt.Errorf("%s: http emitter requires an http target", opts.Name)
		}
		if !validMethod(opts.Target.HTTP.Method) {
			return nil, fmt.Errorf("%s: %w: method %q", opts.Name, ErrInvalidField, opts.Target.HTTP.Method)
		}
	case constants.KindMQTT:
		if opts.Target.MQTT == nil {
			return nil, fmt.Errorf("%s: mqtt emitter requires an mqtt target", opts.Name)
		}
	default:
		return nil, fmt.Errorf("%s: unknown emitter kind %q", opts.Name, opts.Kind)
	}
	if !validInterval(opts.Interval) {
		return nil, fmt.Errorf("%s: %w: interval %s", opts.Name, ErrInvalidField, opts.Interval)
	}

	e := &Emitter{
		name:      opts.Name,
		device:    opts.Device,
		kind:      opts.Kind,
		schema:    opts.Schema,
		transport: transport,
		scheduler: sched,
		inflight:  utils.NewDispatcher(),
		metrics:   m,
		logger:    logger.With().Str("emitter", opts.Name).Logger(),
		target:    opts.Target.Clone(),
		payload:   opts.Payload,
		interval:  opts.Interval,
		history:   NewHistory(constants.HistoryLimit),
	}
	e.metrics.SetRunning(e.name, false)
	e.metrics.SetHistorySize(e.name, 0)
	return e, nil
}

// Name returns the emitter name.
func (e *Emitter) Name() string {
	return e.name
}

// Kind returns the transport family of the emitter.
func (e *Emitter) Kind() constants.EmitterKind {
	return e.kind
}

// SetField updates one configuration field. Free text is stored as given;
// the payload in particular is only validated at send time. Method and
// interval must be one of their allowed values. Changing the interval of a
// running emitter reschedules it.
func (e *Emitter) SetField(field, value string) error {
	return e.SetFields(map[string]string{field: value})
}

// SetFields updates several fields at once. Every field is checked before any
// is applied, so a rejected field leaves the emitter unchanged.
func (e *Emitter) SetFields(fields map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	staged := fieldSet{target: e.target.Clone(), payload: e.payload, interval: e.interval}
	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)

	for _, field := range names {
		if err := e.stageField(&staged, field, fields[field]); err != nil {
			return err
		}
	}

	if err := e.setIntervalLocked(staged.interval); err != nil {
		return err
	}
	e.target = staged.target
	e.payload = staged.payload

	e.logger.Debug().Strs("fields", names).Msg("Emitter fields updated")
	return nil
}

type fieldSet struct {
	target   models.Target
	payload  string
	interval time.Duration
}

func (e *Emitter) stageField(staged *fieldSet, field, value string) error {
	switch field {
	case constants.FieldPayload:
		staged.payload = value
	case constants.FieldMethod:
		if staged.target.HTTP == nil {
			return fmt.Errorf("%w: %s has no %s", ErrInvalidField, e.name, field)
		}
		method := strings.ToUpper(strings.TrimSpace(value))
		if !validMethod(method) {
			return fmt.Errorf("%w: method %q is not one of %v", ErrInvalidField, value, constants.HTTPMethods)
		}
		staged.target.HTTP.Method = method
	case constants.FieldEndpoint:
		if staged.target.HTTP == nil {
			return fmt.Errorf("%w: %s has no %s", ErrInvalidField, e.name, field)
		}
		staged.target.HTTP.Endpoint = value
	case constants.FieldBroker:
		if staged.target.MQTT == nil {
			return fmt.Errorf("%w: %s has no %s", ErrInvalidField, e.name, field)
		}
		staged.target.MQTT.Broker = value
	case constants.FieldTopic:
		if staged.target.MQTT == nil {
			return fmt.Errorf("%w: %s has no %s", ErrInvalidField, e.name, field)
		}
		staged.target.MQTT.Topic = value
	case constants.FieldInterval:
		interval, err := ParseInterval(value)
		if err != nil {
			return err
		}
		staged.interval = interval
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidField, field)
	}
	return nil
}

func (e *Emitter) setIntervalLocked(interval time.Duration) error {
	if interval == e.interval {
		return nil
	}
	if e.running {
		if err := e.scheduler.Schedule(e.name, interval, e.fire); err != nil {
			return err
		}
	}
	e.interval = interval
	e.logger.Info().Dur("interval", interval).Bool("running", e.running).Msg("Send interval changed")
	return nil
}

// Toggle flips the run flag and returns the new state. Going from Idle to
// Running starts the periodic schedule and posts one immediate send built
// from the Running state, so a Stop right after Toggle does not cancel it.
// Going from Running to Idle stops future scheduled sends; deliveries already
// in flight still complete.
func (e *Emitter) Toggle() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.stopLocked()
		return false, nil
	}

	if err := e.scheduler.Schedule(e.name, e.interval, e.fire); err != nil {
		return false, fmt.Errorf("failed to schedule %s: %w", e.name, err)
	}
	e.running = true

	// an invalid payload is reported like any scheduled send and the emitter keeps running
	if msg, text, err := e.prepareLocked(); err == nil {
		if err := e.scheduler.Post(func() { e.dispatch(msg, text) }); err != nil {
			e.scheduler.Cancel(e.name)
			e.running = false
			return false, fmt.Errorf("failed to post initial send for %s: %w", e.name, err)
		}
	}

	e.metrics.SetRunning(e.name, true)
	e.logger.Info().Dur("interval", e.interval).Msg("Emitter started")
	return true, nil
}

// Stop moves the emitter to Idle if it is running.
func (e *Emitter) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.stopLocked()
	}
}

func (e *Emitter) stopLocked() {
	e.scheduler.Cancel(e.name)
	e.running = false
	e.metrics.SetRunning(e.name, false)
	e.logger.Info().Msg("Emitter stopped")
}

// Running reports whether the emitter is running.
func (e *Emitter) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Send performs one manual send and waits for its outcome. It returns a
// *PayloadSyntaxError when the payload is rejected, a *TransportError when
// delivery fails, and ErrEmitterIdle when a simulated transport skips the send.
func (e *Emitter) Send(ctx context.Context) error {
	msg, text, err := e.prepare(false)
	if err != nil {
		return err
	}
	return e.deliver(ctx, msg, text)
}

// Wait blocks until every dispatched delivery has completed.
func (e *Emitter) Wait() {
	e.inflight.Wait()
}

// fire is the scheduled send action. Failures only reach the diagnostic channel.
func (e *Emitter) fire() {
	msg, text, err := e.prepare(true)
	if err != nil {
		return
	}
	e.dispatch(msg, text)
}

// dispatch delivers msg in the background.
func (e *Emitter) dispatch(msg models.Message, text string) {
	e.inflight.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().Err(fmt.Errorf("panic: %v", r)).Msg("Delivery panicked")
			}
		}()
		_ = e.deliver(context.Background(), msg, text)
	})
}

var errNotRunning = errors.New("emitter stopped before scheduled send")

// prepare snapshots the target and payload and validates the payload.
func (e *Emitter) prepare(requireRunning bool) (models.Message, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if requireRunning && !e.running {
		e.logger.Debug().Msg("Skipping scheduled send, emitter is idle")
		return models.Message{}, "", errNotRunning
	}
	return e.prepareLocked()
}

func (e *Emitter) prepareLocked() (models.Message, string, error) {
	text := e.payload
	body, err := compactPayload(text)
	if err == nil && e.schema != nil {
		err = e.schema.ValidateString(text)
	}
	if err != nil {
		perr := &PayloadSyntaxError{Emitter: e.name, Err: err}
		e.metrics.ObserveSend(e.name, constants.OutcomePayloadError, 0)
		e.logger.Warn().Err(err).Msg("Payload is not valid, send skipped")
		return models.Message{}, "", perr
	}

	return models.Message{
		Emitter: e.name,
		Target:  e.target.Clone(),
		Payload: body,
		Running: e.running,
	}, text, nil
}

// deliver hands msg to the transport and records the outcome.
func (e *Emitter) deliver(ctx context.Context, msg models.Message, text string) error {
	start := time.Now()
	err := e.transport.Deliver(ctx, msg)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, ErrEmitterIdle):
		e.metrics.ObserveSend(e.name, constants.OutcomeSkippedIdle, 0)
		e.logger.Warn().Msg("Emitter is idle, simulated send skipped")
		return err
	case err != nil:
		terr := &TransportError{Emitter: e.name, Err: err}
		e.metrics.ObserveSend(e.name, constants.OutcomeTransportError, elapsed)
		e.logger.Error().Err(err).Int("status", terr.StatusCode()).Msg("Failed to deliver payload")
		return terr
	}

	e.metrics.ObserveSend(e.name, constants.OutcomeSuccess, elapsed)
	e.record(text)
	e.logger.Debug().Dur("elapsed", elapsed).Msg("Payload delivered")
	return nil
}

// record appends a successful send to the history.
func (e *Emitter) record(text string) {
	now := e.scheduler.Clock().Now()

	e.mu.Lock()
	e.history.Add(models.HistoryEntry{
		ID:        uuid.New().String(),
		Timestamp: now,
		Payload:   text,
	})
	e.sentCount++
	e.lastSent = now
	size := e.history.Len()
	e.mu.Unlock()

	e.metrics.SetHistorySize(e.name, size)
}

// History returns the sent payloads, oldest first.
func (e *Emitter) History() []models.HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Entries()
}

// State returns a snapshot of the emitter.
func (e *Emitter) State() models.EmitterState {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := models.EmitterState{
		Name:       e.name,
		Device:     e.device,
		Kind:       string(e.kind),
		State:      constants.StateIdle,
		Running:    e.running,
		Target:     e.target.Clone(),
		Payload:    e.payload,
		IntervalMs: e.interval.Milliseconds(),
		History:    e.history.Entries(),
		SentCount:  e.sentCount,
	}
	if e.running {
		state.State = constants.StateRunning
	}
	if !e.lastSent.IsZero() {
		last := e.lastSent
		state.LastSent = &last
	}
	return state
}
