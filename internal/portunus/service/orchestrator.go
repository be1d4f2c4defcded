package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/Portunus/agent/internal/observability"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/door"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

// State is the orchestrator's position in its scan cycle.
type State int32

const (
	StateInitializing State = iota
	StateReady
	StateResolving
	StateDispatching
	StateAwaitingCompletion
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateResolving:
		return "resolving"
	case StateDispatching:
		return "dispatching"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Serving reports whether the agent is able to handle scans in this state.
func (s State) Serving() bool {
	return s != StateInitializing && s != StateShuttingDown
}

// StateListener is notified on every state transition.  It is called from
// the orchestrator goroutine and must not block.
type StateListener interface {
	OnStateChange(State)
}

// TagSource is the part of sensor.Sensor the orchestrator uses.
type TagSource interface {
	PollOnce() (types.TagID, bool)
}

var errNoDoorsConfigured = errors.New("no door settings available")

// Scan results recorded in metrics.
const (
	scanGranted = "granted"
	scanUnknown = "unknown"
)

// Dependencies configures an Orchestrator.
type Dependencies struct {
	Sensor    TagSource
	Registry  *ActuatorRegistry
	Directory store.Directory
	Logger    zerolog.Logger

	ReloadInterval    time.Duration
	PollInterval      time.Duration
	StartupRetryDelay time.Duration
	// MaxStartupAttempts bounds the startup retry loop; zero retries forever.
	MaxStartupAttempts int

	// Listener is optional.
	Listener StateListener
}

// Orchestrator is the agent's main loop.  It owns the scan cycle: reload
// between scans, poll, resolve, dispatch door tasks, join.
type Orchestrator struct {
	sensor    TagSource
	registry  *ActuatorRegistry
	directory store.Directory
	logger    zerolog.Logger
	listener  StateListener

	reloadInterval    time.Duration
	pollInterval      time.Duration
	startupRetryDelay time.Duration
	maxStartup        int

	state      atomic.Int32
	lastReload time.Time
}

func NewOrchestrator(deps Dependencies) *Orchestrator {
	o := &Orchestrator{
		sensor:            deps.Sensor,
		registry:          deps.Registry,
		directory:         deps.Directory,
		logger:            deps.Logger.With().Str("component", "orchestrator").Logger(),
		listener:          deps.Listener,
		reloadInterval:    deps.ReloadInterval,
		pollInterval:      deps.PollInterval,
		startupRetryDelay: deps.StartupRetryDelay,
		maxStartup:        deps.MaxStartupAttempts,
	}
	if o.reloadInterval <= 0 {
		o.reloadInterval = 10 * time.Second
	}
	if o.pollInterval <= 0 {
		o.pollInterval = 200 * time.Millisecond
	}
	if o.startupRetryDelay <= 0 {
		o.startupRetryDelay = 3 * time.Second
	}
	return o
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	if State(o.state.Swap(int32(s))) == s {
		return
	}
	if o.listener != nil {
		o.listener.OnStateChange(s)
	}
}

// Run performs startup and then loops until ctx is cancelled.  It returns
// nil on cancellation; a non-nil error means startup gave up.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.setState(StateInitializing)
	if err := o.Startup(ctx); err != nil {
		o.shutdown()
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	o.logger.Info().Int("doors", o.registry.Len()).Msg("agent ready, waiting for tags")
	for ctx.Err() == nil {
		o.setState(StateReady)
		o.maybeReload(ctx)

		tag, ok := o.sensor.PollOnce()
		if !ok {
			sleepCtx(ctx, o.pollInterval)
			continue
		}
		o.HandleScan(ctx, tag)
	}

	o.shutdown()
	return nil
}

// Startup retries the door config fetch at a constant interval until a
// non-empty configuration arrives, then brings the doors up.
func (o *Orchestrator) Startup(ctx context.Context) error {
	var configs map[string]types.DoorConfig
	op := func() error {
		c, err := o.directory.FetchDoorConfigs(ctx)
		if err != nil {
			return err
		}
		if len(c) == 0 {
			return errNoDoorsConfigured
		}
		configs = c
		return nil
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(o.startupRetryDelay)
	if o.maxStartup > 0 {
		b = backoff.WithMaxRetries(b, uint64(o.maxStartup-1))
	}
	notify := func(err error, next time.Duration) {
		o.logger.Warn().Err(err).Dur("retry_in", next).Msg("could not load door settings")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return err
	}

	o.registry.Apply(ctx, configs, nil)
	o.lastReload = time.Now()
	return nil
}

func (o *Orchestrator) maybeReload(ctx context.Context) {
	if time.Since(o.lastReload) < o.reloadInterval {
		return
	}
	outcome := o.registry.Reload(ctx)
	o.lastReload = time.Now()
	o.logger.Debug().Str("outcome", string(outcome)).Msg("door settings checked")
}

// HandleScan resolves one tag, posts the access event and runs the door
// tasks for it.  It returns once every task has finished, or early when ctx
// is cancelled, leaving the tasks to run out on their own.
func (o *Orchestrator) HandleScan(ctx context.Context, tag types.TagID) {
	log := o.logger.With().
		Str("scan_id", uuid.NewString()).
		Str("tag_id", tag.String()).
		Logger()

	o.setState(StateResolving)
	durations, result := o.resolve(ctx, tag, log)
	observability.RecordScan(result)

	o.setState(StateDispatching)
	var g errgroup.Group
	for _, name := range slices.Sorted(maps.Keys(durations)) {
		seconds := durations[name]
		a, ok := o.registry.Actuator(name)
		if !ok {
			log.Debug().Str("door", name).Msg("no live actuator for door, skipping")
			continue
		}
		if seconds <= 0 {
			log.Info().Str("door", name).Float64("seconds", seconds).Msg("non-positive open duration, skipping door")
			observability.RecordDoorOperation(name, "skipped")
			continue
		}
		g.Go(func() error {
			operateDoor(a, name, seconds, log)
			return nil
		})
	}

	o.setState(StateAwaitingCompletion)
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("shutdown requested with door tasks in flight")
	}
}

// resolve looks the tag up in a freshly fetched entity list and posts the
// matching access event.  It returns the dispatch set.
func (o *Orchestrator) resolve(ctx context.Context, tag types.TagID, log zerolog.Logger) (map[string]float64, string) {
	entities, _ := o.directory.FetchEntities(ctx)

	if e, ok := entities[tag.String()]; ok {
		log.Info().Int64("entity_id", e.ID).Str("identifier", e.Identifier).Msg("access granted")
		id := e.ID
		o.directory.PostAccessEvent(ctx, types.AccessEvent{
			EntityID:  &id,
			Action:    types.ActionGranted,
			TagID:     &tag,
			Timestamp: time.Now(),
		})
		return e.DoorOpenSeconds, scanGranted
	}

	log.Info().Msg("unknown tag")
	o.directory.PostAccessEvent(ctx, types.AccessEvent{
		Action:    types.ActionUnknown,
		TagID:     &tag,
		Timestamp: time.Now(),
	})
	o.directory.PostUnknownTag(ctx, tag)
	defaults, _ := o.directory.FetchDefaultOpenDurations(ctx)
	return defaults, scanUnknown
}

// operateDoor opens, holds for seconds and closes.  It has no cancellation;
// a released actuator makes the remaining moves fail and get logged.
func operateDoor(a *door.Actuator, name string, seconds float64, log zerolog.Logger) {
	log = log.With().Str("door", name).Logger()
	log.Info().Float64("seconds", seconds).Msg("opening door")

	if err := a.MoveToOpen(); err != nil {
		log.Error().Err(err).Msg("failed to open door")
		observability.RecordDoorOperation(name, "failed")
		return
	}
	time.Sleep(time.Duration(seconds * float64(time.Second)))
	if err := a.MoveToClose(); err != nil {
		log.Error().Err(err).Msg("failed to close door")
		observability.RecordDoorOperation(name, "failed")
		return
	}
	log.Info().Msg("door closed")
	observability.RecordDoorOperation(name, "completed")
}

func (o *Orchestrator) shutdown() {
	o.setState(StateShuttingDown)
	o.logger.Info().Msg("shutting down, releasing actuators")
	o.registry.ReleaseAll()
}
