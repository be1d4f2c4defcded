package service

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/Portunus/agent/internal/hardware"
	"github.com/BrandonDHaskell/Portunus/agent/internal/observability"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/door"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

type ReloadOutcome string

const (
	// ReloadKept means the fetch failed and the current doors stay live.
	ReloadKept      ReloadOutcome = "kept"
	ReloadUnchanged ReloadOutcome = "unchanged"
	ReloadApplied   ReloadOutcome = "applied"
	// ReloadAborted means ctx ended during the settle delay; no doors are live.
	ReloadAborted ReloadOutcome = "aborted"
)

// ActuatorRegistry owns the live door-name → actuator map and the config
// snapshot it was built from.  Nothing else mutates either.
type ActuatorRegistry struct {
	factory     hardware.ServoFactory
	source      store.DoorConfigSource
	settleDelay time.Duration
	logger      zerolog.Logger

	// reloadMu serialises Apply/ReleaseAll; mu guards the published state.
	reloadMu  sync.Mutex
	mu        sync.RWMutex
	snapshot  map[string]types.DoorConfig
	actuators map[string]*door.Actuator
}

// RegistryConfig holds the parameters for NewActuatorRegistry.
type RegistryConfig struct {
	// SettleDelay is how long to wait between releasing the old servos and
	// claiming the new ones.
	SettleDelay time.Duration
}

func NewActuatorRegistry(
	factory hardware.ServoFactory,
	source store.DoorConfigSource,
	cfg RegistryConfig,
	logger zerolog.Logger,
) *ActuatorRegistry {
	return &ActuatorRegistry{
		factory:     factory,
		source:      source,
		settleDelay: cfg.SettleDelay,
		logger:      logger.With().Str("component", "registry").Logger(),
		actuators:   make(map[string]*door.Actuator),
	}
}

// Reload fetches the door configuration and applies it.
func (r *ActuatorRegistry) Reload(ctx context.Context) ReloadOutcome {
	configs, err := r.source.FetchDoorConfigs(ctx)
	return r.Apply(ctx, configs, err)
}

// Apply swaps the live actuators for ones built from configs.  A non-nil
// fetchErr keeps the current state; configs equal to the current snapshot
// are a no-op.  Otherwise every current actuator is released before any
// new one is claimed.
func (r *ActuatorRegistry) Apply(ctx context.Context, configs map[string]types.DoorConfig, fetchErr error) ReloadOutcome {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	if fetchErr != nil {
		r.logger.Warn().Err(fetchErr).Msg("could not reload door settings, keeping current configuration")
		observability.RecordReload(string(ReloadKept))
		return ReloadKept
	}

	r.mu.RLock()
	same := r.snapshot != nil && maps.Equal(r.snapshot, configs)
	r.mu.RUnlock()
	if same {
		observability.RecordReload(string(ReloadUnchanged))
		return ReloadUnchanged
	}

	r.logger.Info().Int("doors", len(configs)).Msg("door configuration changed, reloading actuators")

	r.mu.Lock()
	old := r.actuators
	r.actuators = make(map[string]*door.Actuator)
	r.mu.Unlock()

	if len(old) > 0 {
		releaseAll(old)
		if !sleepCtx(ctx, r.settleDelay) {
			r.mu.Lock()
			r.snapshot = nil
			r.mu.Unlock()
			r.logger.Warn().Msg("reload interrupted during settle delay, no doors brought up")
			observability.SetLiveActuators(0)
			observability.RecordReload(string(ReloadAborted))
			return ReloadAborted
		}
	}

	next := make(map[string]*door.Actuator, len(configs))
	for _, name := range slices.Sorted(maps.Keys(configs)) {
		if a := r.bringUp(configs[name]); a != nil {
			next[name] = a
		}
	}

	// The snapshot holds every config, including doors that failed to come
	// up; an unchanged response does not retry them.
	r.mu.Lock()
	r.snapshot = maps.Clone(configs)
	if r.snapshot == nil {
		r.snapshot = make(map[string]types.DoorConfig)
	}
	r.actuators = next
	r.mu.Unlock()

	observability.SetLiveActuators(len(next))
	observability.RecordReload(string(ReloadApplied))
	return ReloadApplied
}

// bringUp claims one door and drives it closed.  Any failure leaves the
// door out of the map.
func (r *ActuatorRegistry) bringUp(cfg types.DoorConfig) *door.Actuator {
	a, err := door.New(r.factory, cfg, r.logger)
	if err != nil {
		r.logger.Error().Err(err).Str("door", cfg.Name).Msg("failed to initialise actuator")
		return nil
	}
	if err := a.MoveToClose(); err != nil {
		r.logger.Error().Err(err).Str("door", cfg.Name).Msg("failed to drive door closed, omitting it")
		a.Release()
		return nil
	}
	return a
}

// Actuator returns the live actuator for name.
func (r *ActuatorRegistry) Actuator(name string) (*door.Actuator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actuators[name]
	return a, ok
}

func (r *ActuatorRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actuators)
}

// Doors returns the live doors sorted by name.
func (r *ActuatorRegistry) Doors() []types.DoorStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.DoorStatus, 0, len(r.actuators))
	for _, name := range slices.Sorted(maps.Keys(r.actuators)) {
		cfg := r.actuators[name].Config()
		out = append(out, types.DoorStatus{
			Name:       cfg.Name,
			Pin:        cfg.Pin,
			OpenAngle:  cfg.OpenAngle(),
			CloseAngle: cfg.CloseAngle(),
		})
	}
	return out
}

// ReleaseAll frees every live actuator.  The snapshot is cleared too, so a
// later Apply with the same configs rebuilds them.
func (r *ActuatorRegistry) ReleaseAll() {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	r.mu.Lock()
	old := r.actuators
	r.actuators = make(map[string]*door.Actuator)
	r.snapshot = nil
	r.mu.Unlock()

	releaseAll(old)
	observability.SetLiveActuators(0)
}

func releaseAll(m map[string]*door.Actuator) {
	for _, a := range m {
		a.Release()
	}
}

// sleepCtx waits for d or until ctx is done, reporting whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
