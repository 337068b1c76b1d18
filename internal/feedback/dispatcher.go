package feedback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ayusman/repcoach/internal/logging"
	"github.com/ayusman/repcoach/internal/metrics"
	"github.com/ayusman/repcoach/internal/store"
)

// DefaultIntensity applies to phases with no stored setting.
const DefaultIntensity = 1

// FormPhase is the settings key used for form-correction cues.
const FormPhase = "form"

// Settings resolves the configured intensity for an exercise phase.
type Settings interface {
	Intensity(exerciseID, phase string) (int, error)
}

// Cue is a single coaching prompt.
type Cue struct {
	Kind     string
	Exercise string
	Phase    string
	Message  string
	Reps     int
}

// Dispatcher sends cues to plugins asynchronously. At most one cue is in flight;
// cues arriving while one is running are dropped, not queued.
type Dispatcher struct {
	plugins  *Manager
	executor *Executor
	settings Settings
	log      zerolog.Logger

	busy atomic.Bool
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates a Dispatcher. settings may be nil, in which case every
// phase uses DefaultIntensity.
func NewDispatcher(plugins *Manager, executor *Executor, settings Settings, log zerolog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		plugins:  plugins,
		executor: executor,
		settings: settings,
		log:      logging.Component(log, "feedback"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Send dispatches c if its intensity is non-zero, a plugin handles its kind and
// no other cue is in flight. It reports whether the cue was started.
func (d *Dispatcher) Send(c Cue) bool {
	if d == nil {
		return false
	}

	intensity := d.intensity(c)
	if intensity == 0 {
		metrics.FeedbackCues.WithLabelValues(c.Kind, "muted").Inc()
		return false
	}

	plugin, err := d.plugins.ForAction(c.Kind)
	if err != nil {
		return false
	}

	if !d.busy.CompareAndSwap(false, true) {
		metrics.FeedbackCues.WithLabelValues(c.Kind, "dropped").Inc()
		return false
	}

	req := &Request{
		Action:    c.Kind,
		Exercise:  c.Exercise,
		Phase:     c.Phase,
		Message:   c.Message,
		Intensity: intensity,
		Reps:      c.Reps,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.busy.Store(false)

		resp, err := d.executor.Execute(d.ctx, plugin, req)
		switch {
		case err != nil:
			metrics.FeedbackCues.WithLabelValues(c.Kind, "failed").Inc()
			d.log.Warn().Err(err).Str("plugin", plugin.Manifest.Name).Msg("cue plugin failed")
		case !resp.Success:
			metrics.FeedbackCues.WithLabelValues(c.Kind, "failed").Inc()
			d.log.Warn().Str("plugin", plugin.Manifest.Name).Str("error", resp.Error).Msg("cue plugin reported failure")
		default:
			metrics.FeedbackCues.WithLabelValues(c.Kind, "sent").Inc()
		}
	}()

	return true
}

// Busy reports whether a cue is in flight.
func (d *Dispatcher) Busy() bool {
	return d.busy.Load()
}

// Close cancels any running cue and waits for it to exit.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) intensity(c Cue) int {
	if d.settings == nil {
		return DefaultIntensity
	}

	key := c.Phase
	if c.Kind == KindForm {
		key = FormPhase
	}

	v, err := d.settings.Intensity(c.Exercise, key)
	if errors.Is(err, store.ErrNotFound) {
		return DefaultIntensity
	}
	if err != nil {
		d.log.Warn().Err(err).Str("exercise", c.Exercise).Str("phase", key).Msg("feedback settings lookup failed")
		return DefaultIntensity
	}
	return v
}
