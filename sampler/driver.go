// driver.go - Fortsetzbarer Sitzungs-Treiber
// Enthaelt: Driver, Start, Next, Cancel, Sessions, Expire, Close
//
// Jede Sitzung besitzt genau einen Context mit genau einem Tensor, dem
// aktuellen Bild. Ein fehlgeschlagener Schritt laesst die Sitzung
// unveraendert, damit der Aufrufer es erneut versuchen kann.

package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ollama/ddpm/diffusion"
	"github.com/ollama/ddpm/ml"
)

var ErrUnknownSession = errors.New("unknown session")

// Reply is returned by Start and Next.
type Reply struct {
	Step    int
	Image   [][][][]float32
	Key     string
	Percent float64
}

// Done reports whether the reply is the last one of its session.
func (r Reply) Done() bool { return r.Step == 0 }

// SessionInfo describes a stored session without its image.
type SessionInfo struct {
	Key     string
	Step    int
	Percent float64
	Created time.Time
	Touched time.Time
}

// DriverOptions configures session bookkeeping.
type DriverOptions struct {
	// MaxSessions caps the table; the least recently used session is
	// released to make room. Zero means unbounded.
	MaxSessions int

	// TTL is the idle time after which Expire drops a session. Zero
	// disables expiry.
	TTL time.Duration

	// OnComplete is called with the step 0 reply of every session,
	// while the driver lock is held.
	OnComplete func(Reply)
}

type session struct {
	key     string
	step    int
	ctx     ml.Context
	image   ml.Tensor
	created time.Time
	touched time.Time
}

func (s *session) release() {
	s.ctx.Close()
	s.image = nil
}

// Driver holds in-flight sampling sessions keyed by random UUIDs. All
// operations are serialized by one mutex; a step on one session blocks
// steps on all others.
type Driver struct {
	cfg  Config
	opts DriverOptions

	mu       sync.Mutex
	sessions *orderedmap.OrderedMap[string, *session]
	closed   bool

	now func() time.Time
}

func NewDriver(cfg Config, opts DriverOptions) (*Driver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Driver{
		cfg:      cfg,
		opts:     opts,
		sessions: orderedmap.New[string, *session](),
		now:      time.Now,
	}, nil
}

func (d *Driver) percent(step int) float64 {
	return d.cfg.Schedule.Percent(step)
}

// Start draws fresh noise, runs the step at T-1 and stores the result
// under a new key. With T = 1 the first reply is already final and
// nothing is stored.
func (d *Driver) Start(ctx context.Context) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Reply{}, errors.New("sampler: driver closed")
	}

	b, s := d.cfg.Backend, d.cfg.Schedule

	scratch := b.NewContext()
	defer scratch.Close()
	noise := scratch.RandomNormal(d.cfg.Rand, d.cfg.Model.Shape()...)

	step := s.Timesteps() - 1
	out := b.NewContext()
	image, err := diffusion.ReverseStep(b, out, s, d.cfg.Model, noise, step, d.cfg.Rand)
	if err != nil {
		out.Close()
		return Reply{}, err
	}

	nested, err := ml.Nested(image)
	if err != nil {
		out.Close()
		return Reply{}, fmt.Errorf("sampler: %w", err)
	}

	reply := Reply{Step: step, Image: nested, Key: uuid.NewString(), Percent: d.percent(step)}

	if step == 0 {
		out.Close()
		d.complete(reply)
		return reply, nil
	}

	if d.opts.MaxSessions > 0 {
		for d.sessions.Len() >= d.opts.MaxSessions {
			oldest := d.sessions.Oldest()
			slog.Warn("session table full, evicting", "key", oldest.Key, "step", oldest.Value.step)
			oldest.Value.release()
			d.sessions.Delete(oldest.Key)
		}
	}

	now := d.now()
	d.sessions.Set(reply.Key, &session{
		key:     reply.Key,
		step:    step,
		ctx:     out,
		image:   image,
		created: now,
		touched: now,
	})

	slog.Debug("session started", "key", reply.Key, "step", step, "sessions", d.sessions.Len())
	return reply, nil
}

// Next advances the session key by one step. At step 0 the session is
// removed and its key becomes unknown.
func (d *Driver) Next(ctx context.Context, key string) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	sess, ok := d.sessions.Get(key)
	if !ok {
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownSession, key)
	}

	b := d.cfg.Backend
	step := sess.step - 1

	out := b.NewContext()
	image, err := diffusion.ReverseStep(b, out, d.cfg.Schedule, d.cfg.Model, sess.image, step, d.cfg.Rand)
	if err != nil {
		out.Close()
		slog.Warn("session step failed", "key", key, "step", step, "error", err)
		return Reply{}, err
	}

	nested, err := ml.Nested(image)
	if err != nil {
		out.Close()
		return Reply{}, fmt.Errorf("sampler: %w", err)
	}

	sess.release()
	reply := Reply{Step: step, Image: nested, Key: key, Percent: d.percent(step)}

	if step == 0 {
		out.Close()
		d.sessions.Delete(key)
		slog.Debug("session complete", "key", key, "sessions", d.sessions.Len())
		d.complete(reply)
		return reply, nil
	}

	sess.step = step
	sess.ctx = out
	sess.image = image
	sess.touched = d.now()
	if err := d.sessions.MoveToBack(key); err != nil {
		return Reply{}, err
	}

	return reply, nil
}

func (d *Driver) complete(r Reply) {
	if d.opts.OnComplete != nil {
		d.opts.OnComplete(r)
	}
}

// Cancel releases the session key. It returns ErrUnknownSession if no
// such session exists.
func (d *Driver) Cancel(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sess, ok := d.sessions.Delete(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSession, key)
	}

	sess.release()
	slog.Debug("session cancelled", "key", key, "step", sess.step)
	return nil
}

// Sessions lists stored sessions, least recently used first.
func (d *Driver) Sessions() []SessionInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	infos := make([]SessionInfo, 0, d.sessions.Len())
	for pair := d.sessions.Oldest(); pair != nil; pair = pair.Next() {
		s := pair.Value
		infos = append(infos, SessionInfo{
			Key:     s.key,
			Step:    s.step,
			Percent: d.percent(s.step),
			Created: s.created,
			Touched: s.touched,
		})
	}
	return infos
}

// Len returns the number of stored sessions.
func (d *Driver) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions.Len()
}

// Expire drops every session idle for at least the configured TTL as of
// now and returns their keys.
func (d *Driver) Expire(now time.Time) []string {
	if d.opts.TTL <= 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var expired []string
	for pair := d.sessions.Oldest(); pair != nil; {
		s := pair.Value
		if now.Sub(s.touched) < d.opts.TTL {
			// table is ordered by last use
			break
		}

		pair = pair.Next()
		s.release()
		d.sessions.Delete(s.key)
		expired = append(expired, s.key)
	}

	if len(expired) > 0 {
		slog.Info("sessions expired", "count", len(expired), "remaining", d.sessions.Len())
	}
	return expired
}

// Close releases every stored session. Later calls to Start fail.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for pair := d.sessions.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.release()
	}
	d.sessions = orderedmap.New[string, *session]()
	d.closed = true
}
