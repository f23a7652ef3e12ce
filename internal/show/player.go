package show

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/coreman2200/ledmatrix/internal/control"
	"github.com/coreman2200/ledmatrix/internal/pipeline"
)

// LoadFile reads a YAML program and every document it references. Each
// document is built once here so a broken show fails before it starts.
func LoadFile(path string, b *pipeline.Builder) (Program, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Program{}, err
	}
	var prog Program
	if err := yaml.Unmarshal(raw, &prog); err != nil {
		return Program{}, fmt.Errorf("parse show %s: %w", path, err)
	}
	if b == nil {
		b = pipeline.NewBuilder()
	}
	dir := filepath.Dir(path)
	for i := range prog.Clips {
		c := &prog.Clips[i]
		if c.DurationS <= 0 {
			return Program{}, fmt.Errorf("clip %d (%s): duration_s must be positive", i, c.Name)
		}
		p := c.Document
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		doc, err := pipeline.LoadFile(p)
		if err != nil {
			return Program{}, fmt.Errorf("clip %d (%s): %w", i, c.Name, err)
		}
		if _, err := b.Build(doc); err != nil {
			return Program{}, fmt.Errorf("clip %d (%s): %w", i, c.Name, err)
		}
		c.doc = doc
	}
	return prog, nil
}

// BusHooks publishes the player's changes onto bus.
func BusHooks(bus *control.Bus) Hooks {
	publish := func(ev control.Event) {
		ev.Source = "show"
		if err := bus.Publish(ev); err != nil {
			log.Debug().Err(err).Str("kind", string(ev.Kind)).Msg("show publish")
		}
	}
	return Hooks{
		SetConfig: func(clip string, doc []byte) {
			log.Info().Str("clip", clip).Str("fingerprint", pipeline.Fingerprint(doc)).Msg("show clip")
			publish(control.SetConfig(doc))
		},
		SetScalar:  func(i int, v float64) { publish(control.SetScalar(i, v)) },
		RunPattern: func(name string) { publish(control.RunPattern(name)) },
	}
}

// Player owns a program timeline. It is not safe for concurrent use.
type Player struct {
	State PlayerState

	prog Program
	nowS float64
	idx  int
	// sent holds the last value emitted per slot since the clip was entered.
	sent map[int]float64

	hooks Hooks
}

func NewPlayer(h Hooks) *Player {
	return &Player{State: Idle, hooks: h, sent: map[int]float64{}}
}

// Load replaces the program and rewinds.
func (p *Player) Load(prog Program) error {
	if len(prog.Clips) == 0 {
		return errors.New("program has no clips")
	}
	p.prog = prog
	p.nowS = 0
	p.idx = 0
	p.State = Idle
	return nil
}

// Start begins playing and enters the current clip.
func (p *Player) Start() {
	if p.State == Running || len(p.prog.Clips) == 0 {
		return
	}
	p.State = Running
	p.enter()
}

func (p *Player) Pause() { p.State = Paused }

func (p *Player) Resume() {
	if p.State == Paused {
		p.State = Running
	}
}

func (p *Player) Stop() {
	p.State = Idle
	p.nowS = 0
	p.idx = 0
}

// Now is the position within the program in seconds.
func (p *Player) Now() float64 { return p.nowS }

func (p *Player) Clip() int { return p.idx }

// Seek jumps to program time t, clamped into [0, total), and re-enters the
// clip found there.
func (p *Player) Seek(t float64) {
	if len(p.prog.Clips) == 0 {
		return
	}
	total := p.totalDuration()
	t = math.Max(t, 0)
	if t >= total {
		t = math.Nextafter(total, -1)
	}
	acc := 0.0
	for i, c := range p.prog.Clips {
		if t < acc+c.DurationS {
			p.idx = i
			break
		}
		acc += c.DurationS
	}
	p.nowS = t
	if p.State == Running {
		p.enter()
	}
}

// Tick advances by dt seconds and emits scalar automation for the active
// clip. Only slots whose value changed since the last emit are sent.
func (p *Player) Tick(dt float64) {
	if p.State != Running || dt <= 0 {
		return
	}
	p.nowS += dt
	clip, localT := p.current()
	p.emitScalars(clip, localT)
	if localT >= clip.DurationS {
		p.advance()
	}
}

func (p *Player) enter() {
	clip, localT := p.current()
	if p.hooks.SetConfig != nil {
		p.hooks.SetConfig(clip.Name, clip.doc)
	}
	// the new document resets every slot, so everything is sent again
	p.sent = map[int]float64{}
	p.emitScalars(clip, localT)
	if clip.Pattern != "" && p.hooks.RunPattern != nil {
		p.hooks.RunPattern(clip.Pattern)
	}
}

func (p *Player) emitScalars(clip Clip, localT float64) {
	if p.hooks.SetScalar == nil {
		return
	}
	// stable slot order keeps the event stream deterministic
	slots := make([]int, 0, len(clip.Scalars))
	for i := range clip.Scalars {
		slots = append(slots, i)
	}
	sort.Ints(slots)
	for _, i := range slots {
		v := clip.Scalars[i].Eval(localT)
		if last, ok := p.sent[i]; ok && last == v {
			continue
		}
		p.sent[i] = v
		p.hooks.SetScalar(i, v)
	}
}

func (p *Player) current() (Clip, float64) {
	acc := 0.0
	for i := 0; i < p.idx; i++ {
		acc += p.prog.Clips[i].DurationS
	}
	return p.prog.Clips[p.idx], p.nowS - acc
}

func (p *Player) totalDuration() float64 {
	total := 0.0
	for _, c := range p.prog.Clips {
		total += c.DurationS
	}
	return total
}

func (p *Player) advance() {
	next := p.idx + 1
	if next >= len(p.prog.Clips) {
		if !p.prog.Loop {
			p.State = Idle
			return
		}
		next = 0
		p.nowS -= p.totalDuration()
	}
	p.idx = next
	p.enter()
}

// Run ticks p every interval until the program ends or ctx is done.
func Run(ctx context.Context, p *Player, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	p.Start()
	last := time.Now()
	for p.State != Idle {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			p.Tick(now.Sub(last).Seconds())
			last = now
		}
	}
	log.Info().Msg("show finished")
}
