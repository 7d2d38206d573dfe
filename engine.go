// Package kunquat is the render core's top-level entrypoint: Engine
// wires the device graph, voice pool, scheduler and bind runtime behind
// the play/get_audio/fire_event/receive_events/set_position contract a
// host drives once per audio callback.
//
// Grounded on the teacher's mmlfm.Player: a mutex-guarded struct holding
// the render graph and a channel-free, poll-driven event surface in
// place of Player's eventCh/Watch, since this engine's host pulls
// notifications explicitly via receive_events instead of subscribing to
// a Go channel.
package kunquat

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"github.com/kunquat/kunquat-go/internal/config"
	"github.com/kunquat/kunquat-go/internal/event"
	"github.com/kunquat/kunquat-go/internal/expr"
	"github.com/kunquat/kunquat-go/internal/graph"
	"github.com/kunquat/kunquat-go/internal/klog"
	"github.com/kunquat/kunquat-go/internal/kqterror"
	"github.com/kunquat/kunquat-go/internal/processor"
	"github.com/kunquat/kunquat-go/internal/scale"
	"github.com/kunquat/kunquat-go/internal/scheduler"
	"github.com/kunquat/kunquat-go/internal/tstamp"
	"github.com/kunquat/kunquat-go/internal/voice"
)

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// defaultNode is the generator node new notes are routed to when the
// composition does not otherwise assign a channel to an audio unit.
const defaultNode = "debug"

// Engine is one loaded composition's render state: the device graph, the
// voice pool notes are allocated from, the scheduler driving triggers
// off the pattern timeline, and the bind runtime expanding them.
type Engine struct {
	mu sync.Mutex

	cfg     config.EngineConfig
	graph   *graph.Graph
	pool    *voice.Pool
	sched   *scheduler.Scheduler
	events  *event.Runtime
	eval    *expr.Evaluator
	scale   *scale.Scale
	channel map[int]string // channel -> generator node id

	incoming      []event.Event
	notifications []event.Event

	outL, outR []float32

	// tempoSlideSeconds is the pending slide length set by "m/=t",
	// consumed by the next "m/t" target event; zero means "use the
	// default of one second".
	tempoSlideSeconds float64

	paused  atomic.Bool
	stopped atomic.Bool
}

// New builds an Engine around an already-validated device graph,
// scheduler and bind runtime. Composition loading (walking the
// persisted key tree into these pieces) is the loader's job, not the
// Engine's; New only wires the render-time contract around them.
func New(cfg config.EngineConfig, g *graph.Graph, sched *scheduler.Scheduler, events *event.Runtime, eval *expr.Evaluator, sc *scale.Scale, channel map[int]string) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, kqterror.Argumentf("engine: %v", err)
	}
	if g == nil || sched == nil || events == nil || eval == nil {
		return nil, kqterror.Argumentf("engine: graph, scheduler, events and eval must be non-nil")
	}
	if err := g.Validate(); err != nil {
		return nil, kqterror.New(kqterror.Format, "engine: device graph: %v", err)
	}
	if channel == nil {
		channel = map[int]string{}
	}
	e := &Engine{
		cfg:     cfg,
		graph:   g,
		pool:    voice.NewPool(cfg.MaxVoices, float64(cfg.AudioRate)),
		sched:   sched,
		events:  events,
		eval:    eval,
		scale:   sc,
		channel: channel,
		outL:    make([]float32, cfg.BlockSizeFrames),
		outR:    make([]float32, cfg.BlockSizeFrames),
	}
	e.installHandlers()
	return e, nil
}

func (e *Engine) nodeFor(channel int) string {
	if id, ok := e.channel[channel]; ok {
		return id
	}
	return defaultNode
}

// installHandlers wires the event names the render core itself
// interprets (note on/off, scheduler transport commands) into the
// engine's event.Table. Composition-defined bind targets dispatch
// through the same table by name, so a bind rule can fire "n+" exactly
// as fire_event would.
func (e *Engine) installHandlers() {
	tbl := e.events.Table()

	tbl.Register("n+", func(ev event.Event, emit func(event.Event)) error {
		pitch, force := 0.0, 1.0
		if val, err := e.eval.Eval(ev.Argument, expr.MapEnv{}, expr.Value{}); err == nil {
			if f, ferr := expr.ToFloat(val); ferr == nil {
				pitch = f
			}
		}
		// With a tuning table loaded, the argument names a scale degree
		// rather than a raw frequency; without one (the debug instrument
		// has no scale), it is a frequency in Hz directly.
		if e.scale != nil {
			if hz, err := e.scale.Pitch(int(pitch), scale.MiddleOctave); err == nil {
				pitch = hz
			}
		}
		// At most one active group may share a channel: an implicit
		// note-off cuts whatever was already sounding there before the
		// new voice is allocated, so an immediate re-trigger restarts
		// cleanly instead of layering a second voice on top.
		for _, prev := range e.pool.Active() {
			if prev.Channel == ev.Channel && prev.NoteOn {
				prev.Release()
			}
		}
		idx, _ := e.pool.Allocate()
		v := e.pool.Voice(idx)
		v.Trigger(ev.Channel, ev.Channel, pitch, force)
		v.NodeID = e.nodeFor(ev.Channel)
		return nil
	})

	tbl.Register("n-", func(ev event.Event, emit func(event.Event)) error {
		for _, v := range e.pool.Active() {
			if v.Channel == ev.Channel && v.NoteOn {
				v.Release()
			}
		}
		return nil
	})

	tbl.Register("cpattern", func(ev event.Event, emit func(event.Event)) error {
		var pos [2]int64
		if err := wireJSON.UnmarshalFromString(ev.Argument, &pos); err != nil {
			return kqterror.New(kqterror.Format, "cpattern: %v", err)
		}
		e.sched.Jump(int(pos[0]), tstamp.New(pos[1], 0))
		return nil
	})

	tbl.Register("cinfinite+", func(ev event.Event, emit func(event.Event)) error {
		e.sched.Infinite = true
		return nil
	})
	tbl.Register("cinfinite-", func(ev event.Event, emit func(event.Event)) error {
		e.sched.Infinite = false
		return nil
	})

	tbl.Register("mpd", func(ev event.Event, emit func(event.Event)) error {
		var k int64
		if err := wireJSON.UnmarshalFromString(ev.Argument, &k); err != nil {
			return kqterror.New(kqterror.Format, "mpd: %v", err)
		}
		e.sched.PatternDelayBeats(k)
		return nil
	})

	tbl.Register("mj", func(ev event.Event, emit func(event.Event)) error {
		var args [2]int64
		if err := wireJSON.UnmarshalFromString(ev.Argument, &args); err != nil {
			return kqterror.New(kqterror.Format, "mj: %v", err)
		}
		e.sched.Jump(int(args[0]), tstamp.New(args[1], 0))
		return nil
	})

	tbl.Register(".f", func(ev event.Event, emit func(event.Event)) error {
		val, err := e.eval.Eval(ev.Argument, expr.MapEnv{}, expr.Value{})
		if err != nil {
			return kqterror.New(kqterror.Format, ".f: %v", err)
		}
		force, err := expr.ToFloat(val)
		if err != nil {
			return kqterror.New(kqterror.Format, ".f: %v", err)
		}
		for _, v := range e.pool.Active() {
			if v.Channel == ev.Channel {
				v.GlobalForce = force
			}
		}
		return nil
	})

	tbl.Register("m.t", func(ev event.Event, emit func(event.Event)) error {
		val, err := e.eval.Eval(ev.Argument, expr.MapEnv{}, expr.Value{})
		if err != nil {
			return kqterror.New(kqterror.Format, "m.t: %v", err)
		}
		bpm, err := expr.ToFloat(val)
		if err != nil || bpm <= 0 {
			return kqterror.Argumentf("m.t: tempo must be positive")
		}
		e.sched.Tempo.BPM = bpm
		e.sched.Tempo.SlideStep = 0
		return nil
	})

	tbl.Register("m/=t", func(ev event.Event, emit func(event.Event)) error {
		val, err := e.eval.Eval(ev.Argument, expr.MapEnv{}, expr.Value{})
		if err != nil {
			return kqterror.New(kqterror.Format, "m/=t: %v", err)
		}
		seconds, err := expr.ToFloat(val)
		if err != nil || seconds <= 0 {
			return kqterror.Argumentf("m/=t: slide length must be positive")
		}
		e.tempoSlideSeconds = seconds
		return nil
	})

	tbl.Register("m/t", func(ev event.Event, emit func(event.Event)) error {
		val, err := e.eval.Eval(ev.Argument, expr.MapEnv{}, expr.Value{})
		if err != nil {
			return kqterror.New(kqterror.Format, "m/t: %v", err)
		}
		target, err := expr.ToFloat(val)
		if err != nil || target <= 0 {
			return kqterror.Argumentf("m/t: tempo target must be positive")
		}
		seconds := e.tempoSlideSeconds
		if seconds <= 0 {
			seconds = 1
		}
		frames := seconds * float64(e.cfg.AudioRate)
		if frames < 1 {
			frames = 1
		}
		e.sched.Tempo.SlideTarget = target
		e.sched.Tempo.SlideStep = (math.Log2(target) - math.Log2(e.sched.Tempo.BPM)) / frames
		return nil
	})

	tbl.Register("pause", func(ev event.Event, emit func(event.Event)) error {
		e.paused.Store(true)
		return nil
	})
	tbl.Register("resume", func(ev event.Event, emit func(event.Event)) error {
		e.paused.Store(false)
		return nil
	})
}

// Pause suspends rendering: Play still consumes max_frames worth of
// time but writes silence, matching "pause() then render(128) yields
// 128 zeroed frames" rather than a short render.
func (e *Engine) Pause() { e.paused.Store(true) }

// Resume undoes Pause.
func (e *Engine) Resume() { e.paused.Store(false) }

// Paused reports whether the engine is currently paused.
func (e *Engine) Paused() bool { return e.paused.Load() }

// HasStopped reports whether playback has reached the end of a finite
// order list with no voices still sounding their release tail.
func (e *Engine) HasStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped.Load()
}

// FireEvent enqueues a host-originated event for the next Play call. ev
// is the wire-format `[name, argument]` pair.
func (e *Engine) FireEvent(channel int, eventJSON string) error {
	var pair [2]string
	if err := wireJSON.UnmarshalFromString(eventJSON, &pair); err != nil {
		return kqterror.New(kqterror.Format, "fire_event: %v", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.incoming) >= e.cfg.MaxEventsPerTick {
		return kqterror.Resourcef("fire_event: event queue full (%d)", e.cfg.MaxEventsPerTick)
	}
	e.incoming = append(e.incoming, event.Event{Channel: channel, Name: pair[0], Argument: pair[1]})
	return nil
}

// ReceiveEvents drains up to one batch of outgoing notifications
// (diagnostics, bind-driven echoes) as a JSON array of
// `[channel, [name, argument]]` triples.
func (e *Engine) ReceiveEvents() string {
	e.mu.Lock()
	batch := e.notifications
	if len(batch) > e.cfg.MaxEventsPerTick {
		batch, e.notifications = batch[:e.cfg.MaxEventsPerTick], batch[e.cfg.MaxEventsPerTick:]
	} else {
		e.notifications = nil
	}
	e.mu.Unlock()

	triples := make([][2]any, len(batch))
	for i, ev := range batch {
		triples[i] = [2]any{ev.Channel, [2]string{ev.Name, ev.Argument}}
	}
	out, err := wireJSON.MarshalToString(triples)
	if err != nil {
		klog.Errorf("receive_events: marshal failed: %v", err)
		return "[]"
	}
	return out
}

// SetPosition aborts any in-flight block, clears the pending event queue
// and repositions the scheduler's cursor at (track, nanoseconds).
func (e *Engine) SetPosition(track int, nanoseconds int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.incoming = nil
	e.events.Reset()
	if err := e.sched.Seek(track, nanoseconds); err != nil {
		return kqterror.New(kqterror.Format, "set_position: %v", err)
	}
	e.stopped.Store(false)
	return nil
}

// GetAudio returns the most recently rendered block for channel (0 =
// left, 1 = right), or nil for any other index.
func (e *Engine) GetAudio(channel int) []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch channel {
	case 0:
		return e.outL
	case 1:
		return e.outR
	default:
		return nil
	}
}

// Play renders up to maxFrames of audio, dispatching any events fired
// since the last call and any trigger rows the scheduler crosses along
// the way. It returns fewer than maxFrames (possibly zero) when the
// scheduler reaches the end of a finite order list, or zero when the
// bind runtime's per-block expansion budget is exhausted and the host
// must drain receive_events before the engine can make progress again.
func (e *Engine) Play(maxFrames int) (int, error) {
	if maxFrames < 0 {
		return 0, kqterror.Argumentf("play: max_frames must be non-negative")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if cap(e.outL) < maxFrames {
		e.outL = make([]float32, maxFrames)
		e.outR = make([]float32, maxFrames)
	}
	e.outL = e.outL[:maxFrames]
	e.outR = e.outR[:maxFrames]
	for i := range e.outL {
		e.outL[i], e.outR[i] = 0, 0
	}

	if e.paused.Load() {
		return maxFrames, nil
	}

	incoming := e.incoming
	e.incoming = nil
	if err := e.events.RunBlock(incoming, expr.MapEnv{}, func(ev event.Event) {
		e.notifications = append(e.notifications, ev)
	}); err != nil {
		return 0, fmt.Errorf("play: %w", err)
	}
	if e.events.Overflowed() {
		return 0, nil
	}

	rendered := 0
	for rendered < maxFrames {
		segFrames, rows, err := e.sched.Step(maxFrames - rendered)
		if err != nil {
			return rendered, fmt.Errorf("play: %w", err)
		}

		if len(rows) > 0 {
			triggers := make([]event.Event, 0, len(rows))
			for _, row := range rows {
				for _, name := range row.Events {
					triggers = append(triggers, event.Event{Channel: row.Column, Name: name})
				}
			}
			if err := e.events.RunBlock(triggers, expr.MapEnv{}, func(ev event.Event) {
				e.notifications = append(e.notifications, ev)
			}); err != nil {
				return rendered, fmt.Errorf("play: %w", err)
			}
			if e.events.Overflowed() {
				return rendered, nil
			}
		}

		if segFrames == 0 {
			if e.sched.Ended() {
				break
			}
			continue
		}

		if err := e.renderSegment(segFrames, rendered); err != nil {
			return rendered, fmt.Errorf("play: %w", err)
		}
		rendered += segFrames
		e.pool.Reclaim()
	}

	e.stopped.Store(e.sched.Ended() && len(e.pool.Active()) == 0)
	return rendered, nil
}

// Process implements internal/audio.SampleSource: it renders len(dst)/2
// frames through Play and interleaves the stereo result, so an Engine
// can be streamed live through internal/audio.Player instead of only
// being rendered to a file offline.
func (e *Engine) Process(dst []float32) {
	frames := len(dst) / 2
	n, err := e.Play(frames)
	if err != nil {
		klog.Errorf("engine: process: %v", err)
		n = 0
	}
	left, right := e.GetAudio(0), e.GetAudio(1)
	for i := 0; i < frames; i++ {
		if i < n {
			dst[i*2], dst[i*2+1] = left[i], right[i]
		} else {
			dst[i*2], dst[i*2+1] = 0, 0
		}
	}
}

// Finished implements internal/audio.FinishingSource.
func (e *Engine) Finished() bool { return e.HasStopped() }

// NewEngine builds a single audio unit's worth of composition: gen is
// wired as the device graph's sole generator node, its output routed in
// sequence through the named mixed_effect chain (each name resolved via
// processor.NewMixedEffect against the scheduler's starting tempo), and
// a scheduler running at bpm over an effectively silent, never-ending
// pattern. This is the general-purpose graph-building path a composition
// loader would drive per audio unit; NewDebugEngine is its zero-effect
// special case.
func NewEngine(cfg config.EngineConfig, generatorKind graph.Kind, gen graph.Generator, effectChain []string, bpm float64) (*Engine, error) {
	g := graph.New()
	if err := g.AddNode(&graph.Node{ID: defaultNode, Kind: generatorKind, Gen: gen}); err != nil {
		return nil, kqterror.New(kqterror.Format, "new_engine: %v", err)
	}

	prev := defaultNode
	for i, name := range effectChain {
		fx, err := processor.NewMixedEffect(name, cfg.AudioRate, bpm)
		if err != nil {
			return nil, kqterror.New(kqterror.Format, "new_engine: %v", err)
		}
		id := fmt.Sprintf("effect%d_%s", i, name)
		if err := g.AddNode(&graph.Node{ID: id, Kind: graph.KindMixedEffect, Fx: fx}); err != nil {
			return nil, kqterror.New(kqterror.Format, "new_engine: %v", err)
		}
		if err := g.Connect(prev, id); err != nil {
			return nil, kqterror.New(kqterror.Format, "new_engine: %v", err)
		}
		prev = id
	}

	patterns := []scheduler.Pattern{{Length: tstamp.New(1 << 30, 0)}}
	songs := []scheduler.Song{{Order: []scheduler.OrderEntry{{Pattern: 0}}}}
	sched := scheduler.New(songs, patterns, float64(cfg.AudioRate), bpm)

	rt := event.NewRuntime(event.NewTable(), nil, expr.New(1), cfg.MaxEventsPerTick)
	return New(cfg, g, sched, rt, expr.New(1), nil, nil)
}

// NewDebugEngine builds NewEngine's zero-effect special case around the
// device graph's built-in "add" debug generator: exactly the fixture the
// render core's debug-note testable property (§8 scenario 1) and a
// bare-bones cmd/kqplay smoke run need, with no composition tree to load
// and no mixed_effect chain coloring its fixed waveform.
func NewDebugEngine(cfg config.EngineConfig) (*Engine, error) {
	return NewEngine(cfg, graph.KindAdd, processor.NewAdd(float64(cfg.AudioRate)), nil, 120)
}

// renderSegment runs the device graph for frames samples and mixes the
// graph's sink outputs into e.outL/e.outR starting at offset.
func (e *Engine) renderSegment(frames, offset int) error {
	byNode := make(map[string][]*voice.Voice)
	for _, v := range e.pool.Active() {
		byNode[v.NodeID] = append(byNode[v.NodeID], v)
	}
	for id, voices := range byNode {
		if n := e.graph.Node(id); n != nil {
			n.SetVoices(voices)
		}
	}

	if err := e.graph.Render(frames); err != nil {
		return err
	}

	for _, sinkID := range e.graph.Sinks() {
		n := e.graph.Node(sinkID)
		out := n.Out()
		for i := 0; i < frames; i++ {
			e.outL[offset+i] += out[i*2]
			e.outR[offset+i] += out[i*2+1]
		}
	}
	return nil
}
