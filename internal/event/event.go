// Package event implements the event and bind runtime: a registrable
// two-character-namespace dispatch table, plus bind-rule expansion
// bounded by a per-block step budget.
//
// The dispatch table generalizes the teacher's applyControl/applyEvent
// switch-dispatch idiom (internal/sequencer/sequencer.go) from a switch
// over a fixed command set into a registerable map, since the bind
// runtime needs to look handlers up dynamically by name.
package event

import (
	"fmt"

	"github.com/kunquat/kunquat-go/internal/expr"
	"github.com/kunquat/kunquat-go/internal/klog"
	"github.com/kunquat/kunquat-go/internal/tree"
)

// Event is one (channel, name, argument) occurrence.
type Event struct {
	Channel  int
	Name     string
	Argument string
	At       int // frame offset within the current block, when scheduled
}

// Handler executes one event against caller-supplied state. It may
// enqueue further events (bind expansion, query replies) via emit.
type Handler func(ev Event, emit func(Event)) error

// Table is the two-character namespace's dispatch table.
type Table struct {
	handlers map[string]Handler
}

// NewTable creates an empty dispatch table.
func NewTable() *Table {
	return &Table{handlers: make(map[string]Handler)}
}

// Register installs a handler for an exact event name.
func (t *Table) Register(name string, h Handler) {
	t.handlers[name] = h
}

// Dispatch runs ev through the table. An unrecognized name is ignored
// with a warning, per the event runtime's "unknown names are ignored"
// rule; it is not treated as an error.
func (t *Table) Dispatch(ev Event, emit func(Event)) error {
	h, ok := t.handlers[ev.Name]
	if !ok {
		klog.Warnf("event: unknown event name %q ignored", ev.Name)
		return nil
	}
	return h(ev, emit)
}

// Rule is one compiled bind rule: an optional boolean constraint plus the
// events it fires when the constraint holds (or is absent).
type Rule struct {
	EventName  string
	Constraint string
	Targets    []tree.BindTarget
}

// CompileRules converts a decoded bind document into runtime Rules.
func CompileRules(doc tree.BindDoc) []Rule {
	rules := make([]Rule, 0, len(doc.Rules))
	for _, r := range doc.Rules {
		rules = append(rules, Rule{EventName: r.EventName, Constraint: r.Constraint, Targets: r.Targets})
	}
	return rules
}

// Runtime expands incoming events against a set of bind rules, bounded
// by a per-block step budget. When the budget is exceeded mid-expansion,
// the remaining work is deferred to the next RunBlock call.
type Runtime struct {
	table    *Table
	rules    map[string][]Rule // by triggering event name
	eval     *expr.Evaluator
	budget   int
	deferred []Event
}

// NewRuntime creates a bind runtime over table, evaluating constraint
// expressions with eval and allowing at most budget expansion steps per
// block.
func NewRuntime(table *Table, rules []Rule, eval *expr.Evaluator, budget int) *Runtime {
	byName := make(map[string][]Rule)
	for _, r := range rules {
		byName[r.EventName] = append(byName[r.EventName], r)
	}
	return &Runtime{table: table, rules: byName, eval: eval, budget: budget}
}

// Reset discards any deferred bind expansion, per set_position's "abort
// any in-flight block" contract.
func (r *Runtime) Reset() { r.deferred = nil }

// Table returns the runtime's dispatch table, so a caller can register
// the event names the render core itself interprets (note on/off,
// transport commands) alongside whatever a composition's bind rules
// target.
func (r *Runtime) Table() *Table { return r.table }

// Overflowed reports whether the previous RunBlock call deferred work
// because the expansion budget was exhausted. Per the event runtime's
// overflow rule, the renderer must short-render (emit 0 frames) until
// this returns false again.
func (r *Runtime) Overflowed() bool { return len(r.deferred) > 0 }

// RunBlock processes incoming plus any deferred events, expanding bind
// matches and dispatching through the handler table, until either the
// queue drains or the step budget is exhausted.
func (r *Runtime) RunBlock(incoming []Event, env expr.Env, notify func(Event)) error {
	queue := append(r.deferred, incoming...)
	r.deferred = nil

	steps := 0
	for len(queue) > 0 {
		if steps >= r.budget {
			r.deferred = queue
			return nil
		}
		ev := queue[0]
		queue = queue[1:]
		steps++

		if err := r.table.Dispatch(ev, func(e Event) { notify(e) }); err != nil {
			return fmt.Errorf("event: dispatching %q: %w", ev.Name, err)
		}

		for _, rule := range r.rules[ev.Name] {
			ok := true
			if rule.Constraint != "" {
				v, err := r.eval.Eval(rule.Constraint, env, expr.Value{Kind: expr.KindString, S: ev.Argument})
				if err != nil {
					return fmt.Errorf("event: evaluating bind constraint %q: %w", rule.Constraint, err)
				}
				b, err := toBool(v)
				if err != nil {
					return err
				}
				ok = b
			}
			if !ok {
				continue
			}
			for _, target := range rule.Targets {
				queue = append(queue, Event{Channel: ev.Channel, Name: target.EventName, Argument: target.Argument})
			}
		}
	}
	return nil
}

func toBool(v expr.Value) (bool, error) {
	switch v.Kind {
	case expr.KindBool:
		return v.B, nil
	case expr.KindInt:
		return v.I != 0, nil
	case expr.KindFloat:
		return v.F != 0, nil
	default:
		return false, fmt.Errorf("event: bind constraint did not evaluate to a boolean")
	}
}
