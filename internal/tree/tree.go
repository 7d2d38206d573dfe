// Package tree implements the composition directory's container format:
// a filesystem tree of JSON leaf documents under numbered key-path
// segments (au_XX, proc_XX, pat_XXX, ...). Unlike internal/streader,
// which has to express Tstamp literals, pattern-instance references and
// restart marks, the leaf documents here are plain JSON with declared
// upper bounds on each segment's index — so decoding goes through
// json-iterator/go instead of a handwritten scanner.
package tree

import (
	"fmt"
	"regexp"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/kunquat/kunquat-go/internal/kqterror"
)

var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Segment describes one numbered path component, e.g. "au_00" for the
// first audio unit directory.
type Segment struct {
	Prefix string
	Index  int
}

var segmentPattern = regexp.MustCompile(`^([a-zA-Z_]+)_([0-9A-Fa-f]+)$`)

// MaxIndex declares the upper bound (exclusive) for each known key-path
// prefix, per the container format's fixed capacity limits.
var MaxIndex = map[string]int{
	"au":       256,
	"proc":     256,
	"in":       256,
	"out":      256,
	"smp":      512,
	"exp":      8,
	"src":      8,
	"pat":      1024,
	"instance": 65536,
	"col":      256,
	"song":     256,
}

// ParseSegment splits a directory entry name like "proc_0A" into its
// prefix and numeric index, validating the index against the prefix's
// declared bound. The index is hexadecimal, matching the container
// format's directory-naming convention.
func ParseSegment(name string) (Segment, error) {
	m := segmentPattern.FindStringSubmatch(name)
	if m == nil {
		return Segment{}, fmt.Errorf("tree: %q is not a numbered key-path segment", name)
	}
	prefix := m[1]
	idx, err := strconv.ParseInt(m[2], 16, 32)
	if err != nil {
		return Segment{}, fmt.Errorf("tree: %q has a malformed index: %w", name, err)
	}
	if bound, known := MaxIndex[prefix]; known && int(idx) >= bound {
		return Segment{}, fmt.Errorf("tree: %s index %d exceeds bound %d", prefix, idx, bound)
	}
	return Segment{Prefix: prefix, Index: int(idx)}, nil
}

// Manifest mirrors p_manifest.json: the minimal existence/validity
// declaration a container directory carries for itself.
type Manifest struct {
	Type string `json:"type,omitempty"`
}

// ConnectionsDoc mirrors p_connections.json: a flat list of device-graph
// edges, each naming a source port and destination port by their
// containing device's key path plus a port number.
type ConnectionsDoc struct {
	Edges []Edge `json:"connections"`
}

// Edge is one source-port -> destination-port wire in the device graph.
type Edge struct {
	FromDevice string `json:"from_device"`
	FromPort   int    `json:"from_port"`
	ToDevice   string `json:"to_device"`
	ToPort     int    `json:"to_port"`
}

// BindDoc mirrors p_bind.json: the ordered list of bind rules triggered
// by incoming events, each with a boolean constraint expression and a
// list of target events to fire when it is satisfied.
type BindDoc struct {
	Rules []BindRule `json:"rules"`
}

// BindRule is one entry of a BindDoc.
type BindRule struct {
	EventName  string      `json:"event_name"`
	Constraint string      `json:"constraint,omitempty"`
	Targets    []BindTarget `json:"targets"`
}

// BindTarget is one event fired by a satisfied BindRule.
type BindTarget struct {
	EventName string `json:"event_name"`
	Argument  string `json:"argument,omitempty"`
}

// DecodeManifest decodes a p_manifest.json document. A missing or empty
// document is treated as a present-but-empty manifest, matching the
// container format's convention that manifest files only need to exist.
func DecodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if len(data) == 0 {
		return m, nil
	}
	if err := fastJSON.Unmarshal(data, &m); err != nil {
		return Manifest{}, kqterror.New(kqterror.Format, "manifest: %v", err)
	}
	return m, nil
}

// DecodeConnections decodes a p_connections.json document.
func DecodeConnections(data []byte) (ConnectionsDoc, error) {
	var doc ConnectionsDoc
	if len(data) == 0 {
		return doc, nil
	}
	if err := fastJSON.Unmarshal(data, &doc); err != nil {
		return ConnectionsDoc{}, kqterror.New(kqterror.Format, "connections: %v", err)
	}
	return doc, nil
}

// DecodeBind decodes a p_bind.json document.
func DecodeBind(data []byte) (BindDoc, error) {
	var doc BindDoc
	if len(data) == 0 {
		return doc, nil
	}
	if err := fastJSON.Unmarshal(data, &doc); err != nil {
		return BindDoc{}, kqterror.New(kqterror.Format, "bind: %v", err)
	}
	return doc, nil
}

// Router dispatches decoded leaf documents by the key-path segments that
// led to them, generalizing the container format's "numbered directory
// of numbered directories" layout into a single visit callback.
type Router struct {
	handlers map[string]func(path []Segment, data []byte) error
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]func(path []Segment, data []byte) error)}
}

// Handle registers a callback for leaf file name leaf (e.g. "p_manifest.json").
func (r *Router) Handle(leaf string, fn func(path []Segment, data []byte) error) {
	r.handlers[leaf] = fn
}

// Dispatch invokes the handler registered for leaf, if any, with the
// key-path segments that led to it.
func (r *Router) Dispatch(path []Segment, leaf string, data []byte) error {
	fn, ok := r.handlers[leaf]
	if !ok {
		return nil
	}
	return fn(path, data)
}
