package memory

import (
	"fmt"
	"image"
	"os"
	"reflect"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/hsync/pkg/hapi"
)

// Engine is an in-process hapi.Session.
type Engine struct {
	mu sync.Mutex

	generators map[string]Generator
	defs       map[string]Definition
	libraries  map[hapi.LibraryID][]string
	nextLib    hapi.LibraryID

	assets    map[hapi.AssetID]*asset
	nextAsset hapi.AssetID
	nodes     map[hapi.NodeID]*node
	nextNode  hapi.NodeID

	cookPolls int
	queue     []*cookJob
	cookState hapi.State
	cookMsg   string
	cookFail  string

	lastError string
	failures  []*failure
}

type asset struct {
	id   hapi.AssetID
	def  Definition
	node hapi.NodeID

	parms    Parms
	cooked   bool
	current  Snapshot
	matNodes map[hapi.NodeID]hapi.NodeID // local material id -> global node

	objectsChanged   bool
	transformChanged []bool
	geosChanged      []bool
	geoChanged       [][]bool
}

type node struct {
	id       hapi.NodeID
	owner    *asset
	material *Material
	changed  bool
	rendered image.Image
}

type cookJob struct {
	asset *asset
	polls int
}

type failure struct {
	op        string
	key       *hapi.PartKey
	message   string
	remaining int // <0 means forever
}

// Option configures an Engine.
type Option func(*Engine)

// WithCookPolls sets how many cook-state polls report cooking before a cook completes.
func WithCookPolls(n int) Option {
	return func(e *Engine) { e.cookPolls = n }
}

// WithGenerator registers a named generator usable from asset library files.
func WithGenerator(name string, g Generator) Option {
	return func(e *Engine) { e.generators[name] = g }
}

// New creates an engine. The demo generators are always registered.
func New(opts ...Option) *Engine {
	e := &Engine{
		generators: make(map[string]Generator),
		defs:       make(map[string]Definition),
		libraries:  make(map[hapi.LibraryID][]string),
		assets:     make(map[hapi.AssetID]*asset),
		nodes:      make(map[hapi.NodeID]*node),
		nextNode:   1,
	}
	for name, g := range demoGenerators() {
		e.generators[name] = g
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Define registers an asset definition directly, bypassing library files.
func (e *Engine) Define(d Definition) error {
	if err := d.validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defs[d.Name] = d
	return nil
}

// FailOn makes the next `times` calls of op fail (times < 0 fails forever).
func (e *Engine) FailOn(op, message string, times int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, &failure{op: op, message: message, remaining: times})
}

// FailOnPart is FailOn restricted to calls addressing one part.
func (e *Engine) FailOnPart(op string, key hapi.PartKey, message string, times int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, &failure{op: op, key: &key, message: message, remaining: times})
}

// FailNextCook makes the next completed cook end with cook errors.
func (e *Engine) FailNextCook(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cookFail = message
}

// Snapshot returns the output of the asset's last completed cook.
func (e *Engine) Snapshot(id hapi.AssetID) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.assets[id]
	if !ok {
		return Snapshot{}, false
	}
	return a.current, true
}

// fail records the status string for a failed call.
func (e *Engine) fail(code hapi.Result, format string, args ...any) error {
	e.lastError = fmt.Sprintf(format, args...)
	return code
}

func (e *Engine) injected(op string, key *hapi.PartKey) error {
	for i, f := range e.failures {
		if f.op != op {
			continue
		}
		if f.key != nil && (key == nil || *f.key != *key) {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
			if f.remaining == 0 {
				e.failures = append(e.failures[:i], e.failures[i+1:]...)
			}
		}
		return e.fail(hapi.ResultFailure, "%s: %s", op, f.message)
	}
	return nil
}

type libraryFile struct {
	Assets []struct {
		Name      string      `yaml:"name"`
		Generator string      `yaml:"generator"`
		Parms     []parmEntry `yaml:"parms"`
	} `yaml:"assets"`
}

type parmEntry struct {
	Name    string    `yaml:"name"`
	Type    string    `yaml:"type"`
	Floats  []float32 `yaml:"floats"`
	Ints    []int32   `yaml:"ints"`
	Strings []string  `yaml:"strings"`
}

var parmTypes = map[string]hapi.ParmType{
	"int":    hapi.ParmInt,
	"toggle": hapi.ParmToggle,
	"float":  hapi.ParmFloat,
	"color":  hapi.ParmColor,
	"string": hapi.ParmString,
	"file":   hapi.ParmPathFile,
}

// LoadAssetLibrary reads a YAML library file. Every entry names a registered
// generator and the default values of its parameters.
func (e *Engine) LoadAssetLibrary(path string) (hapi.LibraryID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("LoadAssetLibrary", nil); err != nil {
		return -1, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return -1, e.fail(hapi.ResultCantLoadFile, "cannot read asset library %s: %v", path, err)
	}
	var lib libraryFile
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return -1, e.fail(hapi.ResultCantLoadFile, "cannot parse asset library %s: %v", path, err)
	}

	names := make([]string, 0, len(lib.Assets))
	for _, entry := range lib.Assets {
		g, ok := e.generators[entry.Generator]
		if !ok {
			return -1, e.fail(hapi.ResultCantLoadFile, "asset %s: unknown generator %q", entry.Name, entry.Generator)
		}
		def := Definition{Name: entry.Name, Generate: g}
		for _, p := range entry.Parms {
			t, ok := parmTypes[p.Type]
			if !ok {
				return -1, e.fail(hapi.ResultCantLoadFile, "asset %s: parm %s has unknown type %q", entry.Name, p.Name, p.Type)
			}
			def.Parms = append(def.Parms, Parm{Name: p.Name, Type: t, Floats: p.Floats, Ints: p.Ints, Strings: p.Strings})
		}
		if err := def.validate(); err != nil {
			return -1, e.fail(hapi.ResultCantLoadFile, "%v", err)
		}
		e.defs[def.Name] = def
		names = append(names, def.Name)
	}

	id := e.nextLib
	e.nextLib++
	e.libraries[id] = names
	return id, nil
}

// AvailableAssets lists the asset names a library defines.
func (e *Engine) AvailableAssets(lib hapi.LibraryID) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	names, ok := e.libraries[lib]
	if !ok {
		return nil, e.fail(hapi.ResultInvalidArgument, "unknown library %d", lib)
	}
	return append([]string(nil), names...), nil
}

// InstantiateAsset creates an asset node; with cookOnLoad a cook is queued.
func (e *Engine) InstantiateAsset(name string, cookOnLoad bool) (hapi.AssetID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("InstantiateAsset", nil); err != nil {
		return -1, err
	}
	def, ok := e.defs[name]
	if !ok {
		return -1, e.fail(hapi.ResultInvalidArgument, "no asset definition named %q", name)
	}

	a := &asset{
		id:       e.nextAsset,
		def:      def,
		parms:    cloneParms(def.Parms),
		matNodes: make(map[hapi.NodeID]hapi.NodeID),
	}
	e.nextAsset++
	a.node = e.newNode(&node{owner: a})
	e.assets[a.id] = a
	if cookOnLoad {
		e.queue = append(e.queue, &cookJob{asset: a, polls: e.cookPolls})
	}
	return a.id, nil
}

func (e *Engine) newNode(n *node) hapi.NodeID {
	n.id = e.nextNode
	e.nextNode++
	e.nodes[n.id] = n
	return n.id
}

// DestroyAsset removes an asset and its nodes.
func (e *Engine) DestroyAsset(id hapi.AssetID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.assets[id]
	if !ok {
		return e.fail(hapi.ResultInvalidArgument, "no asset %d", id)
	}
	delete(e.nodes, a.node)
	for _, n := range a.matNodes {
		delete(e.nodes, n)
	}
	delete(e.assets, id)
	queue := e.queue[:0]
	for _, job := range e.queue {
		if job.asset != a {
			queue = append(queue, job)
		}
	}
	e.queue = queue
	return nil
}

// CookAsset queues a cook. Results become visible once the cook state
// reports ready.
func (e *Engine) CookAsset(id hapi.AssetID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("CookAsset", nil); err != nil {
		return err
	}
	a, ok := e.assets[id]
	if !ok {
		return e.fail(hapi.ResultInvalidArgument, "no asset %d", id)
	}
	e.queue = append(e.queue, &cookJob{asset: a, polls: e.cookPolls})
	return nil
}

// Status reports the state of a status channel. Polling StatusCookState
// advances queued cooks.
func (e *Engine) Status(t hapi.StatusType) (hapi.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch t {
	case hapi.StatusCookState:
		if err := e.injected("Status", nil); err != nil {
			return hapi.StateReadyWithFatalErrors, err
		}
		return e.advance(), nil
	case hapi.StatusCookResult:
		return e.cookState, nil
	default:
		return hapi.StateReady, nil
	}
}

func (e *Engine) advance() hapi.State {
	for len(e.queue) > 0 {
		job := e.queue[0]
		if job.polls > 0 {
			job.polls--
			return hapi.StateCooking
		}
		e.queue = e.queue[1:]
		e.finishCook(job.asset)
		if e.cookState != hapi.StateReady {
			e.queue = nil
			return e.cookState
		}
	}
	return e.cookState
}

func (e *Engine) finishCook(a *asset) {
	snap, err := a.def.Generate(cloneParms(a.parms))
	if err == nil && e.cookFail != "" {
		err = fmt.Errorf("%s", e.cookFail)
		e.cookFail = ""
	}
	if err != nil {
		e.cookState = hapi.StateReadyWithCookErrors
		e.cookMsg = fmt.Sprintf("%s: %v", a.def.Name, err)
		return
	}
	e.cookState = hapi.StateReady
	e.cookMsg = ""
	e.apply(a, snap)
}

// apply installs a new snapshot and derives change flags by diffing it
// against the previous one.
func (e *Engine) apply(a *asset, snap Snapshot) {
	prev := a.current
	first := !a.cooked

	a.objectsChanged = first || len(prev.Objects) != len(snap.Objects)
	a.transformChanged = make([]bool, len(snap.Objects))
	a.geosChanged = make([]bool, len(snap.Objects))
	a.geoChanged = make([][]bool, len(snap.Objects))
	for i, obj := range snap.Objects {
		var old *Object
		if !first && i < len(prev.Objects) {
			old = &prev.Objects[i]
		}
		a.transformChanged[i] = old == nil || old.Transform != obj.Transform
		a.geoChanged[i] = make([]bool, len(obj.Geos))
		for j := range obj.Geos {
			changed := old == nil || j >= len(old.Geos) || !reflect.DeepEqual(old.Geos[j], obj.Geos[j])
			a.geoChanged[i][j] = changed
			a.geosChanged[i] = a.geosChanged[i] || changed
		}
		if old != nil && len(old.Geos) != len(obj.Geos) {
			a.geosChanged[i] = true
		}
		if a.transformChanged[i] || a.geosChanged[i] {
			a.objectsChanged = true
		}
	}

	for i := range snap.Materials {
		m := &snap.Materials[i]
		id, ok := a.matNodes[m.ID]
		if !ok {
			id = e.newNode(&node{owner: a})
			a.matNodes[m.ID] = id
		}
		n := e.nodes[id]
		n.changed = n.material == nil || !reflect.DeepEqual(n.material, m)
		n.material = m
	}

	a.current = snap
	a.cooked = true
}

// StatusString returns the text of a status channel.
func (e *Engine) StatusString(t hapi.StatusType, _ hapi.Verbosity) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch t {
	case hapi.StatusCallResult:
		return e.lastError
	case hapi.StatusCookResult:
		return e.cookMsg
	default:
		if len(e.queue) == 0 {
			return "Ready"
		}
		job := e.queue[0]
		return fmt.Sprintf("Cooking %s (%d queued)", job.asset.def.Name, len(e.queue))
	}
}

func (e *Engine) lookup(op string, id hapi.AssetID) (*asset, error) {
	if err := e.injected(op, nil); err != nil {
		return nil, err
	}
	a, ok := e.assets[id]
	if !ok {
		return nil, e.fail(hapi.ResultInvalidArgument, "%s: no asset %d", op, id)
	}
	return a, nil
}

// sortedAssets returns asset ids in creation order; used by tests and the demo.
func (e *Engine) sortedAssets() []hapi.AssetID {
	ids := make([]hapi.AssetID, 0, len(e.assets))
	for id := range e.assets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Assets returns the live asset ids in creation order.
func (e *Engine) Assets() []hapi.AssetID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortedAssets()
}

var _ hapi.Session = (*Engine)(nil)
