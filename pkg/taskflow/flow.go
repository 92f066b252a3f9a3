package taskflow

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/taskflow/pkg/taskflow/registry"
)

// Reserved task names. They never collide with caller task names because the
// builder rejects them.
const (
	// InitialTask keys the entry point in the flow graph.
	InitialTask = "__start_with__"

	// HandledExceptionSet keys the ordered list of handled-exception tasks.
	HandledExceptionSet = "__exception__"

	// UnhandledExceptionTask names the global recovery step. It lives in the
	// task registry only and has no successors.
	UnhandledExceptionTask = "__unhandled_exception__"
)

// StepFunc is the executable body of a task. It receives the payload and
// returns the payload the next task sees. A returned error is an unhandled
// exception; a step that recovers on its own should instead route to a
// handled-exception task with ctx.SetNextTask.
type StepFunc[P any] func(ctx Context, p P) (P, error)

// Task pairs a name with its step, for bulk registration.
type Task[P any] struct {
	Name string
	Step StepFunc[P]
}

// Flow is a named, directed graph of tasks plus the steps that implement
// them. Builder methods mutate the flow and return it for chaining:
//
//	flow := taskflow.NewFlow[*Order]().
//	    RegisterTasks(tasks...).
//	    StartWith("validate").
//	    FollowedBy("price").
//	    ConditionalFlow(
//	        taskflow.NewFlow[*Order]().StartWith("ship"),
//	        taskflow.NewFlow[*Order]().StartWith("refund"),
//	    )
//
// Build a flow once, then run it any number of times, concurrently if
// needed. Mutating a flow while a run is in progress does not affect that run.
type Flow[P any] struct {
	mu     sync.RWMutex
	graph  map[string][]string
	cursor string

	tasks *registry.Registry[string, StepFunc[P]]

	listeners  *registry.Registry[uint64, Listener]
	listenerID atomic.Uint64
}

// NewFlow creates an empty flow.
func NewFlow[P any]() *Flow[P] {
	return &Flow[P]{
		graph:     make(map[string][]string),
		tasks:     registry.New[string, StepFunc[P]](),
		listeners: registry.New[uint64, Listener](),
	}
}

// RegisterTask associates step with name, replacing any earlier step.
// A nil step removes the registration; a run reaching a task without a step
// logs it and stops cleanly.
//
// Panics if name is empty, contains whitespace or is reserved.
func (f *Flow[P]) RegisterTask(name string, step StepFunc[P]) *Flow[P] {
	validateName(name)
	if step == nil {
		f.tasks.Delete(name)
		return f
	}
	f.tasks.Register(name, step)
	return f
}

// RegisterTasks registers several tasks at once.
func (f *Flow[P]) RegisterTasks(tasks ...Task[P]) *Flow[P] {
	for _, t := range tasks {
		f.RegisterTask(t.Name, t.Step)
	}
	return f
}

// StartWith sets the entry point and moves the cursor to it.
// Calling it again replaces the entry point.
func (f *Flow[P]) StartWith(name string) *Flow[P] {
	validateName(name)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.graph[InitialTask] = []string{name}
	f.cursor = name
	return f
}

// FollowedBy makes name the only successor of the cursor task and moves the
// cursor to it. Without a cursor, name becomes the entry point.
func (f *Flow[P]) FollowedBy(name string) *Flow[P] {
	validateName(name)

	f.mu.Lock()
	defer f.mu.Unlock()

	from := f.cursor
	if from == "" {
		from = InitialTask
	}
	f.graph[from] = []string{name}
	f.cursor = name
	return f
}

// FollowedBySeries splices sub into this flow after the cursor task.
//
// The entry task of sub is appended to the cursor's successors unless it is
// already one of them. Every other task entry and every step of sub is
// copied over, replacing entries with the same name, and sub's
// handled-exception tasks are added to this flow's. The cursor moves to
// sub's cursor; a sub without an entry task leaves the cursor where it was.
//
// Panics if sub is nil.
func (f *Flow[P]) FollowedBySeries(sub *Flow[P]) *Flow[P] {
	if sub == nil {
		panic("taskflow: nil sub-flow")
	}
	snap := sub.snapshot()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.splice(snap)
	return f
}

// ConditionalFlow adds one branch per sub-flow at the cursor task. Branch
// order is argument order, so the first sub-flow's entry is the default
// successor. Afterwards the cursor points at the last branch's exit, so only
// that branch can be chained further.
//
// When branches declare the same task with different successors, the later
// branch wins.
func (f *Flow[P]) ConditionalFlow(subs ...*Flow[P]) *Flow[P] {
	snaps := make([]flowSnapshot[P], 0, len(subs))
	for _, sub := range subs {
		if sub == nil {
			panic("taskflow: nil sub-flow")
		}
		snaps = append(snaps, sub.snapshot())
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	branchPoint := f.cursor
	for _, snap := range snaps {
		f.cursor = branchPoint
		f.splice(snap)
	}
	return f
}

// splice merges snap at the cursor. Callers hold f.mu.
func (f *Flow[P]) splice(snap flowSnapshot[P]) {
	if entry := snap.initial(); entry != "" {
		from := f.cursor
		if from == "" {
			from = InitialTask
		}
		if !contains(f.graph[from], entry) {
			f.graph[from] = append(f.graph[from], entry)
		}
	}

	for name, successors := range snap.graph {
		if isReserved(name) {
			continue
		}
		f.graph[name] = append([]string(nil), successors...)
	}

	// Recovery tasks declared by the sub-flow stay reachable.
	for _, name := range snap.handled() {
		if !contains(f.graph[HandledExceptionSet], name) {
			f.graph[HandledExceptionSet] = append(f.graph[HandledExceptionSet], name)
		}
	}

	for name, step := range snap.tasks {
		f.tasks.Register(name, step)
	}

	if snap.cursor != "" {
		f.cursor = snap.cursor
	}
}

// AddHandledExceptionTasks declares the tasks any step may route to with
// SetNextTask, regardless of graph edges. Replaces earlier declarations.
func (f *Flow[P]) AddHandledExceptionTasks(names ...string) *Flow[P] {
	for _, name := range names {
		validateName(name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.graph[HandledExceptionSet] = append([]string(nil), names...)
	return f
}

// AddUnhandledExceptionTask registers the step a run is sent to the first
// time a step returns an error or panics. If that step fails too, the run
// stops. Call it last; it does not return the flow.
func (f *Flow[P]) AddUnhandledExceptionTask(step StepFunc[P]) {
	if step == nil {
		f.tasks.Delete(UnhandledExceptionTask)
		return
	}
	f.tasks.Register(UnhandledExceptionTask, step)
}

// Clear removes every task, edge and step and resets the cursor.
// Subscriptions are kept.
func (f *Flow[P]) Clear() *Flow[P] {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.graph = make(map[string][]string)
	f.cursor = ""
	f.tasks.Clear()
	return f
}

// Initial returns the entry task, or "" before StartWith.
func (f *Flow[P]) Initial() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return first(f.graph[InitialTask])
}

// Successors returns a copy of name's successors. Terminal tasks return nil.
func (f *Flow[P]) Successors(name string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if isReserved(name) {
		return nil
	}
	if s := f.graph[name]; len(s) > 0 {
		return append([]string(nil), s...)
	}
	return nil
}

// HandledExceptionTasks returns a copy of the handled-exception tasks.
func (f *Flow[P]) HandledExceptionTasks() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.graph[HandledExceptionSet]...)
}

// Cursor returns the task the next builder call attaches to.
func (f *Flow[P]) Cursor() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cursor
}

// HasTask reports whether a step is registered for name.
func (f *Flow[P]) HasTask(name string) bool {
	return f.tasks.Has(name)
}

// HasUnhandledExceptionTask reports whether AddUnhandledExceptionTask was called.
func (f *Flow[P]) HasUnhandledExceptionTask() bool {
	return f.tasks.Has(UnhandledExceptionTask)
}

// Names returns every task the flow knows of, sorted: graph keys,
// successors, handled-exception tasks and registered steps. Reserved names
// are excluded.
func (f *Flow[P]) Names() []string {
	return f.snapshot().names()
}

// String dumps the graph deterministically, one entry per line.
func (f *Flow[P]) String() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := make([]string, 0, len(f.graph))
	for k := range f.graph {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  [ %s ] = [ %s ]\n", k, strings.Join(f.graph[k], ", "))
	}
	b.WriteString("}")
	return b.String()
}

// flowSnapshot is an immutable copy of a flow taken under its lock. Runs and
// diagram generation work from a snapshot.
type flowSnapshot[P any] struct {
	graph  map[string][]string
	tasks  map[string]StepFunc[P]
	cursor string
}

func (f *Flow[P]) snapshot() flowSnapshot[P] {
	f.mu.RLock()
	graph := make(map[string][]string, len(f.graph))
	for k, v := range f.graph {
		graph[k] = append([]string(nil), v...)
	}
	cursor := f.cursor
	f.mu.RUnlock()

	tasks := make(map[string]StepFunc[P], f.tasks.Len())
	f.tasks.Range(func(name string, step StepFunc[P]) bool {
		tasks[name] = step
		return true
	})

	return flowSnapshot[P]{graph: graph, tasks: tasks, cursor: cursor}
}

func (s flowSnapshot[P]) initial() string {
	return first(s.graph[InitialTask])
}

func (s flowSnapshot[P]) successors(name string) []string {
	if isReserved(name) {
		return nil
	}
	return s.graph[name]
}

func (s flowSnapshot[P]) handled() []string {
	return s.graph[HandledExceptionSet]
}

func (s flowSnapshot[P]) names() []string {
	set := make(map[string]struct{})
	add := func(name string) {
		if !isReserved(name) {
			set[name] = struct{}{}
		}
	}
	for k, successors := range s.graph {
		add(k)
		for _, n := range successors {
			add(n)
		}
	}
	for name := range s.tasks {
		add(name)
	}

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// resolve picks the task that follows current given the step's request.
//
// A terminal task resolves to "". An empty request stops the run. Otherwise
// the request must be a successor of current or a handled-exception task;
// with permissive set it is accepted unchecked and reported as such.
func (s flowSnapshot[P]) resolve(current, requested string, permissive bool) (next string, checked bool, err error) {
	successors := s.successors(current)
	if len(successors) == 0 || requested == "" {
		return "", true, nil
	}
	if contains(successors, requested) || contains(s.handled(), requested) {
		return requested, true, nil
	}
	if permissive {
		return requested, false, nil
	}

	allowed := append(append([]string(nil), successors...), s.handled()...)
	return "", true, &TransitionError{
		From:      current,
		Requested: requested,
		Allowed:   allowed,
		Err:       ErrInvalidTransition,
	}
}

func validateName(name string) {
	if name == "" {
		panic("taskflow: empty task name")
	}
	if strings.IndexFunc(name, isSpace) >= 0 {
		panic(fmt.Sprintf("taskflow: task name %q contains whitespace", name))
	}
	if isReserved(name) {
		panic(fmt.Sprintf("taskflow: task name %q is reserved", name))
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

func isReserved(name string) bool {
	return name == InitialTask || name == HandledExceptionSet || name == UnhandledExceptionTask
}

func first(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
