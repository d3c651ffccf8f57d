package supervisor

import (
	"os/exec"
	"sort"
	"sync"
	"time"
)

// process is a live child owned by the registry
type process struct {
	cmd       *exec.Cmd
	pid       int
	runID     string
	kind      string
	command   string
	startedAt time.Time
}

// registry maps slots to the process currently running in them
type registry struct {
	mu        sync.Mutex
	processes map[int]*process
	launches  map[int]*sync.Mutex
}

func newRegistry() *registry {
	return &registry{
		processes: make(map[int]*process),
		launches:  make(map[int]*sync.Mutex),
	}
}

// lockSlot serializes launches into one slot and returns the unlock func.
// Launches into different slots do not contend.
func (r *registry) lockSlot(slot int) func() {
	r.mu.Lock()
	l, ok := r.launches[slot]
	if !ok {
		l = &sync.Mutex{}
		r.launches[slot] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// insert stores p under slot and returns the entry it replaced, if any
func (r *registry) insert(slot int, p *process) *process {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.processes[slot]
	r.processes[slot] = p
	return prev
}

// remove takes the entry for slot out of the registry
func (r *registry) remove(slot int) (*process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.processes[slot]
	if ok {
		delete(r.processes, slot)
	}
	return p, ok
}

func (r *registry) has(slot int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.processes[slot]
	return ok
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.processes)
}

// slots returns the registered slots in ascending order
func (r *registry) slots() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int, 0, len(r.processes))
	for slot := range r.processes {
		out = append(out, slot)
	}
	sort.Ints(out)
	return out
}
