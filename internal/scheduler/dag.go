package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// CycleError reports a dependency cycle. IDs holds every task that could not
// be ordered, sorted for stable error messages.
type CycleError struct {
	IDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving tasks: %s", strings.Join(e.IDs, ", "))
}

// DAG holds the live working set of tasks and their dependency edges.
// The graph is read-only once a run begins resolution; only status
// bookkeeping mutates after that.
type DAG struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by ID
	dependents map[string][]string // taskID -> tasks that depend on it
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// Add adds a task to the DAG. Returns an error if the task ID already exists.
func (d *DAG) Add(task *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}
	if task.Status == "" {
		task.Status = StatusPending
	}

	d.tasks[task.ID] = task

	// Build dependents map for efficient downstream lookup
	for _, depID := range task.DependsOn {
		d.dependents[depID] = append(d.dependents[depID], task.ID)
	}

	return nil
}

// Validate checks that every dependency exists and that the graph is acyclic,
// using gammazero/toposort for the acyclicity check. A cycle is reported as a
// CycleError naming every task left unordered.
func (d *DAG) Validate() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for taskID, task := range d.tasks {
		for _, depID := range task.DependsOn {
			if _, exists := d.tasks[depID]; !exists {
				return fmt.Errorf("task %q depends on non-existent task %q", taskID, depID)
			}
		}
	}

	var edges []toposort.Edge
	for taskID, task := range d.tasks {
		if len(task.DependsOn) == 0 {
			// Task with no dependencies - edge from nil keeps it in the sort
			edges = append(edges, toposort.Edge{nil, taskID})
		} else {
			for _, depID := range task.DependsOn {
				// Edge (depID, taskID) means depID must come before taskID
				edges = append(edges, toposort.Edge{depID, taskID})
			}
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return &CycleError{IDs: d.unorderableLocked()}
	}

	return nil
}

// Resolve validates the graph and returns the execution order: a topological
// order where ties among ready tasks break by priority descending, CreatedAt
// ascending, then ID. The order is deterministic for a fixed input.
func (d *DAG) Resolve() ([]string, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	// Kahn's algorithm over a ready list kept in scheduling order.
	indegree := make(map[string]int, len(d.tasks))
	for id, task := range d.tasks {
		indegree[id] = len(task.DependsOn)
	}

	ready := make([]*Task, 0, len(d.tasks))
	for id, task := range d.tasks {
		if indegree[id] == 0 {
			ready = append(ready, task)
		}
	}

	order := make([]string, 0, len(d.tasks))
	for len(ready) > 0 {
		sortBySchedulingOrder(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next.ID)

		for _, depID := range d.dependents[next.ID] {
			indegree[depID]--
			if indegree[depID] == 0 {
				ready = append(ready, d.tasks[depID])
			}
		}
	}

	if len(order) != len(d.tasks) {
		// Validate already rejected cycles; this would mean the graph
		// mutated mid-resolution.
		return nil, &CycleError{IDs: d.unorderableLocked()}
	}

	return order, nil
}

// unorderableLocked returns the IDs that survive repeated removal of
// zero-in-degree tasks: exactly the cycle participants and their dependents.
// Caller must hold at least a read lock.
func (d *DAG) unorderableLocked() []string {
	indegree := make(map[string]int, len(d.tasks))
	for id, task := range d.tasks {
		indegree[id] = len(task.DependsOn)
	}

	queue := []string{}
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	removed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		removed++
		for _, depID := range d.dependents[id] {
			indegree[depID]--
			if indegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}

	remaining := make([]string, 0, len(d.tasks)-removed)
	for id, deg := range indegree {
		if deg > 0 {
			remaining = append(remaining, id)
		}
	}
	sort.Strings(remaining)
	return remaining
}

// sortBySchedulingOrder sorts tasks by priority descending, then CreatedAt
// ascending, then ID ascending as a final total order.
func sortBySchedulingOrder(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// Eligible returns pending tasks whose dependencies have all completed,
// in scheduling order.
func (d *DAG) Eligible() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	eligible := []*Task{}
	for _, task := range d.tasks {
		if task.Status != StatusPending {
			continue
		}

		allResolved := true
		for _, depID := range task.DependsOn {
			dep, exists := d.tasks[depID]
			if !exists || dep.Status != StatusCompleted {
				allResolved = false
				break
			}
		}

		if allResolved {
			eligible = append(eligible, cloneTask(task))
		}
	}

	sortBySchedulingOrder(eligible)
	return eligible
}

// MarkRunning sets task status to StatusRunning.
func (d *DAG) MarkRunning(taskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	task.Status = StatusRunning
	return nil
}

// MarkCompleted sets task status to StatusCompleted, releasing dependents.
func (d *DAG) MarkCompleted(taskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	task.Status = StatusCompleted
	return nil
}

// MarkRetrying records a failed attempt: increments RetryCount, stores the
// error, and puts the task back to StatusPending for its next attempt.
// Returns the new retry count.
func (d *DAG) MarkRetrying(taskID string, taskErr error) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return 0, fmt.Errorf("task %q not found", taskID)
	}

	task.RetryCount++
	task.Err = taskErr
	task.Status = StatusPending
	return task.RetryCount, nil
}

// MarkFailed sets task status to terminal StatusFailed. Dependents of a
// failed task stay pending forever: a prerequisite that never completed makes
// its downstream work unsafe to run.
func (d *DAG) MarkFailed(taskID string, taskErr error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	task.RetryCount++
	task.Err = taskErr
	task.Status = StatusFailed
	return nil
}

// Get returns a copy of the task by ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tasks := make([]*Task, 0, len(d.tasks))
	for _, task := range d.tasks {
		tasks = append(tasks, cloneTask(task))
	}
	return tasks
}

// Len returns the number of tasks in the DAG.
func (d *DAG) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tasks)
}
