package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/loreline/internal/chat"
	"github.com/scrypster/loreline/internal/services"
	"github.com/scrypster/loreline/pkg/types"
)

// ErrTaskNotFound is returned when a queue operation references a task id
// that is not in the queue.
var ErrTaskNotFound = errors.New("task not found in queue")

// ErrNoActiveChat is returned when an enqueue is requested without an
// active conversation.
var ErrNoActiveChat = errors.New("no active conversation")

// TaskRunner executes one queued analysis task. Run must honor context
// cancellation, returning an error satisfying errors.Is(err,
// context.Canceled) when aborted.
type TaskRunner interface {
	Run(ctx context.Context, task *types.QueueTask) error
}

// QueueListener receives the full task list after every queue mutation.
type QueueListener func(tasks []types.QueueTask)

// AnalysisQueue is the single-worker FIFO scheduler for analysis tasks.
// At most one task has status processing at any instant; the worker always
// picks the first pending task once it becomes free. Paused tasks are
// skipped until resumed.
type AnalysisQueue struct {
	runner     TaskRunner
	transcript chat.Transcript
	suites     *services.SuiteService

	mu            sync.Mutex
	tasks         []*types.QueueTask
	processing    bool
	currentTaskID string
	cancelCurrent context.CancelFunc

	listenerMu   sync.Mutex
	listeners    map[int]QueueListener
	nextListener int
}

// NewAnalysisQueue creates an empty queue. The runner is invoked on a
// dedicated goroutine per task; the queue itself never blocks callers.
func NewAnalysisQueue(runner TaskRunner, transcript chat.Transcript, suites *services.SuiteService) *AnalysisQueue {
	return &AnalysisQueue{
		runner:     runner,
		transcript: transcript,
		suites:     suites,
		listeners:  make(map[int]QueueListener),
	}
}

// Enqueue appends a pending task for the suite, snapshotting the current
// chat id and length. The effective snapshot mode is resolved here from the
// suite override or the global default and carried on the task, so two
// suites with different preferences never race on a shared flag.
func (q *AnalysisQueue) Enqueue(ctx context.Context, suite *types.Suite, triggerType types.TriggerType) (*types.QueueTask, error) {
	chatID := q.transcript.ActiveChatID()
	if chatID == "" {
		log.Printf("WARNING: queue: enqueue for suite %s skipped, no active conversation", suite.Name)
		return nil, ErrNoActiveChat
	}

	task := &types.QueueTask{
		ID:                 uuid.NewString(),
		SuiteID:            suite.ID,
		SuiteName:          suite.Name,
		Status:             types.TaskPending,
		ChatLengthSnapshot: q.transcript.Length(chatID),
		ChatIDSnapshot:     chatID,
		CreatedAt:          time.Now().UTC(),
		TriggerType:        triggerType,
		SnapshotMode:       q.suites.SnapshotModeFor(ctx, suite),
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	log.Printf("queue: enqueued task %s for suite %q (trigger=%s, chat=%s, length=%d)",
		task.ID, task.SuiteName, triggerType, chatID, task.ChatLengthSnapshot)
	q.notifyListeners()
	go q.tryProcessNext()
	return task, nil
}

// Pause parks a pending task. A processing task cannot be paused.
func (q *AnalysisQueue) Pause(taskID string) error {
	err := q.setStatus(taskID, types.TaskPending, types.TaskPaused)
	if err == nil {
		q.notifyListeners()
	}
	return err
}

// Resume returns a paused task to the pending pool and re-kicks the worker.
func (q *AnalysisQueue) Resume(taskID string) error {
	err := q.setStatus(taskID, types.TaskPaused, types.TaskPending)
	if err != nil {
		return err
	}
	q.notifyListeners()
	go q.tryProcessNext()
	return nil
}

// Remove cancels the task if it is currently processing, then deletes it
// from the queue. The worker loop is re-triggered afterwards.
func (q *AnalysisQueue) Remove(taskID string) error {
	q.mu.Lock()
	idx := -1
	for i, t := range q.tasks {
		if t.ID == taskID {
			idx = i
			break
		}
	}
	if idx == -1 {
		q.mu.Unlock()
		return ErrTaskNotFound
	}
	if q.currentTaskID == taskID && q.cancelCurrent != nil {
		q.cancelCurrent()
	}
	q.tasks = append(q.tasks[:idx], q.tasks[idx+1:]...)
	q.mu.Unlock()

	q.notifyListeners()
	go q.tryProcessNext()
	return nil
}

// AbortSuite removes every task belonging to a suite, cancelling the
// in-flight one if it is among them.
func (q *AnalysisQueue) AbortSuite(suiteID string) int {
	q.mu.Lock()
	kept := q.tasks[:0]
	removed := 0
	for _, t := range q.tasks {
		if t.SuiteID != suiteID {
			kept = append(kept, t)
			continue
		}
		if q.currentTaskID == t.ID && q.cancelCurrent != nil {
			q.cancelCurrent()
		}
		removed++
	}
	q.tasks = kept
	q.mu.Unlock()

	if removed > 0 {
		log.Printf("queue: aborted %d task(s) for suite %s", removed, suiteID)
		q.notifyListeners()
		go q.tryProcessNext()
	}
	return removed
}

// Tasks returns a snapshot of the current task list in queue order.
func (q *AnalysisQueue) Tasks() []types.QueueTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]types.QueueTask, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = *t
	}
	return out
}

// Subscribe registers a listener for queue mutations and returns an
// unsubscribe handle. Listeners receive a snapshot of the full task list.
func (q *AnalysisQueue) Subscribe(fn QueueListener) (unsubscribe func()) {
	q.listenerMu.Lock()
	id := q.nextListener
	q.nextListener++
	q.listeners[id] = fn
	q.listenerMu.Unlock()

	return func() {
		q.listenerMu.Lock()
		delete(q.listeners, id)
		q.listenerMu.Unlock()
	}
}

// tryProcessNext starts the first pending task when the worker is free.
// It is a no-op while a task is already processing, which guarantees the
// at-most-one-concurrent invariant.
func (q *AnalysisQueue) tryProcessNext() {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return
	}
	var next *types.QueueTask
	for _, t := range q.tasks {
		if t.Status == types.TaskPending {
			next = t
			break
		}
	}
	if next == nil {
		q.mu.Unlock()
		return
	}

	next.Status = types.TaskProcessing
	q.processing = true
	q.currentTaskID = next.ID
	ctx, cancel := context.WithCancel(context.Background())
	q.cancelCurrent = cancel
	task := *next
	q.mu.Unlock()

	q.notifyListeners()

	go func() {
		defer cancel()
		err := q.runner.Run(ctx, &task)
		switch {
		case err == nil:
			log.Printf("queue: task %s for suite %q completed", task.ID, task.SuiteName)
		case errors.Is(err, context.Canceled):
			log.Printf("queue: task %s for suite %q aborted", task.ID, task.SuiteName)
		default:
			log.Printf("queue: task %s for suite %q failed: %v", task.ID, task.SuiteName, err)
		}

		q.mu.Lock()
		for i, t := range q.tasks {
			if t.ID == task.ID {
				q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
				break
			}
		}
		q.processing = false
		q.currentTaskID = ""
		q.cancelCurrent = nil
		q.mu.Unlock()

		q.notifyListeners()
		q.tryProcessNext()
	}()
}

// setStatus transitions a task from one status to another.
func (q *AnalysisQueue) setStatus(taskID string, from, to types.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		if t.ID != taskID {
			continue
		}
		if t.Status != from {
			return fmt.Errorf("task %s is %s, not %s", taskID, t.Status, from)
		}
		t.Status = to
		return nil
	}
	return ErrTaskNotFound
}

// notifyListeners delivers the current task list to every listener. One
// panicking listener never prevents the others from running.
func (q *AnalysisQueue) notifyListeners() {
	snapshot := q.Tasks()

	q.listenerMu.Lock()
	listeners := make([]QueueListener, 0, len(q.listeners))
	for _, fn := range q.listeners {
		listeners = append(listeners, fn)
	}
	q.listenerMu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("queue: listener panicked: %v", r)
				}
			}()
			fn(snapshot)
		}()
	}
}
