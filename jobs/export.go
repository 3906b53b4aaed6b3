/*
export.go - Asynchronous user CSV export

PURPOSE:
  Admins can request a CSV dump of all accounts with their lifetime
  reservation counts. The export runs in a background goroutine and
  its progress is tracked by a task ID so the API can poll for
  completion.

TASK LIFECYCLE:
  pending -> running -> completed | failed

  Tasks are tracked in memory. A restart forgets unfinished tasks;
  the files of completed ones survive on disk.

CSV is written with the standard library encoding/csv writer. The
columns match the admin user listing plus the reservation count.

SEE ALSO:
  - ../api/handlers.go: TriggerUserExport, GetExportStatus
*/
package jobs

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openlot/parking-engine/parking"
)

// TaskStatus is the state of an export task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// ExportTask tracks one export run.
type ExportTask struct {
	ID         string     `json:"id"`
	Status     TaskStatus `json:"status"`
	File       string     `json:"file,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Exporter runs user CSV exports and tracks their status.
type Exporter struct {
	store parking.Store
	dir   string
	log   *zap.SugaredLogger

	mu    sync.Mutex
	tasks map[string]ExportTask

	now func() time.Time
}

// NewExporter creates an exporter writing files under dir.
func NewExporter(store parking.Store, dir string, log *zap.SugaredLogger) *Exporter {
	return &Exporter{
		store: store,
		dir:   dir,
		log:   log,
		tasks: make(map[string]ExportTask),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Start launches an export in the background and returns its task
// record immediately.
func (e *Exporter) Start(ctx context.Context) ExportTask {
	task := ExportTask{
		ID:        uuid.New().String(),
		Status:    TaskPending,
		StartedAt: e.now(),
	}
	e.mu.Lock()
	e.tasks[task.ID] = task
	e.mu.Unlock()

	// Detach from the request context; the export outlives the request.
	go e.run(context.WithoutCancel(ctx), task.ID)
	return task
}

// Status returns the task record for an ID.
func (e *Exporter) Status(id string) (ExportTask, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	task, ok := e.tasks[id]
	return task, ok
}

// Run executes an export synchronously. Used by Start's goroutine and
// directly by tests.
func (e *Exporter) Run(ctx context.Context, id string) error {
	e.setStatus(id, func(t *ExportTask) { t.Status = TaskRunning })

	path, err := e.writeCSV(ctx, id)
	finished := e.now()
	if err != nil {
		e.setStatus(id, func(t *ExportTask) {
			t.Status = TaskFailed
			t.Error = err.Error()
			t.FinishedAt = &finished
		})
		return err
	}
	e.setStatus(id, func(t *ExportTask) {
		t.Status = TaskCompleted
		t.File = path
		t.FinishedAt = &finished
	})
	return nil
}

func (e *Exporter) run(ctx context.Context, id string) {
	if err := e.Run(ctx, id); err != nil {
		e.log.Errorw("user export failed", "task_id", id, "error", err)
		return
	}
	e.log.Infow("user export completed", "task_id", id)
}

func (e *Exporter) writeCSV(ctx context.Context, id string) (string, error) {
	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("listing users: %w", err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	path := filepath.Join(e.dir, fmt.Sprintf("users-%s.csv", id))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "username", "email", "name", "phone", "role", "flagged", "reservations"}); err != nil {
		return "", err
	}
	for _, u := range users {
		history, err := e.store.ReservationsByUser(ctx, u.ID)
		if err != nil {
			return "", fmt.Errorf("listing reservations for %s: %w", u.ID, err)
		}
		record := []string{
			string(u.ID),
			u.Username,
			u.Email,
			u.FirstName + " " + u.LastName,
			u.PhoneNumber,
			string(u.Role),
			strconv.FormatBool(u.Flagged),
			strconv.Itoa(len(history)),
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return path, nil
}

func (e *Exporter) setStatus(id string, update func(*ExportTask)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	task, ok := e.tasks[id]
	if !ok {
		return
	}
	update(&task)
	e.tasks[id] = task
}
