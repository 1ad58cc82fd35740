package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"contractforge/internal/apperr"
	"contractforge/internal/contract"
	"contractforge/internal/extractor"
	"contractforge/internal/orchestrator"
)

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// JobSnapshot is what clients poll and what the progress stream sends.
type JobSnapshot struct {
	ID       string                 `json:"id"`
	File     string                 `json:"file"`
	Status   JobStatus              `json:"status"`
	Progress *orchestrator.Progress `json:"progress,omitempty"`
	Template *contract.Template     `json:"template,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Started  time.Time              `json:"started"`
	Finished *time.Time             `json:"finished,omitempty"`
}

type importJob struct {
	mu       sync.Mutex
	snap     JobSnapshot
	cancel   context.CancelFunc
	subs     map[chan JobSnapshot]struct{}
	finished chan struct{}
}

func (j *importJob) snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap
}

// update applies fn and fans the new snapshot out to subscribers. Slow
// subscribers miss intermediate updates; the stream always ends with the
// final snapshot.
func (j *importJob) update(fn func(*JobSnapshot)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.snap.Status != JobRunning {
		return
	}
	fn(&j.snap)
	for ch := range j.subs {
		select {
		case ch <- j.snap:
		default:
		}
	}
	if j.snap.Status != JobRunning {
		now := time.Now()
		j.snap.Finished = &now
		for ch := range j.subs {
			close(ch)
		}
		j.subs = nil
		close(j.finished)
	}
}

// subscribe returns a channel of snapshots that is closed when the job
// ends. For a finished job the channel is already closed.
func (j *importJob) subscribe() (<-chan JobSnapshot, func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ch := make(chan JobSnapshot, 8)
	if j.snap.Status != JobRunning {
		close(ch)
		return ch, func() {}
	}
	j.subs[ch] = struct{}{}
	return ch, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if _, ok := j.subs[ch]; ok {
			delete(j.subs, ch)
			close(ch)
		}
	}
}

type jobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*importJob
	wg   sync.WaitGroup
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[string]*importJob)}
}

func (r *jobRegistry) get(id string) (*importJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// jobRetention is how long finished jobs stay queryable.
const jobRetention = time.Hour

// prune forgets jobs that finished more than maxAge ago. Running jobs are
// kept however long they have been going.
func (r *jobRegistry) prune(maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, j := range r.jobs {
		snap := j.snapshot()
		if snap.Finished != nil && time.Since(*snap.Finished) > maxAge {
			delete(r.jobs, id)
		}
	}
}

// Wait blocks until every running job has returned.
func (r *jobRegistry) Wait() { r.wg.Wait() }

// ========== Import Endpoints ==========

func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	orch, ok := s.requireBackend(w)
	if !ok {
		return
	}
	src, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if extractor.DetectFormat(src.Name, src.MIMEType) == extractor.FormatUnknown {
		s.writeError(w, r, apperr.New(apperr.KindUnsupported, "import", "unsupported file type: use PDF, Word (.docx) or an image"))
		return
	}

	s.jobs.prune(jobRetention)

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(s.baseCtx)
	job := &importJob{
		snap: JobSnapshot{
			ID:      id,
			File:    src.Name,
			Status:  JobRunning,
			Started: time.Now(),
		},
		cancel:   cancel,
		subs:     make(map[chan JobSnapshot]struct{}),
		finished: make(chan struct{}),
	}
	s.jobs.mu.Lock()
	s.jobs.jobs[id] = job
	s.jobs.mu.Unlock()

	s.jobs.wg.Add(1)
	go func() {
		defer s.jobs.wg.Done()
		defer cancel()
		s.runImport(ctx, orch, id, job, src)
	}()

	jsonStatus(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) runImport(ctx context.Context, orch *orchestrator.Orchestrator, id string, job *importJob, src extractor.Source) {
	logger := s.logger.With(zap.String("job", id), zap.String("file", src.Name))
	logger.Info("import started")

	tpl, err := orch.Import(ctx, src, func(p orchestrator.Progress) {
		job.update(func(snap *JobSnapshot) { snap.Progress = &p })
	})
	if err == nil {
		tpl, err = s.library.Create(tpl)
	}

	switch {
	case err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil):
		logger.Info("import cancelled")
		job.update(func(snap *JobSnapshot) {
			snap.Status = JobCancelled
			snap.Error = "import cancelled"
		})
	case err != nil:
		logger.Warn("import failed", zap.String("kind", apperr.KindOf(err).String()), zap.Error(err))
		job.update(func(snap *JobSnapshot) {
			snap.Status = JobFailed
			snap.Error = err.Error()
		})
	default:
		logger.Info("import complete", zap.String("template", tpl.ID))
		job.update(func(snap *JobSnapshot) {
			snap.Status = JobDone
			snap.Template = &tpl
		})
	}
}

// readUpload reads the single "file" part of a multipart request.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (extractor.Source, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return extractor.Source{}, apperr.Wrap(apperr.KindInvalid, "upload", fmt.Errorf("failed to parse upload: %w", err))
	}
	f, fh, err := r.FormFile("file")
	if err != nil {
		return extractor.Source{}, apperr.New(apperr.KindInvalid, "upload", "no file uploaded")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return extractor.Source{}, fmt.Errorf("read upload: %w", err)
	}
	return extractor.Source{
		Name:     fh.Filename,
		MIMEType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func (s *Server) job(w http.ResponseWriter, r *http.Request) (*importJob, bool) {
	job, ok := s.jobs.get(chi.URLParam(r, "id"))
	if !ok {
		jsonErr(w, "Import not found", http.StatusNotFound)
	}
	return job, ok
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.job(w, r)
	if !ok {
		return
	}
	jsonResp(w, job.snapshot())
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	job, ok := s.job(w, r)
	if !ok {
		return
	}
	job.cancel()
	s.logger.Info("import cancel requested", zap.String("job", chi.URLParam(r, "id")))
	jsonResp(w, map[string]string{"status": "cancelling"})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const wsWriteTimeout = 10 * time.Second

// handleImportStream sends the current snapshot, then every progress update,
// then the final snapshot, and closes the connection.
func (s *Server) handleImportStream(w http.ResponseWriter, r *http.Request) {
	job, ok := s.job(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The client never sends anything meaningful; reading detects hang-ups.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	updates, unsubscribe := job.subscribe()
	defer unsubscribe()

	send := func(snap JobSnapshot) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(snap)
	}

	if err := send(job.snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-gone:
			return
		case snap, open := <-updates:
			if !open {
				send(job.snapshot())
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.snapshot().Status)))
				return
			}
			if err := send(snap); err != nil {
				return
			}
		}
	}
}
