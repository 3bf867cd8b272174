package workflow

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/leafcheck/internal/classifier"
	"github.com/example/leafcheck/internal/logging"
	"github.com/example/leafcheck/internal/preview"
)

// SelectedFile is the image currently held by a workflow.
type SelectedFile struct {
	Name        string
	Data        []byte
	ContentType string
	PreviewURI  string
}

// Previews allocates and releases preview URIs.
type Previews interface {
	Create(ctx context.Context, data []byte) (string, error)
	Revoke(ctx context.Context, uri string)
}

// Listener is called with a fresh view after every state transition. It
// runs while the workflow lock is held, so it must not block or call back
// into the workflow.
type Listener func(View)

// Workflow holds one selected file and one view state. All methods are
// safe for concurrent use; concurrent submissions are not serialized and
// the last response to arrive decides the final state.
type Workflow struct {
	mu        sync.Mutex
	file      *SelectedFile
	state     State
	listeners []Listener

	previews Previews
	client   classifier.Client
	logger   *zap.Logger

	newRequestID func() string
}

// New returns an idle workflow without a file.
func New(client classifier.Client, previews Previews, logger *zap.Logger) *Workflow {
	return &Workflow{
		state:        Idle{},
		previews:     previews,
		client:       client,
		logger:       logger.Named("workflow"),
		newRequestID: uuid.NewString,
	}
}

// SelectFile replaces the held file, releases the previous preview and
// clears any error or result.
func (w *Workflow) SelectFile(ctx context.Context, name string, data []byte) {
	file := &SelectedFile{
		Name:        name,
		Data:        data,
		ContentType: preview.DetectContentType(data),
	}
	uri, err := w.previews.Create(ctx, data)
	if err != nil {
		w.logger.Error("failed to allocate preview", zap.Error(err), zap.String("file_name", name))
	}
	file.PreviewURI = uri

	w.mu.Lock()
	previous := w.file
	w.file = file
	w.setStateLocked(Idle{})
	w.mu.Unlock()

	if previous != nil {
		w.previews.Revoke(ctx, previous.PreviewURI)
	}
}

// RemoveFile drops the held file and its preview. The view state and any
// request in flight are left alone.
func (w *Workflow) RemoveFile(ctx context.Context) {
	w.mu.Lock()
	previous := w.file
	w.file = nil
	if previous != nil {
		w.notifyLocked()
	}
	w.mu.Unlock()

	if previous != nil {
		w.previews.Revoke(ctx, previous.PreviewURI)
	}
}

// Submit sends the held file to the prediction service and returns the
// state this submission produced. The returned state may already have
// been superseded by a concurrent call.
func (w *Workflow) Submit(ctx context.Context) State {
	w.mu.Lock()
	if w.file == nil {
		state := Failed{Message: NoFileMessage}
		w.setStateLocked(state)
		w.mu.Unlock()
		return state
	}
	req := classifier.UploadRequest{
		RequestID: w.newRequestID(),
		FileName:  w.file.Name,
		Data:      w.file.Data,
	}
	w.setStateLocked(Loading{RequestID: req.RequestID})
	w.mu.Unlock()

	opLogger := logging.WithOperation(w.logger, "workflow.submit", req.RequestID)
	opLogger.Info("submitting image", zap.String("file_name", req.FileName), zap.Int("bytes", len(req.Data)))

	var state State
	result, err := w.client.Predict(ctx, req)
	if err != nil || result == nil {
		opLogger.Warn("prediction failed", zap.Error(err))
		state = Failed{Message: RequestFailedMessage}
	} else {
		state = Done{Result: *result}
	}

	w.mu.Lock()
	w.setStateLocked(state)
	w.mu.Unlock()
	return state
}

// State returns the current view state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// File returns a copy of the held file, or nil.
func (w *Workflow) File() *SelectedFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	file := *w.file
	return &file
}

// View returns the current snapshot in flattened form.
func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return newView(w.state, w.file)
}

// Subscribe registers fn for state transitions.
func (w *Workflow) Subscribe(fn Listener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Close releases the preview and drops all listeners.
func (w *Workflow) Close(ctx context.Context) {
	w.mu.Lock()
	previous := w.file
	w.file = nil
	w.listeners = nil
	w.mu.Unlock()

	if previous != nil {
		w.previews.Revoke(ctx, previous.PreviewURI)
	}
}

func (w *Workflow) setStateLocked(state State) {
	w.state = state
	w.notifyLocked()
}

func (w *Workflow) notifyLocked() {
	if len(w.listeners) == 0 {
		return
	}
	view := newView(w.state, w.file)
	for _, fn := range w.listeners {
		fn(view)
	}
}
