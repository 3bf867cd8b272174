package workflow

import "github.com/example/leafcheck/internal/classifier"

// Kind names a State variant on the wire and in templates.
type Kind string

const (
	KindIdle    Kind = "idle"
	KindLoading Kind = "loading"
	KindError   Kind = "error"
	KindResult  Kind = "result"
)

const (
	// NoFileMessage is shown when Submit runs without a selected file.
	NoFileMessage = "Please upload a file first."
	// RequestFailedMessage is shown for every failed prediction call.
	RequestFailedMessage = "An error occurred while making the prediction."
)

// State is the view state of a workflow. It is implemented only by Idle,
// Loading, Failed and Done.
type State interface {
	Kind() Kind
	isState()
}

// Idle means nothing is in flight and there is nothing to report.
type Idle struct{}

// Loading means a prediction request is outstanding.
type Loading struct {
	RequestID string
}

// Failed carries a user-facing error message.
type Failed struct {
	Message string
}

// Done carries the latest prediction.
type Done struct {
	Result classifier.Result
}

func (Idle) Kind() Kind    { return KindIdle }
func (Loading) Kind() Kind { return KindLoading }
func (Failed) Kind() Kind  { return KindError }
func (Done) Kind() Kind    { return KindResult }

func (Idle) isState()    {}
func (Loading) isState() {}
func (Failed) isState()  {}
func (Done) isState()    {}

// View is the flattened form of a workflow snapshot used by JSON
// responses, websocket messages and templates.
type View struct {
	State      Kind   `json:"state"`
	Message    string `json:"message,omitempty"`
	Label      string `json:"label,omitempty"`
	Accuracy   string `json:"accuracy,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	PreviewURI string `json:"preview_uri,omitempty"`
}

func newView(state State, file *SelectedFile) View {
	view := View{State: state.Kind()}
	switch s := state.(type) {
	case Failed:
		view.Message = s.Message
	case Done:
		view.Label = s.Result.Label
		view.Accuracy = s.Result.Accuracy
	}
	if file != nil {
		view.FileName = file.Name
		view.PreviewURI = file.PreviewURI
	}
	return view
}
