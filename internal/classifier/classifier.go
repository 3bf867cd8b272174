package classifier

import "context"

// FieldName is the multipart field the prediction service reads the image from.
const FieldName = "file"

// Result is the classification returned for one submitted image.
type Result struct {
	Label    string
	Accuracy string
}

// UploadRequest carries one selected file to a prediction backend. It is
// built at submit time and discarded once the call returns.
type UploadRequest struct {
	RequestID string
	FileName  string
	Data      []byte
}

// Client exposes the prediction call used by the upload workflow.
type Client interface {
	Predict(ctx context.Context, req UploadRequest) (*Result, error)
}
