package predictclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/example/leafcheck/internal/classifier"
	"github.com/example/leafcheck/internal/logging"
)

// DefaultURL is the prediction endpoint used when none is configured.
const DefaultURL = "http://127.0.0.1:5000/predict"

const maxResponseBytes = 1 << 20

var errMalformedResponse = errors.New("malformed prediction response")

// HTTPClient posts images to the prediction service as multipart forms.
type HTTPClient struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

// New returns a client for url. A nil httpClient means http.DefaultClient,
// which applies no timeout.
func New(url string, httpClient *http.Client, logger *zap.Logger) *HTTPClient {
	if url == "" {
		url = DefaultURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{url: url, http: httpClient, logger: logger.Named("predictclient")}
}

// URL reports the endpoint this client posts to.
func (c *HTTPClient) URL() string {
	return c.url
}

type predictResponse struct {
	PredictedClass     *string  `json:"predicted_class"`
	PredictionAccuracy *float64 `json:"prediction_accuracy"`
	Error              string   `json:"error"`
}

// Predict performs a single POST. Every failure is returned as a
// *logging.OperationError; callers are not expected to tell them apart.
func (c *HTTPClient) Predict(ctx context.Context, req classifier.UploadRequest) (*classifier.Result, error) {
	opLogger := logging.WithOperation(c.logger, "predictclient.predict", req.RequestID)

	body, contentType, err := encodeUpload(req)
	if err != nil {
		wrapped := logging.NewOperationError("predictclient.encode", req.RequestID, err)
		opLogger.Error("failed to build upload body", zap.Error(wrapped))
		return nil, wrapped
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		wrapped := logging.NewOperationError("predictclient.new_request", req.RequestID, err)
		opLogger.Error("failed to build request", zap.Error(wrapped))
		return nil, wrapped
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		wrapped := logging.NewOperationError("predictclient.post", req.RequestID, err)
		opLogger.Error("prediction request failed", zap.Error(wrapped), zap.String("url", c.url))
		return nil, wrapped
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		wrapped := logging.NewOperationError("predictclient.read_response", req.RequestID, err)
		opLogger.Error("failed to read prediction response", zap.Error(wrapped))
		return nil, wrapped
	}

	result, err := decodeResponse(resp.StatusCode, raw)
	if err != nil {
		wrapped := logging.NewOperationError("predictclient.decode_response", req.RequestID, err)
		opLogger.Error("prediction service returned an unusable response",
			zap.Error(wrapped), zap.Int("status", resp.StatusCode))
		return nil, wrapped
	}

	opLogger.Info("prediction received", zap.String("label", result.Label))
	return result, nil
}

func encodeUpload(req classifier.UploadRequest) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	name := req.FileName
	if name == "" {
		name = "upload"
	}
	part, err := writer.CreateFormFile(classifier.FieldName, name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func decodeResponse(status int, raw []byte) (*classifier.Result, error) {
	var payload predictResponse
	decodeErr := json.Unmarshal(raw, &payload)

	if status < 200 || status > 299 {
		if decodeErr == nil && payload.Error != "" {
			return nil, fmt.Errorf("status %d: %s", status, payload.Error)
		}
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedResponse, decodeErr)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("service error: %s", payload.Error)
	}
	if payload.PredictedClass == nil || *payload.PredictedClass == "" {
		return nil, fmt.Errorf("%w: predicted_class missing", errMalformedResponse)
	}

	result := &classifier.Result{Label: *payload.PredictedClass}
	if payload.PredictionAccuracy != nil {
		result.Accuracy = FormatAccuracy(*payload.PredictionAccuracy)
	}
	return result, nil
}

// FormatAccuracy renders a 0..1 probability as a whole percentage.
func FormatAccuracy(p float64) string {
	return strconv.FormatFloat(p*100, 'f', 0, 64) + "%"
}
