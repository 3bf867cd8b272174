package predictclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/example/leafcheck/internal/classifier"
	"github.com/example/leafcheck/internal/logging"
)

func TestPredictSendsSingleFilePart(t *testing.T) {
	var gotName string
	var gotData []byte
	var gotParts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			return
		}
		for _, files := range r.MultipartForm.File {
			gotParts += len(files)
		}
		file, header, err := r.FormFile(classifier.FieldName)
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}
		defer file.Close()
		gotName = header.Filename
		gotData, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predicted_class":"Healthy","prediction_accuracy":0.92}`))
	}))
	defer server.Close()

	client := New(server.URL, server.Client(), zap.NewNop())
	result, err := client.Predict(context.Background(), classifier.UploadRequest{
		RequestID: "req-1",
		FileName:  "leaf.png",
		Data:      []byte("image-bytes"),
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.Label != "Healthy" {
		t.Fatalf("expected label Healthy, got %q", result.Label)
	}
	if result.Accuracy != "92%" {
		t.Fatalf("expected accuracy 92%%, got %q", result.Accuracy)
	}
	if gotParts != 1 || gotName != "leaf.png" || string(gotData) != "image-bytes" {
		t.Fatalf("unexpected upload: parts=%d name=%q data=%q", gotParts, gotName, gotData)
	}
}

func TestPredictKeepsLabelVerbatimWithoutAccuracy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predicted_class":"Corn_(maize) : Common rust "}`))
	}))
	defer server.Close()

	result, err := New(server.URL, server.Client(), zap.NewNop()).Predict(context.Background(), classifier.UploadRequest{Data: []byte("x")})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.Label != "Corn_(maize) : Common rust " {
		t.Fatalf("label was altered: %q", result.Label)
	}
	if result.Accuracy != "" {
		t.Fatalf("expected empty accuracy, got %q", result.Accuracy)
	}
}

func TestPredictAcceptsWhitespaceLabel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predicted_class":" ","prediction_accuracy":0.5}`))
	}))
	defer server.Close()

	result, err := New(server.URL, server.Client(), zap.NewNop()).Predict(context.Background(), classifier.UploadRequest{Data: []byte("x")})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.Label != " " || result.Accuracy != "50%" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestPredictFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		wantOp string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`, wantOp: "predictclient.decode_response"},
		{name: "bad request without body", status: http.StatusBadRequest, body: ``, wantOp: "predictclient.decode_response"},
		{name: "malformed json", status: http.StatusOK, body: `{"predicted_class":`, wantOp: "predictclient.decode_response"},
		{name: "missing label", status: http.StatusOK, body: `{"prediction_accuracy":0.5}`, wantOp: "predictclient.decode_response"},
		{name: "empty label", status: http.StatusOK, body: `{"predicted_class":""}`, wantOp: "predictclient.decode_response"},
		{name: "error on success status", status: http.StatusOK, body: `{"error":"not a plant"}`, wantOp: "predictclient.decode_response"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := New(server.URL, server.Client(), zap.NewNop()).Predict(context.Background(), classifier.UploadRequest{Data: []byte("x")})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var opErr *logging.OperationError
			if !errors.As(err, &opErr) {
				t.Fatalf("expected OperationError, got %T", err)
			}
			if opErr.Operation != tc.wantOp {
				t.Fatalf("expected operation %s, got %s", tc.wantOp, opErr.Operation)
			}
		})
	}
}

func TestPredictNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := New(url, nil, zap.NewNop()).Predict(context.Background(), classifier.UploadRequest{Data: []byte("x")})
	if got := logging.OperationOf(err); got != "predictclient.post" {
		t.Fatalf("expected predictclient.post, got %q (%v)", got, err)
	}
}

func TestNewDefaultsURL(t *testing.T) {
	if got := New("", nil, zap.NewNop()).URL(); got != DefaultURL {
		t.Fatalf("expected %s, got %s", DefaultURL, got)
	}
}

func TestFormatAccuracy(t *testing.T) {
	cases := map[float64]string{0.92: "92%", 1: "100%", 0: "0%", 0.555: "56%"}
	for in, want := range cases {
		if got := FormatAccuracy(in); got != want {
			t.Fatalf("FormatAccuracy(%v) = %q, want %q", in, got, want)
		}
	}
}
