package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ayusman/handpose/internal/app"
	"github.com/ayusman/handpose/internal/detector"
	"github.com/ayusman/handpose/internal/fixtures"
	"github.com/ayusman/handpose/internal/gateway"
	"github.com/ayusman/handpose/internal/store"
)

// newDetectServer returns a server whose model is mock.
func newDetectServer(t *testing.T, mock *detector.MockModel) *Server {
	t.Helper()
	g := gateway.NewWithModel(gateway.Config{ModelName: "YOLOv8 Hand Pose Detection"}, mock)
	return New(Config{App: app.New(app.Config{Gateway: g})})
}

// newMissingModelServer returns a server whose model artifact does not exist.
func newMissingModelServer(t *testing.T) *Server {
	t.Helper()
	g := gateway.New(gateway.Config{
		ModelPath: filepath.Join(t.TempDir(), "missing.onnx"),
		Loader: func(path string) (detector.Model, error) {
			return detector.NewMockModel(), nil
		},
	})
	return New(Config{App: app.New(app.Config{Gateway: g})})
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) app.Response {
	t.Helper()
	var resp app.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/health", "/api/health"} {
		t.Run(path+" returns 200 with JSON response", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
			}

			contentType := rec.Header().Get("Content-Type")
			if contentType != "application/json" {
				t.Errorf("expected Content-Type application/json, got %s", contentType)
			}

			var response map[string]interface{}
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}

			if response["status"] != "ok" {
				t.Errorf("expected status 'ok', got %v", response["status"])
			}

			if _, exists := response["uptime"]; !exists {
				t.Error("expected 'uptime' field in response")
			}
		})
	}

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_CORS(t *testing.T) {
	s := New(Config{})

	t.Run("answers preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/detect", nil)
		req.Header.Set("Origin", "http://example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Frame-Id")
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("expected any origin, got %q", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, X-Frame-Id" {
			t.Errorf("expected requested headers to be allowed, got %q", got)
		}
	})

	t.Run("sets headers on normal responses", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("expected any origin, got %q", got)
		}
	})
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Hand pose</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	jsContent := "console.log('webcam');"
	if err := os.WriteFile(filepath.Join(tmpDir, "app.js"), []byte(jsContent), 0644); err != nil {
		t.Fatalf("failed to create test JS file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("serves static files from configured directory", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/app.js", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		if rec.Body.String() != jsContent {
			t.Errorf("expected body %q, got %q", jsContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("API routes take precedence", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
			t.Errorf("expected health response, got %q", rec.Body.String())
		}
	})
}

func TestServer_NoStaticDir(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_ModelInfo(t *testing.T) {
	t.Run("reports model metadata", func(t *testing.T) {
		s := newDetectServer(t, detector.NewMockModel())

		req := httptest.NewRequest(http.MethodGet, "/api/model-info", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var info gateway.Info
		if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if info.ModelName != "YOLOv8 Hand Pose Detection" {
			t.Errorf("unexpected model name %q", info.ModelName)
		}
		if info.ConfidenceThreshold != 0.6 {
			t.Errorf("expected threshold 0.6, got %v", info.ConfidenceThreshold)
		}
		if info.Device != "CPU" {
			t.Errorf("expected device CPU, got %q", info.Device)
		}
	})

	t.Run("missing model is unavailable", func(t *testing.T) {
		s := newMissingModelServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/model-info", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !strings.Contains(body["error"], "missing.onnx") {
			t.Errorf("expected error naming the artifact, got %q", body["error"])
		}
	})
}

func TestServer_Detect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV")
	}

	box := detector.Box{X1: 30, Y1: 20, X2: 150, Y2: 200}

	newServer := func(t *testing.T) (*Server, *detector.MockModel) {
		mock := detector.NewMockModel()
		mock.SetResults([]detector.Result{detector.OpenPalmResult(box, 0.9)})
		return newDetectServer(t, mock), mock
	}

	t.Run("multipart upload", func(t *testing.T) {
		s, _ := newServer(t)

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", "frame.jpg")
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		part.Write(fixtures.JPEG(320, 240))
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/detect", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
		}
		resp := decodeResponse(t, rec)
		if !resp.Success || resp.Image == "" || len(resp.Detections) != 1 {
			t.Fatalf("unexpected response %+v", resp)
		}
		if resp.Detections[0].Box != box.Array() {
			t.Errorf("expected box %v, got %v", box.Array(), resp.Detections[0].Box)
		}
	})

	t.Run("JSON frame", func(t *testing.T) {
		s, _ := newServer(t)

		frame, _ := json.Marshal(map[string]interface{}{
			"image":     "data:image/jpeg;base64," + fixtures.Base64JPEG(160, 120),
			"timestamp": 1700000000123,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/detect", bytes.NewReader(frame))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if resp := decodeResponse(t, rec); !resp.Success {
			t.Errorf("expected success, got %+v", resp)
		}
	})

	t.Run("raw body", func(t *testing.T) {
		s, _ := newServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/detect", bytes.NewReader(fixtures.PNG(100, 80)))
		req.Header.Set("Content-Type", "image/png")
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if resp := decodeResponse(t, rec); !resp.Success {
			t.Errorf("expected success, got %+v", resp)
		}
	})

	t.Run("undecodable image is a structured failure", func(t *testing.T) {
		s, mock := newServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/detect", bytes.NewReader(fixtures.Garbage()))
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		resp := decodeResponse(t, rec)
		if resp.Success || resp.Image != "" || resp.Error != app.InvalidImageMessage {
			t.Errorf("unexpected response %+v", resp)
		}
		if resp.Detections == nil || len(resp.Detections) != 0 {
			t.Errorf("expected empty detections, got %v", resp.Detections)
		}
		if mock.Calls() != 0 {
			t.Errorf("expected no inference, got %d calls", mock.Calls())
		}
	})

	t.Run("multipart without file field", func(t *testing.T) {
		s, _ := newServer(t)

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("image", "nope")
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/detect", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
		if resp := decodeResponse(t, rec); resp.Success || resp.Error == "" {
			t.Errorf("expected failure payload, got %+v", resp)
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		s, _ := newServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/detect", strings.NewReader(`{"image":`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("missing model fails the request", func(t *testing.T) {
		s := newMissingModelServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/detect", bytes.NewReader(fixtures.JPEG(64, 64)))
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
		}
		resp := decodeResponse(t, rec)
		if resp.Success || resp.Error == "" || resp.Detections == nil {
			t.Errorf("expected well-formed failure payload, got %+v", resp)
		}
	})

	t.Run("only allows POST", func(t *testing.T) {
		s, _ := newServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/detect", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestServer_History(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()

	rec := &store.Request{
		ID:      "req-1",
		Success: true,
		Width:   640,
		Height:  480,
		Hands:   []store.Hand{{Box: [4]int{1, 2, 3, 4}, Confidence: 0.8, Keypoints: [][2]float64{{1, 2}}}},
	}
	if err := st.Requests().Create(context.Background(), rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	s := New(Config{Store: st})

	t.Run("lists requests", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/history?limit=10", nil)
		w := httptest.NewRecorder()

		s.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var body struct {
			Requests []store.Request `json:"requests"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(body.Requests) != 1 || body.Requests[0].ID != "req-1" || body.Requests[0].HandCount != 1 {
			t.Errorf("unexpected history %+v", body.Requests)
		}
	})

	t.Run("rejects bad limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/history?limit=-1", nil)
		w := httptest.NewRecorder()

		s.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("gets one request with its hands", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/history/req-1", nil)
		w := httptest.NewRecorder()

		s.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var got store.Request
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(got.Hands) != 1 || got.Hands[0].Box != [4]int{1, 2, 3, 4} {
			t.Errorf("unexpected request %+v", got)
		}
	})

	t.Run("unknown request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/history/nope", nil)
		w := httptest.NewRecorder()

		s.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("deletes a request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/history/req-1", nil)
		w := httptest.NewRecorder()

		s.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Fatalf("expected status %d, got %d", http.StatusNoContent, w.Code)
		}
		if _, err := st.Requests().GetByID("req-1"); err == nil {
			t.Error("expected request to be gone")
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("creates server with config", func(t *testing.T) {
		cfg := Config{StaticDir: "/some/path"}
		s := New(cfg)

		if s == nil {
			t.Fatal("expected non-nil server")
		}

		if s.config.StaticDir != cfg.StaticDir {
			t.Errorf("expected StaticDir %s, got %s", cfg.StaticDir, s.config.StaticDir)
		}
	})

	t.Run("server implements http.Handler", func(t *testing.T) {
		s := New(Config{})
		var _ http.Handler = s
	})

	t.Run("detection routes need the pipeline", func(t *testing.T) {
		s := New(Config{})

		req := httptest.NewRequest(http.MethodPost, "/api/detect", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}
