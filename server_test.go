package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/datadrive/analysis-backend/internal"
	"github.com/datadrive/analysis-backend/internal/config"
	"github.com/datadrive/analysis-backend/internal/store"
)

type cannedProvider struct {
	response string
}

func (p cannedProvider) Model() string { return "canned" }

func (p cannedProvider) Complete(context.Context, string, string) (string, error) {
	return p.response, nil
}

func testServer(response string) (*server, *store.SessionStore) {
	gin.SetMode(gin.TestMode)
	s := store.NewSessionStore()
	srv := newServer(config.Config{CORSOrigin: "http://localhost:5173"}, s, cannedProvider{response: response}, zap.NewNop())
	return srv, s
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAIAnalysisValidation(t *testing.T) {
	srv, _ := testServer("ignored")
	r := srv.router()

	w := doJSON(t, r, http.MethodPost, "/api/ai-analysis", map[string]any{
		"fileData": map[string]any{"name": "x.csv", "columns": []string{"a"}, "data": []map[string]any{}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing query: status = %d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/ai-analysis", map[string]any{"query": "summarize"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing fileData: status = %d, want 400", w.Code)
	}
}

func TestAIAnalysisSuccess(t *testing.T) {
	srv, _ := testServer("Here: {\"type\":\"insight\",\"title\":\"Overview\"}")
	r := srv.router()

	w := doJSON(t, r, http.MethodPost, "/api/ai-analysis", internal.AnalysisRequest{
		Query: "summarize",
		FileData: &internal.AnalysisFileData{
			Name:    "sales.csv",
			Columns: []string{"region", "revenue"},
			Data: []map[string]any{
				{"region": "EMEA", "revenue": "10"},
				{"region": "APAC", "revenue": "20"},
			},
		},
		Context: []string{"earlier question"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp internal.AnalysisResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Analysis == nil || resp.Analysis.Kind != internal.KindInsight {
		t.Errorf("analysis = %+v, want kind insight", resp.Analysis)
	}
	if resp.Response == "" {
		t.Error("raw response text should be returned")
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", resp.Timestamp, err)
	}
}

func TestUploadAndQueryFlow(t *testing.T) {
	srv, s := testServer("Summary: {\"kind\":\"insight\",\"title\":\"Overview\"}")
	r := srv.router()

	w := doJSON(t, r, http.MethodPost, "/api/files", internal.UploadFileRequest{
		Name: "sales.csv",
		Text: "region,units,revenue\nEMEA,10,120.5\nAPAC,7,88.0\n",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	var up internal.UploadFileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &up); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if up.File.Summary == nil || len(up.File.Summary.NumericColumns) != 2 {
		t.Errorf("summary = %+v, want units and revenue numeric", up.File.Summary)
	}
	if active, ok := s.ActiveFile(); !ok || active.ID != up.File.ID {
		t.Error("first upload should become the active file")
	}

	before := len(s.Messages())
	w = doJSON(t, r, http.MethodPost, "/api/query", internal.QueryRequest{Query: "summarize"})
	if w.Code != http.StatusOK {
		t.Fatalf("query status = %d, body = %s", w.Code, w.Body.String())
	}
	var qr internal.QueryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &qr); err != nil {
		t.Fatalf("decode query response: %v", err)
	}
	if qr.Reply.Analysis == nil || qr.Reply.Analysis.Kind != internal.KindInsight {
		t.Errorf("reply analysis = %+v", qr.Reply.Analysis)
	}
	if len(s.Messages()) != before+2 {
		t.Errorf("appended %d messages, want 2", len(s.Messages())-before)
	}
}

func TestQueryWithoutActiveFile(t *testing.T) {
	srv, _ := testServer("ignored")
	r := srv.router()
	w := doJSON(t, r, http.MethodPost, "/api/query", internal.QueryRequest{Query: "summarize"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRemoveAndActivateFile(t *testing.T) {
	srv, s := testServer("ignored")
	r := srv.router()

	s.AddFile(internal.DataFile{ID: "f1", Name: "a.csv"})
	s.AddFile(internal.DataFile{ID: "f2", Name: "b.csv"})

	w := doJSON(t, r, http.MethodPut, "/api/files/f2/activate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("activate status = %d", w.Code)
	}
	if active, _ := s.ActiveFile(); active.ID != "f2" {
		t.Errorf("active = %s, want f2", active.ID)
	}

	w = doJSON(t, r, http.MethodDelete, "/api/files/f2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}
	if _, ok := s.ActiveFile(); ok {
		t.Error("removing the active file should clear the selection")
	}
}

func TestResetClearsTranscript(t *testing.T) {
	srv, s := testServer("ignored")
	r := srv.router()
	s.AddMessage(internal.Message{Role: internal.RoleUser, Content: "hi"})
	s.PushContext("hi")

	w := doJSON(t, r, http.MethodPost, "/api/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}
	if len(s.Messages()) != 0 || len(s.Context()) != 0 {
		t.Error("reset should clear messages and context")
	}
}

func TestPatchConfig(t *testing.T) {
	srv, s := testServer("ignored")
	r := srv.router()

	horizon := 6
	w := doJSON(t, r, http.MethodPatch, "/api/config", internal.ConfigPatch{ForecastHorizon: &horizon})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d", w.Code)
	}
	if got := s.Config().ForecastHorizon; got != 6 {
		t.Errorf("forecast horizon = %d, want 6", got)
	}
	if got := s.Config().ConfidenceLevel; got != internal.DefaultConfig().ConfidenceLevel {
		t.Errorf("untouched field changed: %d", got)
	}
}

func TestUploadRejectsEmpty(t *testing.T) {
	srv, _ := testServer("ignored")
	r := srv.router()

	w := doJSON(t, r, http.MethodPost, "/api/files", internal.UploadFileRequest{Name: "empty.csv"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
