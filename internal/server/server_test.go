package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mistakeknot/nikola/internal/chat"
	"github.com/mistakeknot/nikola/internal/config"
	"github.com/mistakeknot/nikola/internal/llm"
	"github.com/mistakeknot/nikola/internal/memory"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, logger, chat.NewMatcher(), store, llm.NewClient(""))
}

func postJSON(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	for _, path := range []string{"/api/health", "/healthz"} {
		rec := get(t, s, path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		body := decodeBody(t, rec)
		if body["status"] != "ok" || body["engine"] != "Nikola" {
			t.Errorf("%s body = %v", path, body)
		}
		if body["version"] != Version {
			t.Errorf("%s version = %v", path, body["version"])
		}
		if body["time"] == "" {
			t.Errorf("%s missing time", path)
		}
	}
}

func TestChatArithmetic(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/chat", `{"message":"5 + 3"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["engine"] != "Nikola" {
		t.Errorf("engine = %v", body["engine"])
	}
	if reply := body["reply"].(string); !strings.Contains(reply, "8") {
		t.Errorf("reply = %q, want it to contain 8", reply)
	}
}

func TestChatMessagesForm(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/chat", `{"messages":[{"role":"user","content":"2 x 3"}]}`)
	body := decodeBody(t, rec)
	if reply := body["reply"].(string); !strings.Contains(reply, "6") {
		t.Errorf("reply = %q, want it to contain 6", reply)
	}
}

func TestChatEmptyIntents(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/chat", `{"message":""}`)
	body := decodeBody(t, rec)
	intents, ok := body["intents"].([]any)
	if !ok {
		t.Fatalf("intents = %v, want an array", body["intents"])
	}
	if len(intents) != 0 {
		t.Errorf("intents = %v, want empty", intents)
	}
}

func TestChatMissingPayloadSoftError(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/chat", `{}`)
	// Deliberately 200, not 4xx.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if _, ok := body["error"]; !ok {
		t.Errorf("body = %v, want an error field", body)
	}
}

func TestChatLLMNoCredential(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/chat/llm", `{"messages":[{"role":"user","content":"hi"},{"role":"user","content":"there"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 soft failure", rec.Code)
	}
	body := decodeBody(t, rec)
	if reply := body["reply"].(string); !strings.HasPrefix(reply, "[llm-error]") {
		t.Errorf("reply = %q, want the marker prefix", reply)
	}
	if received := body["received"].(float64); received != 2 {
		t.Errorf("received = %v, want 2", received)
	}
}

func TestEVMEndpoint(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/evm", `{"PV":100,"EV":120,"AC":100}`)
	body := decodeBody(t, rec)
	if spi := body["SPI"].(float64); spi != 1.2 {
		t.Errorf("SPI = %v, want 1.2", spi)
	}
	if cpi := body["CPI"].(float64); cpi != 1.2 {
		t.Errorf("CPI = %v, want 1.2", cpi)
	}
	if body["status"] != "On Track" {
		t.Errorf("status = %v", body["status"])
	}
}

func TestEVMZeroPV(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/evm", `{"PV":0,"EV":50}`)
	raw := rec.Body.String()
	if !strings.Contains(raw, `"SPI":null`) {
		t.Errorf("body %q should carry SPI as null", raw)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed["status"] != "Behind" {
		t.Errorf("status = %v, want Behind", parsed["status"])
	}
}

func TestEVMNoAC(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/evm", `{"PV":100,"EV":120}`)
	body := decodeBody(t, rec)
	if _, ok := body["CPI"]; ok {
		t.Error("CPI key must be absent without AC")
	}
}

func TestBoQTotalEndpoint(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/boq/total", `{"items":[{"item":"a","qty":2,"unit_price":10},{"item":"b","qty":3,"unit_price":5}]}`)
	body := decodeBody(t, rec)
	if total := body["total"].(float64); total != 35 {
		t.Errorf("total = %v, want 35", total)
	}
	breakdown := body["breakdown"].([]any)
	if len(breakdown) != 2 {
		t.Fatalf("breakdown = %v", breakdown)
	}
	first := breakdown[0].(map[string]any)
	if first["item"] != "a" || first["cost"].(float64) != 20 {
		t.Errorf("breakdown[0] = %v", first)
	}
}

func multipartUpload(t *testing.T, s *Server, csv string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "boq.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(csv)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/boq/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestBoQUpload(t *testing.T) {
	s := testServer(t)
	rec := multipartUpload(t, s, "Qty,Unit_Price\n2,10\n3,5\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if rows := body["rows"].(float64); rows != 2 {
		t.Errorf("rows = %v, want 2", rows)
	}
	if total := body["total"].(float64); total != 35 {
		t.Errorf("total = %v, want 35", total)
	}
}

func TestBoQUploadMissingColumn(t *testing.T) {
	s := testServer(t)
	rec := multipartUpload(t, s, "item,qty\npipe,2\n")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unit_price") {
		t.Errorf("body %q should name unit_price", rec.Body.String())
	}
}

func TestBoQUploadParseError(t *testing.T) {
	s := testServer(t)
	rec := multipartUpload(t, s, "qty,unit_price\n2,ten\n")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAgentPlanEndpoint(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/agent/plan", `{"goal":"compute EVM for phase 2"}`)
	body := decodeBody(t, rec)
	if body["goal"] != "compute EVM for phase 2" {
		t.Errorf("goal = %v", body["goal"])
	}
	steps := body["steps"].([]any)
	if len(steps) != 3 || steps[0] != "parse EVM inputs" {
		t.Errorf("steps = %v", steps)
	}
}

func TestAgentRunEndpoint(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/agent/run", `{"type":"evm","data":{"PV":100,"EV":120,"AC":100,"BAC":1000}}`)
	body := decodeBody(t, rec)
	if body["skill"] != "evm" {
		t.Errorf("skill = %v", body["skill"])
	}
	result := body["result"].(map[string]any)
	if cpi := result["CPI"].(float64); cpi != 1.2 {
		t.Errorf("CPI = %v", cpi)
	}
	eac := result["EAC"].(float64)
	if eac < 833.33 || eac > 833.34 {
		t.Errorf("EAC = %v, want about 833.33", eac)
	}
}

func TestAgentRunUnknownTask(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/agent/run", `{"type":"forecast","data":{}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "unknown_task" {
		t.Errorf("error = %v, want unknown_task", body["error"])
	}
	hint := body["hint"].(string)
	for _, typ := range []string{"evm", "boq", "chat"} {
		if !strings.Contains(hint, typ) {
			t.Errorf("hint %q should list %q", hint, typ)
		}
	}
}

func TestMemoryPutGet(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/memory/put", `{"key":"x","value":{"a":1}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body %s", rec.Code, rec.Body.String())
	}
	putBody := decodeBody(t, rec)
	if putBody["ok"] != true || putBody["key"] != "x" {
		t.Errorf("put body = %v", putBody)
	}
	if putBody["updated_at"] == "" {
		t.Error("put body missing updated_at")
	}

	rec = get(t, s, "/api/memory/get?key=x")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	getBody := decodeBody(t, rec)
	value := getBody["value"].(map[string]any)
	if value["a"].(float64) != 1 {
		t.Errorf("value = %v, want {a:1}", value)
	}
}

func TestMemoryGetNotFound(t *testing.T) {
	s := testServer(t)
	rec := get(t, s, "/api/memory/get?key=missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "not_found" || body["key"] != "missing" {
		t.Errorf("body = %v", body)
	}
}

func TestMemoryPutRequiresKey(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/api/memory/put", `{"value":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCORSAllowedOrigin(t *testing.T) {
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	cfg := config.Default()
	cfg.AllowedOrigins = []string{"https://allowed.example"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(cfg, logger, chat.NewMatcher(), store, llm.NewClient(""))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://allowed.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://allowed.example" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://other.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want unset for disallowed origin", got)
	}
}

func TestIndexServed(t *testing.T) {
	s := testServer(t)
	rec := get(t, s, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestFaviconFallsBackToIndex(t *testing.T) {
	s := testServer(t)
	rec := get(t, s, "/favicon.ico")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
