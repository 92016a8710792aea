package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rafagois03/EmbarquesTMSLincros/constants"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/async"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/common"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/journal"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/workflow"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeHistory struct {
	runs    []journal.Run
	err     error
	pingErr error
}

func (f fakeHistory) ListRuns(context.Context, int) ([]journal.Run, error) {
	return f.runs, f.err
}

func (f fakeHistory) Ping(context.Context) error { return f.pingErr }

func newTestServer(t *testing.T, runner async.RunnerFunc, history History, opts ...func(*Config)) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	q := async.NewRunQueue(runner, quiet)
	t.Cleanup(func() { q.Shutdown(context.Background()) })
	cfg := Config{MaxUploadBytes: 1 << 20, WorkDir: dir}
	for _, o := range opts {
		o(&cfg)
	}
	s, err := New(cfg, q, history, quiet)
	require.NoError(t, err)
	return s, dir
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func upload(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	body, contentType := multipartBody(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/runs", body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func trackedRuns(s *Server) []*uploadRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*uploadRun
	for _, r := range s.runs {
		out = append(out, r)
	}
	return out
}

func doneRunner(ctx context.Context, path string) (*workflow.Report, error) {
	return &workflow.Report{
		RunID:     uuid.New(),
		Source:    path,
		Phase:     constants.PhaseDone,
		Total:     3,
		Submitted: 3,
		Resolved:  2,
		Unresolved: []*common.ResolutionError{
			{Row: 3, Protocol: 222, Cause: errors.New("status 500")},
		},
	}, nil
}

func TestIndexAndHealth(t *testing.T) {
	s, _ := newTestServer(t, doneRunner, nil)
	h := s.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="file"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","journal":"disabled"}`, rec.Body.String())
}

func TestHealth_ReportsJournal(t *testing.T) {
	tests := []struct {
		name    string
		history fakeHistory
		want    string
	}{
		{"reachable", fakeHistory{}, `{"status":"ok","journal":"ok"}`},
		{"down", fakeHistory{pingErr: errors.New("connection refused")}, `{"status":"ok","journal":"unavailable"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, doneRunner, tt.history)
			rec := httptest.NewRecorder()
			s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestCreateRun_SuccessAndDownload(t *testing.T) {
	var ranOn string
	s, dir := newTestServer(t, func(ctx context.Context, path string) (*workflow.Report, error) {
		ranOn = path
		return doneRunner(ctx, path)
	}, nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	body, contentType := multipartBody(t, "Devolucoes.xlsx", []byte("workbook-bytes"))
	resp, err := http.Post(srv.URL+"/runs", contentType, body)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	page := string(raw)
	assert.Contains(t, page, "Processo completo")
	assert.Contains(t, page, "Pendentes (1)")
	assert.Contains(t, page, "222")
	assert.Contains(t, page, "status 500")
	assert.Contains(t, ranOn, dir)

	runs := trackedRuns(s)
	require.Len(t, runs, 1)

	resp, got := get(t, srv.URL+"/runs/"+runs[0].ID.String()+"/download")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "workbook-bytes", got)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Devolucoes_processado.xlsx")
}

func TestCreateRun_ClientGoneKeepsRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s, _ := newTestServer(t, func(ctx context.Context, path string) (*workflow.Report, error) {
		close(started)
		<-release
		assert.NoError(t, os.WriteFile(path, []byte("with-protocols"), 0o600))
		return doneRunner(ctx, path)
	}, nil)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := upload(t, "Devolucoes.xlsx", []byte("original")).WithContext(ctx)
	handled := make(chan struct{})
	go func() {
		defer close(handled)
		s.Routes().ServeHTTP(httptest.NewRecorder(), req)
	}()

	<-started
	cancel()
	<-handled

	runs := trackedRuns(s)
	require.Len(t, runs, 1)
	download := srv.URL + "/runs/" + runs[0].ID.String() + "/download"

	resp, _ := get(t, download)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(release)
	require.Eventually(t, runs[0].finished, 2*time.Second, 10*time.Millisecond)

	resp, got := get(t, download)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "with-protocols", got)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Devolucoes_processado.xlsx")
}

func TestCreateRun_EvictsOldRuns(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(*Config)
	}{
		{"over max runs", func(c *Config) { c.MaxRuns = 1 }},
		{"past ttl", func(c *Config) { c.RunTTL = time.Nanosecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dir := newTestServer(t, doneRunner, nil, tt.cfg)
			h := s.Routes()

			for i := 0; i < 2; i++ {
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, upload(t, "x.xlsx", []byte("x")))
				require.Equal(t, http.StatusOK, rec.Code)
			}

			runs := trackedRuns(s)
			require.Len(t, runs, 1)
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, filepath.Base(runs[0].Path), entries[0].Name())
		})
	}
}

func TestCreateRun_FailureShownInPage(t *testing.T) {
	s, _ := newTestServer(t, func(_ context.Context, path string) (*workflow.Report, error) {
		err := &common.SubmissionError{Expected: 3, Got: 1}
		return &workflow.Report{Source: path, Phase: constants.PhaseAbort, Err: err}, err
	}, nil)

	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, upload(t, "x.xlsx", []byte("x")))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Execução interrompida")
	assert.Contains(t, rec.Body.String(), "got 1 protocols")
}

func TestCreateRun_RejectsBadUploads(t *testing.T) {
	s, dir := newTestServer(t, doneRunner, nil)
	h := s.Routes()

	tests := []struct {
		name     string
		filename string
		content  []byte
		want     int
	}{
		{"missing file", "", nil, http.StatusBadRequest},
		{"wrong extension", "notes.csv", []byte("a,b"), http.StatusBadRequest},
		{"too large", "big.xlsx", bytes.Repeat([]byte("x"), 2<<20), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, upload(t, tt.filename, tt.content))
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `class="error"`)
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload_UnknownRun(t *testing.T) {
	s, _ := newTestServer(t, doneRunner, nil)
	h := s.Routes()

	for _, path := range []string{"/runs/not-a-uuid/download", "/runs/" + uuid.NewString() + "/download"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestListRuns(t *testing.T) {
	id := uuid.New()
	s, _ := newTestServer(t, doneRunner, fakeHistory{runs: []journal.Run{{ID: id, Source: "a.xlsx", Status: "DONE", StartedAt: time.Unix(0, 0)}}})

	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []journal.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)

	s2, _ := newTestServer(t, doneRunner, fakeHistory{err: errors.New("db down")})
	rec = httptest.NewRecorder()
	s2.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, statusFor(nil))
	assert.Equal(t, http.StatusBadGateway, statusFor(common.NewCredentialError(errors.New("401"))))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(common.NewPersistenceError("open", nil)))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(&common.MalformedRecordError{Row: 2}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.Canceled))
}

func TestProcessedName(t *testing.T) {
	assert.Equal(t, "embarques_processado.xlsx", processedName("embarques.xlsx"))
	assert.Equal(t, "Devolucao_processado.xlsm", processedName("/tmp/Devolucao.xlsm"))
}

func TestHealthServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	hs := NewHealthServer(quiet)
	done := make(chan error, 1)
	go func() { done <- hs.Serve(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer checkCancel()
	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: HealthService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	hs.Draining()
	resp, err = healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: HealthService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	cancel()
	assert.NoError(t, <-done)
}
