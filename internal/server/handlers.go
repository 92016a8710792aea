package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/rafagois03/EmbarquesTMSLincros/constants"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/async"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/common"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	errMissingFile   = errors.New("selecione uma planilha")
	errBadExtension  = errors.New("formato não suportado; envie uma planilha .xlsx ou .xlsm")
	errUploadTooBig  = errors.New("arquivo excede o tamanho máximo permitido")
	errUnknownRun    = errors.New("execução não encontrada")
	errNoRunWorkbook = errors.New("planilha da execução não está mais disponível")
	errRunPending    = errors.New("execução ainda em andamento; tente novamente em instantes")
)

type pageData struct {
	Error      string
	Run        *uploadRun
	Unresolved []unresolvedRow
	Malformed  []string
	MaxUpload  int64
}

type unresolvedRow struct {
	Row      int
	Protocol int64
	Reason   string
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "index.html", pageData{MaxUpload: s.cfg.MaxUploadBytes >> 20})
}

// healthHandler stays 200 when the journal is down: runs go on without it.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok", "journal": "disabled"}
	if s.history != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.history.Ping(ctx); err != nil {
			s.logger.Warn("server.health.journal_down", "req_id", middleware.GetReqID(r.Context()), "error", err)
			body["journal"] = "unavailable"
		} else {
			body["journal"] = "ok"
		}
	}
	s.writeJSON(w, r, http.StatusOK, body)
}

func (s *Server) createRunHandler(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.renderError(w, r, http.StatusRequestEntityTooLarge, errUploadTooBig)
			return
		}
		s.renderError(w, r, http.StatusBadRequest, errMissingFile)
		return
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	if !constants.IsAllowedExt(ext) {
		s.renderError(w, r, http.StatusBadRequest, errBadExtension)
		return
	}

	id := uuid.New()
	dst := filepath.Join(s.cfg.WorkDir, id.String()+"."+constants.NormalizeExt(ext))
	if err := saveUpload(file, dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.renderError(w, r, http.StatusRequestEntityTooLarge, errUploadTooBig)
			return
		}
		s.logger.Error("server.upload.failed", "req_id", reqID, "error", err)
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("server.upload.ok", "req_id", reqID, "run_id", id, "filename", header.Filename, "bytes", header.Size)

	results, err := s.queue.Enqueue(r.Context(), async.Job{
		ID:          id,
		InputPath:   dst,
		SubmittedAt: time.Now(),
		RequestID:   reqID,
	})
	if err != nil {
		_ = os.Remove(dst)
		s.renderError(w, r, http.StatusServiceUnavailable, err)
		return
	}

	run := &uploadRun{
		ID:       id,
		Filename: header.Filename,
		Path:     dst,
		ReqID:    reqID,
		done:     make(chan struct{}),
	}
	s.track(run)
	go s.collect(run, results)

	select {
	case <-run.done:
	case <-r.Context().Done():
		// the run goes on; its workbook stays downloadable under /runs/{run_id}/download
		s.logger.Warn("server.run.client_gone", "req_id", reqID, "run_id", id)
		return
	}

	data := pageData{Run: run}
	if run.Err != nil {
		data.Error = run.Err.Error()
	}
	if run.Report != nil {
		for _, u := range run.Report.Unresolved {
			data.Unresolved = append(data.Unresolved, unresolvedRow{Row: u.Row, Protocol: u.Protocol, Reason: u.Cause.Error()})
		}
		for _, m := range run.Report.Malformed {
			data.Malformed = append(data.Malformed, m.Error())
		}
	}
	s.render(w, r, statusFor(run.Err), "result.html", data)
}

// statusFor maps a run failure to the page status. Remote failures are a bad gateway;
// a workbook the run could not use is unprocessable.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, common.ErrCredential), errors.Is(err, common.ErrSubmission):
		return http.StatusBadGateway
	case errors.Is(err, common.ErrMalformedRecord), errors.Is(err, common.ErrPersistence):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		s.renderError(w, r, http.StatusNotFound, errUnknownRun)
		return
	}
	run, ok := s.lookup(id)
	if !ok {
		s.renderError(w, r, http.StatusNotFound, errUnknownRun)
		return
	}
	if !run.finished() {
		s.renderError(w, r, http.StatusConflict, errRunPending)
		return
	}

	f, err := os.Open(run.Path)
	if err != nil {
		s.renderError(w, r, http.StatusGone, errNoRunWorkbook)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", processedName(run.Filename)))
	http.ServeContent(w, r, "", info.ModTime(), f)
}

func (s *Server) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, r, http.StatusOK, []any{})
		return
	}
	runs, err := s.history.ListRuns(r.Context(), 50)
	if err != nil {
		s.logger.Error("server.history.failed", "req_id", middleware.GetReqID(r.Context()), "error", err)
		s.writeJSON(w, r, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}
	s.writeJSON(w, r, http.StatusOK, runs)
}

func processedName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." {
		base = "embarques"
	}
	return base + "_processado" + filepath.Ext(name)
}

func saveUpload(src io.Reader, dst string) error {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.render(w, r, status, "index.html", pageData{Error: err.Error(), MaxUpload: s.cfg.MaxUploadBytes >> 20})
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("server.render.failed", "req_id", middleware.GetReqID(r.Context()), "template", name, "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("server.json.failed", "req_id", middleware.GetReqID(r.Context()), "error", err)
	}
}
