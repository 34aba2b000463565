package web

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/bookkeeper/internal/core"
	"github.com/JonMunkholm/bookkeeper/internal/importer"
	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/reconcile"
	"github.com/JonMunkholm/bookkeeper/internal/snapshot"
)

const (
	// multipartOverhead is allowed on top of the file size for form framing.
	multipartOverhead = 1 << 20
	// multipartMemory is kept in memory while parsing a form; the rest
	// spills to temporary files.
	multipartMemory = 32 << 20
)

// ImportResponse is returned by POST /api/import.
type ImportResponse struct {
	*importer.Result
	Summary string `json:"summary"`
}

// RestoreResponse is returned by the restore endpoints.
type RestoreResponse struct {
	Backup string         `json:"backup,omitempty"`
	Stats  snapshot.Stats `json:"stats"`
}

// BalanceResponse is returned by GET /api/accounts/{name}/balance.
type BalanceResponse struct {
	Account   string `json:"account"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
	Formatted string `json:"formatted"`
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleImport books an uploaded statement. The file is taken from the
// "file" part of a multipart form or from the raw request body, in which
// case the ?file= query parameter names it.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	file, name, err := s.uploadedFile(w, r, "statement.csv")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Import(ctx, name, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, ImportResponse{Result: res, Summary: res.Summary(s.service.Currency())})
}

// handleSnapshot streams the committed ledger as a snapshot document.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.Export(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="ledger.json"`)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := snapshot.Encode(w, doc); err != nil {
		// Headers are sent; all we can do is log.
		s.logEncodeError(r, err)
	}
}

// handleRestore replaces the ledger with an uploaded snapshot document.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.readSnapshot(w, r)
	if !ok {
		return
	}
	stats, err := s.service.Restore(WithRequestMetadata(r.Context(), r), doc)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, RestoreResponse{Stats: stats})
}

// handleRestoreLatest restores the newest backup.
func (s *Server) handleRestoreLatest(w http.ResponseWriter, r *http.Request) {
	name, stats, err := s.service.RestoreLatest(WithRequestMetadata(r.Context(), r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, RestoreResponse{Backup: name, Stats: stats})
}

// handleBackup writes a backup synchronously.
func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	name, err := s.service.Backup(r.Context(), "manual")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]string{"backup": name})
}

// handleReconcile merges an uploaded remote snapshot into the ledger with
// the strategy named by ?strategy= (default merge).
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("strategy")
	if name == "" {
		name = string(reconcile.Merge)
	}
	strategy, err := reconcile.ParseStrategy(name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	doc, ok := s.readSnapshot(w, r)
	if !ok {
		return
	}
	res, err := s.service.Reconcile(WithRequestMetadata(r.Context(), r), doc, strategy)
	if err != nil {
		status := statusFor(err)
		msg := core.MapError(err)
		s.logRequestError(r, err, status, msg.Code)
		writeJSONStatus(w, status, res)
		return
	}
	writeJSON(w, res)
}

// handleBalance returns the balance of one account.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "name")
	bal, err := s.service.Balance(r.Context(), account)
	if err != nil {
		if ledger.IsReference(err) {
			s.respondErrorStatus(w, r, err, http.StatusNotFound)
			return
		}
		s.respondError(w, r, err)
		return
	}
	cur := s.service.Currency()
	writeJSON(w, BalanceResponse{
		Account:   account,
		Balance:   bal.StringFixed(2),
		Currency:  cur,
		Formatted: ledger.FormatMoney(bal, cur),
	})
}

// handleStatus reports the service state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.Status())
}

// uploadedFile returns the request's file and its name.
func (s *Server) uploadedFile(w http.ResponseWriter, r *http.Request, defaultName string) (io.ReadCloser, string, error) {
	maxSize := s.cfg.Import.MaxFileSize

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, "", fmt.Errorf("parse upload form: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", errNoFile
		}
		return file, header.Filename, nil
	}

	if r.Body == nil || r.ContentLength == 0 {
		return nil, "", errNoFile
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	name := r.URL.Query().Get("file")
	if name == "" {
		name = defaultName
	}
	return r.Body, name, nil
}

// readSnapshot decodes the snapshot document in the request. It writes the
// error response itself and reports whether decoding succeeded.
func (s *Server) readSnapshot(w http.ResponseWriter, r *http.Request) (*snapshot.Document, bool) {
	file, _, err := s.uploadedFile(w, r, "ledger.json")
	if err != nil {
		s.respondError(w, r, err)
		return nil, false
	}
	defer file.Close()

	doc, err := snapshot.Decode(file)
	if err != nil {
		s.respondError(w, r, err)
		return nil, false
	}
	return doc, true
}
