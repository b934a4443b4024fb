package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mufat/mufat/pkg/report"
	"github.com/sirupsen/logrus"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// dbParam returns the validated db path parameter, writing a 400 when it
// does not name a table.
func dbParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	db := chi.URLParam(r, "db")
	if _, err := report.TableName(db); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return "", false
	}

	return db, true
}

// handleDays lists the batch keys of a database, newest first.
func (s *server) handleDays(w http.ResponseWriter, r *http.Request) {
	db, ok := dbParam(w, r)
	if !ok {
		return
	}

	days, err := s.store.Days(r.Context(), db)
	if err != nil {
		s.log.WithError(err).Error("Failed to list days")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing days failed"})

		return
	}

	if days == nil {
		days = []string{}
	}

	writeJSON(w, http.StatusOK, days)
}

// handleMachines maps every machine of a database to its batch keys.
func (s *server) handleMachines(w http.ResponseWriter, r *http.Request) {
	db, ok := dbParam(w, r)
	if !ok {
		return
	}

	machines, err := s.store.MachineDays(r.Context(), db)
	if err != nil {
		s.log.WithError(err).Error("Failed to list machines")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing machines failed"})

		return
	}

	writeJSON(w, http.StatusOK, machines)
}

// handleReports returns the reports of one batch, optionally limited to the
// machine named by the "machine" query parameter.
func (s *server) handleReports(w http.ResponseWriter, r *http.Request) {
	db, ok := dbParam(w, r)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	machine := r.URL.Query().Get("machine")

	reports, err := s.store.Load(r.Context(), db, key, machine)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Error("Failed to load reports")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"loading reports failed"})

		return
	}

	if len(reports) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{"no reports for key"})

		return
	}

	writeJSON(w, http.StatusOK, reports)
}

type submittedResult struct {
	SVNRev int `json:"svn_rev"`
}

// handleSubmit merges one run result into the machine's report for the
// batch.
func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	db, ok := dbParam(w, r)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	host := chi.URLParam(r, "host")

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid form body"})

		return
	}

	suite := r.PostForm.Get("suite")
	run := r.PostForm.Get("runname")
	results := r.PostForm.Get("results")

	if suite == "" || run == "" || results == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"suite, runname and results are required"})

		return
	}

	var meta submittedResult
	if err := json.Unmarshal([]byte(results), &meta); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"results must be a json object"})

		return
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	rep := &report.Report{DB: db, Key: key, Name: host, SvnRev: meta.SVNRev, Report: report.Payload{}}

	existing, err := s.store.Load(r.Context(), db, key, host)
	if err != nil {
		s.log.WithError(err).Error("Failed to load report for submission")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"loading report failed"})

		return
	}

	if len(existing) > 0 && existing[0].Report != nil {
		rep.Report = existing[0].Report
	}

	rep.Report.Add(suite, run, json.RawMessage(results))

	if err := s.store.Save(r.Context(), rep); err != nil {
		if errors.Is(err, report.ErrInvalidReport) {
			writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

			return
		}

		s.log.WithError(err).Error("Failed to save report")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"saving report failed"})

		return
	}

	s.log.WithFields(logrus.Fields{
		"db":    db,
		"key":   key,
		"host":  host,
		"suite": suite,
		"run":   run,
	}).Info("Result submitted")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
