// cmd/pipeline-manager/api.go
package main

import (
	"encoding/json"
	"net/http"

	"scholarship-pipeline/internal/checkpoint"
	stderrors "scholarship-pipeline/internal/common/errors"
	"scholarship-pipeline/internal/common/logger"
	"scholarship-pipeline/internal/pipeline"
)

type startRequest struct {
	ScholarshipRef string `json:"scholarshipRef"`
	ResumeRef      string `json:"resumeRef"`
	SessionID      string `json:"sessionId"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// registerAPI exposes the orchestrator over a small JSON API: start a
// workflow, answer interview questions, resume after suspension, inspect
// state.
func registerAPI(mux *http.ServeMux, orch *pipeline.Orchestrator, checkpoints checkpoint.Store, log logger.Logger) {
	apiLog := log.WithFields(map[string]interface{}{"component": "api"})

	mux.HandleFunc("POST /workflows", func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		state, err := orch.Start(r.Context(), req.ScholarshipRef, req.ResumeRef, req.SessionID)
		if err != nil {
			apiLog.Error("start workflow failed", map[string]interface{}{"error": err.Error()})
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, state)
	})

	mux.HandleFunc("POST /workflows/{id}/answers", func(w http.ResponseWriter, r *http.Request) {
		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := orch.SubmitInterviewAnswer(r.Context(), r.PathValue("id"), req.Answer)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("POST /workflows/{id}/resume", func(w http.ResponseWriter, r *http.Request) {
		var input pipeline.ExternalInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		state, err := orch.Resume(r.Context(), r.PathValue("id"), input)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, state)
	})

	mux.HandleFunc("GET /workflows/{id}", func(w http.ResponseWriter, r *http.Request) {
		blob, err := checkpoints.Load(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		state, err := pipeline.UnmarshalState(blob)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, state)
	})
}

func statusFor(err error) int {
	if err == checkpoint.ErrNotFound {
		return http.StatusNotFound
	}
	if se, ok := err.(*stderrors.StandardError); ok {
		switch se.Code {
		case stderrors.ErrCodeWorkflowNotFound:
			return http.StatusNotFound
		case stderrors.ErrCodeResumeMismatch:
			return http.StatusConflict
		}
		// Halting failures are plain 500s; transient infrastructure errors
		// invite a retry.
		if !stderrors.IsStageFailure(se.Code) && se.Retryable {
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
