package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"photovault-import/internal/domain"
	"photovault-import/internal/usecase"
)

// SignatureHeader carries the HMAC signature of the webhook body.
const SignatureHeader = "X-Webhook-Signature"

// Webhook bodies are small JSON documents; anything bigger is abuse.
const maxWebhookBody = 1 << 20

type startRequest struct {
	OwnerID string `json:"owner_id"`
	Files   []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		SizeBytes int64  `json:"size_bytes"`
	} `json:"files"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	workload := usecase.Workload{}
	for _, f := range req.Files {
		workload.Files = append(workload.Files, usecase.DriveFile{ID: f.ID, Name: f.Name, SizeBytes: f.SizeBytes})
	}

	result, err := s.importUC.Start(ctx, req.OwnerID, workload)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrNoLinkedAccount), errors.Is(err, domain.ErrNotConfigured):
			http.Error(w, err.Error(), http.StatusPreconditionFailed)
		default:
			s.log.Error().Err(err).Str("owner_id", req.OwnerID).Msg("start import failed")
			http.Error(w, "Failed to start import", http.StatusBadGateway)
		}
		return
	}

	response := struct {
		JobID     string `json:"job_id"`
		MachineID string `json:"machine_id"`
		VolumeID  string `json:"volume_id"`
	}{
		JobID:     result.JobID,
		MachineID: result.MachineID,
		VolumeID:  result.VolumeID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if err := s.importUC.HandleWebhook(ctx, signature, body); err != nil {
		switch {
		case errors.Is(err, domain.ErrSignatureMissing), errors.Is(err, domain.ErrSignatureMismatch):
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		case errors.Is(err, domain.ErrJobNotFound):
			http.NotFound(w, r)
		case errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, "Invalid payload", http.StatusBadRequest)
		default:
			s.log.Error().Err(err).Msg("webhook handling failed")
			http.Error(w, "Internal error", http.StatusInternalServerError)
		}
		return
	}

	// The worker only needs to know the update was taken; cleanup, if any,
	// runs out-of-band.
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := chi.URLParam(r, "id")
	progress, err := s.importUC.Progress(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			http.NotFound(w, r)
			return
		}
		s.log.Error().Err(err).Str("job_id", jobID).Msg("get progress failed")
		http.Error(w, "Failed to get progress", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(progress)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := chi.URLParam(r, "id")
	if err := s.importUC.Cancel(ctx, jobID); err != nil {
		s.log.Error().Err(err).Str("job_id", jobID).Msg("cancel failed")
		http.Error(w, "Failed to cancel import", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
