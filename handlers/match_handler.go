package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Dosada05/competition-engine/middleware"
	"github.com/Dosada05/competition-engine/models"
	"github.com/Dosada05/competition-engine/services"
	"github.com/Dosada05/competition-engine/storage"
)

const maxEvidenceSize = 10 << 20 // 10 MB

type MatchHandler struct {
	matches  services.MatchService
	uploader storage.EvidenceStore
}

func NewMatchHandler(matches services.MatchService, uploader storage.EvidenceStore) *MatchHandler {
	return &MatchHandler{matches: matches, uploader: uploader}
}

func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := tournamentIDParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	matches, err := h.matches.List(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil)
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := tournamentIDParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	matchID, err := uuidParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matches.Get(r.Context(), tournamentID, matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil)
}

func (h *MatchHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := tournamentIDParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	matchID, err := uuidParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	ref, err := middleware.GetParticipantRefFromContext(r.Context())
	if err != nil {
		errorResponse(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.matches.CheckIn(r.Context(), tournamentID, matchID, ref); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonResponse{"message": "checked in"}, nil)
}

func (h *MatchHandler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := tournamentIDParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	matchID, err := uuidParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Score    models.Score `json:"score"`
		ProofKey *string      `json:"proof_key,omitempty"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	ref, err := middleware.GetParticipantRefFromContext(r.Context())
	if err != nil {
		errorResponse(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.matches.SubmitResult(r.Context(), tournamentID, matchID, ref, input.Score, input.ProofKey); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, jsonResponse{"message": "result submitted"}, nil)
}

func (h *MatchHandler) ConfirmResult(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := tournamentIDParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	matchID, err := uuidParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	ref, err := middleware.GetParticipantRefFromContext(r.Context())
	if err != nil {
		errorResponse(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.matches.ConfirmResult(r.Context(), tournamentID, matchID, ref); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonResponse{"message": "result confirmed"}, nil)
}

func (h *MatchHandler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := tournamentIDParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	matchID, err := uuidParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		EvidenceKeys []string `json:"evidence_keys,omitempty"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	ref, err := middleware.GetParticipantRefFromContext(r.Context())
	if err != nil {
		errorResponse(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	dispute, err := h.matches.OpenDispute(r.Context(), tournamentID, matchID, ref, input.EvidenceKeys)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, jsonResponse{"dispute": dispute}, nil)
}

// UploadEvidence stores a multipart file in the evidence bucket and attaches
// its key to the dispute.
func (h *MatchHandler) UploadEvidence(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		errorResponse(w, r, http.StatusServiceUnavailable, "evidence storage is not configured")
		return
	}

	tournamentID, err := tournamentIDParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	disputeID, err := uuidParam(r, "disputeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(maxEvidenceSize); err != nil {
		badRequestResponse(w, r, fmt.Errorf("could not parse multipart form: %w", err))
		return
	}

	file, header, err := r.FormFile("evidence")
	if err != nil {
		badRequestResponse(w, r, fmt.Errorf("evidence file is required: %w", err))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("evidence/%d/%s/%d_%s", tournamentID, disputeID, time.Now().UnixNano(), header.Filename)
	result, err := h.uploader.Put(r.Context(), key, contentType, file)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	if err := h.matches.AddEvidence(r.Context(), tournamentID, disputeID, result.Key); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, jsonResponse{
		"key":      result.Key,
		"location": result.Location,
	}, nil)
}

func (h *MatchHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := tournamentIDParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	disputeID, err := uuidParam(r, "disputeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Ruling models.DisputeRuling `json:"ruling"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	actorID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		errorResponse(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.matches.ResolveDispute(r.Context(), tournamentID, disputeID, input.Ruling, actorID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonResponse{"message": "dispute resolved"}, nil)
}

func (h *MatchHandler) ForceResolve(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := tournamentIDParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	matchID, err := uuidParam(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Score   *models.Score     `json:"score,omitempty"`
		Outcome models.MatchState `json:"outcome"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	actorID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		errorResponse(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.matches.ForceResolve(r.Context(), tournamentID, matchID, actorID, input.Score, input.Outcome); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, jsonResponse{"message": "match resolved"}, nil)
}
