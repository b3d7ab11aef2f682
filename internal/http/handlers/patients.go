package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/carepulse/internal/patients"
	"github.com/wolfman30/carepulse/pkg/logging"
)

const (
	// maxUploadSize bounds the multipart registration form.
	maxUploadSize = 10 << 20

	profileFormField  = "profile"
	documentFormField = "identification_document"
)

// PatientsHandler serves the user and patient endpoints.
type PatientsHandler struct {
	svc    *patients.Service
	logger *logging.Logger
}

// NewPatientsHandler creates a patients handler.
func NewPatientsHandler(svc *patients.Service, logger *logging.Logger) *PatientsHandler {
	if svc == nil {
		panic("handlers: patients service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PatientsHandler{svc: svc, logger: logger}
}

// CreateUser handles POST /users. An existing user with the same email is
// returned as if just created.
func (h *PatientsHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req patients.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	user, err := h.svc.CreateUser(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// GetUser handles GET /users/{userID}.
func (h *PatientsHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetPatient handles GET /users/{userID}/patient.
func (h *PatientsHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	patient, err := h.svc.GetPatient(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

// RegisterPatient handles POST /patients. It accepts a multipart form with a
// JSON profile part and an optional identification_document file, or a plain
// JSON profile.
func (h *PatientsHandler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRegistration(w, r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if doc := req.IdentificationDocument; doc != nil {
		if c, ok := doc.Body.(io.Closer); ok {
			defer c.Close()
		}
	}

	patient, err := h.svc.RegisterPatient(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, patient)
}

func (h *PatientsHandler) parseRegistration(w http.ResponseWriter, r *http.Request) (patients.RegisterRequest, error) {
	var req patients.RegisterRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := decodeJSON(w, r, &req.Profile); err != nil {
			return req, errors.New("invalid request body")
		}
		return req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return req, errors.New("invalid multipart form")
	}
	profile := r.FormValue(profileFormField)
	if profile == "" {
		return req, errors.New("missing profile")
	}
	if err := json.Unmarshal([]byte(profile), &req.Profile); err != nil {
		return req, errors.New("invalid profile")
	}

	file, header, err := r.FormFile(documentFormField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		// Registration proceeds without the file.
		h.logger.Warn("unreadable identification document", "error", err)
		req.IdentificationDocument = &patients.IdentificationDocument{}
	default:
		req.IdentificationDocument = &patients.IdentificationDocument{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		}
	}
	return req, nil
}
