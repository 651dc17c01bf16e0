package service

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/hereafterlabs/guardian-middleware/pkg/app/errors"
	apphttp "github.com/hereafterlabs/guardian-middleware/pkg/app/http"
	"github.com/hereafterlabs/guardian-middleware/pkg/auth"
	"github.com/hereafterlabs/guardian-middleware/pkg/recovery"
)

const maxBodySize = 1 << 20 // 1MB

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service  Service
	validate *validator.Validate
	logger   *zap.Logger
}

// RegisterRoutes registers the recovery endpoints on the given chi router.
// ownerAuth guards the owner-facing routes (setup, status); guardian
// routes authenticate through signatures and invite tokens instead.
func RegisterRoutes(r chi.Router, service Service, ownerAuth func(http.Handler) http.Handler, logger *zap.Logger) {
	h := &HTTP{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}

	r.Route("/recovery", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if ownerAuth != nil {
				r.Use(ownerAuth)
			}
			r.Post("/setup", apphttp.HandleError(h.setup))
			r.Get("/status", apphttp.HandleError(h.status))
		})

		r.Post("/{recoveryID}/attest", apphttp.HandleError(h.attest))
		r.Post("/{recoveryID}/complete", apphttp.HandleError(h.complete))
		r.Post("/{recoveryID}/access", apphttp.HandleError(h.access))
	})
}

func (h *HTTP) setup(w http.ResponseWriter, r *http.Request) error {
	var req recovery.SetupRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	if err := h.validate.Struct(&req); err != nil {
		return apperrors.BadRequestError(err, "invalid setup request")
	}

	ownerID, _ := auth.OwnerIDFromContext(r.Context())

	resp, err := h.service.Setup(r.Context(), ownerID, &req)
	if err != nil {
		return err
	}

	apphttp.WriteJSON(w, http.StatusCreated, resp)
	return nil
}

func (h *HTTP) attest(w http.ResponseWriter, r *http.Request) error {
	recoveryID := chi.URLParam(r, "recoveryID")

	var req recovery.AttestRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	if req.Signature == "" {
		req.Signature = r.Header.Get("X-Signature")
	}
	if req.Signature == "" {
		return apperrors.BadRequestError(nil, "signature required")
	}

	resp, err := h.service.Attest(r.Context(), recoveryID, &req)
	if err != nil {
		return err
	}

	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) complete(w http.ResponseWriter, r *http.Request) error {
	recoveryID := chi.URLParam(r, "recoveryID")

	resp, err := h.service.Complete(r.Context(), recoveryID)
	if err != nil {
		return err
	}

	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) status(w http.ResponseWriter, r *http.Request) error {
	wallet := r.URL.Query().Get("wallet")
	if !auth.ValidateEVMAddress(wallet) {
		return apperrors.BadRequestError(nil, "valid wallet query parameter required")
	}

	resp, err := h.service.Status(r.Context(), wallet)
	if err != nil {
		return err
	}

	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) access(w http.ResponseWriter, r *http.Request) error {
	recoveryID := chi.URLParam(r, "recoveryID")

	var req recovery.AccessRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	if req.GuardianAddress == "" && req.InviteToken == "" {
		return apperrors.BadRequestError(nil, "guardian address or invite token required")
	}

	resp, err := h.service.Access(r.Context(), recoveryID, &req)
	if err != nil {
		return err
	}

	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if len(body) == 0 {
		// Callers check their own required fields; some endpoints accept
		// header-only requests.
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}
