// internal/registry/handler.go
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"libraledger/internal/audit"
	"libraledger/internal/domainerr"
)

type Handler struct {
	service Service
	auditor *audit.Engine
}

// NewHandler exposes service over HTTP. auditor may be nil, in which case
// GET /audit answers 503.
func NewHandler(service Service, auditor *audit.Engine) *Handler {
	return &Handler{service: service, auditor: auditor}
}

// RegisterRoutes mounts the registry API under /api/v1.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/publications", func(r chi.Router) {
			r.Post("/", h.HandleRegisterPublication)
			r.Get("/", h.HandleListPublications)
			r.Get("/low-stock", h.HandleLowStock)
			r.Get("/top", h.HandleTopPublications)
			r.Get("/{code}", h.HandleGetPublication)
			r.Patch("/{code}", h.HandleUpdatePublication)
		})
		r.Route("/members", func(r chi.Router) {
			r.Post("/", h.HandleRegisterMember)
			r.Get("/", h.HandleListMembers)
			r.Get("/{id}", h.HandleGetMember)
			r.Patch("/{id}", h.HandleUpdateMember)
		})
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.HandleCreateLoan)
			r.Get("/", h.HandleListLoans)
			r.Get("/overdue", h.HandleOverdueLoans)
			r.Get("/{id}", h.HandleGetLoan)
			r.Post("/{id}/return", h.HandleReturnLoan)
		})
		r.Route("/sales", func(r chi.Router) {
			r.Post("/", h.HandleCreateSale)
			r.Get("/", h.HandleListSales)
		})
		r.Get("/audit", h.HandleAudit)
	})
}

// CreateLoanRequest is the body of POST /loans.
type CreateLoanRequest struct {
	MemberID        string `json:"member_id"`
	PublicationCode string `json:"publication_code"`
}

// CreateSaleRequest is the body of POST /sales.
type CreateSaleRequest struct {
	MemberID        string `json:"member_id"`
	PublicationCode string `json:"publication_code"`
	Quantity        int    `json:"quantity"`
}

// UpdateMemberRequest is the body of PATCH /members/{id}.
type UpdateMemberRequest struct {
	Email string `json:"email"`
}

func (h *Handler) HandleRegisterPublication(w http.ResponseWriter, r *http.Request) {
	var req NewPublicationRequest
	if !decode(w, r, &req) {
		return
	}
	pub, err := h.service.RegisterPublication(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, pub)
}

func (h *Handler) HandleListPublications(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, collect(h.service.ListPublications(r.Context())))
}

func (h *Handler) HandleLowStock(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.service.LowStock(r.Context()))
}

func (h *Handler) HandleTopPublications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, domainerr.Validation("request", "limit", "limit must be an integer"))
			return
		}
		limit = n
	}
	respond(w, http.StatusOK, h.service.TopPublications(r.Context(), limit))
}

func (h *Handler) HandleGetPublication(w http.ResponseWriter, r *http.Request) {
	pub, err := h.service.GetPublication(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, pub)
}

func (h *Handler) HandleUpdatePublication(w http.ResponseWriter, r *http.Request) {
	var upd PublicationUpdate
	if !decode(w, r, &upd) {
		return
	}
	if _, err := h.service.UpdatePublication(r.Context(), chi.URLParam(r, "code"), upd); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRegisterMember(w http.ResponseWriter, r *http.Request) {
	var req NewMemberRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := h.service.RegisterMember(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, m)
}

func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, collect(h.service.ListMembers(r.Context())))
}

func (h *Handler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, m)
}

func (h *Handler) HandleUpdateMember(w http.ResponseWriter, r *http.Request) {
	var req UpdateMemberRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.UpdateMemberEmail(r.Context(), chi.URLParam(r, "id"), req.Email); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if !decode(w, r, &req) {
		return
	}
	loan, err := h.service.CreateLoan(r.Context(), req.MemberID, req.PublicationCode)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, loan)
}

func (h *Handler) HandleListLoans(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, collect(h.service.ListLoans(r.Context())))
}

func (h *Handler) HandleOverdueLoans(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.service.OverdueLoans(r.Context()))
}

func (h *Handler) HandleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := loanID(w, r)
	if !ok {
		return
	}
	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, loan)
}

func (h *Handler) HandleReturnLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := loanID(w, r)
	if !ok {
		return
	}
	loan, err := h.service.ReturnLoan(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, loan)
}

func (h *Handler) HandleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if !decode(w, r, &req) {
		return
	}
	sale, err := h.service.CreateSale(r.Context(), req.MemberID, req.PublicationCode, req.Quantity)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, sale)
}

func (h *Handler) HandleListSales(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, collect(h.service.ListSales(r.Context())))
}

func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditor == nil {
		respondError(w, domainerr.Unavailable("audit engine not configured", nil))
		return
	}
	respond(w, http.StatusOK, h.auditor.Run(r.Context()))
}

// collect drains seq into a non-nil slice so empty lists encode as [].
func collect[T any](seq iter.Seq[T]) []T {
	out := make([]T, 0)
	for v := range seq {
		out = append(out, v)
	}
	return out
}

func loanID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, domainerr.Validation("loan", "id", "loan id must be an integer"))
		return 0, false
	}
	return id, true
}

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, domainerr.Validation("request", "body", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)))
			return false
		}
		respondError(w, domainerr.Validation("request", "body", "malformed JSON body: "+err.Error()))
		return false
	}
	return true
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, err error) {
	var de *domainerr.Error
	if !errors.As(err, &de) {
		de = &domainerr.Error{Kind: "INTERNAL", Message: "internal error"}
	}
	respond(w, domainerr.HTTPStatus(err), map[string]string{
		"code":  string(de.Kind),
		"error": de.Message,
	})
}
