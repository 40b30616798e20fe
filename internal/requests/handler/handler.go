// Package handler is the JSON boundary the intake workflow calls. It is a
// thin translation layer; review rules live in the service and the model.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"pkt.systems/pslog"

	"registrar/internal/platform/logger"
	"registrar/internal/requests/models"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/httputil"
)

// Service is the request workflow surface the handler exposes.
type Service interface {
	Create(ctx context.Context, domainName, requesterID, organization, purpose string) (*models.DomainRequest, error)
	Get(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]*models.DomainRequest, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.DomainRequest, error)
	Submit(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error)
	Withdraw(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error)
	BeginReview(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error)
	RequestChanges(ctx context.Context, requestID id.RequestID, remarks string) (*models.DomainRequest, error)
	Resolve(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error)
	Approve(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error)
	Reject(ctx context.Context, requestID id.RequestID, reason string) (*models.DomainRequest, error)
	Reopen(ctx context.Context, requestID id.RequestID) (*models.DomainRequest, error)
	MarkIneligible(ctx context.Context, requestID id.RequestID, reason string) (*models.DomainRequest, error)
}

type Handler struct {
	requests Service
	log      pslog.Logger
}

func New(requests Service, log pslog.Logger) *Handler {
	return &Handler{requests: requests, log: logger.WithSubsystem(log, "http")}
}

// Register mounts the request routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Route("/{requestID}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Post("/submit", h.action(Service.Submit))
			r.Post("/withdraw", h.action(Service.Withdraw))
			r.Post("/review", h.action(Service.BeginReview))
			r.Post("/changes", h.reasonAction(Service.RequestChanges))
			r.Post("/resolve", h.action(Service.Resolve))
			r.Post("/approve", h.action(Service.Approve))
			r.Post("/reject", h.reasonAction(Service.Reject))
			r.Post("/reopen", h.action(Service.Reopen))
			r.Post("/ineligible", h.reasonAction(Service.MarkIneligible))
		})
	})
}

type createRequest struct {
	DomainName   string `json:"domain_name"`
	RequesterID  string `json:"requester_id"`
	Organization string `json:"organization"`
	Purpose      string `json:"purpose"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.DecodeJSON[createRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.requests.Create(r.Context(), body.DomainName, body.RequesterID, body.Organization, body.Purpose)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, req)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathRequestID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.requests.Get(r.Context(), requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var (
		out []*models.DomainRequest
		err error
	)
	switch {
	case r.URL.Query().Get("requester") != "":
		out, err = h.requests.ListByRequester(r.Context(), r.URL.Query().Get("requester"))
	case r.URL.Query().Get("status") != "":
		out, err = h.requests.ListByStatus(r.Context(), models.Status(r.URL.Query().Get("status")))
	default:
		err = dErrors.New(dErrors.CodeBadRequest, "requester or status query parameter is required")
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if out == nil {
		out = []*models.DomainRequest{}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// action adapts an argument-free workflow call to a POST handler.
func (h *Handler) action(call func(Service, context.Context, id.RequestID) (*models.DomainRequest, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, err := pathRequestID(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req, err := call(h.requests, r.Context(), requestID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, req)
	}
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// reasonAction adapts a workflow call carrying reviewer wording.
func (h *Handler) reasonAction(call func(Service, context.Context, id.RequestID, string) (*models.DomainRequest, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, err := pathRequestID(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		body, err := httputil.DecodeJSON[reasonRequest](r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req, err := call(h.requests, r.Context(), requestID, body.Reason)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, req)
	}
}

func pathRequestID(r *http.Request) (id.RequestID, error) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		return id.RequestID{}, dErrors.New(dErrors.CodeBadRequest, "invalid request id")
	}
	return requestID, nil
}
