// Package handler exposes registered-domain operations over JSON for the
// operator portal.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"pkt.systems/pslog"

	"registrar/internal/domains/models"
	"registrar/internal/domains/service"
	"registrar/internal/platform/logger"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/httputil"
)

// Service is the domain lifecycle surface the handler exposes.
type Service interface {
	Get(ctx context.Context, domainID id.DomainID) (*models.Domain, error)
	GetByName(ctx context.Context, name string) (*models.Domain, error)
	ListByState(ctx context.Context, state models.State) ([]*models.Domain, error)
	SetNameservers(ctx context.Context, domainID id.DomainID, hosts []string, glue map[string][]string) (*models.Domain, error)
	SetContacts(ctx context.Context, domainID id.DomainID, specs []service.ContactSpec) (*models.Domain, error)
	Refresh(ctx context.Context, domainID id.DomainID) (*models.Domain, error)
	Renew(ctx context.Context, domainID id.DomainID, years int) (*models.Domain, error)
	Delete(ctx context.Context, domainID id.DomainID) error
}

type Handler struct {
	domains Service
	log     pslog.Logger
}

func New(domains Service, log pslog.Logger) *Handler {
	return &Handler{domains: domains, log: logger.WithSubsystem(log, "http")}
}

// Register mounts the domain routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/domains", func(r chi.Router) {
		r.Get("/", h.list)
		r.Route("/{domainID}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/nameservers", h.setNameservers)
			r.Put("/contacts", h.setContacts)
			r.Post("/refresh", h.refresh)
			r.Post("/renew", h.renew)
			r.Delete("/", h.remove)
		})
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		d, err := h.domains.GetByName(r.Context(), name)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, []*models.Domain{d})
		return
	}
	state := r.URL.Query().Get("state")
	if state == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "name or state query parameter is required"))
		return
	}
	out, err := h.domains.ListByState(r.Context(), models.State(state))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if out == nil {
		out = []*models.Domain{}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	domainID, err := pathDomainID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.domains.Get(r.Context(), domainID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

type nameserversRequest struct {
	Nameservers []string            `json:"nameservers"`
	Glue        map[string][]string `json:"glue,omitempty"`
}

func (h *Handler) setNameservers(w http.ResponseWriter, r *http.Request) {
	domainID, err := pathDomainID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, err := httputil.DecodeJSON[nameserversRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.domains.SetNameservers(r.Context(), domainID, body.Nameservers, body.Glue)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

type contactRequest struct {
	RegistryID string `json:"registry_id"`
	Role       string `json:"role"`
	Name       string `json:"name,omitempty"`
	Org        string `json:"org,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Disclose   struct {
		Name  bool `json:"name"`
		Email bool `json:"email"`
		Phone bool `json:"phone"`
	} `json:"disclose"`
}

type contactsRequest struct {
	Contacts []contactRequest `json:"contacts"`
}

func (h *Handler) setContacts(w http.ResponseWriter, r *http.Request) {
	domainID, err := pathDomainID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, err := httputil.DecodeJSON[contactsRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	specs := make([]service.ContactSpec, 0, len(body.Contacts))
	for _, c := range body.Contacts {
		specs = append(specs, service.ContactSpec{
			RegistryID: c.RegistryID,
			Role:       models.ContactRole(c.Role),
			Name:       c.Name,
			Org:        c.Org,
			Email:      c.Email,
			Phone:      c.Phone,
			Disclose: models.Disclosure{
				Name:  c.Disclose.Name,
				Email: c.Disclose.Email,
				Phone: c.Disclose.Phone,
			},
		})
	}
	d, err := h.domains.SetContacts(r.Context(), domainID, specs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	domainID, err := pathDomainID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.domains.Refresh(r.Context(), domainID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

type renewRequest struct {
	Years int `json:"years"`
}

func (h *Handler) renew(w http.ResponseWriter, r *http.Request) {
	domainID, err := pathDomainID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	body, err := httputil.DecodeJSON[renewRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.domains.Renew(r.Context(), domainID, body.Years)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	domainID, err := pathDomainID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.domains.Delete(r.Context(), domainID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathDomainID(r *http.Request) (id.DomainID, error) {
	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		return id.DomainID{}, dErrors.New(dErrors.CodeBadRequest, "invalid domain id")
	}
	return domainID, nil
}
