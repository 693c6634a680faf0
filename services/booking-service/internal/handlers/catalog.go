package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/agendei/libs/httpx"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
)

// CatalogHandler exposes the provider-owned data the slot generator reads: weekly
// availability, lunch breaks and services.
type CatalogHandler struct {
	catalog *catalog.Manager
	auth    *Authenticator
	logger  *slog.Logger
}

func NewCatalogHandler(m *catalog.Manager, auth *Authenticator, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: m, auth: auth, logger: logger}
}

func (h *CatalogHandler) Register(mux *http.ServeMux, write httpx.Middleware) {
	if write == nil {
		write = func(next http.Handler) http.Handler { return next }
	}
	mux.HandleFunc("GET /prestadores/{id}/disponibilidades", h.ListAvailability)
	mux.Handle("PUT /prestadores/{id}/disponibilidades", write(http.HandlerFunc(h.UpsertAvailability)))
	mux.Handle("PUT /prestadores/{id}/disponibilidades/{dia}/ativo", write(http.HandlerFunc(h.SetAvailabilityEnabled)))
	mux.Handle("PUT /prestadores/{id}/almoco", write(http.HandlerFunc(h.SetLunch)))
	mux.Handle("DELETE /prestadores/{id}/almoco", write(http.HandlerFunc(h.ClearLunch)))
	mux.Handle("POST /servicos", write(http.HandlerFunc(h.CreateService)))
	mux.HandleFunc("GET /servicos/{id}", h.GetService)
	mux.Handle("PUT /servicos/{id}", write(http.HandlerFunc(h.UpdateService)))
	mux.Handle("DELETE /servicos/{id}", write(http.HandlerFunc(h.DeactivateService)))
}

type windowRequest struct {
	DiaSemana  string `json:"diaSemana"`
	HoraInicio string `json:"horaInicio"`
	HoraFim    string `json:"horaFim"`
	Ativo      *bool  `json:"ativo"`
}

type windowResponse struct {
	DiaSemana  string `json:"diaSemana"`
	HoraInicio string `json:"horaInicio"`
	HoraFim    string `json:"horaFim"`
	Ativo      bool   `json:"ativo"`
}

type availabilityResponse struct {
	PrestadorID      string           `json:"prestadorId"`
	AlmocoInicio     string           `json:"almocoInicio,omitempty"`
	AlmocoFim        string           `json:"almocoFim,omitempty"`
	Disponibilidades []windowResponse `json:"disponibilidades"`
}

type enabledRequest struct {
	Ativo *bool `json:"ativo"`
}

type lunchRequest struct {
	Inicio string `json:"inicio"`
	Fim    string `json:"fim"`
}

type serviceRequest struct {
	PrestadorID    string `json:"prestadorId"`
	Titulo         string `json:"titulo"`
	Descricao      string `json:"descricao"`
	PrecoCentavos  int64  `json:"precoCentavos"`
	DuracaoMinutos int    `json:"duracaoMinutos"`
}

type serviceResponse struct {
	ID             string `json:"id"`
	PrestadorID    string `json:"prestadorId"`
	Titulo         string `json:"titulo"`
	Descricao      string `json:"descricao"`
	PrecoCentavos  int64  `json:"precoCentavos"`
	DuracaoMinutos int    `json:"duracaoMinutos"`
	Ativo          bool   `json:"ativo"`
}

func toWindow(w model.AvailabilityWindow) windowResponse {
	return windowResponse{
		DiaSemana:  string(w.Weekday),
		HoraInicio: availability.FormatClock(w.StartMinute),
		HoraFim:    availability.FormatClock(w.EndMinute),
		Ativo:      w.Enabled,
	}
}

func toService(s model.Service) serviceResponse {
	return serviceResponse{
		ID:             s.ID,
		PrestadorID:    s.ProviderID,
		Titulo:         s.Title,
		Descricao:      s.Description,
		PrecoCentavos:  s.PriceMinor,
		DuracaoMinutos: s.DurationMinutes,
		Ativo:          s.Active,
	}
}

func parseClockField(name, raw string) (int, error) {
	m, err := availability.ParseClock(strings.TrimSpace(raw))
	if err != nil {
		return 0, invalid(name + " must look like HH:MM")
	}
	return m, nil
}

func (h *CatalogHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("id")
	provider, err := h.catalog.GetProvider(r.Context(), providerID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	windows, err := h.catalog.ListAvailability(r.Context(), providerID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := availabilityResponse{PrestadorID: provider.ID, Disponibilidades: make([]windowResponse, 0, len(windows))}
	if provider.HasLunch() {
		resp.AlmocoInicio = availability.FormatClock(*provider.LunchStart)
		resp.AlmocoFim = availability.FormatClock(*provider.LunchEnd)
	}
	for _, win := range windows {
		resp.Disponibilidades = append(resp.Disponibilidades, toWindow(win))
	}
	writeJSON(w, r, h.logger, http.StatusOK, resp)
}

func (h *CatalogHandler) UpsertAvailability(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req windowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	day, err := model.ParseWeekday(req.DiaSemana)
	if err != nil {
		writeError(w, r, h.logger, invalid("diaSemana must be one of DOMINGO..SABADO"))
		return
	}
	in := catalog.WindowInput{Weekday: day, Enabled: true}
	if in.StartMinute, err = parseClockField("horaInicio", req.HoraInicio); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if in.EndMinute, err = parseClockField("horaFim", req.HoraFim); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Ativo != nil {
		in.Enabled = *req.Ativo
	}

	win, err := h.catalog.UpsertAvailability(r.Context(), p, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, toWindow(win))
}

func (h *CatalogHandler) SetAvailabilityEnabled(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	day, err := model.ParseWeekday(r.PathValue("dia"))
	if err != nil {
		writeError(w, r, h.logger, invalid("unknown weekday"))
		return
	}
	var req enabledRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Ativo == nil {
		writeError(w, r, h.logger, invalid("ativo is required"))
		return
	}
	if err := h.catalog.SetAvailabilityEnabled(r.Context(), p, r.PathValue("id"), day, *req.Ativo); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) SetLunch(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req lunchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	start, err := parseClockField("inicio", req.Inicio)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	end, err := parseClockField("fim", req.Fim)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.catalog.SetLunchBreak(r.Context(), p, r.PathValue("id"), start, end); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) ClearLunch(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.catalog.ClearLunchBreak(r.Context(), p, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) decodeService(r *http.Request) (catalog.ServiceInput, error) {
	var req serviceRequest
	if err := decodeJSON(r, &req); err != nil {
		return catalog.ServiceInput{}, err
	}
	return catalog.ServiceInput{
		ProviderID:      strings.TrimSpace(req.PrestadorID),
		Title:           req.Titulo,
		Description:     req.Descricao,
		PriceMinor:      req.PrecoCentavos,
		DurationMinutes: req.DuracaoMinutos,
	}, nil
}

func (h *CatalogHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, err := h.decodeService(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	svc, err := h.catalog.CreateService(r.Context(), p, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusCreated, toService(svc))
}

func (h *CatalogHandler) GetService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.catalog.GetService(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, toService(svc))
}

func (h *CatalogHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in, err := h.decodeService(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	svc, err := h.catalog.UpdateService(r.Context(), p, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, toService(svc))
}

func (h *CatalogHandler) DeactivateService(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.catalog.DeactivateService(r.Context(), p, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
