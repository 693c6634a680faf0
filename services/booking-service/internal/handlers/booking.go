package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/agendei/libs/httpx"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/agendei/services/booking-service/internal/model"
)

type BookingHandler struct {
	engine *booking.Engine
	auth   *Authenticator
	logger *slog.Logger
}

func NewBookingHandler(engine *booking.Engine, auth *Authenticator, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, auth: auth, logger: logger}
}

// Register mounts the booking routes. write wraps every mutating route (rate limiting).
func (h *BookingHandler) Register(mux *http.ServeMux, write httpx.Middleware) {
	if write == nil {
		write = func(next http.Handler) http.Handler { return next }
	}
	mux.HandleFunc("GET /servicos/{id}/horarios-disponiveis-data", h.Slots)
	mux.Handle("POST /agendamentos", write(http.HandlerFunc(h.Create)))
	mux.Handle("PUT /agendamentos/{id}", write(http.HandlerFunc(h.Update)))
	mux.Handle("PUT /agendamentos/{id}/concluir", write(http.HandlerFunc(h.Conclude)))
	mux.Handle("PUT /agendamentos/{id}/cancelar", write(http.HandlerFunc(h.Cancel)))
	mux.HandleFunc("GET /agendamentos/meus", h.ListMine)
	mux.HandleFunc("GET /agendamentos/prestador", h.ListProvider)
	mux.HandleFunc("GET /agendamentos/{id}", h.Get)
	mux.Handle("POST /prestadores/{id}/bloqueios", write(http.HandlerFunc(h.Block)))
	mux.Handle("DELETE /prestadores/{id}/bloqueios/{clienteId}", write(http.HandlerFunc(h.Unblock)))
}

type appointmentResponse struct {
	ID          string `json:"id"`
	NomeCliente string `json:"nomeCliente"`
	NomeServico string `json:"nomeServico"`
	DataHora    string `json:"dataHora"`
	Status      string `json:"status"`
}

type daySlotsResponse struct {
	Dia      string   `json:"dia"`
	Horarios []string `json:"horarios"`
}

type slotsResponse struct {
	DiasDisponiveis []daySlotsResponse `json:"diasDisponiveis"`
}

type createRequest struct {
	ServicoID string `json:"servicoId"`
	DataHora  string `json:"dataHora"`
}

type updateRequest struct {
	ServicoID *string `json:"servicoId"`
	DataHora  *string `json:"dataHora"`
}

type cancelRequest struct {
	Motivo string `json:"motivo"`
}

type blockRequest struct {
	ClienteID string `json:"clienteId"`
}

type blockResponse struct {
	Cancelados int `json:"cancelados"`
}

func (h *BookingHandler) toResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:          a.ID,
		NomeCliente: a.ClientName,
		NomeServico: a.ServiceTitle,
		DataHora:    formatDateTime(a.StartTime, h.engine.Location()),
		Status:      string(a.Status),
	}
}

func (h *BookingHandler) toResponses(list []model.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, h.toResponse(a))
	}
	return out
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("data"))
	if raw == "" {
		writeError(w, r, h.logger, invalid("data is required (YYYY-MM-DD)"))
		return
	}
	date, err := time.ParseInLocation("2006-01-02", raw, h.engine.Location())
	if err != nil {
		writeError(w, r, h.logger, invalid("data must look like 2006-01-02"))
		return
	}

	days, err := h.engine.GenerateSlots(r.Context(), r.PathValue("id"), date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := slotsResponse{DiasDisponiveis: make([]daySlotsResponse, 0, len(days))}
	for _, d := range days {
		resp.DiasDisponiveis = append(resp.DiasDisponiveis, daySlotsResponse{Dia: string(d.Day), Horarios: d.Times})
	}
	writeJSON(w, r, h.logger, http.StatusOK, resp)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in := booking.CreateInput{ServiceID: strings.TrimSpace(req.ServicoID)}
	// A missing dataHora is left zero so the engine reports it in its own check order.
	if strings.TrimSpace(req.DataHora) != "" {
		if in.StartTime, err = parseDateTime(req.DataHora, h.engine.Location()); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	appt, err := h.engine.CreateBooking(r.Context(), p, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusCreated, h.toResponse(appt))
}

func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in booking.UpdateInput
	if req.ServicoID != nil {
		id := strings.TrimSpace(*req.ServicoID)
		in.ServiceID = &id
	}
	if req.DataHora != nil {
		start, err := parseDateTime(*req.DataHora, h.engine.Location())
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		in.StartTime = &start
	}

	appt, err := h.engine.UpdateBooking(r.Context(), p, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, h.toResponse(appt))
}

func (h *BookingHandler) Conclude(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	appt, err := h.engine.Conclude(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, h.toResponse(appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	appt, err := h.engine.Cancel(r.Context(), p, r.PathValue("id"), req.Motivo)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, h.toResponse(appt))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	appt, err := h.engine.GetAppointment(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, h.toResponse(appt))
}

func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	list, err := h.engine.ListClientAppointments(r.Context(), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, h.toResponses(list))
}

func (h *BookingHandler) ListProvider(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	list, err := h.engine.ListProviderAppointments(r.Context(), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, h.toResponses(list))
}

func (h *BookingHandler) Block(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req blockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	clientID := strings.TrimSpace(req.ClienteID)
	if clientID == "" {
		writeError(w, r, h.logger, invalid("clienteId is required"))
		return
	}
	n, err := h.engine.BlockClient(r.Context(), p, r.PathValue("id"), clientID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, h.logger, http.StatusOK, blockResponse{Cancelados: n})
}

func (h *BookingHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	p, err := h.auth.Principal(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.engine.UnblockClient(r.Context(), p, r.PathValue("id"), r.PathValue("clienteId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
