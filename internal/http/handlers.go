package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/models"
)

type Server struct {
	engine *dispatch.Engine
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(engine *dispatch.Engine, logger *slog.Logger) *Server {
	s := &Server{engine: engine, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	// static paths before the {id} pattern
	s.mux.HandleFunc("/api/v1/orders/pending", s.handlePendingOrders).Methods("GET")
	s.mux.HandleFunc("/api/v1/orders", s.handleCreateOrder).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}", s.handleGetOrder).Methods("GET")
	s.mux.HandleFunc("/api/v1/orders/{id}/details", s.handleOrderDetails).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}/accept", s.handleAcceptOrder).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}/complete", s.handleCompleteRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}/status-check", s.handleStatusCheck).Methods("POST")
	s.mux.HandleFunc("/ws/clients/{client_id}", s.handleClientWS)
	s.mux.HandleFunc("/ws/rooms/{order_id}", s.handleRoomWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type createOrderRequest struct {
	ClientID    string       `json:"client_id"`
	ClientName  string       `json:"client_name"`
	Origin      models.Coord `json:"origin"`
	Destination models.Coord `json:"destination"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid body")
		return
	}
	id, err := s.engine.CreateOrder(r.Context(), dispatch.CreateRequest{
		ClientID:    req.ClientID,
		ClientName:  req.ClientName,
		Origin:      req.Origin,
		Destination: req.Destination,
	})
	if err != nil {
		s.dispatchError(w, err)
		return
	}
	s.json(w, http.StatusCreated, map[string]string{"order_id": id})
}

type orderDetailsRequest struct {
	PassengerCount int        `json:"passenger_count"`
	VehicleType    string     `json:"vehicle_type"`
	DepartureTime  *time.Time `json:"departure_time"`
}

func (s *Server) handleOrderDetails(w http.ResponseWriter, r *http.Request) {
	var req orderDetailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid body")
		return
	}
	departure := time.Now()
	if req.DepartureTime != nil {
		departure = *req.DepartureTime
	}
	err := s.engine.EnrichOrder(r.Context(), mux.Vars(r)["id"], dispatch.DetailsRequest{
		PassengerCount: req.PassengerCount,
		VehicleType:    models.VehicleType(req.VehicleType),
		DepartureTime:  departure,
	})
	if err != nil {
		s.dispatchError(w, err)
		return
	}
	s.json(w, http.StatusOK, map[string]string{"result": "ok"})
}

func (s *Server) handlePendingOrders(w http.ResponseWriter, r *http.Request) {
	vehicle := models.VehicleType(r.URL.Query().Get("vehicle_type"))
	pending, err := s.engine.PendingOrders(r.Context(), vehicle)
	if err != nil {
		s.dispatchError(w, err)
		return
	}
	if pending == nil {
		pending = []models.PendingOrder{}
	}
	s.json(w, http.StatusOK, map[string]any{"orders": pending})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.engine.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.dispatchError(w, err)
		return
	}
	s.json(w, http.StatusOK, o)
}

type acceptRequest struct {
	DriverID   string `json:"driver_id"`
	DriverName string `json:"driver_name"`
}

func (s *Server) handleAcceptOrder(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid body")
		return
	}
	err := s.engine.Accept(r.Context(), mux.Vars(r)["id"], req.DriverID, req.DriverName)
	if err != nil {
		s.dispatchError(w, err)
		return
	}
	s.json(w, http.StatusOK, map[string]string{"result": "accepted"})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.dispatchError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeRequest struct {
	CompletedAt *time.Time `json:"completed_at"`
}

func (s *Server) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.error(w, http.StatusBadRequest, "invalid body")
			return
		}
	}
	completedAt := time.Now()
	if req.CompletedAt != nil {
		completedAt = *req.CompletedAt
	}
	if err := s.engine.CompleteRide(r.Context(), mux.Vars(r)["id"], completedAt); err != nil {
		s.dispatchError(w, err)
		return
	}
	s.json(w, http.StatusOK, map[string]string{"result": "completed"})
}

type statusCheckRequest struct {
	ClientID string `json:"client_id"`
}

func (s *Server) handleStatusCheck(w http.ResponseWriter, r *http.Request) {
	var req statusCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.engine.StartStatusCheck(mux.Vars(r)["id"], req.ClientID); err != nil {
		s.dispatchError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) json(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) error(w http.ResponseWriter, status int, msg string) {
	s.json(w, status, map[string]string{"error": msg})
}

func (s *Server) dispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		s.error(w, http.StatusNotFound, "order not found")
	case errors.Is(err, dispatch.ErrAlreadyTaken):
		s.error(w, http.StatusConflict, "already taken")
	case errors.Is(err, dispatch.ErrValidation):
		s.error(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("internal error", "error", err)
		s.error(w, http.StatusInternalServerError, "internal error")
	}
}
