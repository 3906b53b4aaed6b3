/*
handlers.go - HTTP handlers for the parking reservation API

PURPOSE:
  Exposes the reservation engine over REST. Handles request parsing,
  DTO mapping, read-caching of lot views, and translation of the
  domain error taxonomy into HTTP statuses.

ENDPOINTS:
  Lots (any principal):
    GET  /api/lots                     List lots with availability (cached)
    GET  /api/lots/{id}                Lot detail with spot status (cached)
    GET  /api/lots/{id}/occupancy      Occupancy counts (uncached)
    POST /api/lots/{id}/reservations   Reserve a spot

  Reservations (owner):
    POST /api/reservations/{id}/release  Release and settle
    GET  /api/reservations               Reservation history
    GET  /api/reservations/active        Open reservations
    GET  /api/reservations/{id}/cost     Running-cost preview

  Admin:
    POST   /api/admin/lots             Create lot (provisions spots)
    PUT    /api/admin/lots/{id}        Update lot
    DELETE /api/admin/lots/{id}        Delete lot (fails while occupied)
    GET    /api/admin/users            List accounts
    POST   /api/admin/users/{id}/flag    Bar account from reserving
    POST   /api/admin/users/{id}/unflag  Restore account
    POST   /api/admin/exports/users      Trigger user CSV export
    GET    /api/admin/exports/users/{id} Export task status

ERROR MAPPING:
  Validation      -> 400
  Forbidden       -> 403
  NotFound        -> 404
  NoCapacity      -> 409
  Conflict        -> 409
  AlreadyReleased -> 409
  anything else   -> 500

CACHING:
  Lot listing and detail responses are written through the injected
  cache with the configured TTL. The engine and admin service evict on
  every occupancy or lot mutation, so reads here never need to.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and principal middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/openlot/parking-engine/jobs"
	"github.com/openlot/parking-engine/parking"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *parking.Engine
	Admin    *parking.Admin
	Store    parking.Store
	Cache    parking.Cache
	Exporter *jobs.Exporter
	CacheTTL time.Duration
	Log      *zap.SugaredLogger
}

// NewHandler creates a handler with the default cache TTL.
func NewHandler(engine *parking.Engine, admin *parking.Admin, store parking.Store, cache parking.Cache, exporter *jobs.Exporter, log *zap.SugaredLogger) *Handler {
	return &Handler{
		Engine:   engine,
		Admin:    admin,
		Store:    store,
		Cache:    cache,
		Exporter: exporter,
		CacheTTL: parking.DefaultCacheTTL,
		Log:      log,
	}
}

// =============================================================================
// LOT HANDLERS
// =============================================================================

// ListLots returns all lots with availability counts, served from
// cache when fresh.
func (h *Handler) ListLots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cached []LotDTO
	if hit, err := h.Cache.Get(ctx, parking.LotListingKey, &cached); err == nil && hit {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	lots, err := h.Store.ListLots(ctx)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]LotDTO, 0, len(lots))
	for _, lot := range lots {
		occupied, err := h.Store.CountOccupied(ctx, lot.ID)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		dtos = append(dtos, lotToDTO(lot, occupied))
	}

	if err := h.Cache.Set(ctx, parking.LotListingKey, dtos, h.CacheTTL); err != nil {
		h.Log.Warnw("cache set failed", "key", parking.LotListingKey, "error", err)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLot returns a lot's detail view with per-spot status.
func (h *Handler) GetLot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lotID := parking.LotID(chi.URLParam(r, "id"))
	key := parking.LotDetailKey(lotID)

	var cached LotDetailDTO
	if hit, err := h.Cache.Get(ctx, key, &cached); err == nil && hit {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	lot, err := h.Store.GetLot(ctx, lotID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	spots, err := h.Store.ListSpots(ctx, lotID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	occupied := 0
	spotDTOs := make([]SpotDTO, 0, len(spots))
	for _, s := range spots {
		if s.Status == parking.SpotOccupied {
			occupied++
		}
		spotDTOs = append(spotDTOs, spotToDTO(s))
	}
	detail := LotDetailDTO{LotDTO: lotToDTO(*lot, occupied), Spots: spotDTOs}

	if err := h.Cache.Set(ctx, key, detail, h.CacheTTL); err != nil {
		h.Log.Warnw("cache set failed", "key", key, "error", err)
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetOccupancy returns a lot's occupancy counts straight from the store.
func (h *Handler) GetOccupancy(w http.ResponseWriter, r *http.Request) {
	occ, err := h.Engine.LotOccupancy(r.Context(), parking.LotID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OccupancyDTO{
		LotID:      string(occ.LotID),
		TotalSpots: occ.TotalSpots,
		Occupied:   occ.Occupied,
		Available:  occ.Available,
	})
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// Reserve creates a reservation on the lot's first available spot.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reservation request", err)
		return
	}

	res, err := h.Engine.Reserve(r.Context(), principal, parking.LotID(chi.URLParam(r, "id")), parking.ReserveInput{
		VehicleNumber: req.VehicleNumber,
		PhoneNumber:   req.PhoneNumber,
		CustomerName:  req.CustomerName,
		Remarks:       req.Remarks,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservationToDTO(res))
}

// Release completes the reservation and settles its cost.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	result, err := h.Engine.Release(r.Context(), principal, parking.ReservationID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReleaseDTO{
		ID:            string(result.ReservationID),
		DurationHours: result.DurationHours.String(),
		Cost:          result.Cost.String(),
		EndedAt:       result.EndedAt.Format(time.RFC3339),
	})
}

// ListReservations returns the principal's full reservation history.
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	summaries, err := h.Engine.History(r.Context(), principal.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summariesToDTO(summaries))
}

// ListActiveReservations returns the principal's open reservations.
func (h *Handler) ListActiveReservations(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	summaries, err := h.Engine.ActiveReservations(r.Context(), principal.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summariesToDTO(summaries))
}

// PreviewCost returns the running charge of the reservation.
func (h *Handler) PreviewCost(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	id := parking.ReservationID(chi.URLParam(r, "id"))

	cost, err := h.Engine.PreviewCost(r.Context(), principal, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CostPreviewDTO{ID: string(id), Cost: cost.String()})
}

func summariesToDTO(summaries []parking.ReservationSummary) []ReservationSummaryDTO {
	dtos := make([]ReservationSummaryDTO, 0, len(summaries))
	for _, s := range summaries {
		dtos = append(dtos, summaryToDTO(s))
	}
	return dtos
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateLot creates a lot and provisions its spots.
func (h *Handler) CreateLot(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var req CreateLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lot request", err)
		return
	}

	lot, err := h.Admin.CreateLot(r.Context(), principal, parking.LotInput{
		Name:          req.Name,
		PricePerHour:  req.PricePerHour,
		Address:       req.Address,
		PinCode:       req.PinCode,
		NumberOfSpots: req.NumberOfSpots,
		Floor:         req.Floor,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lotToDTO(*lot, 0))
}

// UpdateLot changes a lot's descriptive fields and price.
func (h *Handler) UpdateLot(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var req UpdateLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lot, err := h.Admin.UpdateLot(r.Context(), principal, parking.LotID(chi.URLParam(r, "id")), parking.LotInput{
		Name:         req.Name,
		PricePerHour: req.PricePerHour,
		Address:      req.Address,
		PinCode:      req.PinCode,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lotToDTO(*lot, lot.Occupied))
}

// DeleteLot removes an empty lot and its spots.
func (h *Handler) DeleteLot(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	if err := h.Admin.DeleteLot(r.Context(), principal, parking.LotID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers returns all accounts for admin review.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	users, err := h.Admin.ListUsers(r.Context(), principal)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]UserDTO, 0, len(users))
	for _, u := range users {
		dtos = append(dtos, userToDTO(u))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// FlagUser bars an account from making new reservations.
func (h *Handler) FlagUser(w http.ResponseWriter, r *http.Request) {
	h.setUserFlag(w, r, true)
}

// UnflagUser restores an account.
func (h *Handler) UnflagUser(w http.ResponseWriter, r *http.Request) {
	h.setUserFlag(w, r, false)
}

func (h *Handler) setUserFlag(w http.ResponseWriter, r *http.Request, flagged bool) {
	principal := principalFrom(r.Context())
	id := parking.UserID(chi.URLParam(r, "id"))

	var err error
	if flagged {
		err = h.Admin.FlagUser(r.Context(), principal, id)
	} else {
		err = h.Admin.UnflagUser(r.Context(), principal, id)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": string(id), "flagged": flagged})
}

// TriggerUserExport starts an asynchronous user CSV export.
func (h *Handler) TriggerUserExport(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	if !principal.IsAdmin() {
		writeError(w, http.StatusForbidden, "Admin access required", nil)
		return
	}

	task := h.Exporter.Start(r.Context())
	writeJSON(w, http.StatusAccepted, task)
}

// GetExportStatus reports the state of an export task.
func (h *Handler) GetExportStatus(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	if !principal.IsAdmin() {
		writeError(w, http.StatusForbidden, "Admin access required", nil)
		return
	}

	task, ok := h.Exporter.Status(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Export task not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, parking.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, parking.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case errors.Is(err, parking.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, parking.ErrNoCapacity):
		writeError(w, http.StatusConflict, "No available spots", err)
	case errors.Is(err, parking.ErrAlreadyReleased):
		writeError(w, http.StatusConflict, "Reservation already released", err)
	case errors.Is(err, parking.ErrConflict):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		h.Log.Errorw("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
