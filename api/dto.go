/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model
  from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validator tags; handlers run them through a
  shared validator instance before touching the engine. Engine
  preconditions (flagged account, capacity, vehicle uniqueness) are
  not duplicated here.
*/
package api

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openlot/parking-engine/parking"
)

var validate = validator.New()

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// LOTS
// =============================================================================

// LotDTO represents a lot in listings. The available count comes from
// the committed spot rows at render time; the entry may be served from
// cache for up to the configured TTL.
type LotDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Address        string `json:"address"`
	PinCode        string `json:"pin_code"`
	PricePerHour   string `json:"price_per_hour"`
	TotalSpots     int    `json:"total_spots"`
	OccupiedSpots  int    `json:"occupied_spots"`
	AvailableSpots int    `json:"available_spots"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// SpotDTO represents a spot within a lot detail view.
type SpotDTO struct {
	ID          string `json:"id"`
	SpotNumber  int    `json:"spot_number"`
	Status      string `json:"status"`
	IsOccupied  bool   `json:"is_occupied"`
	IsAvailable bool   `json:"is_available"`
	Floor       int    `json:"floor"`
}

// LotDetailDTO is the single-lot view with per-spot status.
type LotDetailDTO struct {
	LotDTO
	Spots []SpotDTO `json:"spots"`
}

// CreateLotRequest is the admin request to create a lot.
type CreateLotRequest struct {
	Name          string `json:"name" validate:"required"`
	PricePerHour  string `json:"price_per_hour" validate:"required"`
	Address       string `json:"address"`
	PinCode       string `json:"pin_code"`
	NumberOfSpots int    `json:"number_of_spots" validate:"required,gt=0"`
	Floor         int    `json:"floor" validate:"gte=0"`
}

// UpdateLotRequest is the admin request to update a lot. Empty fields
// are left unchanged.
type UpdateLotRequest struct {
	Name         string `json:"name"`
	PricePerHour string `json:"price_per_hour"`
	Address      string `json:"address"`
	PinCode      string `json:"pin_code"`
}

// OccupancyDTO reports a lot's spot usage.
type OccupancyDTO struct {
	LotID      string `json:"lot_id"`
	TotalSpots int    `json:"total_spots"`
	Occupied   int    `json:"occupied"`
	Available  int    `json:"available"`
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// ReserveRequest is the request to reserve a spot in a lot.
type ReserveRequest struct {
	VehicleNumber string `json:"vehicle_number" validate:"required"`
	PhoneNumber   string `json:"phone_number"`
	CustomerName  string `json:"customer_name"`
	Remarks       string `json:"remarks"`
}

// ReservationDTO represents a newly created reservation.
type ReservationDTO struct {
	ID            string `json:"id"`
	LotID         string `json:"lot_id"`
	SpotID        string `json:"spot_id"`
	VehicleNumber string `json:"vehicle_number"`
	StartedAt     string `json:"started_at"`
	Status        string `json:"status"`
}

// ReleaseDTO reports the outcome of a release.
type ReleaseDTO struct {
	ID            string `json:"id"`
	DurationHours string `json:"duration_hours"`
	Cost          string `json:"cost"`
	EndedAt       string `json:"ended_at"`
}

// ReservationSummaryDTO is a row in reservation listings.
type ReservationSummaryDTO struct {
	ID            string  `json:"id"`
	LotName       string  `json:"lot_name"`
	SpotNumber    int     `json:"spot_number"`
	VehicleNumber string  `json:"vehicle_number"`
	StartedAt     string  `json:"started_at"`
	EndedAt       *string `json:"ended_at,omitempty"`
	DurationHours string  `json:"duration_hours"`
	Cost          *string `json:"cost,omitempty"`
	Status        string  `json:"status"`
	Remarks       string  `json:"remarks,omitempty"`
}

// CostPreviewDTO is the running charge of an active reservation.
type CostPreviewDTO struct {
	ID   string `json:"id"`
	Cost string `json:"cost"`
}

// =============================================================================
// USERS
// =============================================================================

// UserDTO represents an account in admin views.
type UserDTO struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
	Flagged     bool   `json:"flagged"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func lotToDTO(lot parking.Lot, occupied int) LotDTO {
	return LotDTO{
		ID:             string(lot.ID),
		Name:           lot.Name,
		Address:        lot.Address,
		PinCode:        lot.PinCode,
		PricePerHour:   lot.PricePerHour.String(),
		TotalSpots:     lot.NumberOfSpots,
		OccupiedSpots:  occupied,
		AvailableSpots: lot.NumberOfSpots - occupied,
		CreatedAt:      lot.CreatedAt.Format(time.RFC3339),
	}
}

func spotToDTO(s parking.Spot) SpotDTO {
	return SpotDTO{
		ID:          string(s.ID),
		SpotNumber:  s.SpotNumber,
		Status:      string(s.Status),
		IsOccupied:  s.IsOccupied,
		IsAvailable: s.Status == parking.SpotAvailable,
		Floor:       s.Floor,
	}
}

func reservationToDTO(r *parking.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:            string(r.ID),
		LotID:         string(r.LotID),
		SpotID:        string(r.SpotID),
		VehicleNumber: r.VehicleNumber,
		StartedAt:     r.StartedAt.Format(time.RFC3339),
		Status:        string(r.Status),
	}
}

func summaryToDTO(s parking.ReservationSummary) ReservationSummaryDTO {
	dto := ReservationSummaryDTO{
		ID:            string(s.ID),
		LotName:       s.LotName,
		SpotNumber:    s.SpotNumber,
		VehicleNumber: s.VehicleNumber,
		StartedAt:     s.StartedAt.Format(time.RFC3339),
		DurationHours: s.DurationHours.String(),
		Status:        string(s.Status),
		Remarks:       s.Remarks,
	}
	if s.EndedAt != nil {
		end := s.EndedAt.Format(time.RFC3339)
		dto.EndedAt = &end
	}
	if s.Cost != nil {
		cost := s.Cost.String()
		dto.Cost = &cost
	}
	return dto
}

func userToDTO(u parking.User) UserDTO {
	return UserDTO{
		ID:          string(u.ID),
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		PhoneNumber: u.PhoneNumber,
		Role:        string(u.Role),
		Flagged:     u.Flagged,
	}
}
