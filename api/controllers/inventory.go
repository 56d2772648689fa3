package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/api/responses"
	"github.com/angelmondragon/stockledger/api/validators"
	"github.com/angelmondragon/stockledger/internal/inventory"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/pagination"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	productIDParam       = "productID"
	maxReasonLength      = 255
	defaultMovementLimit = pagination.DefaultLimit
	maxMovementLimit     = pagination.MaxLimit
)

type inventoryResponse struct {
	ID                uuid.UUID  `json:"id"`
	ProductID         uuid.UUID  `json:"product_id"`
	Quantity          int        `json:"quantity"`
	ReservedQuantity  int        `json:"reserved_quantity"`
	AvailableQuantity int        `json:"available_quantity"`
	LowStockThreshold int        `json:"low_stock_threshold"`
	Location          string     `json:"location"`
	Status            string     `json:"status"`
	LastRestockedAt   *time.Time `json:"last_restocked_at,omitempty"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func newInventoryResponse(rec *inventory.Record) inventoryResponse {
	return inventoryResponse{
		ID:                rec.ID,
		ProductID:         rec.ProductID,
		Quantity:          rec.Quantity,
		ReservedQuantity:  rec.ReservedQuantity,
		AvailableQuantity: rec.AvailableQuantity,
		LowStockThreshold: rec.LowStockThreshold,
		Location:          rec.Location,
		Status:            string(rec.Status()),
		LastRestockedAt:   rec.LastRestockedAt,
		Version:           rec.Version,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}

func newInventoryList(records []*inventory.Record) []inventoryResponse {
	out := make([]inventoryResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, newInventoryResponse(rec))
	}
	return out
}

type movementResponse struct {
	ID             uuid.UUID  `json:"id"`
	Type           string     `json:"type"`
	Delta          int        `json:"delta"`
	QuantityBefore int        `json:"quantity_before"`
	QuantityAfter  int        `json:"quantity_after"`
	Reason         string     `json:"reason,omitempty"`
	OperationID    *uuid.UUID `json:"operation_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type movementPageResponse struct {
	Items      []movementResponse `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

func newMovementList(movements []models.StockMovement) []movementResponse {
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResponse{
			ID:             m.ID,
			Type:           string(m.Type),
			Delta:          m.Delta,
			QuantityBefore: m.QuantityBefore,
			QuantityAfter:  m.QuantityAfter,
			Reason:         m.Reason,
			OperationID:    m.OperationID,
			CreatedAt:      m.CreatedAt,
		})
	}
	return out
}

type createInventoryRequest struct {
	ProductID         string `json:"product_id" validate:"required,uuid"`
	Quantity          *int   `json:"quantity" validate:"required,gte=0"`
	LowStockThreshold *int   `json:"low_stock_threshold" validate:"omitempty,gte=0"`
	Location          string `json:"location" validate:"omitempty,max=64"`
}

type stockChangeRequest struct {
	Amount      int    `json:"amount" validate:"gt=0"`
	Reason      string `json:"reason" validate:"omitempty,max=255"`
	OperationID string `json:"operation_id" validate:"omitempty,uuid"`
}

type batchUpdateItem struct {
	ProductID         string `json:"product_id" validate:"required,uuid"`
	Quantity          *int   `json:"quantity" validate:"omitempty,gte=0"`
	LowStockThreshold *int   `json:"low_stock_threshold" validate:"omitempty,gte=0"`
	Reason            string `json:"reason" validate:"omitempty,max=255"`
}

type batchUpdateRequest struct {
	Updates []batchUpdateItem `json:"updates" validate:"required,min=1,max=500,dive"`
}

type thresholdBatchRequest struct {
	Location          string `json:"location" validate:"omitempty,max=64"`
	LowStockThreshold *int   `json:"low_stock_threshold" validate:"required,gte=0"`
}

type inventoryStats struct {
	Counts     inventory.StatusCounts    `json:"counts"`
	ByLocation []inventory.LocationStats `json:"by_location"`
}

// InventoryCreate registers stock for a product.
func InventoryCreate(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !serviceReady(w, r, svc, logg) {
			return
		}

		var payload createInventoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := inventory.CreateInput{
			ProductID: uuid.MustParse(payload.ProductID),
			Quantity:  *payload.Quantity,
			Location:  validators.Sanitize(payload.Location, 64),
		}
		if payload.LowStockThreshold != nil {
			input.LowStockThreshold = *payload.LowStockThreshold
		}

		rec, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newInventoryResponse(rec))
	}
}

// InventoryGet returns the current record for a product.
func InventoryGet(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !serviceReady(w, r, svc, logg) {
			return
		}

		productID, err := validators.ParseUUIDParam(r, productIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rec, err := svc.Get(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newInventoryResponse(rec))
	}
}

// InventoryReduce removes units from stock.
func InventoryReduce(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return stockChange(svc, logg, func(svc inventory.Service) stockChangeFunc { return svc.Reduce })
}

// InventoryRestock adds units to stock.
func InventoryRestock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return stockChange(svc, logg, func(svc inventory.Service) stockChangeFunc { return svc.Restock })
}

type stockChangeFunc func(ctx context.Context, input inventory.StockChangeInput) (*inventory.Record, error)

func stockChange(svc inventory.Service, logg *logger.Logger, pick func(inventory.Service) stockChangeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !serviceReady(w, r, svc, logg) {
			return
		}

		productID, err := validators.ParseUUIDParam(r, productIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload stockChangeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		operationID, err := resolveOperationID(r, payload.OperationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rec, err := pick(svc)(r.Context(), inventory.StockChangeInput{
			ProductID:   productID,
			Amount:      payload.Amount,
			Reason:      validators.Sanitize(payload.Reason, maxReasonLength),
			OperationID: operationID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newInventoryResponse(rec))
	}
}

// InventoryBatchUpdate applies absolute quantity/threshold updates atomically.
func InventoryBatchUpdate(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !serviceReady(w, r, svc, logg) {
			return
		}

		var payload batchUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updates := make([]inventory.BatchUpdate, 0, len(payload.Updates))
		for _, item := range payload.Updates {
			updates = append(updates, inventory.BatchUpdate{
				ProductID:         uuid.MustParse(item.ProductID),
				Quantity:          item.Quantity,
				LowStockThreshold: item.LowStockThreshold,
				Reason:            validators.Sanitize(item.Reason, maxReasonLength),
			})
		}

		records, err := svc.UpdateBatch(r.Context(), updates)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newInventoryList(records))
	}
}

// InventoryThresholdBatch sets the low stock threshold for every record at a location.
func InventoryThresholdBatch(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !serviceReady(w, r, svc, logg) {
			return
		}

		var payload thresholdBatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		location := validators.Sanitize(payload.Location, 64)
		if location == "" {
			location = inventory.DefaultLocation
		}

		updated, err := svc.UpdateLowStockThresholdBatch(r.Context(), location, *payload.LowStockThreshold)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"location": location, "updated": updated})
	}
}

// InventoryLowStock lists records at or below a threshold. Without a
// threshold each record's own low stock threshold applies.
func InventoryLowStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !serviceReady(w, r, svc, logg) {
			return
		}

		threshold, err := validators.ParseOptionalQueryInt(r, "threshold", 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := svc.FindLowStock(r.Context(), threshold)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newInventoryList(records))
	}
}

// InventoryOutOfStock lists records with nothing available, optionally per location.
func InventoryOutOfStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !serviceReady(w, r, svc, logg) {
			return
		}

		records, err := svc.FindOutOfStock(r.Context(), validators.ParseOptionalQueryString(r, "location"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newInventoryList(records))
	}
}

// InventoryStats reports status counts and per-location aggregates.
func InventoryStats(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !serviceReady(w, r, svc, logg) {
			return
		}

		counts, err := svc.GetStatusCounts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		byLocation, err := svc.GetInventoryStatsByLocation(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if byLocation == nil {
			byLocation = []inventory.LocationStats{}
		}

		responses.WriteSuccess(w, inventoryStats{Counts: counts, ByLocation: byLocation})
	}
}

// InventoryMovements pages through a product's journal, newest first.
func InventoryMovements(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !serviceReady(w, r, svc, logg) {
			return
		}

		productID, err := validators.ParseUUIDParam(r, productIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultMovementLimit, 1, maxMovementLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.Movements(r.Context(), productID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, movementPageResponse{
			Items:      newMovementList(page.Items),
			NextCursor: page.NextCursor,
		})
	}
}

// InventoryDelete removes a product's record and its journal.
func InventoryDelete(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !serviceReady(w, r, svc, logg) {
			return
		}

		productID, err := validators.ParseUUIDParam(r, productIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func serviceReady(w http.ResponseWriter, r *http.Request, svc inventory.Service, logg *logger.Logger) bool {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
		return false
	}
	return true
}

// resolveOperationID merges the body operation_id with the Idempotency-Key
// header. Both must be UUIDs and must agree when both are sent.
func resolveOperationID(r *http.Request, fromBody string) (*uuid.UUID, error) {
	header := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	fromBody = strings.TrimSpace(fromBody)

	var headerID, bodyID *uuid.UUID
	if header != "" {
		id, err := uuid.Parse(header)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "Idempotency-Key must be a uuid").
				WithDetails(map[string]any{"field": idempotencyKeyHeader})
		}
		headerID = &id
	}
	if fromBody != "" {
		id, err := uuid.Parse(fromBody)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "operation_id must be a uuid").
				WithDetails(map[string]any{"field": "operation_id"})
		}
		bodyID = &id
	}

	switch {
	case headerID != nil && bodyID != nil && *headerID != *bodyID:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "operation_id does not match Idempotency-Key").
			WithDetails(map[string]any{"field": "operation_id"})
	case bodyID != nil:
		return bodyID, nil
	default:
		return headerID, nil
	}
}
