package inventory

import (
	"github.com/angelmondragon/stockledger/pkg/db/models"
)

func toModel(r *Record) *models.InventoryRecord {
	return &models.InventoryRecord{
		ID:                r.ID,
		ProductID:         r.ProductID,
		Quantity:          r.Quantity,
		AvailableQuantity: r.AvailableQuantity,
		LowStockThreshold: r.LowStockThreshold,
		Location:          normalizeLocation(r.Location),
		LastRestockedAt:   r.LastRestockedAt,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// fromModel rebuilds the domain record. Reservations are not persisted and
// load as zero.
func fromModel(m *models.InventoryRecord) *Record {
	return &Record{
		ID:                m.ID,
		ProductID:         m.ProductID,
		Quantity:          m.Quantity,
		AvailableQuantity: m.AvailableQuantity,
		LowStockThreshold: m.LowStockThreshold,
		Location:          m.Location,
		LastRestockedAt:   m.LastRestockedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		Version:           m.Version,
	}
}

func fromModels(rows []models.InventoryRecord) []*Record {
	out := make([]*Record, 0, len(rows))
	for i := range rows {
		out = append(out, fromModel(&rows[i]))
	}
	return out
}
