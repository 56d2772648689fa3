package enums

import "fmt"

// InventoryStatus is the stock level derived from available units and the
// low stock threshold. It is never persisted.
type InventoryStatus string

const (
	InventoryStatusSufficient InventoryStatus = "SUFFICIENT"
	InventoryStatusLowStock   InventoryStatus = "LOW_STOCK"
	InventoryStatusOutOfStock InventoryStatus = "OUT_OF_STOCK"
)

var validInventoryStatuses = []InventoryStatus{
	InventoryStatusSufficient,
	InventoryStatusLowStock,
	InventoryStatusOutOfStock,
}

// String implements fmt.Stringer.
func (s InventoryStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known InventoryStatus.
func (s InventoryStatus) IsValid() bool {
	for _, candidate := range validInventoryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseInventoryStatus converts raw input into an InventoryStatus.
func ParseInventoryStatus(value string) (InventoryStatus, error) {
	for _, candidate := range validInventoryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory status %q", value)
}

// DeriveInventoryStatus projects available units against the threshold.
func DeriveInventoryStatus(available, lowStockThreshold int) InventoryStatus {
	switch {
	case available <= 0:
		return InventoryStatusOutOfStock
	case available <= lowStockThreshold:
		return InventoryStatusLowStock
	default:
		return InventoryStatusSufficient
	}
}
