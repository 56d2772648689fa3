package enums

import "fmt"

// StockMovementType maps to the type column of stock_movements.
type StockMovementType string

const (
	StockMovementTypeReduce     StockMovementType = "reduce"
	StockMovementTypeRestock    StockMovementType = "restock"
	StockMovementTypeAdjustment StockMovementType = "adjustment"
)

var validStockMovementTypes = []StockMovementType{
	StockMovementTypeReduce,
	StockMovementTypeRestock,
	StockMovementTypeAdjustment,
}

func (t StockMovementType) String() string {
	return string(t)
}

// IsValid reports whether the value matches a known movement type.
func (t StockMovementType) IsValid() bool {
	for _, candidate := range validStockMovementTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseStockMovementType converts raw input into StockMovementType.
func ParseStockMovementType(value string) (StockMovementType, error) {
	for _, candidate := range validStockMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock movement type %q", value)
}
