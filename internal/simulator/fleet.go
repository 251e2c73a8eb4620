package simulator

import (
	"github.com/shopspring/decimal"
	"github.com/ukydev/fleetfusion/internal/models"
)

// TruckConfig is the static definition of a tracked truck.
type TruckConfig struct {
	ID          string
	Driver      string
	ContractID  string
	Origin      models.Coordinate
	Destination models.Coordinate
	CargoValue  decimal.Decimal
	Velocity    float64 // km/h, also the nominal speed restored after a fix
}

// ReferenceFleet returns the three demo trucks.
func ReferenceFleet() []TruckConfig {
	return []TruckConfig{
		{
			ID:          "TRK-402",
			Driver:      "Priya Sharma",
			ContractID:  "CNT-2024-001",
			Origin:      models.NewCoordinate(73.8567, 18.5204), // Pune
			Destination: models.NewCoordinate(72.8777, 19.0760), // Mumbai
			CargoValue:  decimal.NewFromInt(120000),
			Velocity:    68,
		},
		{
			ID:          "TRK-305",
			Driver:      "Rajesh Kumar",
			ContractID:  "CNT-2024-002",
			Origin:      models.NewCoordinate(77.5946, 12.9716), // Bangalore
			Destination: models.NewCoordinate(78.4867, 17.3850), // Hyderabad
			CargoValue:  decimal.NewFromInt(85000),
			Velocity:    72,
		},
		{
			ID:          "TRK-518",
			Driver:      "Amit Patel",
			ContractID:  "CNT-2024-003",
			Origin:      models.NewCoordinate(88.3639, 22.5726), // Kolkata
			Destination: models.NewCoordinate(85.8245, 20.2961), // Bhubaneswar
			CargoValue:  decimal.NewFromInt(95000),
			Velocity:    65,
		},
	}
}
