package planning

import (
	"encoding/json"
	"fmt"

	"github.com/wesleyorama2/maplink/pkg/api"
	"github.com/wesleyorama2/maplink/pkg/validation"
)

// TimeWindow is a period in unix milliseconds.
type TimeWindow struct {
	Start int64 `json:"start"`
	End   int64 `json:"end" validate:"gtefield=Start"`
}

// Coordinates is a point in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// LegislationProfile limits driving and working times.
type LegislationProfile struct {
	Name                     string `json:"name" validate:"required"`
	DrivingPauseDuration     int64  `json:"drivingPauseDuration,omitempty"`
	WorkingPauseDuration     int64  `json:"workingPauseDuration,omitempty"`
	MaxContinuousDrivingTime int64  `json:"maxContinuousDrivingTime,omitempty"`
	MaxContinuousWorkingTime int64  `json:"maxContinuousWorkingTime,omitempty"`
}

// LogisticZone groups sites.
type LogisticZone struct {
	Name         string `json:"name" validate:"required"`
	ZonePriority string `json:"zonePriority" validate:"oneof=PRIORITARY SECUNDARY"`
}

// LogisticConstraint describes loading and unloading at a site.
type LogisticConstraint struct {
	Name                     string `json:"name" validate:"required"`
	LoadingMaxSize           int    `json:"loadingMaxSize,omitempty"`
	UnloadingMaxSize         int    `json:"unloadingMaxSize,omitempty"`
	SiteLoadingFixedTime     int64  `json:"siteLoadingFixedTime,omitempty"`
	SiteUnloadingFixedTime   int64  `json:"siteUnloadingFixedTime,omitempty"`
	LoadingPositionInRoute   string `json:"loadingPositionInRoute,omitempty" validate:"omitempty,oneof=INDIFFERENT FIRST LAST ALONE"`
	UnloadingPositionInRoute string `json:"unloadingPositionInRoute,omitempty" validate:"omitempty,oneof=INDIFFERENT FIRST LAST ALONE"`
}

// Site is a depot or a customer.
type Site struct {
	Name                string      `json:"name" validate:"required"`
	LogisticZones       string      `json:"logisticZones,omitempty"`
	LogisticConstraints string      `json:"logisticConstraints" validate:"required"`
	Coordinates         Coordinates `json:"coordinates"`
}

// Compartment is a part of a vehicle's load space.
type Compartment struct {
	Name              string   `json:"name" validate:"required"`
	Increment         float64  `json:"increment,omitempty"`
	MaximumCapacity   float64  `json:"maximumCapacity"`
	AllowedPackagings []string `json:"allowedPackagings,omitempty"`
	LoadingRule       string   `json:"loadingRule" validate:"oneof=NONE SINGLE_OPERATION IDENTICAL_PRODUCTS IDENTICAL_PACKAGINGS IDENTICAL_SITE_PRODUCTS"`
}

// CompartmentConfiguration is a named set of compartments.
type CompartmentConfiguration struct {
	Name         string        `json:"name" validate:"required"`
	Compartments []Compartment `json:"compartments" validate:"min=1,dive"`
}

// VehicleType describes the capacity of a kind of vehicle.
type VehicleType struct {
	Name                              string                     `json:"name" validate:"required"`
	Characteristics                   string                     `json:"characteristics,omitempty"`
	Size                              float64                    `json:"size"`
	MaxWeight                         float64                    `json:"maxWeight"`
	MaxVolume                         float64                    `json:"maxVolume"`
	MaxSitesNumber                    int                        `json:"maxSitesNumber,omitempty"`
	MinAvailableCapacityForCollection float64                    `json:"minAvaibleCapacityForCollection,omitempty"`
	CompartmentsAccessMode            string                     `json:"compartmentsAccessMode,omitempty" validate:"omitempty,oneof=ALL_COMPARTMENTS REAR_ACCESS"`
	CompartmentConfigurations         []CompartmentConfiguration `json:"compartmentConfigurations,omitempty" validate:"dive"`
	Trip                              json.RawMessage            `json:"trip,omitempty"`
}

// AvailablePeriod is when a vehicle can be used.
type AvailablePeriod struct {
	ArrivalSite     string     `json:"arrivalSite,omitempty"`
	DepartureSite   string     `json:"departureSite,omitempty"`
	TimeWindow      TimeWindow `json:"timeWindow"`
	MaxRoutesNumber int        `json:"maxRoutesNumber,omitempty"`
}

// Vehicle is one vehicle of the fleet.
type Vehicle struct {
	Name               string            `json:"name" validate:"required"`
	VehicleType        string            `json:"vehicleType" validate:"required"`
	LogisticZones      string            `json:"logisticZones,omitempty"`
	LegislationProfile string            `json:"legislationProfile,omitempty"`
	AvailablePeriods   []AvailablePeriod `json:"availablePeriods" validate:"min=1,dive"`
}

// Product is something operations carry.
type Product struct {
	Name       string   `json:"name" validate:"required"`
	Type       string   `json:"type,omitempty"`
	Packagings []string `json:"packagings,omitempty"`
}

// Operation is a delivery or a collection.
type Operation struct {
	ID                       string       `json:"id" validate:"required"`
	Type                     string       `json:"type" validate:"oneof=DELIVERY COLLECTION"`
	DepotSite                string       `json:"depotSite" validate:"required"`
	CustomerSite             string       `json:"customerSite" validate:"required"`
	DepotTimeWindows         []TimeWindow `json:"depotTimeWindows,omitempty" validate:"dive"`
	CustomerTimeWindows      []TimeWindow `json:"customerTimeWindows" validate:"min=1,dive"`
	DepotHandlingDuration    int64        `json:"depotHandlingDuration,omitempty"`
	CustomerHandlingDuration int64        `json:"customerHandlingDuration,omitempty"`
	Product                  string       `json:"product" validate:"required"`
	Volume                   float64      `json:"volume"`
	Weight                   float64      `json:"weight"`
	Group                    string       `json:"group,omitempty"`
	Quantity                 int          `json:"quantity,omitempty"`
	PreAllocatedVehicleName  string       `json:"preAllocatedVehicleName,omitempty"`
}

// Problem is a vehicle routing problem submitted for optimization.
type Problem struct {
	StartDate           int64  `json:"startDate,omitempty"`
	TripsProfile        string `json:"tripsProfile" validate:"oneof=MAPLINKBR MAPLINK LINEAR"`
	OptimizationProfile string `json:"optimizationProfile" validate:"oneof=BRAZIL37 BRAZIL46 BRAZIL_AVG_LOAD_RATE BRAZIL_VRP_PICKUP"`
	CalculationMode     string `json:"calculationMode,omitempty" validate:"omitempty,oneof=THE_FASTEST THE_SHORTEST"`

	LegislationProfiles []LegislationProfile `json:"legislationProfiles" validate:"min=1,dive"`
	LogisticConstraints []LogisticConstraint `json:"logisticConstraints" validate:"min=1,dive"`
	VehicleTypes        []VehicleType        `json:"vehicleTypes" validate:"min=1,dive"`
	LogisticZones       []LogisticZone       `json:"logisticZones,omitempty" validate:"omitempty,min=1,dive"`

	Vehicles []Vehicle `json:"vehicles" validate:"min=1,dive"`
	Depots   []Site    `json:"depots" validate:"min=1,dive"`
	Sites    []Site    `json:"sites" validate:"min=1,dive"`
	Products []Product `json:"products" validate:"min=1,dive"`

	Operations       []Operation     `json:"operations" validate:"min=1,dive"`
	RestrictionZones []string        `json:"restritionZones,omitempty"`
	Trip             json.RawMessage `json:"trip,omitempty"`

	Callback *api.Callback `json:"callback,omitempty"`
}

// WithCallback implements api.CallbackCarrier with a shallow copy of p.
func (p *Problem) WithCallback(cb *api.Callback) any {
	c := *p
	c.Callback = cb
	return &c
}

// Validate checks the required lists and that every reference in the
// problem names something it defines.
func (p *Problem) Validate() error {
	if err := validation.Struct(p); err != nil {
		return err
	}

	names := func(n int, name func(int) string) map[string]bool {
		set := make(map[string]bool, n)
		for i := 0; i < n; i++ {
			set[name(i)] = true
		}
		return set
	}
	vehicleTypes := names(len(p.VehicleTypes), func(i int) string { return p.VehicleTypes[i].Name })
	constraints := names(len(p.LogisticConstraints), func(i int) string { return p.LogisticConstraints[i].Name })
	depots := names(len(p.Depots), func(i int) string { return p.Depots[i].Name })
	sites := names(len(p.Sites), func(i int) string { return p.Sites[i].Name })
	products := names(len(p.Products), func(i int) string { return p.Products[i].Name })

	var fields []validation.FieldError
	unknown := func(field, value string) {
		fields = append(fields, validation.FieldError{Field: field, Tag: "unknown", Param: value})
	}

	for i, v := range p.Vehicles {
		if !vehicleTypes[v.VehicleType] {
			unknown(fmt.Sprintf("vehicles[%d].vehicleType", i), v.VehicleType)
		}
	}
	for i, s := range p.Depots {
		if !constraints[s.LogisticConstraints] {
			unknown(fmt.Sprintf("depots[%d].logisticConstraints", i), s.LogisticConstraints)
		}
	}
	for i, s := range p.Sites {
		if !constraints[s.LogisticConstraints] {
			unknown(fmt.Sprintf("sites[%d].logisticConstraints", i), s.LogisticConstraints)
		}
	}
	for i, op := range p.Operations {
		if !depots[op.DepotSite] {
			unknown(fmt.Sprintf("operations[%d].depotSite", i), op.DepotSite)
		}
		if !sites[op.CustomerSite] {
			unknown(fmt.Sprintf("operations[%d].customerSite", i), op.CustomerSite)
		}
		if !products[op.Product] {
			unknown(fmt.Sprintf("operations[%d].product", i), op.Product)
		}
	}

	if len(fields) > 0 {
		return &validation.Error{Fields: fields}
	}
	return nil
}
