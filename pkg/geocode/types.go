package geocode

import "errors"

// Approach is the precision of a geocoding result.
type Approach string

const (
	ApproachZipcode  Approach = "ZIPCODE"
	ApproachState    Approach = "STATE"
	ApproachCity     Approach = "CITY"
	ApproachDistrict Approach = "DISTRICT"
)

// ErrEmptyAddress is returned when an address has no searchable field.
var ErrEmptyAddress = errors.New("geocode: address must have at least one field")

// Coords is a point in decimal degrees.
type Coords struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// Address is a full or partial address to search for.
type Address struct {
	Road     string   `json:"road,omitempty"`
	Number   int      `json:"number,omitempty"`
	City     string   `json:"city,omitempty"`
	State    string   `json:"state,omitempty"`
	Country  string   `json:"country,omitempty"`
	District string   `json:"district,omitempty"`
	Zipcode  string   `json:"zipcode,omitempty"`
	Type     Approach `json:"type,omitempty" validate:"omitempty,oneof=ZIPCODE STATE CITY DISTRICT"`
}

// Empty reports whether no searchable field is set.
func (a Address) Empty() bool {
	return a.Road == "" && a.Number == 0 && a.City == "" && a.State == "" &&
		a.Country == "" && a.District == "" && a.Zipcode == ""
}

// AddressQuery is an address of a batch search, identified by ID in the results.
type AddressQuery struct {
	ID string `json:"id" validate:"required"`
	Address
}

// CoordsQuery is a point of a batch reverse search.
type CoordsQuery struct {
	ID string `json:"id" validate:"required"`
	Coords
}

// State is a state of a result address.
type State struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ResultAddress is the address of a result. The extended fields are only
// filled by batch reverse searches.
type ResultAddress struct {
	Road         string `json:"road"`
	Number       string `json:"number,omitempty"`
	District     string `json:"district"`
	ZipCode      string `json:"zipCode"`
	City         string `json:"city"`
	State        State  `json:"state"`
	MainLocation Coords `json:"mainLocation"`

	Geometry         []Coords `json:"geometry,omitempty"`
	LeftZipCode      string   `json:"leftZipCode,omitempty"`
	RightZipCode     string   `json:"rightZipCode,omitempty"`
	LeftFirstNumber  int      `json:"leftFirstNumber,omitempty"`
	LeftLastNumber   int      `json:"leftLastNumber,omitempty"`
	RightFirstNumber int      `json:"rightFirstNumber,omitempty"`
	RightLastNumber  int      `json:"rightLastNumber,omitempty"`
}

// Result is one match.
type Result struct {
	ID       string        `json:"id"`
	Address  ResultAddress `json:"address"`
	Type     Approach      `json:"type"`
	Score    float64       `json:"score"`
	Distance *float64      `json:"distance,omitempty"`
	Label    string        `json:"label"`
}

// Response is the answer of every search.
type Response struct {
	Found   int      `json:"found"`
	Results []Result `json:"results"`
}
