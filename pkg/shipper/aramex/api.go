package aramex

import (
	"context"
	"fmt"
)

// APIClient defines the interface for the Aramex location service.
type APIClient interface {
	// FetchAllLocations lists the pickup locations of a country
	FetchAllLocations(ctx context.Context, req *LocationsRequest) (*LocationsResponse, error)
}

// Uploader stores manifest files on the Aramex exchange server.
type Uploader interface {
	Upload(ctx context.Context, remotePath string, data []byte) error
}

// LocationsRequest is the body of FetchAllLocations.
type LocationsRequest struct {
	ClientInfo  ClientInfo `json:"ClientInfo"`
	CountryCode string     `json:"CountryCode"`
}

// ClientInfo identifies the Aramex account.
type ClientInfo struct {
	UserName           string `json:"UserName"`
	Password           string `json:"Password"`
	AccountNumber      string `json:"AccountNumber"`
	AccountPin         string `json:"AccountPin"`
	AccountEntity      string `json:"AccountEntity"`
	AccountCountryCode string `json:"AccountCountryCode"`
	Version            string `json:"Version"`
}

// LocationsResponse is the answer of FetchAllLocations.
type LocationsResponse struct {
	HasErrors     bool           `json:"HasErrors"`
	Notifications []Notification `json:"Notifications"`
	Locations     []Location     `json:"Locations"`
}

// Notification is a message attached to a response.
type Notification struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

// Location is one Aramex pickup point.
type Location struct {
	ID           string          `json:"ID"`
	Description  string          `json:"Description"`
	Telephone    string          `json:"Telephone"`
	WorkingHours string          `json:"WorkingHours"`
	Address      LocationAddress `json:"Address"`
}

// LocationAddress is the address block of a location.
type LocationAddress struct {
	Line1       string  `json:"Line1"`
	Line2       string  `json:"Line2"`
	Line3       string  `json:"Line3"`
	City        string  `json:"City"`
	PostCode    string  `json:"PostCode"`
	CountryCode string  `json:"CountryCode"`
	Latitude    float64 `json:"Latitude"`
	Longitude   float64 `json:"Longitude"`
}

// APIError represents an error response from the location service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("HTTP_%d: %s", e.StatusCode, e.Message)
}
