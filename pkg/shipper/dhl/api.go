package dhl

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
)

// APIClient defines the interface for DHL Express REST operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// CreateShipment books a shipment and returns the AWB and label
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error)

	// Track retrieves checkpoints for a group of AWB numbers
	Track(ctx context.Context, req *TrackingRequest) (*TrackingResponse, error)
}

// ============================================================================
// Shipment request (POST ShipmentRequest)
// ============================================================================

// ShipmentRequest is the envelope of a shipment booking.
type ShipmentRequest struct {
	ShipmentRequest ShipmentRequestBody `json:"ShipmentRequest"`
}

// ShipmentRequestBody wraps the requested shipment.
type ShipmentRequestBody struct {
	RequestedShipment RequestedShipment `json:"RequestedShipment"`
}

// RequestedShipment describes what is booked.
type RequestedShipment struct {
	ShipmentInfo        ShipmentInfo        `json:"ShipmentInfo"`
	ShipTimestamp       string              `json:"ShipTimestamp"` // "2006-01-02T15:04:05 GMT+00:00"
	PaymentInfo         string              `json:"PaymentInfo"`
	InternationalDetail InternationalDetail `json:"InternationalDetail"`
	Ship                Ship                `json:"Ship"`
	Packages            Packages            `json:"Packages"`
}

// ShipmentInfo carries the service, billing and paperless trade options.
type ShipmentInfo struct {
	DropOffType           string           `json:"DropOffType"`
	ServiceType           string           `json:"ServiceType"`
	Currency              string           `json:"Currency"`
	UnitOfMeasurement     string           `json:"UnitOfMeasurement"`
	LabelType             string           `json:"LabelType"`
	LabelTemplate         string           `json:"LabelTemplate"`
	Billing               Billing          `json:"Billing"`
	PaperlessTradeEnabled bool             `json:"PaperlessTradeEnabled,omitempty"`
	SpecialServices       *SpecialServices `json:"SpecialServices,omitempty"`
	DocumentImages        []DocumentImages `json:"DocumentImages,omitempty"`
}

// Billing selects the account charged for the shipment.
type Billing struct {
	ShipperAccountNumber string `json:"ShipperAccountNumber"`
	ShippingPaymentType  string `json:"ShippingPaymentType"`
}

// SpecialServices lists value added services.
type SpecialServices struct {
	Service Service `json:"Service"`
}

// Service is one value added service.
type Service struct {
	ServiceType string `json:"ServiceType"`
}

// DocumentImages wraps an attached customs document.
type DocumentImages struct {
	DocumentImage DocumentImage `json:"DocumentImage"`
}

// DocumentImage is a base64 encoded customs document.
type DocumentImage struct {
	DocumentImageType   string `json:"DocumentImageType"`
	DocumentImage       string `json:"DocumentImage"`
	DocumentImageFormat string `json:"DocumentImageFormat"`
}

// InternationalDetail carries customs data.
type InternationalDetail struct {
	Commodities Commodities `json:"Commodities"`
	Content     string      `json:"Content"`
}

// Commodities summarizes the shipped goods.
type Commodities struct {
	NumberOfPieces int     `json:"NumberOfPieces"`
	Description    string  `json:"Description"`
	CustomsValue   float64 `json:"CustomsValue"`
}

// Ship holds both parties of the shipment.
type Ship struct {
	Shipper   Party `json:"Shipper"`
	Recipient Party `json:"Recipient"`
}

// Party is a shipper or recipient.
type Party struct {
	Contact             Contact              `json:"Contact"`
	Address             PartyAddress         `json:"Address"`
	RegistrationNumbers *RegistrationNumbers `json:"RegistrationNumbers,omitempty"`
}

// Contact is a party's contact details.
type Contact struct {
	PersonName   string `json:"PersonName"`
	CompanyName  string `json:"CompanyName"`
	PhoneNumber  string `json:"PhoneNumber"`
	EmailAddress string `json:"EmailAddress"`
}

// PartyAddress is a party's postal address.
type PartyAddress struct {
	StreetLines         string `json:"StreetLines"`
	StreetLines2        string `json:"StreetLines2,omitempty"`
	StreetLines3        string `json:"StreetLines3,omitempty"`
	City                string `json:"City"`
	StateOrProvinceCode string `json:"StateOrProvinceCode,omitempty"`
	PostalCode          string `json:"PostalCode"`
	CountryCode         string `json:"CountryCode"`
}

// RegistrationNumbers carries the consignee tax id.
type RegistrationNumbers struct {
	RegistrationNumber RegistrationNumber `json:"RegistrationNumber"`
}

// RegistrationNumber is a tax or VAT id.
type RegistrationNumber struct {
	Number                  string `json:"Number"`
	NumberTypeCode          string `json:"NumberTypeCode"`
	NumberIssuerCountryCode string `json:"NumberIssuerCountryCode"`
}

// Packages lists the boxes of the shipment.
type Packages struct {
	RequestedPackages []RequestedPackage `json:"RequestedPackages"`
}

// RequestedPackage is one box.
type RequestedPackage struct {
	Number             string     `json:"@number"`
	Weight             float64    `json:"Weight"`
	Dimensions         Dimensions `json:"Dimensions"`
	CustomerReferences string     `json:"CustomerReferences"`
}

// Dimensions of a box in centimetres.
type Dimensions struct {
	Length int `json:"Length"`
	Width  int `json:"Width"`
	Height int `json:"Height"`
}

// ShipmentResponse is the answer to a shipment booking.
type ShipmentResponse struct {
	ShipmentResponse ShipmentResult `json:"ShipmentResponse"`
}

// ShipmentResult carries the AWB and label, or notifications on failure.
type ShipmentResult struct {
	Notification                 oneOrMany[Notification] `json:"Notification"`
	ShipmentIdentificationNumber flexString              `json:"ShipmentIdentificationNumber"`
	LabelImage                   []LabelImage            `json:"LabelImage"`
}

// Notification is a message attached to a response.
type Notification struct {
	Code    flexString `json:"@code"`
	Message string     `json:"Message"`
}

// LabelImage is a base64 encoded label.
type LabelImage struct {
	LabelImageFormat string `json:"LabelImageFormat"`
	GraphicImage     string `json:"GraphicImage"`
}

// ============================================================================
// Tracking request (POST TrackingRequest)
// ============================================================================

// TrackingRequest is the envelope of a tracking query.
type TrackingRequest struct {
	TrackShipmentRequest TrackShipmentRequest `json:"trackShipmentRequest"`
}

// TrackShipmentRequest wraps the tracking query.
type TrackShipmentRequest struct {
	TrackingRequest TrackingRequestWrapper `json:"trackingRequest"`
}

// TrackingRequestWrapper wraps the tracking query body.
type TrackingRequestWrapper struct {
	TrackingRequest TrackingQuery `json:"TrackingRequest"`
}

// TrackingQuery lists the AWBs to look up.
type TrackingQuery struct {
	Request        RequestHeader `json:"Request"`
	AWBNumber      AWBNumbers    `json:"AWBNumber"`
	LevelOfDetails string        `json:"LevelOfDetails"`
	PiecesEnabled  string        `json:"PiecesEnabled"`
}

// RequestHeader identifies the message.
type RequestHeader struct {
	ServiceHeader ServiceHeader `json:"ServiceHeader"`
}

// ServiceHeader carries the message time and reference.
type ServiceHeader struct {
	MessageTime      string `json:"MessageTime"`
	MessageReference string `json:"MessageReference"`
}

// AWBNumbers lists AWB numbers.
type AWBNumbers struct {
	ArrayOfAWBNumberItem []string `json:"ArrayOfAWBNumberItem"`
}

// TrackingResponse is the answer to a tracking query.
type TrackingResponse struct {
	TrackShipmentRequestResponse struct {
		TrackingResponse struct {
			TrackingResponse struct {
				AWBInfo struct {
					ArrayOfAWBInfoItem oneOrMany[AWBInfo] `json:"ArrayOfAWBInfoItem"`
				} `json:"AWBInfo"`
			} `json:"TrackingResponse"`
		} `json:"trackingResponse"`
	} `json:"trackShipmentRequestResponse"`
}

// Items returns the per-AWB results.
func (r *TrackingResponse) Items() []AWBInfo {
	return r.TrackShipmentRequestResponse.TrackingResponse.TrackingResponse.AWBInfo.ArrayOfAWBInfoItem
}

// AWBInfo is the tracking result of one AWB.
type AWBInfo struct {
	AWBNumber    flexString   `json:"AWBNumber"`
	Status       ActionStatus `json:"Status"`
	ShipmentInfo struct {
		ShipmentEvent *struct {
			ArrayOfShipmentEventItem oneOrMany[ShipmentEvent] `json:"ArrayOfShipmentEventItem"`
		} `json:"ShipmentEvent"`
	} `json:"ShipmentInfo"`
}

// ActionStatus tells whether the AWB could be looked up.
type ActionStatus struct {
	ActionStatus string `json:"ActionStatus"`
	Condition    *struct {
		ArrayOfConditionItem oneOrMany[Condition] `json:"ArrayOfConditionItem"`
	} `json:"Condition"`
}

// Condition is an error detail.
type Condition struct {
	ConditionCode flexString `json:"ConditionCode"`
	ConditionData string     `json:"ConditionData"`
}

// ShipmentEvent is one checkpoint.
type ShipmentEvent struct {
	Date         string `json:"Date"` // "2006-01-02"
	Time         string `json:"Time"` // "15:04:05"
	ServiceEvent struct {
		EventCode   string `json:"EventCode"`
		Description string `json:"Description"`
	} `json:"ServiceEvent"`
}

// APIError represents an error from the DHL API.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// oneOrMany decodes a JSON value that DHL sends as an object when there is
// a single item and as an array otherwise.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}
	if data[0] == '[' {
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*o = []T{one}
	return nil
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	*f = flexString(s)
	return nil
}
