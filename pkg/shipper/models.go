package shipper

import (
	"time"

	"github.com/tournevent/fulfillment/pkg/milestone"
)

// Carrier identifiers.
const (
	CarrierAramex    = "aramex"
	CarrierAramexSA  = "aramex_sa"
	CarrierDHL       = "dhl"
	CarrierNaqel     = "naqel"
	CarrierPostaPlus = "postaplus"
	CarrierSMSA      = "smsa"
)

// Carriers lists every carrier the system knows about.
var Carriers = []string{
	CarrierAramex,
	CarrierAramexSA,
	CarrierDHL,
	CarrierNaqel,
	CarrierPostaPlus,
	CarrierSMSA,
}

// DeliveryType tells whether a shipment stays inside the origin country.
type DeliveryType string

const (
	DeliveryLocal         DeliveryType = "local"
	DeliveryInternational DeliveryType = "international"
)

// ShippingMethod is the delivery option the customer picked at checkout.
type ShippingMethod string

const (
	MethodHomeDelivery    ShippingMethod = "home_delivery"
	MethodClickAndCollect ShippingMethod = "click_and_collect"
)

// OrderStatus is the fulfillment status of an order.
type OrderStatus string

const (
	OrderComplete     OrderStatus = "complete"
	OrderNotDelivered OrderStatus = "not_delivered"
	OrderDelivered    OrderStatus = "delivered"
)

// DocumentKind identifies a rendered document.
type DocumentKind string

const (
	DocumentShipping DocumentKind = "shipping"
	DocumentInvoice  DocumentKind = "invoice"
)

// Address represents a delivery address.
type Address struct {
	FullName   string
	Address    string
	District   string
	City       string
	BaseCities []string // alternative spellings of City, tried in order
	Country    string   // ISO 3166-1 alpha-2, e.g., "SA", "AE"
	Postcode   string
	Phone      string
	Fax        string
	Latitude   float64
	Longitude  float64
}

// IdentityDocument is the customer's national ID, required for some customs clearances.
type IdentityDocument struct {
	Type   string
	Number string
}

// Item is one order line shipped in a shipment.
type Item struct {
	SKU           string
	Name          string
	Quantity      int
	UnitPrice     float64
	HSCode        string
	OriginCountry string
	Transit       bool // shipped from a partner warehouse
}

// Order carries the order attributes carriers need.
type Order struct {
	ID               int64
	Code             string
	Channel          string
	Status           OrderStatus
	Currency         string
	BaseCurrency     string
	IsCOD            bool
	Email            string
	ShippingAddress  Address
	ShippingMethod   ShippingMethod
	SelectedCarrier  string
	ServicePointCode string
	ExtraFee         float64
	ShippedTotal     float64
	ShippingAmount   float64
	Document         *IdentityDocument
	DeliveredDate    *time.Time
}

// Shipment is one parcel of an order.
type Shipment struct {
	ID             int64
	Order          *Order
	TrackingNumber string
	Carrier        string
	BoxQty         int
	DeliveryType   DeliveryType
	CurrentStatus  milestone.Milestone
	ShippedDate    *time.Time
	DeliveredDate  *time.Time
	Items          []Item
	DeclaredValue  float64
	CODAmount      float64
	Label          []byte
}

// ShippedQuantity returns the number of units in the shipment.
func (s *Shipment) ShippedQuantity() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

// IsLocal reports whether the shipment is delivered inside the origin country.
func (s *Shipment) IsLocal() bool {
	return s.DeliveryType == DeliveryLocal
}

// Country returns the destination country code.
func (s *Shipment) Country() string {
	if s.Order == nil {
		return ""
	}
	return s.Order.ShippingAddress.Country
}

// Channel returns the sales channel of the order.
func (s *Shipment) Channel() string {
	if s.Order == nil {
		return ""
	}
	return s.Order.Channel
}

// Document is a rendered document.
type Document struct {
	Kind        DocumentKind
	Variant     string
	ContentType string
	Data        []byte
}

// RawEvent is a carrier tracking event before normalization.
type RawEvent struct {
	TrackingNumber string
	Code           string
	Time           time.Time
	Text           string
}

// ServicePoint is a carrier pickup location.
type ServicePoint struct {
	Carrier   string
	Code      string
	Name      string
	Country   string
	City      string
	Address   string
	AddressAr string
	Phone     string
	Latitude  float64
	Longitude float64
}

// ============================================================================
// Request/Response Types
// ============================================================================

// SendRequest is the request for registering a shipment with a carrier.
type SendRequest struct {
	Shipment *Shipment
	Numbers  NumberTaker
}

// SendResponse is the response from registering a shipment.
type SendResponse struct {
	TrackingNumber string
	Label          []byte
}

// TrackRequest is the request for polling tracking events.
type TrackRequest struct {
	TrackingNumbers []string
}

// TrackResponse is the response from polling tracking events.
type TrackResponse struct {
	Events  []RawEvent
	Skipped []string // tracking numbers the carrier could not answer for
}
