// Package dhl provides integration with the DHL Express REST API.
package dhl

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/tournevent/fulfillment/pkg/shipper/citycode"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	carrierName   = shipper.CarrierDHL
	actionSuccess = "Success"
	batchSize     = 100
	eventLayout   = "2006-01-02T15:04:05"

	defaultDescription = "Clothes,shoes,cosmetics"
)

// Invoices travel as paperless trade documents to these countries.
var paperlessCountries = map[string]bool{"BH": true, "OM": true, "SA": true, "AE": true}

// Config holds DHL configuration.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	Settings shipper.Settings
	Cities   *citycode.Table
	UseMock  bool // When true, uses mock API client
}

// Client is the DHL carrier client.
// It implements shipper.Carrier and shipper.Tracker and delegates
// API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	deps      shipper.Deps
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// New creates a new DHL client.
// If cfg.UseMock is true, it uses a mock API client for testing.
// Otherwise, it uses the real HTTP API client.
func New(cfg Config, deps shipper.Deps, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:  cfg.BaseURL,
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  cfg.Timeout,
		})
	}

	return NewWithAPIClient(cfg, deps, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new DHL client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, deps shipper.Deps, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return &Client{
		config:    cfg,
		deps:      deps,
		apiClient: apiClient,
		logger:    logger,
		tracer:    shipper.TracerOrNoop(tracer),
		now:       time.Now,
	}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

// BatchSize returns the number of AWBs per tracking request.
func (c *Client) BatchSize() int {
	return batchSize
}

// CanSendShipment accepts prepaid international SAR orders to a known city.
func (c *Client) CanSendShipment(ctx context.Context, shipment *shipper.Shipment) (bool, error) {
	order := shipment.Order
	if shipment.DeliveryType != shipper.DeliveryInternational || order.IsCOD || order.Currency != "SAR" {
		return false, nil
	}
	_, err := c.cityCode(shipment)
	return err == nil, nil
}

// CreateShippingDocument returns the label DHL issued at send time.
func (c *Client) CreateShippingDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	if len(shipment.Label) == 0 {
		return nil, fmt.Errorf("%s label for shipment %d: %w", carrierName, shipment.ID, shipper.ErrDocumentNotAvailable)
	}
	return &shipper.Document{
		Kind:        shipper.DocumentShipping,
		Variant:     carrierName,
		ContentType: "application/pdf",
		Data:        shipment.Label,
	}, nil
}

// CreateInvoiceDocument renders the commercial invoice.
func (c *Client) CreateInvoiceDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	return c.deps.Documents.Render(ctx, shipper.DocumentInvoice, carrierName, shipment)
}

// SendShipment books the shipment and returns the AWB with its label.
func (c *Client) SendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	ctx, span := c.tracer.Start(ctx, "dhl.SendShipment")
	defer span.End()

	shipment := req.Shipment
	span.SetAttributes(attribute.Int64("shipment.id", shipment.ID))

	c.logger.Info("Sending DHL shipment",
		zap.Int64("shipment_id", shipment.ID),
		zap.String("order_code", shipment.Order.Code),
		zap.Int("box_qty", shipment.BoxQty),
	)

	city, err := c.cityCode(shipment)
	if err != nil {
		return nil, shipper.Fatal(carrierName, "INVALID_DESTINATION",
			fmt.Sprintf("city code for city %q was not found", shipment.Order.ShippingAddress.City)).
			WithCause(shipper.ErrInvalidDestination)
	}

	var invoice *shipper.Document
	if paperlessCountries[shipment.Country()] {
		invoice, err = c.CreateInvoiceDocument(ctx, shipment)
		if err != nil {
			return nil, shipper.Retryable(carrierName, "INVOICE", "cannot render invoice").WithCause(err)
		}
	}

	apiReq := c.shipmentRequest(shipment, city, invoice)

	apiResp, err := c.apiClient.CreateShipment(ctx, apiReq)
	if err != nil {
		c.logger.Error("DHL API error", zap.Int64("shipment_id", shipment.ID), zap.Error(err))
		span.RecordError(err)
		return nil, convertError(err)
	}

	result := apiResp.ShipmentResponse
	if result.ShipmentIdentificationNumber == "" || len(result.LabelImage) == 0 {
		return nil, shipper.Fatal(carrierName, "MISSING_KEY", "response without AWB or label")
	}

	label, err := base64.StdEncoding.DecodeString(result.LabelImage[0].GraphicImage)
	if err != nil {
		return nil, shipper.Fatal(carrierName, "LABEL", "label is not valid base64").WithCause(err)
	}

	return &shipper.SendResponse{
		TrackingNumber: string(result.ShipmentIdentificationNumber),
		Label:          label,
	}, nil
}

// ResendShipment is refused: a second booking would create a second AWB.
func (c *Client) ResendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	return nil, shipper.Fatal(carrierName, "RESEND_NOT_ALLOWED", "Resend for DHL carrier is not allowed").
		WithCause(shipper.ErrResendNotAllowed)
}

// IsRetryable delegates to the shared predicate.
func (c *Client) IsRetryable(err error) bool {
	return shipper.IsRetryable(err)
}

// Track fetches checkpoints for up to BatchSize AWBs.
func (c *Client) Track(ctx context.Context, req *shipper.TrackRequest) (*shipper.TrackResponse, error) {
	ctx, span := c.tracer.Start(ctx, "dhl.Track")
	defer span.End()
	span.SetAttributes(attribute.Int("awb.count", len(req.TrackingNumbers)))

	now := c.now().UTC()
	apiReq := &TrackingRequest{}
	query := &apiReq.TrackShipmentRequest.TrackingRequest.TrackingRequest
	query.Request.ServiceHeader = ServiceHeader{
		MessageTime:      now.Format("2006-01-02T15:04:05Z"),
		MessageReference: messageReference(),
	}
	query.AWBNumber.ArrayOfAWBNumberItem = req.TrackingNumbers
	query.LevelOfDetails = "ALL_CHECKPOINTS"
	query.PiecesEnabled = "B"

	apiResp, err := c.apiClient.Track(ctx, apiReq)
	if err != nil {
		span.RecordError(err)
		return nil, convertError(err)
	}

	resp := &shipper.TrackResponse{}
	for _, info := range apiResp.Items() {
		awb := string(info.AWBNumber)
		if info.Status.ActionStatus != actionSuccess {
			c.logger.Error("DHL tracking status error",
				zap.String("tracking_number", awb),
				zap.String("action_status", info.Status.ActionStatus),
			)
			resp.Skipped = append(resp.Skipped, awb)
			continue
		}
		if info.ShipmentInfo.ShipmentEvent == nil {
			c.logger.Debug("DHL empty shipment events", zap.String("tracking_number", awb))
			continue
		}
		for _, ev := range info.ShipmentInfo.ShipmentEvent.ArrayOfShipmentEventItem {
			at, err := time.Parse(eventLayout, ev.Date+"T"+ev.Time)
			if err != nil {
				c.logger.Warn("DHL event with unparsable date",
					zap.String("tracking_number", awb),
					zap.String("date", ev.Date),
					zap.String("time", ev.Time),
				)
				continue
			}
			resp.Events = append(resp.Events, shipper.RawEvent{
				TrackingNumber: awb,
				Code:           ev.ServiceEvent.EventCode,
				Time:           at,
				Text:           ev.ServiceEvent.Description,
			})
		}
	}
	return resp, nil
}

// ============================================================================
// Conversion helpers
// ============================================================================

func (c *Client) cityCode(shipment *shipper.Shipment) (string, error) {
	addr := shipment.Order.ShippingAddress
	cities := append([]string{addr.City}, addr.BaseCities...)
	code, err := c.config.Cities.Lookup(addr.Country, cities...)
	if err != nil {
		return "", fmt.Errorf("%w: %s", shipper.ErrCityCodeNotFound, addr.City)
	}
	return code, nil
}

func (c *Client) shipmentRequest(shipment *shipper.Shipment, city string, invoice *shipper.Document) *ShipmentRequest {
	order := shipment.Order
	settings := c.config.Settings.Channel(order.Channel)

	account := settings.String("pp_account")
	if order.IsCOD {
		account = settings.String("cod_account")
	}

	info := ShipmentInfo{
		DropOffType:       "REGULAR_PICKUP",
		ServiceType:       "P",
		Currency:          order.BaseCurrency,
		UnitOfMeasurement: "SI",
		LabelType:         "PDF",
		LabelTemplate:     "ECOM26_84_001",
		Billing: Billing{
			ShipperAccountNumber: account,
			ShippingPaymentType:  "S",
		},
	}
	if invoice != nil {
		info.PaperlessTradeEnabled = true
		info.SpecialServices = &SpecialServices{Service: Service{ServiceType: "WY"}}
		info.DocumentImages = []DocumentImages{{DocumentImage: DocumentImage{
			DocumentImageType:   "INV",
			DocumentImage:       base64.StdEncoding.EncodeToString(invoice.Data),
			DocumentImageFormat: "PDF",
		}}}
	}

	return &ShipmentRequest{ShipmentRequest: ShipmentRequestBody{RequestedShipment: RequestedShipment{
		ShipmentInfo:  info,
		ShipTimestamp: c.now().UTC().Add(time.Hour).Format("2006-01-02T15:04:05 GMT+00:00"),
		PaymentInfo:   "DAP",
		InternationalDetail: InternationalDetail{
			Commodities: Commodities{
				NumberOfPieces: shipment.BoxQty,
				Description:    commodityDescription(shipment),
				CustomsValue:   shipment.DeclaredValue,
			},
			Content: "NON_DOCUMENTS",
		},
		Ship: Ship{
			Shipper:   shipperParty(settings),
			Recipient: recipientParty(shipment, city),
		},
		Packages: packages(shipment),
	}}}
}

func commodityDescription(shipment *shipper.Shipment) string {
	var shipped []shipper.Item
	for _, it := range shipment.Items {
		if it.Quantity > 0 {
			shipped = append(shipped, it)
		}
	}
	if len(shipped) == 1 && shipped[0].Name != "" {
		return shipped[0].Name
	}
	return defaultDescription
}

func shipperParty(settings shipper.ChannelSettings) Party {
	company := settings.String("company")
	return Party{
		Contact: Contact{
			PersonName:   company,
			CompanyName:  company,
			PhoneNumber:  settings.String("phone"),
			EmailAddress: settings.String("email"),
		},
		Address: PartyAddress{
			StreetLines:  settings.String("address1"),
			StreetLines2: settings.String("address2"),
			StreetLines3: settings.String("address3"),
			City:         settings.String("city"),
			PostalCode:   settings.String("postcode"),
			CountryCode:  settings.String("country"),
		},
	}
}

func recipientParty(shipment *shipper.Shipment, city string) Party {
	order := shipment.Order
	addr := order.ShippingAddress
	street := strings.TrimSpace(strings.Join(nonEmpty(addr.District, addr.Address), " "))

	line2 := substr(street, 45, 90)
	if line2 == "" {
		line2 = "-"
	}
	line3 := "-"
	if order.IsCOD {
		line3 = fmt.Sprintf("%.2f", shipment.CODAmount)
	}

	p := Party{
		Contact: Contact{
			PersonName:   addr.FullName,
			CompanyName:  addr.FullName,
			PhoneNumber:  addr.Phone,
			EmailAddress: order.Email,
		},
		Address: PartyAddress{
			StreetLines:         substr(street, 0, 45),
			StreetLines2:        line2,
			StreetLines3:        line3,
			City:                city,
			StateOrProvinceCode: addr.District,
			PostalCode:          addr.Postcode,
			CountryCode:         addr.Country,
		},
	}
	if addr.Country == "SA" && order.Document != nil && order.Document.Number != "" {
		p.RegistrationNumbers = &RegistrationNumbers{RegistrationNumber: RegistrationNumber{
			Number:                  order.Document.Number,
			NumberTypeCode:          "VAT",
			NumberIssuerCountryCode: "SA",
		}}
	}
	return p
}

func packages(shipment *shipper.Shipment) Packages {
	weight := math.Round(float64(shipment.ShippedQuantity())*0.1*10) / 10
	pkgs := make([]RequestedPackage, 0, shipment.BoxQty)
	for i := 0; i < shipment.BoxQty; i++ {
		pkgs = append(pkgs, RequestedPackage{
			Number:             fmt.Sprintf("%d", i+1),
			Weight:             weight,
			Dimensions:         Dimensions{Length: 10, Width: 10, Height: 10},
			CustomerReferences: shipment.Order.Code,
		})
	}
	return Packages{RequestedPackages: pkgs}
}

// convertError maps API rejections to fatal errors and transport failures to retryable ones.
func convertError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return shipper.Fatal(carrierName, apiErr.Code, apiErr.Message).WithCause(err)
	}
	return shipper.Retryable(carrierName, "TRANSPORT", "DHL request failed").WithCause(err)
}

func messageReference() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:28]
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// substr slices s by rune offsets, clamping to its length.
func substr(s string, from, to int) string {
	r := []rune(s)
	if from > len(r) {
		return ""
	}
	if to > len(r) {
		to = len(r)
	}
	return string(r[from:to])
}
