// Package naqel provides integration with the Naqel Express SOAP service.
package naqel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/tournevent/fulfillment/pkg/shipper/citycode"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	carrierName = shipper.CarrierNaqel
	batchSize   = 10
	dateLayout  = "2006-01-02T15:04:05.999999999"

	homeCollectionVariant = "home_collection"

	// Declared values from this amount on need the consignee's national ID.
	nationalIDThreshold = 1000.0
	placeholderID       = "1000000000"

	billingPrepaid = 1
	billingCOD     = 5
	loadTypeID     = 56
	currencySAR    = 1
	goodsDesc      = "wearing apparel"
	commodityCode  = "62105000"
)

// Config holds Naqel configuration.
type Config struct {
	URL        string
	Timeout    time.Duration
	Settings   shipper.Settings
	Cities     *citycode.Table // nil disables the carrier
	Production bool
	UseMock    bool // When true, uses mock API client
}

// Client is the Naqel carrier client.
type Client struct {
	config    Config
	deps      shipper.Deps
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// New creates a new Naqel client.
// If cfg.UseMock is true, it uses a mock API client for testing.
func New(cfg Config, deps shipper.Deps, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewSOAPAPIClient(SOAPAPIClientConfig{
			URL:     cfg.URL,
			Timeout: cfg.Timeout,
		})
	}

	return NewWithAPIClient(cfg, deps, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Naqel client with a custom API client.
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

// BatchSize returns the number of waybills per trace request.
func (c *Client) BatchSize() int {
	return batchSize
}

// CanSendShipment accepts international SAR orders to a known city while
// pooled waybills remain. High value orders need a Saudi national ID.
func (c *Client) CanSendShipment(ctx context.Context, shipment *shipper.Shipment) (bool, error) {
	order := shipment.Order
	if shipment.DeliveryType != shipper.DeliveryInternational || order.Currency != "SAR" {
		return false, nil
	}
	if !validNationalID(shipment) {
		return false, nil
	}
	if _, err := c.cityCode(shipment); err != nil {
		return false, nil
	}
	group := c.config.Settings.Channel(shipment.Channel()).NumberGroup()
	return shipper.HasNumbers(ctx, c.deps.Numbers, carrierName, group)
}

// CreateShippingDocument renders the home collection label.
func (c *Client) CreateShippingDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	return c.deps.Documents.Render(ctx, shipper.DocumentShipping, homeCollectionVariant, shipment)
}

// CreateInvoiceDocument renders the Naqel invoice.
func (c *Client) CreateInvoiceDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	return c.deps.Documents.Render(ctx, shipper.DocumentInvoice, carrierName, shipment)
}

// SendShipment takes a pooled waybill and uploads its manifest.
func (c *Client) SendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	ctx, span := c.tracer.Start(ctx, "naqel.SendShipment")
	defer span.End()

	shipment := req.Shipment
	span.SetAttributes(attribute.Int64("shipment.id", shipment.ID))

	group := c.config.Settings.Channel(shipment.Channel()).NumberGroup()
	number, err := shipper.TakeNumber(ctx, req, carrierName, group)
	if err != nil {
		return nil, err
	}

	if err := c.updateWaybill(ctx, shipment, number); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &shipper.SendResponse{TrackingNumber: number}, nil
}

// ResendShipment uploads the manifest again under the waybill already assigned.
func (c *Client) ResendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	ctx, span := c.tracer.Start(ctx, "naqel.ResendShipment")
	defer span.End()

	shipment := req.Shipment
	span.SetAttributes(attribute.Int64("shipment.id", shipment.ID))

	if shipment.TrackingNumber == "" {
		return nil, shipper.Fatal(carrierName, "NO_TRACKING_NUMBER", "shipment has no waybill to resend")
	}
	if err := c.updateWaybill(ctx, shipment, shipment.TrackingNumber); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &shipper.SendResponse{TrackingNumber: shipment.TrackingNumber}, nil
}

// IsRetryable delegates to the shared predicate.
func (c *Client) IsRetryable(err error) bool {
	return shipper.IsRetryable(err)
}

// Track fetches the activities of up to ten waybills.
func (c *Client) Track(ctx context.Context, req *shipper.TrackRequest) (*shipper.TrackResponse, error) {
	ctx, span := c.tracer.Start(ctx, "naqel.Track")
	defer span.End()
	span.SetAttributes(attribute.Int("awb.count", len(req.TrackingNumbers)))

	resp := &shipper.TrackResponse{}
	waybills := make([]int64, 0, len(req.TrackingNumbers))
	for _, tn := range req.TrackingNumbers {
		n, err := strconv.ParseInt(strings.TrimSpace(tn), 10, 64)
		if err != nil {
			resp.Skipped = append(resp.Skipped, tn)
			continue
		}
		waybills = append(waybills, n)
	}
	if len(waybills) == 0 {
		return resp, nil
	}

	settings := c.config.Settings.Channel(shipper.DefaultChannel)
	trackings, err := c.apiClient.TraceByMultiWaybillNo(ctx, clientInfo(settings), waybills)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("Naqel tracking request failed", zap.Int64s("waybills", waybills), zap.Error(err))
		return nil, convertError(err)
	}

	for _, t := range trackings {
		awb := strconv.FormatInt(t.WaybillNo, 10)
		if t.HasError {
			c.logger.Warn("Naqel tracking error", zap.String("tracking_number", awb), zap.String("error", t.ErrorMessage))
			continue
		}
		at, err := time.Parse(dateLayout, t.Date)
		if err != nil {
			c.logger.Warn("Naqel event with unparsable date", zap.String("tracking_number", awb), zap.String("date", t.Date))
			continue
		}
		resp.Events = append(resp.Events, shipper.RawEvent{
			TrackingNumber: awb,
			Code:           strconv.Itoa(t.ActivityCode),
			Time:           at,
			Text:           t.Activity,
		})
	}
	return resp, nil
}

func (c *Client) updateWaybill(ctx context.Context, shipment *shipper.Shipment, number string) error {
	manifest, err := c.manifest(shipment, number)
	if err != nil {
		return shipper.Retryable(carrierName, "MANIFEST", "manifest could not be created").WithCause(err)
	}

	c.logger.Info("Sending Naqel manifest",
		zap.Int64("shipment_id", shipment.ID),
		zap.String("order_code", shipment.Order.Code),
		zap.String("tracking_number", number),
	)

	result, err := c.apiClient.UpdateWaybill(ctx, manifest, number)
	if err != nil {
		c.logger.Error("Naqel API error", zap.Int64("shipment_id", shipment.ID), zap.Error(err))
		return convertError(err)
	}
	if result.HasError {
		c.logger.Error("Naqel rejected manifest",
			zap.Int64("shipment_id", shipment.ID),
			zap.String("message", result.Message),
		)
		return shipper.Retryable(carrierName, "UPDATE_WAYBILL",
			fmt.Sprintf("invalid response for order %s: %s", shipment.Order.Code, result.Message))
	}
	return nil
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

func (c *Client) manifest(shipment *shipper.Shipment, number string) (*ManifestShipmentDetails, error) {
	order := shipment.Order
	addr := order.ShippingAddress
	settings := c.config.Settings.Channel(shipment.Channel())

	city, err := c.cityCode(shipment)
	if err != nil {
		return nil, err
	}

	nationalID := placeholderID
	if shipment.DeclaredValue >= nationalIDThreshold && order.Document != nil {
		nationalID = asciiDigits(order.Document.Number)
	}

	billing := billingPrepaid
	if order.IsCOD {
		billing = billingCOD
	}

	address := fmt.Sprintf("%s, %s", addr.District, addr.Address)
	details := make([]CommercialInvoiceDetail, 0, len(shipment.Items))
	for _, it := range shipment.Items {
		details = append(details, CommercialInvoiceDetail{
			Quantity:             it.Quantity,
			UnitType:             "Pieces",
			CountryofManufacture: nonEmpty(it.OriginCountry, "GB"),
			Description:          fmt.Sprintf("%s-%s", it.SKU, goodsDesc),
			UnitCost:             money(it.UnitPrice),
			CustomsCommodityCode: commodityCode,
			Currency:             "SAR",
		})
	}

	m := &ManifestShipmentDetails{
		ClientInfo: clientInfo(settings),
		ConsigneeInfo: ConsigneeInformation{
			ConsigneeName:       addr.FullName,
			Email:               order.Email,
			PhoneNumber:         addr.Phone,
			Mobile:              addr.Fax,
			Address:             address,
			CountryCode:         c.config.Cities.CountryCode(addr.Country),
			CityCode:            city,
			ConsigneeNationalID: nationalID,
		},
		CommercialInvoice: CommercialInvoice{
			Details:          details,
			RefNo:            order.Code,
			InvoiceNo:        number,
			InvoiceDate:      c.now().UTC().Format("2006-01-02T15:04:05"),
			Consignee:        addr.FullName,
			ConsigneeAddress: address,
			ConsigneeEmail:   order.Email,
			MobileNo:         addr.Fax,
			Phone:            addr.Phone,
			TotalCost:        money(shipment.DeclaredValue),
			CurrencyCode:     "SAR",
		},
		Latitude:     coordinate(addr.Latitude),
		Longitude:    coordinate(addr.Longitude),
		BillingType:  billing,
		PicesCount:   shipment.BoxQty,
		Weight:       strconv.FormatFloat(float64(shipment.ShippedQuantity())/10, 'f', 1, 64),
		CODCharge:    money(shipment.CODAmount),
		LoadTypeID:   loadTypeID,
		DeclareValue: money(shipment.DeclaredValue),
		GoodDesc:     goodsDesc,
		RefNo:        order.Code,
		CurrenyID:    currencySAR,
	}
	if c.config.Production {
		byConsignee := !settings.Bool("duty_paid_by_shipper")
		m.IsCustomDutyPayByConsignee = &byConsignee
	}
	return m, nil
}

func clientInfo(settings shipper.ChannelSettings) ClientInformation {
	return ClientInformation{
		ClientID: settings.String("client_id"),
		Password: settings.String("password"),
		Version:  "1.0",
		ClientAddress: ClientAddress{
			PhoneNumber:  settings.String("phone_number"),
			FirstAddress: settings.String("first_address"),
			CountryCode:  settings.String("country_code"),
			CityCode:     settings.String("city_code"),
		},
		ClientContact: ClientContact{
			Name:        settings.String("name"),
			Email:       settings.String("email"),
			PhoneNumber: settings.String("phone_number"),
		},
	}
}

// validNationalID reports whether a high value order carries a ten digit
// Saudi national ID.
func validNationalID(shipment *shipper.Shipment) bool {
	if shipment.DeclaredValue < nationalIDThreshold {
		return true
	}
	doc := shipment.Order.Document
	if doc == nil {
		return false
	}
	id := asciiDigits(doc.Number)
	if len(id) != 10 || id[0] != '1' {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// asciiDigits rewrites Arabic-Indic digits to ASCII.
func asciiDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		case unicode.IsSpace(r):
			return -1
		}
		return r
	}, s)
}

// convertError maps every Naqel failure to a retryable error.
func convertError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return shipper.Retryable(carrierName, apiErr.Code, apiErr.Message).WithCause(err)
	}
	return shipper.Retryable(carrierName, "TRANSPORT", "Naqel request failed").WithCause(err)
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func coordinate(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
