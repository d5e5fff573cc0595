// Package postaplus provides integration with the PostaPlus SOAP service.
package postaplus

import (
	"context"
	"fmt"
	"regexp"
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
	carrierName = shipper.CarrierPostaPlus
	batchSize   = 1
	dateLayout  = "02/01/2006 15:04:05"

	homeCollectionVariant = "home_collection"
	notApplicable         = "NA"

	// AED orders to the Emirates from this value on clear customs differently.
	highValueAED = 1000.0
)

var (
	forbiddenChars = regexp.MustCompile("[~`!%^&*=|)}\\]’;:?><'({\\[@$\\\\/+]")
	postcodeChars  = regexp.MustCompile(`^[0-9\s,-]+$`)
)

// iso3 covers the destinations PostaPlus serves; others keep their ISO code.
var iso3 = map[string]string{
	"AE": "ARE", "BH": "BHR", "EG": "EGY", "JO": "JOR", "KW": "KWT",
	"LB": "LBN", "OM": "OMN", "QA": "QAT", "SA": "SAU",
}

// Config holds PostaPlus configuration.
type Config struct {
	URL      string
	Timeout  time.Duration
	CAFile   string
	Settings shipper.Settings
	Cities   *citycode.Table // optional; unknown cities travel as "NA"
	UseMock  bool            // When true, uses mock API client
}

// Client is the PostaPlus carrier client.
type Client struct {
	config    Config
	deps      shipper.Deps
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new PostaPlus client.
// If cfg.UseMock is true, it uses a mock API client for testing.
func New(cfg Config, deps shipper.Deps, logger *otelzap.Logger, tracer trace.Tracer) (*Client, error) {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		soapClient, err := NewSOAPAPIClient(SOAPAPIClientConfig{
			URL:     cfg.URL,
			Timeout: cfg.Timeout,
			CAFile:  cfg.CAFile,
		})
		if err != nil {
			return nil, err
		}
		apiClient = soapClient
	}

	return NewWithAPIClient(cfg, deps, apiClient, logger, tracer), nil
}

// NewWithAPIClient creates a new PostaPlus client with a custom API client.
func NewWithAPIClient(cfg Config, deps shipper.Deps, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return &Client{
		config:    cfg,
		deps:      deps,
		apiClient: apiClient,
		logger:    logger,
		tracer:    shipper.TracerOrNoop(tracer),
	}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

// BatchSize returns 1: PostaPlus tracks one waybill per call.
func (c *Client) BatchSize() int {
	return batchSize
}

// CanSendShipment accepts single box international shipments while pooled
// waybills remain, except Emirates orders with an extra fee or a high AED value.
func (c *Client) CanSendShipment(ctx context.Context, shipment *shipper.Shipment) (bool, error) {
	order := shipment.Order
	if shipment.DeliveryType != shipper.DeliveryInternational || shipment.BoxQty != 1 {
		return false, nil
	}
	if shipment.Country() == "AE" {
		if order.ExtraFee > 0 {
			return false, nil
		}
		if order.Currency == "AED" && order.ShippedTotal >= highValueAED {
			return false, nil
		}
	}
	group := c.config.Settings.Channel(shipment.Channel()).NumberGroup()
	return shipper.HasNumbers(ctx, c.deps.Numbers, carrierName, group)
}

// CreateShippingDocument renders the home collection label.
func (c *Client) CreateShippingDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	return c.deps.Documents.Render(ctx, shipper.DocumentShipping, homeCollectionVariant, shipment)
}

// CreateInvoiceDocument renders the PostaPlus invoice.
func (c *Client) CreateInvoiceDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	return c.deps.Documents.Render(ctx, shipper.DocumentInvoice, carrierName, shipment)
}

// SendShipment takes a pooled waybill and registers it.
func (c *Client) SendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	ctx, span := c.tracer.Start(ctx, "postaplus.SendShipment")
	defer span.End()

	shipment := req.Shipment
	span.SetAttributes(attribute.Int64("shipment.id", shipment.ID))

	group := c.config.Settings.Channel(shipment.Channel()).NumberGroup()
	number, err := shipper.TakeNumber(ctx, req, carrierName, group)
	if err != nil {
		return nil, err
	}

	if err := c.register(ctx, shipment, number); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &shipper.SendResponse{TrackingNumber: number}, nil
}

// ResendShipment registers the waybill already assigned again.
func (c *Client) ResendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	ctx, span := c.tracer.Start(ctx, "postaplus.ResendShipment")
	defer span.End()

	shipment := req.Shipment
	span.SetAttributes(attribute.Int64("shipment.id", shipment.ID))

	if shipment.TrackingNumber == "" {
		return nil, shipper.Fatal(carrierName, "NO_TRACKING_NUMBER", "shipment has no waybill to resend")
	}
	if err := c.register(ctx, shipment, shipment.TrackingNumber); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &shipper.SendResponse{TrackingNumber: shipment.TrackingNumber}, nil
}

// IsRetryable delegates to the shared predicate.
func (c *Client) IsRetryable(err error) bool {
	return shipper.IsRetryable(err)
}

// Track fetches the history of each waybill in turn. A waybill PostaPlus
// answers with an error message is reported as skipped.
func (c *Client) Track(ctx context.Context, req *shipper.TrackRequest) (*shipper.TrackResponse, error) {
	ctx, span := c.tracer.Start(ctx, "postaplus.Track")
	defer span.End()
	span.SetAttributes(attribute.Int("awb.count", len(req.TrackingNumbers)))

	settings := c.config.Settings.Channel(shipper.DefaultChannel)
	resp := &shipper.TrackResponse{}

	for _, awb := range req.TrackingNumbers {
		entries, err := c.apiClient.ShipmentTracking(ctx, &TrackingQuery{
			UserName:         settings.String("username"),
			Password:         settings.String("password"),
			ShipperAccount:   settings.String("shipper_account"),
			AirwaybillNumber: awb,
		})
		if err != nil {
			span.RecordError(err)
			return nil, shipper.Retryable(carrierName, "TRACKING", "PostaPlus tracking request failed").WithCause(err)
		}
		if len(entries) == 0 {
			continue
		}
		if msg := entries[0].ErrorMsg; msg != "" {
			c.logger.Error("PostaPlus tracking error", zap.String("tracking_number", awb), zap.String("error", msg))
			resp.Skipped = append(resp.Skipped, awb)
			continue
		}

		for _, e := range entries {
			at, err := time.Parse(dateLayout, e.DateTime)
			if err != nil {
				c.logger.Warn("PostaPlus event with unparsable date",
					zap.String("tracking_number", awb),
					zap.String("date", e.DateTime),
				)
				continue
			}
			resp.Events = append(resp.Events, shipper.RawEvent{
				TrackingNumber: awb,
				Code:           e.Event,
				Time:           at,
				Text:           e.Note,
			})
		}
	}
	return resp, nil
}

func (c *Client) register(ctx context.Context, shipment *shipper.Shipment, number string) error {
	info, err := c.shipInfo(shipment, number)
	if err != nil {
		return err
	}
	if err := validate(&info.Consignee); err != nil {
		c.logger.Warn("PostaPlus shipment rejected locally",
			zap.Int64("shipment_id", shipment.ID),
			zap.Error(err),
		)
		return shipper.Fatal(carrierName, "INVALID_CONSIGNEE",
			fmt.Sprintf("the shipment won't be sent to PostaPlus till the following issue is fixed: %v", err)).
			WithCause(fmt.Errorf("%w: %w", shipper.ErrInvalidAddress, err))
	}

	c.logger.Info("Sending PostaPlus shipment",
		zap.Int64("shipment_id", shipment.ID),
		zap.String("order_code", shipment.Order.Code),
		zap.String("tracking_number", number),
	)

	answer, err := c.apiClient.SpecialShipmentPackage(ctx, info)
	if err != nil {
		c.logger.Error("PostaPlus API error", zap.Int64("shipment_id", shipment.ID), zap.Error(err))
		return shipper.Retryable(carrierName, "UNAVAILABLE", "PostaPlus API not available").WithCause(err)
	}
	if strings.TrimSpace(answer) != number {
		return shipper.Retryable(carrierName, "INVALID_RESPONSE",
			fmt.Sprintf("invalid PostaPlus response %q for waybill %s", answer, number))
	}
	return nil
}

// ============================================================================
// Conversion helpers
// ============================================================================

func (c *Client) shipInfo(shipment *shipper.Shipment, number string) (*ShipInfo, error) {
	waybill, err := strconv.ParseInt(number, 10, 64)
	if err != nil {
		return nil, shipper.Fatal(carrierName, "INVALID_WAYBILL", "waybill is not numeric: "+number)
	}

	order := shipment.Order
	settings := c.config.Settings.Channel(shipment.Channel())
	telephone := normalizePhone(settings.String("telephone"))

	info := &ShipInfo{
		ClientInfo: ClientInfo{
			ShipperAccount: settings.String("shipper_account"),
			UserName:       settings.String("username"),
			Password:       settings.String("password"),
			CodeStation:    "GSO",
		},
		CodeCurrency:       order.Currency,
		CodeService:        "SRV3",
		CodeShippmentType:  "SHPT2",
		ConnoteContact:     ConnoteContact{Email1: settings.String("account_email"), TelMobile: telephone},
		ConnoteDescription: settings.String("goods_description"),
		ConnotePieces:      shipment.BoxQty,
		ConnoteProhibited:  "N",
		ConnoteRef:         ConnoteRef{Reference1: order.Code},
		Consignee:          c.consignee(shipment, settings),
		CostShipment:       strconv.FormatFloat(shipment.DeclaredValue, 'f', 2, 64),
		WayBill:            waybill,
	}
	if order.IsCOD {
		info.CashOnDelivery = strconv.FormatFloat(shipment.CODAmount, 'f', 2, 64)
		info.CashOnDeliveryCurrency = order.Currency
	}
	for _, it := range shipment.Items {
		info.ConnotePerformaInvoice = append(info.ConnotePerformaInvoice, ConnotePerformaItem{
			CodeHS:          "6108390000",
			CodePackageType: "PCKT1",
			Description:     settings.String("goods_description"),
			OrginCountry:    "GB",
			Quantity:        it.Quantity,
			RateUnit:        strconv.FormatFloat(it.UnitPrice, 'f', 3, 64),
		})
	}
	for i := 0; i < shipment.BoxQty; i++ {
		info.ItemDetails = append(info.ItemDetails, ItemDetail{
			ConnoteHeight: 1,
			ConnoteLength: 1,
			ConnoteWeight: "0.5",
			ConnoteWidth:  1,
			ScaleWeight:   "0.5",
		})
	}
	return info, nil
}

func (c *Client) consignee(shipment *shipper.Shipment, settings shipper.ChannelSettings) Consignee {
	addr := shipment.Order.ShippingAddress
	telephone := normalizePhone(settings.String("telephone"))

	country := c.config.Cities.CountryCode(addr.Country)
	if country == addr.Country {
		country = nonEmpty(iso3[addr.Country], addr.Country)
	}

	city := notApplicable
	cities := append([]string{addr.City}, addr.BaseCities...)
	if code, err := c.config.Cities.Lookup(addr.Country, cities...); err == nil {
		city = code
	}

	phone := normalizePhone(addr.Phone)
	return Consignee{
		Company:         settings.String("account_name"),
		FromName:        settings.String("account_name"),
		FromAddress:     settings.String("account_address"),
		FromCity:        notApplicable,
		FromCodeCountry: settings.String("account_country"),
		FromTelphone:    telephone,
		FromMobile:      telephone,
		FromArea:        notApplicable,
		FromPinCode:     nonEmpty(settings.String("account_post_code"), notApplicable),
		FromProvince:    notApplicable,
		ToName:          scrub(addr.FullName),
		ToAddress:       asciiDigits(scrub(fmt.Sprintf("%s, %s", addr.Address, addr.City))),
		ToCity:          scrub(city),
		ToCodeCountry:   country,
		ToMobile:        phone,
		ToTelPhone:      nonEmpty(normalizePhone(addr.Fax), phone),
		ToArea:          notApplicable,
		ToPinCode:       notApplicable,
		ToProvince:      notApplicable,
		ToCodeSector:    notApplicable,
		ToDesignation:   notApplicable,
	}
}

// validate applies the checks PostaPlus would otherwise reject the waybill for.
func validate(c *Consignee) error {
	if !digitsBetween(c.ToMobile, 4, 15) {
		return &ValidationError{Field: "ToMobile", Message: "phone number length must be in range of 4..15 digits"}
	}
	if !digitsBetween(c.ToTelPhone, 4, 15) {
		return &ValidationError{Field: "ToTelPhone", Message: "alternative phone number length must be in range of 4..15 digits"}
	}
	if len(c.ToPinCode) >= 15 || (c.ToPinCode != notApplicable && !postcodeChars.MatchString(c.ToPinCode)) {
		return &ValidationError{Field: "ToPinCode", Message: "postal code can include up to 15 characters from 0-9, whitespace and -"}
	}
	if len([]rune(c.ToName)) >= 50 {
		return &ValidationError{Field: "ToName", Message: "name length must be less than 50 characters"}
	}
	return nil
}

func digitsBetween(s string, lo, hi int) bool {
	if len(s) < lo || len(s) > hi {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// scrub replaces characters PostaPlus refuses with commas.
func scrub(s string) string {
	return forbiddenChars.ReplaceAllString(s, ",")
}

// normalizePhone keeps the digits of a phone number, in ASCII.
func normalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, asciiDigits(s))
}

// asciiDigits rewrites Arabic-Indic digits to ASCII.
func asciiDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		}
		return r
	}, s)
}

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
