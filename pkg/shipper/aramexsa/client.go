// Package aramexsa provides integration with the Aramex Saudi Arabia
// InfoLink endpoint for local deliveries.
package aramexsa

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	carrierName = shipper.CarrierAramexSA

	// homeCollectionVariant is the label layout for doorstep deliveries.
	homeCollectionVariant = "home_collection"
)

// Config holds Aramex SA configuration.
type Config struct {
	URL      string
	Username string
	Password string
	APIKey   string
	Timeout  time.Duration
	Settings shipper.Settings
	UseMock  bool // When true, uses mock API client
}

// Client is the Aramex SA carrier client.
type Client struct {
	config    Config
	deps      shipper.Deps
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// New creates a new Aramex SA client.
// If cfg.UseMock is true, it uses a mock API client for testing.
func New(cfg Config, deps shipper.Deps, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			URL:      cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
		})
	}

	return NewWithAPIClient(cfg, deps, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Aramex SA client with a custom API client.
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

// CanSendShipment accepts local deliveries while tracking numbers remain.
func (c *Client) CanSendShipment(ctx context.Context, shipment *shipper.Shipment) (bool, error) {
	if !shipment.IsLocal() {
		return false, nil
	}
	group := c.config.Settings.Channel(shipment.Channel()).NumberGroup()
	return shipper.HasNumbers(ctx, c.deps.Numbers, carrierName, group)
}

// CreateShippingDocument renders the home collection label.
func (c *Client) CreateShippingDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	return c.deps.Documents.Render(ctx, shipper.DocumentShipping, homeCollectionVariant, shipment)
}

// CreateInvoiceDocument renders the Saudi invoice.
func (c *Client) CreateInvoiceDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	return c.deps.Documents.Render(ctx, shipper.DocumentInvoice, shipper.VariantSaudi, shipment)
}

// SendShipment assigns a pooled tracking number and posts the HAWB file.
func (c *Client) SendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	ctx, span := c.tracer.Start(ctx, "aramex_sa.SendShipment")
	defer span.End()

	shipment := req.Shipment
	span.SetAttributes(attribute.Int64("shipment.id", shipment.ID))
	settings := c.config.Settings.Channel(shipment.Channel())

	number, err := shipper.TakeNumber(ctx, req, carrierName, settings.NumberGroup())
	if err != nil {
		return nil, err
	}

	waybill, err := c.deps.Documents.Render(ctx, shipper.DocumentShipping, shipper.WaybillVariant(shipment), shipment)
	if err != nil {
		return nil, shipper.Retryable(carrierName, "WAYBILL", "cannot render waybill").WithCause(err)
	}

	doc := c.shippingFile(shipment, number, waybill, settings)

	c.logger.Info("Sending Aramex SA shipping file",
		zap.Int64("shipment_id", shipment.ID),
		zap.String("order_code", shipment.Order.Code),
		zap.String("tracking_number", number),
	)

	if err := c.apiClient.SendShippingFile(ctx, doc); err != nil {
		c.logger.Error("Aramex SA API error", zap.Int64("shipment_id", shipment.ID), zap.Error(err))
		span.RecordError(err)
		return nil, convertError(err)
	}

	return &shipper.SendResponse{TrackingNumber: number}, nil
}

// ResendShipment is refused; the pooled number was already burned.
func (c *Client) ResendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	return nil, shipper.Fatal(carrierName, "RESEND_NOT_ALLOWED", "Resend for Aramex SA carrier is not allowed").
		WithCause(shipper.ErrResendNotAllowed)
}

// IsRetryable delegates to the shared predicate.
func (c *Client) IsRetryable(err error) bool {
	return shipper.IsRetryable(err)
}

// ============================================================================
// Conversion helpers
// ============================================================================

func (c *Client) shippingFile(shipment *shipper.Shipment, number string, waybill *shipper.Document, settings shipper.ChannelSettings) *InfoLinkDocument {
	order := shipment.Order
	addr := order.ShippingAddress
	stamp := c.now().UTC().Format("2006-01-02T15:04:05")

	consigneeCity := addr.City
	if len(addr.BaseCities) > 0 && addr.BaseCities[0] != "" {
		consigneeCity = addr.BaseCities[0]
	}

	taxID := ""
	if order.Document != nil {
		taxID = order.Document.Number
	}

	cod := ""
	if shipment.CODAmount > 0 {
		cod = money(shipment.CODAmount)
	}

	items := make([]HAWBItem, 0, len(shipment.Items))
	for _, it := range shipment.Items {
		marks := "No"
		if it.Transit {
			marks = "Yes"
		}
		items = append(items, HAWBItem{
			ItemsPieces:       it.Quantity,
			WgtChargeable:     "0",
			CommodityNo:       it.HSCode,
			ItemsDescription:  it.Name,
			ItemsCustomsValue: money(it.UnitPrice * float64(it.Quantity)),
			ItemNumber:        it.SKU,
			MarksAndNumbers:   marks,
		})
	}

	return &InfoLinkDocument{
		AccessRequest: AccessRequest{
			DocumentType: "215",
			EntityID:     settings.String("entity_id"),
			EntityPIN:    settings.String("entity_pin"),
			Version:      "1.00",
			TimeStamp:    stamp,
		},
		HAWB: HAWB{
			HAWBNumber:           number,
			HAWBOriginEntity:     settings.String("location"),
			OriginLocationCode:   settings.String("location"),
			ProductType:          settings.String("product_type"),
			PickupDate:           stamp,
			Pieces:               shipment.BoxQty,
			HAWBWeight:           "0.5",
			ChargeableWeight:     "0.5",
			HAWBWeightUnit:       "KG",
			CubeUnit:             "m3",
			HAWBProductGroup:     settings.String("product_group"),
			PaymentType:          "P",
			CommodityCountryCode: settings.String("goods_origin"),
			CommodityDescription: settings.String("goods_description"),
			CustomsAmount:        money(shipment.DeclaredValue),
			CustomsCurrencyCode:  order.Currency,

			ShipperName:        settings.String("account_name"),
			ShipperAddress:     settings.String("account_address"),
			ShipperNumber:      settings.String("account_number"),
			ShipperReference:   order.Code,
			ShipperTelephone:   "0",
			ShipperCity:        settings.String("account_city"),
			ShipperZipCode:     settings.String("account_post_code"),
			ShipperCountryCode: settings.String("goods_origin"),
			SentBy:             settings.String("account_name"),

			ConsigneeName:        addr.FullName,
			ConsigneeAddress:     fmt.Sprintf("%s, %s, %s", addr.District, addr.Address, addr.City),
			ConsigneeCity:        consigneeCity,
			ConsigneeZipCode:     addr.Postcode,
			ConsigneeCountryCode: addr.Country,
			ConsigneeTelephone:   addr.Phone,
			ConsTelephone2:       addr.Fax,
			ConsLatitude:         coordinate(addr.Latitude),
			ConsLongitude:        coordinate(addr.Longitude),
			ConsigneeEmail:       order.Email,
			ConsigneeReference2:  order.Email,
			AttentionOf:          addr.FullName,

			HAWBRemarks:     settings.String("goods_description"),
			Services:        services(order),
			CODValue:        cod,
			CODCurrencyCode: order.Currency,
			SourceID:        "2",
			TransportType:   "2",
			AdditionalProperties: AdditionalProperties{
				CustomsClearance: CustomsClearance{ConsigneeTaxIDVATEINNumber: taxID},
			},
			Invoice: base64.StdEncoding.EncodeToString(waybill.Data),
			Items:   items,
		},
	}
}

// services lists the Aramex value added service codes of an order.
func services(order *shipper.Order) string {
	var codes []string
	if order.IsCOD {
		codes = append(codes, "CODS")
	}
	return strings.Join(codes, ",")
}

// convertError maps Aramex SA failures to retryable errors except rejected
// credentials: the endpoint does not distinguish data rejections from outages.
func convertError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return shipper.HTTPFailure(carrierName, "SEND_FAILED", apiErr.Message, apiErr.StatusCode, err)
	}
	return shipper.Retryable(carrierName, "TRANSPORT", "Aramex SA request failed").WithCause(err)
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
