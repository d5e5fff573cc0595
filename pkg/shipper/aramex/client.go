// Package aramex provides integration with Aramex international deliveries.
//
// Aramex works from pre-allocated AWB numbers: a shipment is sent by drawing
// a number from the pool and dropping a manifest on the Aramex exchange
// server. Tracking arrives the same way, as CSV files (see feed.go).
package aramex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	carrierName = shipper.CarrierAramex

	// routingCodeVariant is the label layout for home deliveries.
	routingCodeVariant = "routing_code"

	defaultManifestDir = "carriers/aramex/manifests/"
)

// defaultCountries are the countries Aramex publishes pickup points for.
var defaultCountries = []string{"SA", "IQ"}

// Config holds Aramex configuration.
type Config struct {
	URL      string // location service
	Timeout  time.Duration
	Settings shipper.Settings

	// Uploader receives manifests. When nil, manifests are not exchanged
	// and sending only assigns the AWB.
	Uploader    Uploader
	ManifestDir string

	// Countries limits the service point download.
	Countries []string

	UseMock bool // When true, uses mock API client
}

// Client is the Aramex carrier client.
type Client struct {
	config    Config
	deps      shipper.Deps
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// New creates a new Aramex client.
// If cfg.UseMock is true, it uses a mock API client for testing.
func New(cfg Config, deps shipper.Deps, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			URL:     cfg.URL,
			Timeout: cfg.Timeout,
		})
	}

	return NewWithAPIClient(cfg, deps, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Aramex client with a custom API client.
func NewWithAPIClient(cfg Config, deps shipper.Deps, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if cfg.ManifestDir == "" {
		cfg.ManifestDir = defaultManifestDir
	}
	if len(cfg.Countries) == 0 {
		cfg.Countries = defaultCountries
	}
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

// CanSendShipment accepts international deliveries while AWBs remain.
func (c *Client) CanSendShipment(ctx context.Context, shipment *shipper.Shipment) (bool, error) {
	if shipment.DeliveryType != shipper.DeliveryInternational {
		return false, nil
	}
	group := c.config.Settings.Channel(shipment.Channel()).NumberGroup()
	return shipper.HasNumbers(ctx, c.deps.Numbers, carrierName, group)
}

// CreateShippingDocument renders the click-and-collect label for
// service point orders and the routing code label otherwise.
func (c *Client) CreateShippingDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	variant := routingCodeVariant
	if shipment.Order.ShippingMethod == shipper.MethodClickAndCollect {
		variant = shipper.VariantClickAndCollect
	}
	return c.deps.Documents.Render(ctx, shipper.DocumentShipping, variant, shipment)
}

// CreateInvoiceDocument renders the waybill for the destination.
func (c *Client) CreateInvoiceDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	return c.deps.Documents.Render(ctx, shipper.DocumentInvoice, shipper.WaybillVariant(shipment), shipment)
}

// SendShipment assigns a pooled AWB and uploads the manifest.
func (c *Client) SendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	ctx, span := c.tracer.Start(ctx, "aramex.SendShipment")
	defer span.End()

	shipment := req.Shipment
	span.SetAttributes(attribute.Int64("shipment.id", shipment.ID))
	settings := c.config.Settings.Channel(shipment.Channel())

	number, err := shipper.TakeNumber(ctx, req, carrierName, settings.NumberGroup())
	if err != nil {
		return nil, err
	}
	if err := c.upload(ctx, shipment, number, settings); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &shipper.SendResponse{TrackingNumber: number}, nil
}

// ResendShipment uploads the manifest again, keeping the AWB when one was
// already assigned.
func (c *Client) ResendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	shipment := req.Shipment
	if shipment.TrackingNumber == "" {
		return c.SendShipment(ctx, req)
	}

	ctx, span := c.tracer.Start(ctx, "aramex.ResendShipment")
	defer span.End()
	span.SetAttributes(attribute.Int64("shipment.id", shipment.ID))

	settings := c.config.Settings.Channel(shipment.Channel())
	if err := c.upload(ctx, shipment, shipment.TrackingNumber, settings); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &shipper.SendResponse{TrackingNumber: shipment.TrackingNumber}, nil
}

// IsRetryable delegates to the shared predicate.
func (c *Client) IsRetryable(err error) bool {
	return shipper.IsRetryable(err)
}

// ServicePoints downloads the pickup locations of every configured country.
// The same location can be listed twice; the first one wins.
func (c *Client) ServicePoints(ctx context.Context) ([]shipper.ServicePoint, error) {
	ctx, span := c.tracer.Start(ctx, "aramex.ServicePoints")
	defer span.End()

	settings := c.config.Settings.Channel(shipper.DefaultChannel)
	info := ClientInfo{
		UserName:           settings.String("sp_username"),
		Password:           settings.String("sp_password"),
		AccountNumber:      settings.String("sp_account_number"),
		AccountPin:         settings.String("sp_pin"),
		AccountEntity:      settings.String("sp_account_entity"),
		AccountCountryCode: settings.String("sp_country_code"),
		Version:            "v1",
	}

	seen := make(map[string]bool)
	var points []shipper.ServicePoint
	for _, country := range c.config.Countries {
		resp, err := c.apiClient.FetchAllLocations(ctx, &LocationsRequest{ClientInfo: info, CountryCode: country})
		if err != nil {
			span.RecordError(err)
			return nil, convertError("FETCH_LOCATIONS", err)
		}
		for _, loc := range resp.Locations {
			code := fmt.Sprintf("%s - %s", loc.Description, loc.ID)
			if seen[code] {
				continue
			}
			seen[code] = true
			points = append(points, shipper.ServicePoint{
				Carrier:   carrierName,
				Code:      code,
				Name:      loc.Description,
				Country:   loc.Address.CountryCode,
				City:      loc.Address.City,
				Address:   joinNonEmpty(" ", loc.Address.Line1, loc.Address.Line2, loc.Address.Line3),
				Phone:     loc.Telephone,
				Latitude:  loc.Address.Latitude,
				Longitude: loc.Address.Longitude,
			})
		}
		c.logger.Info("Aramex locations downloaded",
			zap.String("country", country),
			zap.Int("count", len(resp.Locations)),
		)
	}
	return points, nil
}

func (c *Client) upload(ctx context.Context, shipment *shipper.Shipment, number string, settings shipper.ChannelSettings) error {
	if c.config.Uploader == nil {
		c.logger.Debug("Aramex manifest upload disabled", zap.Int64("shipment_id", shipment.ID))
		return nil
	}

	data, err := buildManifest(shipment, number, settings)
	if err != nil {
		return shipper.Fatal(carrierName, "MANIFEST", "cannot build manifest").WithCause(err)
	}
	path := c.config.ManifestDir + c.now().UTC().Format("20060102-150405") + "-" + number + ".csv"

	c.logger.Info("Uploading Aramex manifest",
		zap.Int64("shipment_id", shipment.ID),
		zap.String("order_code", shipment.Order.Code),
		zap.String("tracking_number", number),
		zap.String("path", path),
	)

	if err := c.config.Uploader.Upload(ctx, path, data); err != nil {
		c.logger.Error("Aramex manifest upload failed", zap.Int64("shipment_id", shipment.ID), zap.Error(err))
		return shipper.Retryable(carrierName, "MANIFEST_UPLOAD", "manifest couldn't be uploaded to Aramex").WithCause(err)
	}
	return nil
}

// convertError maps location service failures to retryable errors unless
// the credentials were rejected.
func convertError(code string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return shipper.HTTPFailure(carrierName, code, apiErr.Message, apiErr.StatusCode, err)
	}
	return shipper.Retryable(carrierName, code, "Aramex request failed").WithCause(err)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
