// Package smsa provides integration with the SMSA Express SECOM service.
package smsa

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/tournevent/fulfillment/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	carrierName = shipper.CarrierSMSA
	batchSize   = 1
	dateLayout  = "02 Jan 2006 15:04"

	testPasskey = "Testing1"

	citiesCacheKey = "smsa:rtl_cities"
	citiesTTL      = 4 * time.Hour

	defaultTrackingPause = 2 * time.Second
)

// Config holds SMSA configuration.
type Config struct {
	URL        string
	Timeout    time.Duration
	Settings   shipper.Settings
	Production bool // live passkeys are only used in production

	// CityAliases maps customer spellings onto SMSA retail city names.
	CityAliases map[string]string

	// TrackingPause is the delay between two tracking calls.
	TrackingPause time.Duration

	UseMock bool // When true, uses mock API client
}

// Client is the SMSA carrier client.
type Client struct {
	config    Config
	deps      shipper.Deps
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// New creates a new SMSA client.
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
	if cfg.TrackingPause == 0 {
		cfg.TrackingPause = defaultTrackingPause
	}

	return NewWithAPIClient(cfg, deps, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new SMSA client with a custom API client.
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

// BatchSize returns 1: SMSA tracks one AWB per call.
func (c *Client) BatchSize() int {
	return batchSize
}

// CanSendShipment accepts single box international SAR shipments that are
// either collected from an outlet or go to a city SMSA serves.
func (c *Client) CanSendShipment(ctx context.Context, shipment *shipper.Shipment) (bool, error) {
	order := shipment.Order
	if shipment.DeliveryType != shipper.DeliveryInternational || order.Currency != "SAR" || shipment.BoxQty != 1 {
		return false, nil
	}
	if order.ShippingMethod == shipper.MethodClickAndCollect {
		return true, nil
	}
	return c.cityName(ctx, shipment) != "", nil
}

// CreateShippingDocument downloads the label SMSA issued for the AWB.
func (c *Client) CreateShippingDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	if shipment.TrackingNumber == "" {
		return nil, fmt.Errorf("%s label for shipment %d: %w", carrierName, shipment.ID, shipper.ErrDocumentNotAvailable)
	}
	pdf, err := c.apiClient.GetPDF(ctx, shipment.TrackingNumber, c.passkey(shipment))
	if err != nil {
		return nil, shipper.Retryable(carrierName, "GET_PDF", "cannot download label").WithCause(err)
	}
	return &shipper.Document{
		Kind:        shipper.DocumentShipping,
		Variant:     carrierName,
		ContentType: "application/pdf",
		Data:        pdf,
	}, nil
}

// CreateInvoiceDocument renders the base invoice.
func (c *Client) CreateInvoiceDocument(ctx context.Context, shipment *shipper.Shipment) (*shipper.Document, error) {
	return c.deps.Documents.Render(ctx, shipper.DocumentInvoice, shipper.VariantBase, shipment)
}

// SendShipment registers the shipment; SMSA assigns the AWB.
func (c *Client) SendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	ctx, span := c.tracer.Start(ctx, "smsa.SendShipment")
	defer span.End()

	shipment := req.Shipment
	span.SetAttributes(attribute.Int64("shipment.id", shipment.ID))

	info := c.addShipRequest(ctx, shipment)

	c.logger.Info("Sending SMSA shipment",
		zap.Int64("shipment_id", shipment.ID),
		zap.String("order_code", shipment.Order.Code),
		zap.String("ship_type", info.ShipType),
	)

	awb, err := c.apiClient.AddShip(ctx, info)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("SMSA API error", zap.Int64("shipment_id", shipment.ID), zap.Error(err))
		return nil, shipper.Fatal(carrierName, "ADD_SHIP", "shipping couldn't be sent to SMSA").WithCause(err)
	}
	if awb == "" || strings.Contains(awb, "Failed") {
		return nil, shipper.Fatal(carrierName, "INVALID_AWB",
			fmt.Sprintf("invalid tracking number %q for order %s", awb, shipment.Order.Code))
	}
	return &shipper.SendResponse{TrackingNumber: awb}, nil
}

// ResendShipment is refused; SMSA would issue a second AWB.
func (c *Client) ResendShipment(ctx context.Context, req *shipper.SendRequest) (*shipper.SendResponse, error) {
	return nil, shipper.Fatal(carrierName, "RESEND_NOT_ALLOWED", "Resend for SMSA carrier is not allowed").
		WithCause(shipper.ErrResendNotAllowed)
}

// IsRetryable delegates to the shared predicate.
func (c *Client) IsRetryable(err error) bool {
	return shipper.IsRetryable(err)
}

// Track fetches each AWB in turn, pausing between calls. AWBs SMSA fails
// to answer for are reported as skipped.
func (c *Client) Track(ctx context.Context, req *shipper.TrackRequest) (*shipper.TrackResponse, error) {
	ctx, span := c.tracer.Start(ctx, "smsa.Track")
	defer span.End()
	span.SetAttributes(attribute.Int("awb.count", len(req.TrackingNumbers)))

	passkey := c.defaultPasskey()
	resp := &shipper.TrackResponse{}

	for i, awb := range req.TrackingNumbers {
		if i > 0 && c.config.TrackingPause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.TrackingPause):
			}
		}

		entries, err := c.apiClient.GetTracking(ctx, awb, passkey)
		if err != nil {
			c.logger.Error("SMSA tracking request failed", zap.String("tracking_number", awb), zap.Error(err))
			resp.Skipped = append(resp.Skipped, awb)
			continue
		}
		if len(entries) == 0 {
			c.logger.Warn("SMSA tracking response is empty", zap.String("tracking_number", awb))
			resp.Skipped = append(resp.Skipped, awb)
			continue
		}

		for _, e := range entries {
			at, err := time.Parse(dateLayout, strings.TrimSpace(e.Date))
			if err != nil {
				c.logger.Warn("SMSA event with unparsable date",
					zap.String("tracking_number", awb),
					zap.String("date", e.Date),
				)
				continue
			}
			resp.Events = append(resp.Events, shipper.RawEvent{
				TrackingNumber: awb,
				Code:           strings.TrimSpace(e.Activity),
				Time:           at,
				Text:           e.Details,
			})
		}
	}
	return resp, nil
}

// ServicePoints lists the SMSA outlets.
func (c *Client) ServicePoints(ctx context.Context) ([]shipper.ServicePoint, error) {
	ctx, span := c.tracer.Start(ctx, "smsa.ServicePoints")
	defer span.End()

	retails, err := c.apiClient.GetAllRetails(ctx, c.defaultPasskey())
	if err != nil {
		span.RecordError(err)
		return nil, shipper.Retryable(carrierName, "GET_RETAILS", "cannot list SMSA outlets").WithCause(err)
	}

	points := make([]shipper.ServicePoint, 0, len(retails))
	for _, r := range retails {
		lat, lng, err := parseGPS(r.GPS)
		if err != nil {
			c.logger.Warn("SMSA outlet with invalid coordinates", zap.String("code", r.Code), zap.String("gps", r.GPS))
		}
		points = append(points, shipper.ServicePoint{
			Carrier:   carrierName,
			Code:      r.Code,
			Name:      fmt.Sprintf("%s, %s", r.Code, r.City),
			Country:   "SA",
			City:      r.City,
			Address:   r.AddressEN,
			AddressAr: r.AddressAR,
			Phone:     r.Phone,
			Latitude:  lat,
			Longitude: lng,
		})
	}
	return points, nil
}

// ============================================================================
// Conversion helpers
// ============================================================================

// cities returns the retail city names, title-cased, from cache when possible.
func (c *Client) cities(ctx context.Context) []string {
	if c.deps.Cache != nil {
		raw, ok, err := c.deps.Cache.Get(ctx, citiesCacheKey)
		if err != nil {
			c.logger.Warn("SMSA city cache unavailable", zap.Error(err))
		} else if ok {
			return strings.Split(string(raw), "\n")
		}
	}

	names, err := c.apiClient.GetRTLCities(ctx, c.defaultPasskey())
	if err != nil {
		c.logger.Error("SMSA city list request failed", zap.Error(err))
		return nil
	}
	cities := make([]string, 0, len(names))
	for _, n := range names {
		if n = titleCase(n); n != "" {
			cities = append(cities, n)
		}
	}

	if c.deps.Cache != nil && len(cities) > 0 {
		if err := c.deps.Cache.Set(ctx, citiesCacheKey, []byte(strings.Join(cities, "\n")), citiesTTL); err != nil {
			c.logger.Warn("SMSA city cache write failed", zap.Error(err))
		}
	}
	return cities
}

// cityName returns the SMSA spelling of the destination city, or "".
func (c *Client) cityName(ctx context.Context, shipment *shipper.Shipment) string {
	addr := shipment.Order.ShippingAddress
	candidates := []string{addr.City}
	if shipment.Order.ShippingMethod != shipper.MethodClickAndCollect {
		candidates = append(candidates, addr.BaseCities...)
	}

	known := make(map[string]bool)
	for _, city := range c.cities(ctx) {
		known[city] = true
	}
	for _, city := range candidates {
		city = titleCase(city)
		if alias, ok := c.config.CityAliases[city]; ok {
			city = alias
		}
		if known[city] {
			return city
		}
	}
	return ""
}

func (c *Client) addShipRequest(ctx context.Context, shipment *shipper.Shipment) *AddShipRequest {
	order := shipment.Order
	addr := order.ShippingAddress
	settings := c.config.Settings.Channel(shipment.Channel())

	shipType, locationCode := "DLV", ""
	address := joinNonEmpty(", ", addr.District, addr.Address, addr.Postcode)
	sender := settings.String("name")
	city := c.cityName(ctx, shipment)
	if order.ShippingMethod == shipper.MethodClickAndCollect {
		shipType, locationCode = "HAL", order.ServicePointCode
		address = "HAL @ " + addr.Address
		sender = settings.String("cc_name")
		if city == "" {
			city = addr.City
		}
	}

	gps := ""
	if addr.Latitude != 0 && addr.Longitude != 0 {
		gps = strconv.FormatFloat(addr.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(addr.Longitude, 'f', -1, 64)
	}

	carrValue := "0"
	if order.ShippingAmount > 0 {
		carrValue = "1.75"
	}

	return &AddShipRequest{
		PassKey:  c.passkey(shipment),
		RefNo:    order.Code,
		SentDate: c.now().UTC().Format("2006-01-02T15:04:05"),
		ShipType: shipType,
		PCs:      shipment.BoxQty,
		ItemDesc: "Wearing apparel",
		Cntry:    "KSA",
		CPOBox:   addr.Postcode,

		CName:   addr.FullName,
		CCity:   city,
		CZip:    addr.Postcode,
		CEmail:  order.Email,
		CMobile: addr.Phone,
		CTel1:   addr.Fax,
		CAddr1:  address,
		CAddr2:  locationCode,

		CarrValue: carrValue,
		CarrCurr:  "USD",
		CodAmt:    strconv.FormatFloat(shipment.CODAmount, 'f', 2, 64),
		CustVal:   strconv.FormatFloat(shipment.DeclaredValue, 'f', 2, 64),
		CustCurr:  order.Currency,
		InsrAmt:   "0",
		InsrCurr:  "USD",
		Weight:    strconv.FormatFloat(float64(shipment.ShippedQuantity())/10, 'f', 1, 64),

		SName:     sender,
		SContact:  settings.String("contact_name"),
		SAddr1:    settings.String("first_address"),
		SCity:     settings.String("city"),
		SPhone:    settings.String("phone_number"),
		SCntry:    settings.String("country_code"),
		GPSPoints: gps,
	}
}

func (c *Client) passkey(shipment *shipper.Shipment) string {
	if !c.config.Production {
		return testPasskey
	}
	settings := c.config.Settings.Channel(shipment.Channel())
	if shipment.Order.ShippingMethod == shipper.MethodClickAndCollect {
		return settings.String("cc_passkey")
	}
	return settings.String("passkey")
}

func (c *Client) defaultPasskey() string {
	if !c.config.Production {
		return testPasskey
	}
	return c.config.Settings.Channel(shipper.DefaultChannel).String("passkey")
}

func parseGPS(s string) (float64, float64, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("no comma in %q", s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return 0, 0, err
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return 0, 0, err
	}
	return la, lo, nil
}

// titleCase upper-cases the first letter of every word and lower-cases the rest.
func titleCase(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if prevLetter {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToUpper(r))
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
