package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/internal/fulfillment"
	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/internal/tracking"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type dispatchResponse struct {
	ShipmentID     int64    `json:"shipment_id"`
	OrderCode      string   `json:"order_code"`
	Carrier        string   `json:"carrier"`
	TrackingNumber string   `json:"tracking_number"`
	Candidates     []string `json:"candidates"`
}

type resendFailure struct {
	ShipmentID int64  `json:"shipment_id"`
	Error      string `json:"error"`
}

type resendResponse struct {
	Carrier   string          `json:"carrier"`
	Attempted int             `json:"attempted"`
	Sent      int             `json:"sent"`
	Failures  []resendFailure `json:"failures"`
}

type trackingResponse struct {
	Carrier         string  `json:"carrier"`
	Events          int     `json:"events"`
	Unmapped        int     `json:"unmapped"`
	Shipments       int     `json:"shipments"`
	Unknown         int     `json:"unknown"`
	Appended        int     `json:"appended"`
	Delivered       []int64 `json:"delivered"`
	OrdersDelivered int     `json:"orders_delivered"`
	Failed          int     `json:"failed"`
	Skipped         int     `json:"skipped"`
}

type milestoneEntry struct {
	Milestone      string    `json:"milestone"`
	CarrierCode    string    `json:"carrier_code"`
	EventDate      time.Time `json:"event_date"`
	Description    string    `json:"description"`
	IsCustomerView bool      `json:"is_customer_view"`
}

type milestonesResponse struct {
	ShipmentID     int64            `json:"shipment_id"`
	Carrier        string           `json:"carrier"`
	TrackingNumber string           `json:"tracking_number"`
	CurrentStatus  string           `json:"current_status"`
	Milestones     []milestoneEntry `json:"milestones"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.shipmentID(w, r)
	if !ok {
		return
	}

	res, err := s.services.Dispatcher.Dispatch(r.Context(), id, r.URL.Query().Get("carrier"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dispatchResponse{
		ShipmentID:     res.ShipmentID,
		OrderCode:      res.OrderCode,
		Carrier:        res.Carrier,
		TrackingNumber: res.TrackingNumber,
		Candidates:     res.Candidates,
	})
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	carrier := chi.URLParam(r, "carrier")
	abort := false
	if v := r.URL.Query().Get("abort"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "abort must be a boolean"})
			return
		}
		abort = b
	}

	report, err := s.services.Dispatcher.ResendShipments(r.Context(), carrier, abort)
	if report == nil {
		s.writeError(w, r, err)
		return
	}

	resp := resendResponse{
		Carrier:   report.Carrier,
		Attempted: report.Attempted,
		Sent:      report.Sent,
		Failures:  make([]resendFailure, 0, len(report.Failures)),
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, resendFailure{ShipmentID: f.ShipmentID, Error: f.Err.Error()})
	}
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	carrier := chi.URLParam(r, "carrier")
	q := r.URL.Query()

	var opts tracking.PollOptions
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &opts.From}, {"to", &opts.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: p.name + " must be a YYYY-MM-DD date"})
			return
		}
		*p.dst = t
	}
	for _, v := range q["tracking_number"] {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				opts.TrackingNumbers = append(opts.TrackingNumbers, n)
			}
		}
	}

	report, err := s.services.Tracker.Run(r.Context(), carrier, opts)
	if report == nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		s.logger.Ctx(r.Context()).Warn("Tracking pass finished with errors",
			zap.String("carrier", carrier), zap.Error(err))
		status = http.StatusMultiStatus
	}
	delivered := report.Delivered
	if delivered == nil {
		delivered = []int64{}
	}
	writeJSON(w, status, trackingResponse{
		Carrier:         report.Carrier,
		Events:          report.Events,
		Unmapped:        report.Unmapped,
		Shipments:       report.Shipments,
		Unknown:         report.Unknown,
		Appended:        report.Appended,
		Delivered:       delivered,
		OrdersDelivered: report.OrdersDelivered,
		Failed:          report.Failed,
		Skipped:         report.Skipped,
	})
}

func (s *Server) handleMilestones(w http.ResponseWriter, r *http.Request) {
	id, ok := s.shipmentID(w, r)
	if !ok {
		return
	}
	customerOnly, _ := strconv.ParseBool(r.URL.Query().Get("customer"))

	sh, err := s.services.Shipments.Shipment(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.services.Shipments.Milestones(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := milestonesResponse{
		ShipmentID:     sh.ID,
		Carrier:        sh.Carrier,
		TrackingNumber: sh.TrackingNumber,
		CurrentStatus:  string(sh.CurrentStatus),
		Milestones:     make([]milestoneEntry, 0, len(records)),
	}
	for _, rec := range records {
		if customerOnly && !rec.IsCustomerView {
			continue
		}
		resp.Milestones = append(resp.Milestones, milestoneEntry{
			Milestone:      string(rec.Milestone),
			CarrierCode:    rec.CarrierCode,
			EventDate:      rec.EventDate.UTC(),
			Description:    rec.Description,
			IsCustomerView: rec.IsCustomerView,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.shipmentID(w, r)
	if !ok {
		return
	}

	doc, err := s.services.Documents.Document(r.Context(), id, shipper.DocumentKind(chi.URLParam(r, "kind")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", documentName(id, doc)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

func documentName(shipmentID int64, doc *shipper.Document) string {
	ext := ".bin"
	if doc.ContentType == "application/pdf" {
		ext = ".pdf"
	}
	return fmt.Sprintf("%d-%s%s", shipmentID, doc.Kind, ext)
}

func (s *Server) shipmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid shipment id"})
		return 0, false
	}
	return id, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Ctx(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
	}

	resp := errorResponse{Error: err.Error()}
	var se *shipper.ShipperError
	if errors.As(err, &se) {
		resp.Code = se.Code
		resp.Retryable = se.Retryable
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	var se *shipper.ShipperError
	switch {
	case errors.Is(err, fulfillment.ErrUnknownDocument):
		return http.StatusBadRequest
	case errors.Is(err, fulfillment.ErrShipmentNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, shipper.ErrCarrierNotFound),
		errors.Is(err, shipper.ErrDocumentNotAvailable):
		return http.StatusNotFound
	case errors.Is(err, fulfillment.ErrAlreadySent),
		errors.Is(err, fulfillment.ErrOrderLocked),
		errors.Is(err, fulfillment.ErrNotSent):
		return http.StatusConflict
	case errors.Is(err, fulfillment.ErrNoEligibleCarrier),
		errors.Is(err, fulfillment.ErrCarrierNotEligible):
		return http.StatusUnprocessableEntity
	case errors.As(err, &se):
		if se.Retryable {
			return http.StatusBadGateway
		}
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
