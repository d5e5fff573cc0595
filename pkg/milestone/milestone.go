// Package milestone defines the canonical delivery-lifecycle milestones and the
// per-carrier tables that translate raw tracking codes into them.
package milestone

import (
	"fmt"
	"sort"
)

// Milestone is a canonical delivery-lifecycle event.
type Milestone string

const (
	DataReceivedByCarrier             Milestone = "data_received_by_carrier"
	AddedToManifest                   Milestone = "added_to_manifest"
	ReceivedByCarrier                 Milestone = "received_by_carrier"
	DepartedCountryOfOrigin           Milestone = "departed_country_of_origin"
	ArrivedDestinationCountry         Milestone = "arrived_destination_country"
	CustomsClearance                  Milestone = "customs_clearance"
	ClearedCustoms                    Milestone = "cleared_customs"
	InvoiceProblem                    Milestone = "invoice_problem"
	MissingID                         Milestone = "missing_id"
	ShipmentOnHold                    Milestone = "shipment_on_hold"
	AddressResearch                   Milestone = "address_research"
	CustomerAddressUpdated            Milestone = "customer_address_updated"
	CustomerDeliveryPreferenceUpdated Milestone = "customer_delivery_preference_updated"
	CustomerContacted                 Milestone = "customer_contacted"
	AttemptedContact                  Milestone = "attempted_contact"
	DeliveryScheduled                 Milestone = "delivery_scheduled"
	OutForDelivery                    Milestone = "out_for_delivery"
	AttemptedDelivery                 Milestone = "attempted_delivery"
	HeldForCollection                 Milestone = "held_for_collection"
	Refused                           Milestone = "refused"
	Delivered                         Milestone = "delivered"
	DeliveredToCustomer               Milestone = "delivered_to_customer"
	StartedReturnProcess              Milestone = "started_return_process"
	Returned                          Milestone = "returned"
	Lost                              Milestone = "lost"
)

// Info holds the fixed attributes of a canonical milestone.
type Info struct {
	IsCustomerView bool
	Description    string
}

var catalog = map[Milestone]Info{
	DataReceivedByCarrier:             {false, "Shipment information received by the carrier"},
	AddedToManifest:                   {false, "Shipment added to the carrier manifest"},
	ReceivedByCarrier:                 {true, "Your order has been picked up by the courier"},
	DepartedCountryOfOrigin:           {true, "Your order has left the country of origin"},
	ArrivedDestinationCountry:         {true, "Your order has arrived in the destination country"},
	CustomsClearance:                  {true, "Your order is going through customs clearance"},
	ClearedCustoms:                    {true, "Your order has cleared customs"},
	InvoiceProblem:                    {false, "The carrier reported a problem with the invoice"},
	MissingID:                         {true, "The courier needs your ID document to release the order"},
	ShipmentOnHold:                    {false, "Shipment is on hold at the carrier"},
	AddressResearch:                   {false, "The courier is checking the delivery address"},
	CustomerAddressUpdated:            {false, "Delivery address updated"},
	CustomerDeliveryPreferenceUpdated: {false, "Delivery preference updated"},
	CustomerContacted:                 {false, "The courier contacted the customer"},
	AttemptedContact:                  {true, "The courier tried to contact you"},
	DeliveryScheduled:                 {true, "Delivery has been scheduled"},
	OutForDelivery:                    {true, "Your order is out for delivery"},
	AttemptedDelivery:                 {true, "The courier attempted to deliver your order"},
	HeldForCollection:                 {true, "Your order is waiting for collection"},
	Refused:                           {false, "Delivery was refused"},
	Delivered:                         {true, "Your order has been delivered"},
	DeliveredToCustomer:               {true, "Your order has been collected"},
	StartedReturnProcess:              {false, "The shipment is being returned to the sender"},
	Returned:                          {false, "The shipment was returned to the sender"},
	Lost:                              {false, "The carrier reported the shipment as lost"},
}

// Known reports whether m is part of the canonical set.
func (m Milestone) Known() bool {
	_, ok := catalog[m]
	return ok
}

// IsCustomerView reports whether the milestone is shown to the end customer.
func (m Milestone) IsCustomerView() bool {
	return catalog[m].IsCustomerView
}

// Description returns the human readable text for the milestone.
func (m Milestone) Description() string {
	return catalog[m].Description
}

// IsDelivered reports whether m counts as final delivery.
func IsDelivered(m Milestone) bool {
	return m == Delivered || m == DeliveredToCustomer
}

// IsTerminal reports whether a shipment at status m accepts no further milestones.
func IsTerminal(m Milestone) bool {
	return m == Delivered || m == Returned
}

// All returns every canonical milestone in lexical order.
func All() []Milestone {
	out := make([]Milestone, 0, len(catalog))
	for m := range catalog {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parse converts a stored value back into a canonical milestone.
func Parse(s string) (Milestone, error) {
	m := Milestone(s)
	if !m.Known() {
		return "", fmt.Errorf("unknown milestone %q", s)
	}
	return m, nil
}
