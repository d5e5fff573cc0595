package milestone

import (
	"fmt"
	"strings"
)

// Table maps one carrier's raw tracking codes onto canonical milestones.
type Table struct {
	Carrier   string
	Normalize func(code string) string
	Codes     map[string]Milestone
}

// Lookup returns the milestone for a raw code. Unknown codes are reported
// as not found and must be skipped by the caller.
func (t *Table) Lookup(code string) (Milestone, bool) {
	if t.Normalize != nil {
		code = t.Normalize(code)
	}
	m, ok := t.Codes[code]
	return m, ok
}

var tables = map[string]*Table{
	"aramex":    {Carrier: "aramex", Normalize: strings.ToUpper, Codes: aramexCodes},
	"aramex_sa": {Carrier: "aramex_sa", Normalize: strings.ToUpper, Codes: aramexCodes},
	"dhl":       {Carrier: "dhl", Codes: dhlCodes},
	"naqel":     {Carrier: "naqel", Normalize: strings.TrimSpace, Codes: naqelCodes},
	"postaplus": {Carrier: "postaplus", Normalize: strings.ToUpper, Codes: postaplusCodes},
	"smsa":      {Carrier: "smsa", Normalize: strings.ToLower, Codes: smsaCodes},
}

// For returns the table registered for carrier.
func For(carrier string) (*Table, bool) {
	t, ok := tables[carrier]
	return t, ok
}

// Lookup maps a raw carrier code to a canonical milestone.
func Lookup(carrier, code string) (Milestone, bool) {
	t, ok := tables[carrier]
	if !ok {
		return "", false
	}
	return t.Lookup(code)
}

// Validate checks every registered table against the canonical set and
// verifies that each of the given carriers has a table.
func Validate(carriers ...string) error {
	for name, t := range tables {
		if t.Carrier != name {
			return fmt.Errorf("milestone table %q registered as %q", t.Carrier, name)
		}
		if len(t.Codes) == 0 {
			return fmt.Errorf("milestone table %q is empty", name)
		}
		for code, m := range t.Codes {
			if !m.Known() {
				return fmt.Errorf("milestone table %q: code %q maps to unknown milestone %q", name, code, m)
			}
		}
	}
	for _, c := range carriers {
		if _, ok := tables[c]; !ok {
			return fmt.Errorf("no milestone table for carrier %q", c)
		}
	}
	return nil
}

var aramexCodes = map[string]Milestone{
	"SH249":    CustomerContacted,
	"SH271":    CustomerContacted,
	"SH369":    CustomerContacted,
	"SH295":    CustomerContacted,
	"SH296":    CustomerAddressUpdated,
	"SH034":    DeliveredToCustomer,
	"SH035":    CustomsClearance,
	"SH013":    AddedToManifest,
	"SH041":    ClearedCustoms,
	"SH280":    CustomsClearance,
	"SH005":    Delivered,
	"SH006":    DeliveredToCustomer,
	"SH007":    Delivered,
	"SH234":    Delivered,
	"SH496":    DeliveredToCustomer,
	"SH162D11": AttemptedDelivery,
	"SH162D13": AttemptedDelivery,
	"SH162D16": AttemptedDelivery,
	"SH001":    ArrivedDestinationCountry,
	"SH003":    OutForDelivery,
	"SH281":    CustomsClearance,
	"SH008":    ShipmentOnHold,
	"SH156C00": CustomsClearance,
	"SH156C01": CustomsClearance,
	"SH156C02": CustomsClearance,
	"SH156C03": CustomsClearance,
	"SH156C04": CustomsClearance,
	"SH156C05": CustomsClearance,
	"SH156C06": CustomsClearance,
	"SH156C07": CustomsClearance,
	"SH156C08": CustomsClearance,
	"SH156C09": InvoiceProblem,
	"SH156C10": CustomsClearance,
	"SH156C11": CustomsClearance,
	"SH156C12": CustomsClearance,
	"SH156C13": CustomsClearance,
	"SH156C14": CustomsClearance,
	"SH156C15": CustomsClearance,
	"SH156C16": CustomsClearance,
	"SH156C17": CustomsClearance,
	"SH156C26": CustomsClearance,
	"SH156C27": CustomsClearance,
	"SH156C28": CustomsClearance,
	"SH156C29": CustomsClearance,
	"SH156C30": CustomsClearance,
	"SH164":    HeldForCollection,
	"SH047":    ReceivedByCarrier,
	"SH069":    StartedReturnProcess,
	"SH071":    StartedReturnProcess,
	"SH162D08": ShipmentOnHold,
	"SH162D10": ShipmentOnHold,
	"SH162D15": ShipmentOnHold,
	"SH162D18": ShipmentOnHold,
	"SH162D34": ShipmentOnHold,
	"SH162D37": ShipmentOnHold,
	"SH162D40": ShipmentOnHold,
	"SH162D41": ShipmentOnHold,
	"SH162G02": ShipmentOnHold,
	"SH162G03": ShipmentOnHold,
	"SH162M01": ShipmentOnHold,
	"SH162M02": ShipmentOnHold,
	"SH162O01": ShipmentOnHold,
	"SH073":    OutForDelivery,
	"SH252":    OutForDelivery,
	"SH033A00": AttemptedDelivery,
	"SH033A01": AttemptedDelivery,
	"SH033A02": AttemptedDelivery,
	"SH033A03": AttemptedDelivery,
	"SH033A04": AttemptedDelivery,
	"SH033A05": AttemptedDelivery,
	"SH033A06": AttemptedDelivery,
	"SH033A07": AttemptedDelivery,
	"SH033A08": AttemptedDelivery,
	"SH033A09": AttemptedDelivery,
	"SH033A10": AttemptedDelivery,
	"SH033A11": AttemptedDelivery,
	"SH033A12": AttemptedDelivery,
	"SH033A13": AttemptedDelivery,
	"SH033A14": AttemptedDelivery,
	"SH033A15": AttemptedDelivery,
	"SH033A16": AttemptedDelivery,
	"SH033A17": Refused,
	"SH033A18": Refused,
	"SH033A19": Refused,
	"SH033A20": AttemptedDelivery,
	"SH033A21": AttemptedDelivery,
	"SH033A22": AttemptedDelivery,
	"SH033A23": Refused,
	"SH043U00": AttemptedDelivery,
	"SH043U01": AttemptedDelivery,
	"SH043U02": AttemptedDelivery,
	"SH043U05": ShipmentOnHold,
	"SH043U07": AttemptedDelivery,
	"SH043U09": AttemptedDelivery,
	"SH043U10": Refused,
	"SH043U18": AttemptedDelivery,
	"SH043U19": AttemptedDelivery,
	"SH043U20": AttemptedDelivery,
	"SH294U11": AttemptedContact,
	"SH294U12": AddressResearch,
	"SH294U13": AttemptedContact,
	"SH294U14": AttemptedContact,
	"SH294U15": AttemptedContact,
	"SH294U16": AttemptedContact,
	"SH294U17": AttemptedContact,
	"SH237":    Lost,
	"SH237D20": Lost,
	"SH237D21": Lost,
	"SH237D22": Lost,
	"SH237D23": Lost,
	"SH237D24": Lost,
	"SH237D25": Lost,
	"SH237D27": Lost,
	"SH237D35": Lost,
	"SH022":    DepartedCountryOfOrigin,
	"SH534":    DeliveredToCustomer,
}

var dhlCodes = map[string]Milestone{
	"AF":       DepartedCountryOfOrigin,
	"AR":       ArrivedDestinationCountry,
	"BA":       AddressResearch,
	"BL":       AddressResearch,
	"BN":       AttemptedContact,
	"CC":       HeldForCollection,
	"CD":       CustomsClearance,
	"CI":       ArrivedDestinationCountry,
	"CM":       AddressResearch,
	"CR":       CustomsClearance,
	"DD":       ShipmentOnHold,
	"DF":       DepartedCountryOfOrigin,
	"DI":       CustomsClearance,
	"DM":       ShipmentOnHold,
	"DP":       Refused,
	"DS":       ShipmentOnHold,
	"ES":       AddedToManifest,
	"FD":       ArrivedDestinationCountry,
	"HP":       InvoiceProblem,
	"IC":       CustomsClearance,
	"MD":       AttemptedDelivery,
	"ND":       AttemptedDelivery,
	"NH":       AttemptedDelivery,
	"OH":       ShipmentOnHold,
	"OK":       Delivered,
	"PD":       Delivered,
	"PL":       ReceivedByCarrier,
	"PU":       HeldForCollection,
	"PY":       InvoiceProblem,
	"RD":       Refused,
	"RR":       AddressResearch,
	"RT":       Returned,
	"RW":       AddedToManifest,
	"SA":       AddedToManifest,
	"SC":       CustomerDeliveryPreferenceUpdated,
	"SI":       CustomsClearance,
	"SM":       CustomerDeliveryPreferenceUpdated,
	"TP":       DeliveryScheduled,
	"UD":       CustomsClearance,
	"WC":       OutForDelivery,
	"DUMMY_PU": DataReceivedByCarrier,
}

var naqelCodes = map[string]Milestone{
	"100": AttemptedDelivery,
	"101": AttemptedDelivery,
	"102": AttemptedDelivery,
	"103": CustomerAddressUpdated,
	"104": AddressResearch,
	"105": Refused,
	"106": Refused,
	"107": Refused,
	"108": Refused,
	"109": Refused,
	"110": Refused,
	"111": AttemptedDelivery,
	"112": ShipmentOnHold,
	"162": AttemptedDelivery,
	"163": HeldForCollection,
	"164": AttemptedDelivery,
	"165": AttemptedContact,
	"166": AttemptedDelivery,
	"167": AttemptedDelivery,
	"168": AttemptedDelivery,
	"169": AttemptedDelivery,
	"170": AttemptedDelivery,
	"171": AttemptedDelivery,
	"172": Delivered,
	"113": Lost,
	"114": StartedReturnProcess,
	"115": Lost,
	"120": ArrivedDestinationCountry,
	"121": ReceivedByCarrier,
	"122": ReceivedByCarrier,
	"123": ReceivedByCarrier,
	"124": ReceivedByCarrier,
	"125": CustomerAddressUpdated,
	"126": CustomerAddressUpdated,
	"127": ShipmentOnHold,
	"128": HeldForCollection,
	"129": ShipmentOnHold,
	"130": ShipmentOnHold,
	"131": ShipmentOnHold,
	"132": ShipmentOnHold,
	"133": ShipmentOnHold,
	"134": AddressResearch,
	"135": ShipmentOnHold,
	"136": ShipmentOnHold,
	"137": ShipmentOnHold,
	"138": ShipmentOnHold,
	"139": ShipmentOnHold,
	"140": ShipmentOnHold,
	"9":   Returned,
	"143": Lost,
	"173": ArrivedDestinationCountry,
	"144": CustomsClearance,
	"145": CustomsClearance,
	"146": CustomsClearance,
	"147": CustomsClearance,
	"148": CustomsClearance,
	"149": CustomsClearance,
	"150": CustomsClearance,
	"151": CustomsClearance,
	"152": CustomsClearance,
	"153": CustomsClearance,
	"154": CustomsClearance,
	"155": CustomsClearance,
	"156": CustomsClearance,
	"157": ClearedCustoms,
	"158": ClearedCustoms,
	"159": ClearedCustoms,
	"160": ClearedCustoms,
	"161": ClearedCustoms,
	"174": CustomsClearance,
	"175": CustomsClearance,
	"176": CustomsClearance,
	"177": CustomsClearance,
	"178": CustomsClearance,
	"179": CustomsClearance,
	"180": CustomsClearance,
	"181": CustomsClearance,
	"182": CustomsClearance,
	"183": CustomsClearance,
	"184": CustomsClearance,
	"185": CustomsClearance,
	"186": CustomsClearance,
	"187": CustomsClearance,
	"188": CustomsClearance,
	"189": CustomsClearance,
	"190": CustomsClearance,
	"191": StartedReturnProcess,
	"192": StartedReturnProcess,
	"193": StartedReturnProcess,
	"194": StartedReturnProcess,
	"195": StartedReturnProcess,
	"196": StartedReturnProcess,
	"197": StartedReturnProcess,
	"202": ShipmentOnHold,
	"203": ShipmentOnHold,
	"207": ShipmentOnHold,
	"208": MissingID,
	"209": MissingID,
	"210": MissingID,
	"211": MissingID,
	"213": ClearedCustoms,
	"214": StartedReturnProcess,
	"215": StartedReturnProcess,
	"216": StartedReturnProcess,
	"217": StartedReturnProcess,
	"218": StartedReturnProcess,
	"219": StartedReturnProcess,
	"220": StartedReturnProcess,
	"3":   ArrivedDestinationCountry,
	"222": ShipmentOnHold,
	"223": ShipmentOnHold,
	"224": StartedReturnProcess,
	"225": ShipmentOnHold,
	"7":   Delivered,
	"5":   OutForDelivery,
	"1":   ArrivedDestinationCountry,
	"0":   DataReceivedByCarrier,
	"27":  DataReceivedByCarrier,
	"28":  DataReceivedByCarrier,
	"29":  HeldForCollection,
	"30":  CustomsClearance,
	"31":  ArrivedDestinationCountry,
	"34":  Refused,
	"35":  AttemptedContact,
	"36":  ShipmentOnHold,
	"37":  HeldForCollection,
	"38":  AddressResearch,
	"39":  AttemptedContact,
	"40":  AttemptedContact,
	"41":  CustomerAddressUpdated,
	"42":  AttemptedContact,
	"43":  AttemptedContact,
	"45":  Lost,
	"226": ArrivedDestinationCountry,
	"50":  Returned,
	"51":  StartedReturnProcess,
	"52":  StartedReturnProcess,
	"54":  StartedReturnProcess,
	"55":  ReceivedByCarrier,
	"56":  ReceivedByCarrier,
	"57":  ReceivedByCarrier,
}

var postaplusCodes = map[string]Milestone{
	"AS":         ReceivedByCarrier,
	"BA":         AddressResearch,
	"CL":         CustomerAddressUpdated,
	"CM":         AttemptedDelivery,
	"CNM":        CustomsClearance,
	"CUSCLRD":    ClearedCustoms,
	"DCR":        CustomsClearance,
	"DELIVERED":  Delivered,
	"DESTROYED":  Lost,
	"DR":         ArrivedDestinationCountry,
	"HD@CUS":     CustomsClearance,
	"ICA":        AddressResearch,
	"OH":         ShipmentOnHold,
	"OS":         DepartedCountryOfOrigin,
	"PL":         AttemptedDelivery,
	"PU":         DeliveredToCustomer,
	"RAD":        ArrivedDestinationCountry,
	"RC":         ClearedCustoms,
	"RS":         Refused,
	"RTC":        StartedReturnProcess,
	"TC":         AttemptedContact,
	"UNCLR":      CustomsClearance,
	"WC":         OutForDelivery,
	"FD":         CustomerDeliveryPreferenceUpdated,
	"SDO":        DepartedCountryOfOrigin,
	"HD@CUSDOC":  CustomsClearance,
	"HD@CUSPRB":  CustomsClearance,
	"HD@MINAPR":  CustomsClearance,
	"CLR":        ClearedCustoms,
	"SKCRT":      StartedReturnProcess,
	"PROHIBIT":   CustomsClearance,
	"SKCRS":      StartedReturnProcess,
	"RFCUSCHG":   Refused,
	"SKYRS":      StartedReturnProcess,
	"OH@RTO":     StartedReturnProcess,
	"OH@COLLECT": HeldForCollection,
	"NA":         AttemptedDelivery,
}

var smsaCodes = map[string]Milestone{
	"proof of delivery captured":           Delivered,
	"picked up":                            ReceivedByCarrier,
	"delivery exception":                   AttemptedDelivery,
	"departed form origin":                 DepartedCountryOfOrigin,
	"out for delivery":                     OutForDelivery,
	"clearance delay":                      CustomsClearance,
	"customs released":                     ClearedCustoms,
	"in clearance processing":              CustomsClearance,
	"on hold":                              ShipmentOnHold,
	"collected from retail":                DeliveredToCustomer,
	"customer broker clearance":            CustomsClearance,
	"undeliverable address":                AddressResearch,
	"recipient not available":              AttemptedDelivery,
	"recipient not available at residence": AttemptedDelivery,
	"reroute request":                      CustomerAddressUpdated,
	"returned to client":                   StartedReturnProcess,
	"consignee no response":                AttemptedContact,
	"consignee mobile off":                 AttemptedContact,
	"no contact number":                    AttemptedContact,
	"incorrect contact number":             AttemptedContact,
	"consignee contact out of service":     AttemptedContact,
	"consignee not available":              AttemptedContact,
	"consignee unknown":                    AttemptedContact,
	"consignee address changed ":           CustomerAddressUpdated,
	"consignee request to call later":      AttemptedContact,
	"consignee did not wait":               AttemptedDelivery,
	"consignee out of city / country":      AttemptedDelivery,
	"incorrect delivery address":           AddressResearch,
	"consignee address changed":            AttemptedDelivery,
	"consignee do not want the shipment":   Refused,
	"refused due to incorrect cod amount":  Refused,
	"refused due to duplicate shipment":    Refused,
	"consignee request to open before pod": Refused,
	"refused due to contents mismatch":     Refused,
	"shipment refuse by recipient":         Refused,
	"consignee unable to pay custom duty":  Refused,
	"consignee unable to pay cod charges":  Refused,
	"consignee refuse to pay custom duty":  Refused,
	"consignee refuse to pay cod charges":  Refused,
	"shipment on hold":                     ShipmentOnHold,
	"awaiting consignee for collection":    HeldForCollection,
	"at smsa retail center":                HeldForCollection,
	"return process started":               StartedReturnProcess,
	"data received":                        DataReceivedByCarrier,
}
