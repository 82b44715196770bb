package escpos

import (
	"encoding/hex"
	"fmt"
)

// Station identifies the filling station printed in the receipt header.
// Empty fields fall back to the documented defaults.
type Station struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Voucher carries the sale fields printed in the receipt body. Empty
// fields fall back to the documented defaults. Date and time are both
// derived from Timestamp, which must be ISO-8601-like with at least 19
// characters ("2006-01-02T15:04:05").
type Voucher struct {
	VoucherNo string `json:"voucher_no"`
	Timestamp string `json:"timestamp"`
	Nozzle    string `json:"nozzle"`
	FuelType  string `json:"fuel_type"`
	UnitPrice string `json:"unit_price"`
	Liters    string `json:"liters"`
	Total     string `json:"total"`
}

// DefaultStation returns the header record used for fields the caller
// left empty.
func DefaultStation() Station {
	return Station{
		Name:    "DET FILLING STATION",
		Address: "No.1, Yangon-Mandalay Road",
		Phone:   "09-250000000",
	}
}

// DefaultVoucher returns the body record used for fields the caller left
// empty.
func DefaultVoucher() Voucher {
	return Voucher{
		VoucherNo: "000000",
		Timestamp: "1970-01-01T00:00:00",
		Nozzle:    "1",
		FuelType:  "92 RON",
		UnitPrice: "0",
		Liters:    "0.00",
		Total:     "0",
	}
}

type fieldID int

const (
	fieldStationName fieldID = iota + 1
	fieldStationAddress
	fieldStationPhone
	fieldVoucherNo
	fieldDate
	fieldTime
	fieldNozzle
	fieldFuelType
	fieldUnitPrice
	fieldLiters
	fieldTotal
)

// segment is one entry of the receipt template: either literal bytes or
// a reference to a voucher field.
type segment struct {
	lit   []byte
	field fieldID
}

func text(s string) segment { return segment{lit: []byte(s)} }

func field(id fieldID) segment { return segment{field: id} }

// ESC/POS control sequences used by the receipt template.
var (
	ctlInit       = []byte{0x1B, 0x40}
	ctlCenter     = []byte{0x1B, 0x61, 0x01}
	ctlLeft       = []byte{0x1B, 0x61, 0x00}
	ctlBoldOn     = []byte{0x1B, 0x45, 0x01}
	ctlBoldOff    = []byte{0x1B, 0x45, 0x00}
	ctlDoubleOn   = []byte{0x1D, 0x21, 0x11}
	ctlDoubleOff  = []byte{0x1D, 0x21, 0x00}
	ctlFeedAndCut = []byte{0x1B, 0x64, 0x04, 0x1D, 0x56, 0x42, 0x00}
)

// receiptTemplate is the fixed voucher layout: header block, labeled
// body, thank-you block, cut. Not mutated at runtime.
var receiptTemplate = []segment{
	{lit: ctlInit},
	{lit: ctlCenter},
	{lit: ctlDoubleOn},
	field(fieldStationName), text("\n"),
	{lit: ctlDoubleOff},
	field(fieldStationAddress), text("\n"),
	text("Ph: "), field(fieldStationPhone), text("\n\n"),
	{lit: ctlLeft},
	text("Voucher No : "), field(fieldVoucherNo), text("\n"),
	text("Date       : "), field(fieldDate), text("\n"),
	text("Time       : "), field(fieldTime), text("\n"),
	text("Nozzle     : "), field(fieldNozzle), text("\n"),
	text("Fuel       : "), field(fieldFuelType), text("\n"),
	text("Price      : "), field(fieldUnitPrice), text("\n"),
	text("Liters     : "), field(fieldLiters), text("\n"),
	{lit: ctlBoldOn},
	text("Total      : "), field(fieldTotal), text("\n"),
	{lit: ctlBoldOff},
	text("\n"),
	{lit: ctlCenter},
	text("Thank You! Please Come Again\n"),
	{lit: ctlFeedAndCut},
}

// BuildVoucherReceipt assembles the full printer control sequence for a
// voucher. Caller-supplied fields are merged over the defaults, so any
// subset (including none) may be supplied; usedDefaults reports whether
// any default was substituted. Field text travels through HexUpper and
// back, so runes above 0xFF land on the wire truncated to their low byte.
func BuildVoucherReceipt(station Station, voucher Voucher) (buf []byte, usedDefaults bool, err error) {
	st, stDefaulted := mergeStation(station)
	v, vDefaulted := mergeVoucher(voucher)
	usedDefaults = stDefaulted || vDefaulted

	if len(v.Timestamp) < 19 {
		return nil, usedDefaults, fmt.Errorf("%w: timestamp %q shorter than 19 characters", ErrInvalidField, v.Timestamp)
	}

	values := map[fieldID]string{
		fieldStationName:    st.Name,
		fieldStationAddress: st.Address,
		fieldStationPhone:   st.Phone,
		fieldVoucherNo:      v.VoucherNo,
		fieldDate:           v.Timestamp[0:10],
		fieldTime:           v.Timestamp[11:19],
		fieldNozzle:         v.Nozzle,
		fieldFuelType:       v.FuelType,
		fieldUnitPrice:      v.UnitPrice,
		fieldLiters:         v.Liters,
		fieldTotal:          v.Total,
	}

	for _, seg := range receiptTemplate {
		if seg.field == 0 {
			buf = append(buf, seg.lit...)
			continue
		}
		buf = append(buf, fieldBytes(values[seg.field])...)
	}
	return buf, usedDefaults, nil
}

// fieldBytes renders one field value through the hex pipeline.
func fieldBytes(value string) []byte {
	b, err := hex.DecodeString(HexUpper(value))
	if err != nil {
		// HexUpper emits complete pairs of hex digits, so this cannot fail.
		panic(err)
	}
	return b
}

func mergeStation(in Station) (Station, bool) {
	out := DefaultStation()
	defaulted := false
	merge := func(dst *string, src string) {
		if src == "" {
			defaulted = true
			return
		}
		*dst = src
	}
	merge(&out.Name, in.Name)
	merge(&out.Address, in.Address)
	merge(&out.Phone, in.Phone)
	return out, defaulted
}

func mergeVoucher(in Voucher) (Voucher, bool) {
	out := DefaultVoucher()
	defaulted := false
	merge := func(dst *string, src string) {
		if src == "" {
			defaulted = true
			return
		}
		*dst = src
	}
	merge(&out.VoucherNo, in.VoucherNo)
	merge(&out.Timestamp, in.Timestamp)
	merge(&out.Nozzle, in.Nozzle)
	merge(&out.FuelType, in.FuelType)
	merge(&out.UnitPrice, in.UnitPrice)
	merge(&out.Liters, in.Liters)
	merge(&out.Total, in.Total)
	return out, defaulted
}
