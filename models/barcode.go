package models

import (
	"fmt"
	"strings"
)

const PlaceholderBarcodePrefix = "TEMP-"

// FormatPieceBarcode renders <trip>-<position>-<piece>, e.g. S1-001-01.
func FormatPieceBarcode(tripNumber string, position int, sequenceNo int) string {
	return fmt.Sprintf("%s-%03d-%02d", tripNumber, position, sequenceNo)
}

// PlaceholderBarcode is used while a parcel is not on any trip.
func PlaceholderBarcode(parcelId string, sequenceNo int) string {
	short := strings.ReplaceAll(parcelId, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s%s-%02d", PlaceholderBarcodePrefix, strings.ToUpper(short), sequenceNo)
}

func IsPlaceholderBarcode(code string) bool {
	return strings.HasPrefix(code, PlaceholderBarcodePrefix)
}

// AssignBarcodes labels every piece for its position on the trip.
func (p *Parcel) AssignBarcodes(tripNumber string, position int) {
	p.TripPosition = position
	for i := range p.Pieces {
		p.Pieces[i].Barcode = FormatPieceBarcode(tripNumber, position, p.Pieces[i].SequenceNo)
	}
}

func (p *Parcel) ResetBarcodes() {
	p.TripPosition = 0
	for i := range p.Pieces {
		p.Pieces[i].Barcode = PlaceholderBarcode(p.ID, p.Pieces[i].SequenceNo)
	}
}
