package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Parcel is a client shipment moving through the warehouse -> trip -> collection lifecycle.
type Parcel struct {
	ID             string          `gorm:"size:36;primaryKey" json:"id"`
	TenantId       string          `gorm:"size:64;index;not null" json:"tenant_id"`
	ClientId       string          `gorm:"size:36;index;not null" json:"client_id"`
	TripId         *string         `gorm:"size:36;index" json:"trip_id"`
	WarehouseId    *string         `gorm:"size:36;index" json:"warehouse_id"`
	InvoiceId      *string         `gorm:"size:36;index" json:"invoice_id"`
	TripPosition   int             `gorm:"default:0" json:"trip_position"`
	Status         ParcelStatus    `gorm:"size:20;index;not null" json:"status"`
	Description    string          `gorm:"size:255" json:"description"`
	RecipientName  string          `gorm:"size:100" json:"recipient_name"`
	RecipientPhone string          `gorm:"size:30" json:"recipient_phone"`
	Weight         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"weight"`
	Length         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"length"`
	Width          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"width"`
	Height         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"height"`
	IsCollected    bool            `gorm:"default:false" json:"is_collected"`
	CollectedBy    *string         `gorm:"size:100" json:"collected_by"`
	CollectedAt    *time.Time      `json:"collected_at"`
	CollectionNote string          `gorm:"type:text" json:"collection_note"`
	Pieces         []Piece         `gorm:"foreignKey:ParcelId" json:"pieces"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Piece is one physically labelled unit of a parcel.
type Piece struct {
	ID         string          `gorm:"size:36;primaryKey" json:"id"`
	ParcelId   string          `gorm:"size:36;index;not null" json:"parcel_id"`
	SequenceNo int             `gorm:"not null" json:"sequence_no"`
	Weight     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"weight"`
	Length     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"length"`
	Width      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"width"`
	Height     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"height"`
	Barcode    string          `gorm:"size:64;index" json:"barcode"`
	PhotoRef   string          `gorm:"size:255" json:"photo_ref"`
}

func (p *Parcel) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p *Piece) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type NewPiece struct {
	Weight   decimal.Decimal `json:"weight"`
	Length   decimal.Decimal `json:"length"`
	Width    decimal.Decimal `json:"width"`
	Height   decimal.Decimal `json:"height"`
	PhotoRef string          `json:"photo_ref"`
}

type NewParcel struct {
	ClientId       string          `json:"client_id" binding:"required"`
	TripId         *string         `json:"trip_id"`
	WarehouseId    *string         `json:"warehouse_id"`
	Description    string          `json:"description"`
	RecipientName  string          `json:"recipient_name"`
	RecipientPhone string          `json:"recipient_phone"`
	Weight         decimal.Decimal `json:"weight"`
	Length         decimal.Decimal `json:"length"`
	Width          decimal.Decimal `json:"width"`
	Height         decimal.Decimal `json:"height"`
	Quantity       int             `json:"quantity" binding:"omitempty,min=1,max=999"`
	Pieces         []NewPiece      `json:"pieces" binding:"omitempty,max=99,dive"`
}

// BuildPieces returns the explicit pieces, or Quantity copies of the parcel dimensions.
func (input NewParcel) BuildPieces(parcelId string) []Piece {
	if len(input.Pieces) > 0 {
		pieces := make([]Piece, len(input.Pieces))
		for i, np := range input.Pieces {
			pieces[i] = Piece{
				ID:         uuid.NewString(),
				ParcelId:   parcelId,
				SequenceNo: i + 1,
				Weight:     np.Weight,
				Length:     np.Length,
				Width:      np.Width,
				Height:     np.Height,
				PhotoRef:   np.PhotoRef,
			}
		}
		return pieces
	}
	qty := input.Quantity
	if qty <= 0 {
		qty = 1
	}
	pieces := make([]Piece, qty)
	for i := range pieces {
		pieces[i] = Piece{
			ID:         uuid.NewString(),
			ParcelId:   parcelId,
			SequenceNo: i + 1,
			Weight:     input.Weight,
			Length:     input.Length,
			Width:      input.Width,
			Height:     input.Height,
		}
	}
	return pieces
}

// ReturnToWarehouse detaches the parcel from its trip and restores placeholder barcodes.
// A non-empty warehouseId relocates the parcel; otherwise it stays where it is.
func (p *Parcel) ReturnToWarehouse(warehouseId *string) {
	p.Status = ParcelStatusWarehouse
	if warehouseId != nil && *warehouseId != "" {
		id := *warehouseId
		p.WarehouseId = &id
	}
	p.TripId = nil
	p.IsCollected = false
	p.CollectedAt = nil
	p.CollectedBy = nil
	p.ResetBarcodes()
}

// DetachFromTrip drops the trip reference of a parcel that has already landed.
// Status, location and collection details are kept.
func (p *Parcel) DetachFromTrip() {
	p.TripId = nil
}

// MarkArrived relocates the parcel to the trip destination, or clears its location when none.
func (p *Parcel) MarkArrived(destinationWarehouseId *string) {
	p.Status = ParcelStatusArrived
	if destinationWarehouseId != nil && *destinationWarehouseId != "" {
		id := *destinationWarehouseId
		p.WarehouseId = &id
	} else {
		p.WarehouseId = nil
	}
}

func (p *Parcel) MarkCollected(collectedBy string, note string, now time.Time) {
	p.Status = ParcelStatusCollected
	p.IsCollected = true
	p.WarehouseId = nil
	p.CollectedBy = &collectedBy
	p.CollectedAt = &now
	if note != "" {
		p.CollectionNote = note
	}
}

// BillableQuantity is what a line item charges for: the weight when known, otherwise one unit.
func (p *Parcel) BillableQuantity() decimal.Decimal {
	if p.Weight.IsPositive() {
		return p.Weight
	}
	return decimal.NewFromInt(1)
}
