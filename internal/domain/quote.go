package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

var (
	ErrLastQuoteItem          = errors.New("a quote must keep at least one line item")
	ErrQuoteItemNotFound      = errors.New("quote item not found")
	ErrInvalidQuoteItem       = errors.New("invalid quote item")
	ErrInvalidQuoteTransition = errors.New("invalid quote status transition")
	ErrAssociationExists      = errors.New("project is already associated with this quote")
	ErrAssociationNotFound    = errors.New("project is not associated with this quote")
)

// QuoteStatus represents the lifecycle of a quote
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "draft"
	QuoteStatusSent     QuoteStatus = "sent"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusRejected QuoteStatus = "rejected"
)

var validQuoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusDraft: {QuoteStatusSent},
	QuoteStatusSent:  {QuoteStatusAccepted, QuoteStatusRejected, QuoteStatusDraft},
}

// QuoteItem is one priced line
type QuoteItem struct {
	ID              uuid.UUID  `json:"id"`
	Description     string     `json:"description"`
	Quantity        float64    `json:"quantity"`
	UnitPrice       float64    `json:"unitPrice"`
	DiscountPercent float64    `json:"discountPercent"`
	LineTotal       float64    `json:"lineTotal"`
	SourceProjectID *uuid.UUID `json:"sourceProjectId,omitempty"`
}

// Validate checks quantity, price and discount bounds
func (i QuoteItem) Validate() error {
	switch {
	case i.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidQuoteItem)
	case i.UnitPrice < 0:
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidQuoteItem)
	case i.DiscountPercent < 0 || i.DiscountPercent > 100:
		return fmt.Errorf("%w: discount must be between 0 and 100", ErrInvalidQuoteItem)
	}
	return nil
}

// QuoteAssociation links an additional customer/project pair to a quote
type QuoteAssociation struct {
	CustomerID  uuid.UUID  `json:"customerId"`
	ProjectID   uuid.UUID  `json:"projectId"`
	ProjectName string     `json:"projectName,omitempty"`
	Fee         *float64   `json:"fee,omitempty"`
	FeeItemID   *uuid.UUID `json:"feeItemId,omitempty"`
}

// Quote is a line-item quotation owned by a customer (draft) or a project
type Quote struct {
	BaseModel
	QuoteNumber       string             `gorm:"type:varchar(50);not null;index;column:quote_number"`
	Title             string             `gorm:"type:varchar(200);not null"`
	OwnerType         EntityType         `gorm:"type:varchar(20);not null;index:idx_quote_owner"`
	OwnerID           uuid.UUID          `gorm:"type:uuid;not null;index:idx_quote_owner"`
	Items             []QuoteItem        `gorm:"type:jsonb;serializer:json;not null"`
	TaxRate           float64            `gorm:"type:decimal(5,2);not null;default:0;column:tax_rate"`
	Discount          float64            `gorm:"type:decimal(15,2);not null;default:0"`
	Subtotal          float64            `gorm:"type:decimal(15,2);not null;default:0"`
	TaxAmount         float64            `gorm:"type:decimal(15,2);not null;default:0;column:tax_amount"`
	Total             float64            `gorm:"type:decimal(15,2);not null;default:0"`
	Status            QuoteStatus        `gorm:"type:varchar(20);not null;default:'draft'"`
	Associations      []QuoteAssociation `gorm:"type:jsonb;serializer:json"`
	Notes             string             `gorm:"type:text"`
	ValidUntil        *time.Time         `gorm:"column:valid_until"`
	CreatedByID       uuid.UUID          `gorm:"type:uuid;column:created_by_id"`
	MigratedProjectID *uuid.UUID         `gorm:"type:uuid;index;column:migrated_project_id"`
	OriginQuoteID     *uuid.UUID         `gorm:"type:uuid;index;column:origin_quote_id"`
}

// QuoteTotals are the derived amounts of a quote
type QuoteTotals struct {
	Subtotal  float64
	TaxAmount float64
	Total     float64
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// LineTotal is quantity * unitPrice * (1 - discountPercent/100)
func LineTotal(item QuoteItem) float64 {
	return roundCents(item.Quantity * item.UnitPrice * (1 - item.DiscountPercent/100))
}

// RecomputeTotals derives subtotal, tax and total from the items.
// The result depends only on its inputs.
func RecomputeTotals(items []QuoteItem, taxRate, discount float64) QuoteTotals {
	var subtotal float64
	for _, it := range items {
		subtotal += LineTotal(it)
	}
	subtotal = roundCents(subtotal)
	tax := roundCents(subtotal * taxRate / 100)
	return QuoteTotals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     roundCents(subtotal + tax - discount),
	}
}

// GenerateQuoteNumber derives a quote number from the creation time
func GenerateQuoteNumber(t time.Time) string {
	return "Q-" + t.UTC().Format("20060102-150405")
}

// Recalculate refreshes every line total and the quote totals
func (q *Quote) Recalculate() {
	for i := range q.Items {
		q.Items[i].LineTotal = LineTotal(q.Items[i])
	}
	t := RecomputeTotals(q.Items, q.TaxRate, q.Discount)
	q.Subtotal, q.TaxAmount, q.Total = t.Subtotal, t.TaxAmount, t.Total
}

// AddItem validates and appends an item
func (q *Quote) AddItem(item QuoteItem) (QuoteItem, error) {
	if err := item.Validate(); err != nil {
		return QuoteItem{}, err
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	q.Items = append(q.Items, item)
	q.Recalculate()
	return q.Items[len(q.Items)-1], nil
}

// UpdateItem replaces the fields of an existing item
func (q *Quote) UpdateItem(item QuoteItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	for i := range q.Items {
		if q.Items[i].ID == item.ID {
			item.SourceProjectID = q.Items[i].SourceProjectID
			q.Items[i] = item
			q.Recalculate()
			return nil
		}
	}
	return ErrQuoteItemNotFound
}

// RemoveItem deletes an item. The last remaining item cannot be removed.
func (q *Quote) RemoveItem(id uuid.UUID) error {
	for i := range q.Items {
		if q.Items[i].ID != id {
			continue
		}
		if len(q.Items) == 1 {
			return ErrLastQuoteItem
		}
		q.Items = append(q.Items[:i:i], q.Items[i+1:]...)
		for j := range q.Associations {
			if a := q.Associations[j]; a.FeeItemID != nil && *a.FeeItemID == id {
				q.Associations[j].FeeItemID = nil
				q.Associations[j].Fee = nil
			}
		}
		q.Recalculate()
		return nil
	}
	return ErrQuoteItemNotFound
}

// SetPricing sets tax rate and absolute discount
func (q *Quote) SetPricing(taxRate, discount float64) {
	q.TaxRate = taxRate
	q.Discount = discount
	q.Recalculate()
}

// Associate links a customer/project pair, adding a fee line when fee is set
func (q *Quote) Associate(a QuoteAssociation) error {
	for _, existing := range q.Associations {
		if existing.ProjectID == a.ProjectID {
			return ErrAssociationExists
		}
	}
	a.FeeItemID = nil
	if a.Fee != nil {
		pid := a.ProjectID
		desc := "Project fee"
		if a.ProjectName != "" {
			desc = "Project fee: " + a.ProjectName
		}
		item, err := q.AddItem(QuoteItem{
			Description:     desc,
			Quantity:        1,
			UnitPrice:       *a.Fee,
			SourceProjectID: &pid,
		})
		if err != nil {
			return err
		}
		a.FeeItemID = &item.ID
	}
	q.Associations = append(q.Associations, a)
	q.Recalculate()
	return nil
}

// Dissociate removes a project association and its fee line
func (q *Quote) Dissociate(projectID uuid.UUID) error {
	for i, a := range q.Associations {
		if a.ProjectID != projectID {
			continue
		}
		if a.FeeItemID != nil {
			if err := q.RemoveItem(*a.FeeItemID); err != nil && !errors.Is(err, ErrQuoteItemNotFound) {
				return err
			}
		}
		q.Associations = append(q.Associations[:i:i], q.Associations[i+1:]...)
		q.Recalculate()
		return nil
	}
	return ErrAssociationNotFound
}

// TransitionTo moves the quote to a new status
func (q *Quote) TransitionTo(to QuoteStatus) error {
	for _, allowed := range validQuoteTransitions[q.Status] {
		if allowed == to {
			q.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidQuoteTransition, q.Status, to)
}

// IsUnmigratedDraft reports whether the quote is a customer draft not yet moved to a project
func (q *Quote) IsUnmigratedDraft() bool {
	return q.OwnerType == EntityTypeCustomer && q.MigratedProjectID == nil
}

// Snapshot freezes the quote for attachment to an approval request
func (q *Quote) Snapshot() QuoteSnapshot {
	items := make([]QuoteItem, len(q.Items))
	copy(items, q.Items)
	return QuoteSnapshot{
		QuoteID:     q.ID,
		QuoteNumber: q.QuoteNumber,
		Title:       q.Title,
		Items:       items,
		TaxRate:     q.TaxRate,
		Discount:    q.Discount,
		Subtotal:    q.Subtotal,
		TaxAmount:   q.TaxAmount,
		Total:       q.Total,
	}
}

// CopyForProject returns a fresh project-owned quote carrying this quote's lines
func (q *Quote) CopyForProject(projectID uuid.UUID) *Quote {
	items := make([]QuoteItem, len(q.Items))
	copy(items, q.Items)
	origin := q.ID
	cp := &Quote{
		QuoteNumber:   q.QuoteNumber,
		Title:         q.Title,
		OwnerType:     EntityTypeProject,
		OwnerID:       projectID,
		Items:         items,
		TaxRate:       q.TaxRate,
		Discount:      q.Discount,
		Status:        q.Status,
		Associations:  append([]QuoteAssociation(nil), q.Associations...),
		Notes:         q.Notes,
		ValidUntil:    q.ValidUntil,
		CreatedByID:   q.CreatedByID,
		OriginQuoteID: &origin,
	}
	cp.Recalculate()
	return cp
}
