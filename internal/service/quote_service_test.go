package service_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteService_DraftLifecycle(t *testing.T) {
	s := newTestServices(t)
	owner := testutil.CreateUser(t, s.db, "Owner")
	ctx := testutil.ContextFor(owner)
	customer := s.createCustomer(t, ctx, "Acme")

	quote, err := s.quotes.CreateDraft(ctx, customer.ID, &domain.CreateQuoteRequest{
		Title:   "Roof",
		TaxRate: 25,
		Items: []domain.QuoteItemRequest{
			{Description: "Tiles", Quantity: 10, UnitPrice: 100, DiscountPercent: 10},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteStatusDraft, quote.Status)
	assert.Equal(t, 900.0, quote.Subtotal)
	assert.Equal(t, 225.0, quote.TaxAmount)
	assert.Equal(t, 1125.0, quote.Total)

	t.Run("add and remove items", func(t *testing.T) {
		q, err := s.quotes.AddItem(ctx, quote.ID, &domain.QuoteItemRequest{Description: "Labour", Quantity: 2, UnitPrice: 50})
		require.NoError(t, err)
		require.Len(t, q.Items, 2)
		assert.Equal(t, 1000.0, q.Subtotal)

		q, err = s.quotes.RemoveItem(ctx, quote.ID, q.Items[1].ID)
		require.NoError(t, err)
		require.Len(t, q.Items, 1)

		_, err = s.quotes.RemoveItem(ctx, quote.ID, q.Items[0].ID)
		assert.ErrorIs(t, err, service.ErrLastQuoteItem)
	})

	t.Run("update item", func(t *testing.T) {
		current, err := s.quotes.GetByID(ctx, quote.ID)
		require.NoError(t, err)
		q, err := s.quotes.UpdateItem(ctx, quote.ID, current.Items[0].ID,
			&domain.QuoteItemRequest{Description: "Tiles", Quantity: 1, UnitPrice: 100})
		require.NoError(t, err)
		assert.Equal(t, 100.0, q.Subtotal)

		_, err = s.quotes.UpdateItem(ctx, quote.ID, uuid.New(),
			&domain.QuoteItemRequest{Description: "x", Quantity: 1, UnitPrice: 1})
		assert.ErrorIs(t, err, domain.ErrQuoteItemNotFound)
	})

	t.Run("pricing", func(t *testing.T) {
		zero, discount := 0.0, 30.0
		q, err := s.quotes.SetPricing(ctx, quote.ID, &domain.UpdateQuotePricingRequest{TaxRate: &zero, Discount: &discount})
		require.NoError(t, err)
		assert.Equal(t, 70.0, q.Total)
	})

	t.Run("association adds and removes a fee line", func(t *testing.T) {
		projectID := uuid.New()
		fee := 200.0
		q, err := s.quotes.Associate(ctx, quote.ID, &domain.AssociateProjectRequest{
			CustomerID: customer.ID, ProjectID: projectID, ProjectName: "Barn", Fee: &fee,
		})
		require.NoError(t, err)
		require.Len(t, q.Associations, 1)
		require.Len(t, q.Items, 2)
		assert.Equal(t, "Project fee: Barn", q.Items[1].Description)

		_, err = s.quotes.Associate(ctx, quote.ID, &domain.AssociateProjectRequest{CustomerID: customer.ID, ProjectID: projectID})
		assert.ErrorIs(t, err, domain.ErrAssociationExists)

		q, err = s.quotes.Dissociate(ctx, quote.ID, projectID)
		require.NoError(t, err)
		assert.Empty(t, q.Associations)
		assert.Len(t, q.Items, 1)
	})

	t.Run("sent quotes are frozen", func(t *testing.T) {
		q, err := s.quotes.TransitionStatus(ctx, quote.ID, domain.QuoteStatusSent)
		require.NoError(t, err)
		assert.Equal(t, domain.QuoteStatusSent, q.Status)

		_, err = s.quotes.AddItem(ctx, quote.ID, &domain.QuoteItemRequest{Description: "late", Quantity: 1, UnitPrice: 1})
		assert.ErrorIs(t, err, service.ErrQuoteNotEditable)

		_, err = s.quotes.TransitionStatus(ctx, quote.ID, domain.QuoteStatusDraft)
		require.NoError(t, err)
		_, err = s.quotes.TransitionStatus(ctx, quote.ID, domain.QuoteStatusAccepted)
		assert.ErrorIs(t, err, domain.ErrInvalidQuoteTransition)
	})

	t.Run("listed for owner", func(t *testing.T) {
		list, err := s.quotes.ListForOwner(ctx, domain.EntityTypeCustomer, customer.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, quote.ID, list[0].ID)
	})
}

func TestQuoteService_Validation(t *testing.T) {
	s := newTestServices(t)
	owner := testutil.CreateUser(t, s.db, "Owner")
	stranger := testutil.CreateUser(t, s.db, "Stranger")
	ctx := testutil.ContextFor(owner)
	customer := s.createCustomer(t, ctx, "Acme")

	_, err := s.quotes.CreateDraft(ctx, customer.ID, &domain.CreateQuoteRequest{Title: "Empty"})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = s.quotes.CreateDraft(ctx, customer.ID, &domain.CreateQuoteRequest{
		Title: "Bad", Items: []domain.QuoteItemRequest{{Description: "x", Quantity: 0, UnitPrice: 1}},
	})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = s.quotes.CreateDraft(testutil.ContextFor(stranger), customer.ID, &domain.CreateQuoteRequest{
		Title: "Sneaky", Items: []domain.QuoteItemRequest{{Description: "x", Quantity: 1, UnitPrice: 1}},
	})
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = s.quotes.CreateForProject(ctx, uuid.New(), &domain.CreateQuoteRequest{
		Title: "Nowhere", Items: []domain.QuoteItemRequest{{Description: "x", Quantity: 1, UnitPrice: 1}},
	})
	assert.ErrorIs(t, err, service.ErrProjectNotFound)

	_, err = s.quotes.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, service.ErrQuoteNotFound)
}

func TestQuoteService_ResolveSnapshotRejectsForeignQuote(t *testing.T) {
	s := newTestServices(t)
	owner := testutil.CreateUser(t, s.db, "Owner")
	ctx := testutil.ContextFor(owner)
	acme := s.createCustomer(t, ctx, "Acme")
	other := s.createCustomer(t, ctx, "Other")

	foreign, err := s.quotes.CreateDraft(ctx, other.ID, &domain.CreateQuoteRequest{
		Title: "Other roof", Items: []domain.QuoteItemRequest{{Description: "x", Quantity: 1, UnitPrice: 1}},
	})
	require.NoError(t, err)

	_, err = s.quotes.ResolveSnapshot(ctx, s.db, acme.ID, &foreign.ID)
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	snap, err := s.quotes.ResolveSnapshot(ctx, s.db, other.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, foreign.ID, snap.QuoteID)
}
