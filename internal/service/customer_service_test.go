package service_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerService_Create(t *testing.T) {
	s := newTestServices(t)
	owner := testutil.CreateUser(t, s.db, "Owner")
	ctx := testutil.ContextFor(owner)

	tests := []struct {
		name       string
		req        domain.CreateCustomerRequest
		wantStages []string
		wantErr    error
	}{
		{
			name:       "default stages",
			req:        domain.CreateCustomerRequest{Name: "Acme"},
			wantStages: customerStages,
		},
		{
			name:       "explicit stages",
			req:        domain.CreateCustomerRequest{Name: "Acme", Stages: []string{"Lead", "Won"}},
			wantStages: []string{"Lead", "Won"},
		},
		{
			name:       "from template",
			req:        domain.CreateCustomerRequest{Name: "Acme", Template: "Roofing Sales"},
			wantStages: []string{"Site visit", "Offer", "Converted"},
		},
		{
			name:    "template for projects only",
			req:     domain.CreateCustomerRequest{Name: "Acme", Template: "Project delivery"},
			wantErr: service.ErrTemplateNotApplicable,
		},
		{
			name:    "duplicate stages",
			req:     domain.CreateCustomerRequest{Name: "Acme", Stages: []string{"Lead", " Lead "}},
			wantErr: service.ErrDuplicateStageName,
		},
		{
			name:    "blank name",
			req:     domain.CreateCustomerRequest{Name: "  "},
			wantErr: service.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := s.customers.Create(ctx, &tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, owner.ID, c.OwnerID)
			assert.Equal(t, tt.wantStages, c.Pipeline.Stages)
			assert.Equal(t, tt.wantStages[0], c.Pipeline.CurrentStage)
		})
	}
}

func TestCustomerService_Panels(t *testing.T) {
	s := newTestServices(t)
	owner := testutil.CreateUser(t, s.db, "Owner")
	ctx := testutil.ContextFor(owner)
	customer := s.createCustomer(t, ctx, "Acme")

	t.Run("activity and reminder", func(t *testing.T) {
		c, err := s.customers.AddActivity(ctx, customer.ID, &domain.AddActivityRequest{Title: "Called", Body: "no answer"})
		require.NoError(t, err)
		require.Len(t, c.Activities, 1)
		assert.Equal(t, "Owner", c.Activities[0].CreatedBy)

		c, err = s.customers.AddReminder(ctx, customer.ID, &domain.AddReminderRequest{Title: "Call back", DueAt: time.Now().Add(24 * time.Hour)})
		require.NoError(t, err)
		assert.Len(t, c.Reminders, 1)
	})

	t.Run("upload file", func(t *testing.T) {
		att, err := s.customers.UploadFile(ctx, customer.ID, "site.jpg", "image/jpeg", strings.NewReader("jpeg"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(att.URL, "http://files.test/customers/"+customer.ID.String()))

		c, err := s.customers.GetByID(ctx, customer.ID)
		require.NoError(t, err)
		require.Len(t, c.Files, 1)
		assert.Equal(t, "site.jpg", c.Files[0].Name)
	})

	t.Run("transcripts", func(t *testing.T) {
		_, err := s.customers.AddTranscript(ctx, customer.ID, &domain.AddTranscriptRequest{Title: "Intro", Summary: "went well"})
		require.NoError(t, err)
		list, err := s.customers.ListTranscripts(ctx, customer.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, domain.EntityTypeCustomer, list[0].OwnerType)
	})

	t.Run("list only own customers", func(t *testing.T) {
		other := testutil.CreateUser(t, s.db, "Other")
		s.createCustomer(t, testutil.ContextFor(other), "Beta")

		page, err := s.customers.List(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("unknown customer", func(t *testing.T) {
		_, err := s.customers.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, service.ErrCustomerNotFound)
	})
}
