package service_test

import (
	"context"
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

// approvedConversion raises a conversion request and has the approver accept it
func (f *approvalFixture) approvedConversion(t *testing.T) uuid.UUID {
	t.Helper()
	resp, err := f.approvals.Create(testutil.ContextFor(f.requester), &domain.CreateApprovalRequest{
		RequestType:     domain.EntityTypeCustomer,
		EntityID:        f.customer.ID,
		Title:           "Convert Acme",
		RequestedTo:     f.approver.ID,
		ProposedProject: &domain.ProposedProjectRequest{Name: "Acme roof"},
	})
	require.NoError(t, err)
	_, err = f.approvals.Decide(testutil.ContextFor(f.approver), resp.Request.ID,
		&domain.DecideApprovalRequest{Action: service.ActionApprove})
	require.NoError(t, err)
	return resp.Request.ID
}

func TestConversionService_RequiresApproval(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := testutil.ContextFor(f.requester)

	_, err := f.conversions.Convert(ctx, f.customer.ID, &domain.ConvertCustomerRequest{Name: "Acme roof"})
	assert.ErrorIs(t, err, service.ErrApprovalRequired)

	missing := uuid.New()
	_, err = f.conversions.Convert(ctx, f.customer.ID, &domain.ConvertCustomerRequest{Name: "Acme roof", ApprovalRequestID: &missing})
	assert.ErrorIs(t, err, service.ErrApprovalNotFound)

	resp, err := f.approvals.Create(ctx, &domain.CreateApprovalRequest{
		RequestType: domain.EntityTypeCustomer,
		EntityID:    f.customer.ID,
		Title:       "Convert Acme",
		RequestedTo: f.approver.ID,
	})
	require.NoError(t, err)
	_, err = f.conversions.Convert(ctx, f.customer.ID, &domain.ConvertCustomerRequest{Name: "Acme roof", ApprovalRequestID: &resp.Request.ID})
	assert.ErrorIs(t, err, service.ErrApprovalNotApproved)

	var projects int64
	require.NoError(t, f.db.Model(&domain.Project{}).Count(&projects).Error)
	assert.Zero(t, projects)
}

func TestConversionService_Convert(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := testutil.ContextFor(f.requester)
	cid := f.customer.ID

	file, err := f.customers.UploadFile(ctx, cid, "plan.pdf", "application/pdf", strings.NewReader("pdf"))
	require.NoError(t, err)
	_, err = f.customers.AddActivity(ctx, cid, &domain.AddActivityRequest{Title: "Called"})
	require.NoError(t, err)
	_, err = f.customers.AddTranscript(ctx, cid, &domain.AddTranscriptRequest{Title: "Kickoff", Transcript: "hello"})
	require.NoError(t, err)
	_, err = f.stages.UpdateStageContent(ctx, domain.EntityTypeCustomer, cid, "Working",
		&domain.UpdateStageContentRequest{AddNotes: []string{"warm lead"}})
	require.NoError(t, err)

	selected, err := f.quotes.CreateDraft(ctx, cid, &domain.CreateQuoteRequest{
		Title: "Chosen", Items: []domain.QuoteItemRequest{{Description: "roof", Quantity: 1, UnitPrice: 500}},
	})
	require.NoError(t, err)
	unused, err := f.quotes.CreateDraft(ctx, cid, &domain.CreateQuoteRequest{
		Title: "Alternative", Items: []domain.QuoteItemRequest{{Description: "tiles", Quantity: 1, UnitPrice: 900}},
	})
	require.NoError(t, err)

	approvalID := f.approvedConversion(t)

	result, err := f.conversions.Convert(ctx, cid, &domain.ConvertCustomerRequest{
		Name:                 "Acme roof",
		Budget:               5000,
		SelectedDraftQuoteID: &selected.ID,
		ApprovalRequestID:    &approvalID,
	})
	require.NoError(t, err)
	projectID := result.Project.ID

	t.Run("run completed", func(t *testing.T) {
		assert.Equal(t, domain.ConversionRunCompleted, result.Run.Status)
		for _, step := range domain.ConversionSteps {
			assert.Equal(t, domain.StepStatusDone, result.Run.Steps[step].Status, step)
		}
	})

	t.Run("project carries customer data", func(t *testing.T) {
		p := result.Project
		assert.True(t, p.ConvertedFromCustomer)
		assert.Equal(t, f.requester.ID, p.OwnerID)
		assert.Equal(t, "Acme", p.CustomerName)
		assert.Equal(t, projectStages, p.Pipeline.Stages)
		require.NotNil(t, p.FrozenLeadScore)
		assert.Equal(t, 40, *p.FrozenLeadScore)
		require.Len(t, p.Files, 1)
		assert.Equal(t, file.URL, p.Files[0].URL)
	})

	t.Run("selected quote copied and other drafts removed", func(t *testing.T) {
		owned, err := f.quoteRepo.ListByOwner(ctx, domain.EntityTypeProject, projectID)
		require.NoError(t, err)
		require.Len(t, owned, 1)
		require.NotNil(t, owned[0].OriginQuoteID)
		assert.Equal(t, selected.ID, *owned[0].OriginQuoteID)

		draft, err := f.quoteRepo.GetByID(ctx, selected.ID)
		require.NoError(t, err)
		require.NotNil(t, draft.MigratedProjectID)
		assert.Equal(t, projectID, *draft.MigratedProjectID)

		_, err = f.quoteRepo.GetByID(ctx, unused.ID)
		assert.Error(t, err)
	})

	t.Run("transcripts moved", func(t *testing.T) {
		left, err := f.transcriptRepo.ListByOwner(ctx, domain.EntityTypeCustomer, cid)
		require.NoError(t, err)
		assert.Empty(t, left)

		moved, err := f.projects.ListTranscripts(ctx, projectID)
		require.NoError(t, err)
		require.Len(t, moved, 1)
		require.NotNil(t, moved[0].OriginCustomerID)
		assert.Equal(t, cid, *moved[0].OriginCustomerID)
	})

	t.Run("customer panels reset", func(t *testing.T) {
		customer, err := f.customerRepo.GetByID(ctx, cid)
		require.NoError(t, err)
		assert.Zero(t, customer.LeadScore)
		assert.Empty(t, customer.Files)
		assert.Empty(t, customer.Activities)
		assert.Empty(t, customer.Pipeline.StageData["Working"].Notes)
		assert.Equal(t, []uuid.UUID{projectID}, customer.Projects)
		require.Len(t, customer.ProjectSnapshots, 1)
		assert.Equal(t, 40, customer.ProjectSnapshots[0].LeadScore)
	})

	t.Run("approval consumed", func(t *testing.T) {
		stored, err := f.approvalRepo.GetByID(ctx, approvalID)
		require.NoError(t, err)
		require.NotNil(t, stored.ResultProjectID)
		assert.Equal(t, projectID, *stored.ResultProjectID)

		_, err = f.conversions.Convert(ctx, cid, &domain.ConvertCustomerRequest{Name: "Again", ApprovalRequestID: &approvalID})
		assert.ErrorIs(t, err, service.ErrApprovalConsumed)
	})

	t.Run("resume of completed run is a no-op", func(t *testing.T) {
		run, err := f.conversions.Resume(ctx, result.Run.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversionRunCompleted, run.Status)
		assert.Equal(t, 1, run.Steps[domain.StepMigrateQuote].Attempts)

		owned, err := f.quoteRepo.ListByOwner(ctx, domain.EntityTypeProject, projectID)
		require.NoError(t, err)
		assert.Len(t, owned, 1)
	})

	t.Run("actor is not notified of own conversion", func(t *testing.T) {
		assert.Len(t, f.notificationsOf(t, f.requester, service.NotificationConversion), 0)
		assert.Len(t, f.notificationsOf(t, f.approver, service.NotificationConversion), 0)
	})
}

func TestConversionService_ResumeAfterFailedStep(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := testutil.ContextFor(f.requester)
	cid := f.customer.ID

	_, err := f.customers.AddTranscript(ctx, cid, &domain.AddTranscriptRequest{Title: "Kickoff"})
	require.NoError(t, err)
	approvalID := f.approvedConversion(t)

	// a missing table makes migrate_transcripts fail
	require.NoError(t, f.db.Exec("ALTER TABLE meeting_transcripts RENAME TO meeting_transcripts_off").Error)

	result, err := f.conversions.Convert(ctx, cid, &domain.ConvertCustomerRequest{Name: "Acme roof", ApprovalRequestID: &approvalID})
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionRunPartial, result.Run.Status)
	failed := result.Run.Steps[domain.StepMigrateTranscripts]
	assert.Equal(t, domain.StepStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.LastError)
	assert.Equal(t, domain.StepStatusDone, result.Run.Steps[domain.StepResetPanels].Status)

	require.NoError(t, f.db.Exec("ALTER TABLE meeting_transcripts_off RENAME TO meeting_transcripts").Error)

	t.Run("resume finishes the remaining step", func(t *testing.T) {
		run, err := f.conversions.Resume(ctx, result.Run.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversionRunCompleted, run.Status)
		assert.Equal(t, 2, run.Steps[domain.StepMigrateTranscripts].Attempts)
		assert.Equal(t, 1, run.Steps[domain.StepFreezeScore].Attempts)

		moved, err := f.transcriptRepo.ListByOwner(ctx, domain.EntityTypeProject, result.Project.ID)
		require.NoError(t, err)
		assert.Len(t, moved, 1)
	})

	t.Run("background resume finds nothing left", func(t *testing.T) {
		completed, err := f.conversions.ResumePending(context.Background(), 10)
		require.NoError(t, err)
		assert.Zero(t, completed)
	})
}

func TestConversionService_BypassNotifiesOwner(t *testing.T) {
	f := newApprovalFixture(t)
	admin := testutil.CreateUser(t, f.db, "Admin")

	result, err := f.conversions.Convert(testutil.ContextFor(admin, "admin"), f.customer.ID,
		&domain.ConvertCustomerRequest{Name: "Acme roof", BypassApproval: true})
	require.NoError(t, err)
	assert.Equal(t, f.requester.ID, result.Project.OwnerID)
	assert.Equal(t, domain.ConversionRunCompleted, result.Run.Status)

	assert.Len(t, f.notificationsOf(t, f.requester, service.NotificationConversion), 1)
	assert.Empty(t, f.notificationsOf(t, admin, service.NotificationConversion))

	projects, err := f.projects.ListForCustomer(testutil.ContextFor(f.requester), f.customer.ID)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, result.Project.ID, projects[0].ID)
}

func TestConversionService_GetRunAccess(t *testing.T) {
	f := newApprovalFixture(t)
	result, err := f.conversions.Convert(testutil.ContextFor(f.requester), f.customer.ID,
		&domain.ConvertCustomerRequest{Name: "Acme roof", BypassApproval: true})
	require.NoError(t, err)

	_, err = f.conversions.GetRun(testutil.ContextFor(f.approver), result.Run.ID)
	assert.NoError(t, err)

	stranger := testutil.CreateUser(t, f.db, "Stranger")
	_, err = f.conversions.GetRun(testutil.ContextFor(stranger), result.Run.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = f.conversions.GetRun(testutil.ContextFor(f.requester), "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.ErrorIs(t, err, service.ErrConversionRunNotFound)
}

func TestConversionService_SelectedDraftMustBelongToCustomer(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := testutil.ContextFor(f.requester)
	approvalID := f.approvedConversion(t)

	other := f.createCustomer(t, ctx, "Other")
	foreign, err := f.quotes.CreateDraft(ctx, other.ID, &domain.CreateQuoteRequest{
		Title: "Elsewhere", Items: []domain.QuoteItemRequest{{Description: "roof", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)
	migrated, err := f.quotes.CreateDraft(ctx, f.customer.ID, &domain.CreateQuoteRequest{
		Title: "Old", Items: []domain.QuoteItemRequest{{Description: "roof", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&domain.Quote{}).Where("id = ?", migrated.ID).
		Update("migrated_project_id", uuid.New()).Error)

	missing := uuid.New()
	cases := []struct {
		name    string
		quoteID uuid.UUID
		want    error
	}{
		{"unknown quote", missing, service.ErrQuoteNotFound},
		{"other customer's draft", foreign.ID, service.ErrQuoteNotFound},
		{"already migrated draft", migrated.ID, service.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := tc.quoteID
			_, err := f.conversions.Convert(ctx, f.customer.ID, &domain.ConvertCustomerRequest{
				Name: "Acme roof", ApprovalRequestID: &approvalID, SelectedDraftQuoteID: &id,
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	var projects, runs int64
	require.NoError(t, f.db.Model(&domain.Project{}).Count(&projects).Error)
	require.NoError(t, f.db.Model(&domain.ConversionRun{}).Count(&runs).Error)
	assert.Zero(t, projects)
	assert.Zero(t, runs)

	stored, err := f.approvalRepo.GetByID(ctx, approvalID)
	require.NoError(t, err)
	assert.Nil(t, stored.ConsumedAt)
}

func TestConversionService_FailedQuoteCopyStillDropsDrafts(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := testutil.ContextFor(f.requester)
	cid := f.customer.ID

	selected, err := f.quotes.CreateDraft(ctx, cid, &domain.CreateQuoteRequest{
		Title: "Chosen", Items: []domain.QuoteItemRequest{{Description: "roof", Quantity: 1, UnitPrice: 500}},
	})
	require.NoError(t, err)
	unused, err := f.quotes.CreateDraft(ctx, cid, &domain.CreateQuoteRequest{
		Title: "Alternative", Items: []domain.QuoteItemRequest{{Description: "tiles", Quantity: 1, UnitPrice: 900}},
	})
	require.NoError(t, err)
	approvalID := f.approvedConversion(t)

	// inserting project quotes fails while the trigger exists
	require.NoError(t, f.db.Exec(`CREATE TRIGGER block_project_quotes BEFORE INSERT ON quotes
		WHEN NEW.owner_type = 'Project'
		BEGIN SELECT RAISE(ABORT, 'project quotes blocked'); END`).Error)

	result, err := f.conversions.Convert(ctx, cid, &domain.ConvertCustomerRequest{
		Name: "Acme roof", ApprovalRequestID: &approvalID, SelectedDraftQuoteID: &selected.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionRunPartial, result.Run.Status)
	assert.Equal(t, domain.StepStatusFailed, result.Run.Steps[domain.StepMigrateQuote].Status)

	t.Run("unused draft removed, selected kept", func(t *testing.T) {
		_, err := f.quoteRepo.GetByID(ctx, unused.ID)
		assert.Error(t, err)

		draft, err := f.quoteRepo.GetByID(ctx, selected.ID)
		require.NoError(t, err)
		assert.Nil(t, draft.MigratedProjectID)
	})

	t.Run("run dies after max attempts", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := f.conversions.ResumePending(context.Background(), 10)
			require.NoError(t, err)
		}
		run, err := f.runRepo.GetByID(ctx, result.Run.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversionRunDead, run.Status)
		assert.Equal(t, 3, run.Steps[domain.StepMigrateQuote].Attempts)

		_, err = f.conversions.ResumePending(context.Background(), 10)
		require.NoError(t, err)
		run, err = f.runRepo.GetByID(ctx, result.Run.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, run.Steps[domain.StepMigrateQuote].Attempts)
	})

	t.Run("manual resume revives a dead run", func(t *testing.T) {
		require.NoError(t, f.db.Exec("DROP TRIGGER block_project_quotes").Error)

		run, err := f.conversions.Resume(ctx, result.Run.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ConversionRunCompleted, run.Status)

		owned, err := f.quoteRepo.ListByOwner(ctx, domain.EntityTypeProject, result.Project.ID)
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, selected.ID, *owned[0].OriginQuoteID)
	})
}

func TestConversionService_ResumeSkipsLiveRuns(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := testutil.ContextFor(f.requester)
	cid := f.customer.ID

	_, err := f.customers.AddTranscript(ctx, cid, &domain.AddTranscriptRequest{Title: "Kickoff"})
	require.NoError(t, err)
	approvalID := f.approvedConversion(t)

	require.NoError(t, f.db.Exec("ALTER TABLE meeting_transcripts RENAME TO meeting_transcripts_off").Error)
	result, err := f.conversions.Convert(ctx, cid, &domain.ConvertCustomerRequest{Name: "Acme roof", ApprovalRequestID: &approvalID})
	require.NoError(t, err)
	require.Equal(t, domain.ConversionRunPartial, result.Run.Status)
	require.NoError(t, f.db.Exec("ALTER TABLE meeting_transcripts_off RENAME TO meeting_transcripts").Error)

	// another worker holds the run
	require.NoError(t, f.db.Model(&domain.ConversionRun{}).Where("id = ?", result.Run.ID).
		UpdateColumn("status", domain.ConversionRunInProgress).Error)

	completed, err := f.conversions.ResumePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, completed)

	_, err = f.conversions.Resume(ctx, result.Run.ID)
	assert.ErrorIs(t, err, service.ErrConversionRunBusy)

	run, err := f.runRepo.GetByID(ctx, result.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Steps[domain.StepMigrateTranscripts].Attempts)

	t.Run("expired lease is taken over", func(t *testing.T) {
		require.NoError(t, f.db.Model(&domain.ConversionRun{}).Where("id = ?", result.Run.ID).
			UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)

		completed, err := f.conversions.ResumePending(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, completed)

		moved, err := f.transcriptRepo.ListByOwner(ctx, domain.EntityTypeProject, result.Project.ID)
		require.NoError(t, err)
		assert.Len(t, moved, 1)
	})
}

func TestConversionService_SecondCycleFreezesNewScore(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := testutil.ContextFor(f.requester)
	cid := f.customer.ID

	first, err := f.conversions.Convert(ctx, cid, &domain.ConvertCustomerRequest{Name: "Acme roof", ApprovalRequestID: ptr(f.approvedConversion(t))})
	require.NoError(t, err)
	require.NotNil(t, first.Project.FrozenLeadScore)
	assert.Equal(t, 40, *first.Project.FrozenLeadScore)

	updated, err := f.customers.UpdateLeadScore(ctx, cid, &domain.UpdateLeadScoreRequest{LeadScore: 55})
	require.NoError(t, err)
	assert.Equal(t, 55, updated.LeadScore)

	second, err := f.conversions.Convert(ctx, cid, &domain.ConvertCustomerRequest{Name: "Acme gutters", ApprovalRequestID: ptr(f.approvedConversion(t))})
	require.NoError(t, err)
	require.NotNil(t, second.Project.FrozenLeadScore)
	assert.Equal(t, 55, *second.Project.FrozenLeadScore)

	customer, err := f.customerRepo.GetByID(ctx, cid)
	require.NoError(t, err)
	assert.Zero(t, customer.LeadScore)
	require.Len(t, customer.ProjectSnapshots, 2)
	assert.Equal(t, 40, customer.ProjectSnapshots[0].LeadScore)
	assert.Equal(t, 55, customer.ProjectSnapshots[1].LeadScore)

	t.Run("negative score rejected", func(t *testing.T) {
		_, err := f.customers.UpdateLeadScore(ctx, cid, &domain.UpdateLeadScoreRequest{LeadScore: -5})
		assert.ErrorIs(t, err, service.ErrInvalidInput)
	})

	t.Run("stranger cannot set the score", func(t *testing.T) {
		stranger := testutil.CreateUser(t, f.db, "Stranger")
		_, err := f.customers.UpdateLeadScore(testutil.ContextFor(stranger), cid, &domain.UpdateLeadScoreRequest{LeadScore: 1})
		assert.ErrorIs(t, err, service.ErrForbidden)
	})
}

func ptr[T any](v T) *T { return &v }
