package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/events"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type approvalFixture struct {
	*testServices
	requester *domain.User
	approver  *domain.User
	viewer    *domain.User
	customer  *domain.CustomerDTO
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	t.Helper()
	s := newTestServices(t)
	f := &approvalFixture{
		testServices: s,
		requester:    testutil.CreateUser(t, s.db, "Requester"),
		approver:     testutil.CreateUser(t, s.db, "Approver"),
		viewer:       testutil.CreateUser(t, s.db, "Viewer"),
	}
	testutil.LinkTeam(t, s.db, f.requester, f.approver)
	testutil.LinkTeam(t, s.db, f.viewer, f.requester)
	f.customer = s.createCustomer(t, testutil.ContextFor(f.requester), "Acme")
	return f
}

func (f *approvalFixture) stageRequest() *domain.CreateApprovalRequest {
	return &domain.CreateApprovalRequest{
		RequestType:        domain.EntityTypeCustomer,
		EntityID:           f.customer.ID,
		Title:              "Qualify Acme",
		IsStageAdvancement: true,
		CurrentStage:       "Working",
		NextStage:          "Qualified",
		RequestedTo:        f.approver.ID,
		Viewers:            []uuid.UUID{f.viewer.ID, f.viewer.ID, f.requester.ID, f.approver.ID},
	}
}

func TestApprovalService_Create(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := testutil.ContextFor(f.requester)

	t.Run("self approval is refused", func(t *testing.T) {
		req := f.stageRequest()
		req.RequestedTo = f.requester.ID
		_, err := f.approvals.Create(ctx, req)
		assert.ErrorIs(t, err, service.ErrSelfApproval)
	})

	t.Run("decision maker must be a team member", func(t *testing.T) {
		stranger := testutil.CreateUser(t, f.db, "Stranger")
		req := f.stageRequest()
		req.RequestedTo = stranger.ID
		_, err := f.approvals.Create(ctx, req)
		assert.ErrorIs(t, err, service.ErrNotTeamMember)
	})

	t.Run("stage mismatch is refused", func(t *testing.T) {
		req := f.stageRequest()
		req.NextStage = "Converted"
		_, err := f.approvals.Create(ctx, req)
		assert.ErrorIs(t, err, service.ErrStageMismatch)
	})

	t.Run("creates pending request with deduplicated viewers", func(t *testing.T) {
		sub, unsubscribe := f.hub.Subscribe(f.approver.ID)
		defer unsubscribe()

		resp, err := f.approvals.Create(ctx, f.stageRequest())
		require.NoError(t, err)
		require.NotNil(t, resp.Request)
		assert.False(t, resp.Bypassed)
		assert.Equal(t, domain.ApprovalStatusPending, resp.Request.Status)
		assert.Equal(t, []uuid.UUID{f.viewer.ID}, resp.Request.Viewers)
		assert.Equal(t, "Acme", resp.Request.EntityName)
		assert.Nil(t, resp.Request.DecisionBy)

		assert.Len(t, f.notificationsOf(t, f.approver, service.NotificationApprovalRequested), 1)
		assert.Len(t, f.notificationsOf(t, f.viewer, service.NotificationApprovalViewer), 1)
		assert.Len(t, f.notificationsOf(t, f.requester, service.NotificationApprovalSubmitted), 1)

		var created bool
		for !created {
			ev := <-sub
			created = ev.Type == events.TypeApprovalCreated
		}
	})

	t.Run("duplicate pending stage request is refused", func(t *testing.T) {
		_, err := f.approvals.Create(ctx, f.stageRequest())
		assert.ErrorIs(t, err, service.ErrApprovalPending)
	})
}

func TestApprovalService_CreateBlockedByTasks(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := testutil.ContextFor(f.requester)
	_, err := f.stages.UpdateStageContent(ctx, domain.EntityTypeCustomer, f.customer.ID, "Working",
		&domain.UpdateStageContentRequest{AddTasks: []string{"Site visit"}})
	require.NoError(t, err)

	_, err = f.approvals.Create(ctx, f.stageRequest())
	assert.ErrorIs(t, err, service.ErrStageTasksIncomplete)
}

func TestApprovalService_DecideApproveAdvances(t *testing.T) {
	f := newApprovalFixture(t)
	resp, err := f.approvals.Create(testutil.ContextFor(f.requester), f.stageRequest())
	require.NoError(t, err)
	id := resp.Request.ID

	t.Run("viewer cannot decide", func(t *testing.T) {
		_, err := f.approvals.Decide(testutil.ContextFor(f.viewer), id, &domain.DecideApprovalRequest{Action: service.ActionApprove})
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := f.approvals.Decide(testutil.ContextFor(f.approver), id, &domain.DecideApprovalRequest{Action: "maybe"})
		assert.ErrorIs(t, err, service.ErrInvalidDecision)
	})

	t.Run("approve moves the entity", func(t *testing.T) {
		dto, err := f.approvals.Decide(testutil.ContextFor(f.approver), id, &domain.DecideApprovalRequest{
			Action:       service.ActionApprove,
			AdminMessage: "go ahead",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.ApprovalStatusApproved, dto.Status)
		require.NotNil(t, dto.DecisionComment)
		assert.Equal(t, "go ahead", *dto.DecisionComment)

		customer, err := f.customerRepo.GetByID(testutil.ContextFor(f.requester), f.customer.ID)
		require.NoError(t, err)
		assert.Equal(t, "Qualified", customer.Pipeline.CurrentStage)

		history, err := f.historyRepo.ListByEntity(testutil.ContextFor(f.requester), domain.EntityTypeCustomer, f.customer.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, domain.StageChangeApproval, history[0].Reason)
		require.NotNil(t, history[0].ApprovalRequestID)
		assert.Equal(t, id, *history[0].ApprovalRequestID)

		assert.Len(t, f.notificationsOf(t, f.requester, service.NotificationApprovalDecided), 1)
		assert.Len(t, f.notificationsOf(t, f.viewer, service.NotificationApprovalDecided), 1)
	})

	t.Run("second decision is refused", func(t *testing.T) {
		_, err := f.approvals.Decide(testutil.ContextFor(f.approver), id, &domain.DecideApprovalRequest{Action: service.ActionReject})
		assert.ErrorIs(t, err, service.ErrAlreadyDecided)
	})
}

func TestApprovalService_DecideRejectLeavesEntity(t *testing.T) {
	f := newApprovalFixture(t)
	resp, err := f.approvals.Create(testutil.ContextFor(f.requester), f.stageRequest())
	require.NoError(t, err)

	dto, err := f.approvals.Decide(testutil.ContextFor(f.approver), resp.Request.ID, &domain.DecideApprovalRequest{Action: service.ActionReject})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusRejected, dto.Status)

	customer, err := f.customerRepo.GetByID(testutil.ContextFor(f.requester), f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Working", customer.Pipeline.CurrentStage)
}

func TestApprovalService_DecideStaleStageRollsBack(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := testutil.ContextFor(f.requester)
	resp, err := f.approvals.Create(ctx, f.stageRequest())
	require.NoError(t, err)

	// the target stage is deleted while the request is pending
	_, err = f.stages.SaveStages(ctx, domain.EntityTypeCustomer, f.customer.ID, []domain.StageEditOp{
		{Op: domain.StageEditDelete, Index: 1},
	}, "")
	require.NoError(t, err)

	_, err = f.approvals.Decide(testutil.ContextFor(f.approver), resp.Request.ID, &domain.DecideApprovalRequest{Action: service.ActionApprove})
	assert.ErrorIs(t, err, service.ErrStaleApproval)

	stored, err := f.approvalRepo.GetByID(ctx, resp.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusPending, stored.Status)
	assert.Nil(t, stored.DecisionBy)
}

func TestApprovalService_DecideAfterGoBackRollsBack(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := testutil.ContextFor(f.requester)
	_, err := f.stages.Advance(ctx, domain.EntityTypeCustomer, f.customer.ID)
	require.NoError(t, err)

	req := f.stageRequest()
	req.CurrentStage, req.NextStage = "Qualified", "Converted"
	resp, err := f.approvals.Create(ctx, req)
	require.NoError(t, err)

	_, err = f.stages.GoBack(ctx, domain.EntityTypeCustomer, f.customer.ID)
	require.NoError(t, err)

	_, err = f.approvals.Decide(testutil.ContextFor(f.approver), resp.Request.ID, &domain.DecideApprovalRequest{Action: service.ActionApprove})
	assert.ErrorIs(t, err, service.ErrStaleApproval)

	customer, err := f.customerRepo.GetByID(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Working", customer.Pipeline.CurrentStage)

	stored, err := f.approvalRepo.GetByID(ctx, resp.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalStatusPending, stored.Status)
}

func TestApprovalService_ConcurrentDecide(t *testing.T) {
	f := newApprovalFixture(t)
	resp, err := f.approvals.Create(testutil.ContextFor(f.requester), f.stageRequest())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	actions := []string{service.ActionApprove, service.ActionReject}
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.approvals.Decide(testutil.ContextFor(f.approver), resp.Request.ID,
				&domain.DecideApprovalRequest{Action: actions[i]})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, service.ErrAlreadyDecided)
	}
	assert.Equal(t, 1, succeeded)
}

func TestApprovalService_ConversionRequest(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := testutil.ContextFor(f.requester)

	conversion := func() *domain.CreateApprovalRequest {
		return &domain.CreateApprovalRequest{
			RequestType:         domain.EntityTypeCustomer,
			EntityID:            f.customer.ID,
			Title:               "Convert Acme",
			RequestedTo:         f.approver.ID,
			ProposedProject:     &domain.ProposedProjectRequest{Name: "Acme roof", Budget: 1000},
			AutoAttachQuotation: true,
		}
	}

	_, err := f.approvals.Create(ctx, conversion())
	assert.ErrorIs(t, err, service.ErrQuotationRequired)

	older, err := f.quotes.CreateDraft(ctx, f.customer.ID, &domain.CreateQuoteRequest{
		Title: "First", Items: []domain.QuoteItemRequest{{Description: "a", Quantity: 1, UnitPrice: 10}},
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&domain.Quote{}).Where("id = ?", older.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)
	latest, err := f.quotes.CreateDraft(ctx, f.customer.ID, &domain.CreateQuoteRequest{
		Title: "Second", Items: []domain.QuoteItemRequest{{Description: "b", Quantity: 2, UnitPrice: 50}},
	})
	require.NoError(t, err)

	resp, err := f.approvals.Create(ctx, conversion())
	require.NoError(t, err)
	require.NotNil(t, resp.Request.QuotationData)
	assert.Equal(t, latest.ID, resp.Request.QuotationData.QuoteID)
	assert.Equal(t, 100.0, resp.Request.QuotationData.Total)
	require.NotNil(t, resp.Request.ProposedProject)
	assert.Equal(t, "Acme roof", resp.Request.ProposedProject.Name)

	_, err = f.approvals.Create(ctx, conversion())
	assert.ErrorIs(t, err, service.ErrApprovalPending)

	pending, err := f.approvals.PendingForEntity(ctx, domain.EntityTypeCustomer, f.customer.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestApprovalService_Bypass(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := testutil.ContextFor(f.requester)

	req := f.stageRequest()
	req.BypassApproval = true
	resp, err := f.approvals.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Bypassed)
	assert.Nil(t, resp.Request)
	require.NotNil(t, resp.Transition)
	assert.Equal(t, "Qualified", resp.Transition.ToStage)

	var count int64
	require.NoError(t, f.db.Model(&domain.ApprovalRequest{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestApprovalService_ListAndGet(t *testing.T) {
	f := newApprovalFixture(t)
	resp, err := f.approvals.Create(testutil.ContextFor(f.requester), f.stageRequest())
	require.NoError(t, err)

	assigned, err := f.approvals.ListForUser(testutil.ContextFor(f.approver), repository.ApprovalRoleAssigned, domain.ApprovalStatusPending, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), assigned.Total)

	viewing, err := f.approvals.ListForUser(testutil.ContextFor(f.viewer), repository.ApprovalRoleViewing, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), viewing.Total)

	_, err = f.approvals.ListForUser(testutil.ContextFor(f.viewer), "boss", "", 1, 10)
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = f.approvals.GetByID(testutil.ContextFor(f.viewer), resp.Request.ID)
	assert.NoError(t, err)

	stranger := testutil.CreateUser(t, f.db, "Stranger")
	_, err = f.approvals.GetByID(testutil.ContextFor(stranger), resp.Request.ID)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = f.approvals.GetByID(testutil.ContextFor(stranger), uuid.New())
	assert.ErrorIs(t, err, service.ErrApprovalNotFound)
}
