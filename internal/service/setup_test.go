package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/events"
	"github.com/straye-as/pipeline-api/internal/notify"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/storage"
	"github.com/straye-as/pipeline-api/internal/templates"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	customerStages = []string{"Working", "Qualified", "Converted"}
	projectStages  = []string{"Planning", "In Progress", "Review", "Completed"}
)

// fakeSender records emails and fails while failing is set
type fakeSender struct {
	mu      sync.Mutex
	sent    []notify.Message
	failing bool
}

func (f *fakeSender) Enabled() bool { return true }

func (f *fakeSender) Send(_ context.Context, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type testServices struct {
	db     *gorm.DB
	hub    *events.Hub
	sender *fakeSender

	customerRepo   *repository.CustomerRepository
	projectRepo    *repository.ProjectRepository
	approvalRepo   *repository.ApprovalRepository
	quoteRepo      *repository.QuoteRepository
	transcriptRepo *repository.TranscriptRepository
	historyRepo    *repository.StageHistoryRepository
	runRepo        *repository.ConversionRunRepository
	sideEffectRepo *repository.SideEffectRepository

	notifications *service.NotificationService
	team          *service.TeamService
	stages        *service.StageService
	quotes        *service.QuoteService
	conversions   *service.ConversionService
	approvals     *service.ApprovalService
	customers     *service.CustomerService
	projects      *service.ProjectService
	sideEffects   *service.SideEffectService
}

func testTemplates(t *testing.T) *templates.Registry {
	t.Helper()
	roofing, err := templates.Parse([]byte(`
name: Roofing sales
appliesTo: [Customer]
stages:
  - name: Site visit
    tasks: [Measure roof]
  - name: Offer
  - name: Converted
`))
	require.NoError(t, err)
	delivery, err := templates.Parse([]byte(`
name: Project delivery
appliesTo: [Project]
stages:
  - name: Planning
  - name: Completed
`))
	require.NoError(t, err)
	reg, err := templates.NewRegistry(roofing, delivery)
	require.NoError(t, err)
	return reg
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	db := testutil.NewTestDB(t)
	logger := zap.NewNop()

	store, err := storage.NewLocalStorage(t.TempDir(), "http://files.test")
	require.NoError(t, err)

	s := &testServices{
		db:             db,
		hub:            events.NewHub(32, logger),
		sender:         &fakeSender{},
		customerRepo:   repository.NewCustomerRepository(db),
		projectRepo:    repository.NewProjectRepository(db),
		approvalRepo:   repository.NewApprovalRepository(db),
		quoteRepo:      repository.NewQuoteRepository(db),
		transcriptRepo: repository.NewTranscriptRepository(db),
		historyRepo:    repository.NewStageHistoryRepository(db),
		runRepo:        repository.NewConversionRunRepository(db),
		sideEffectRepo: repository.NewSideEffectRepository(db),
	}
	userRepo := repository.NewUserRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	registry := testTemplates(t)

	s.notifications = service.NewNotificationService(notificationRepo, s.sideEffectRepo, userRepo, s.sender, s.hub, 3, logger)
	s.team = service.NewTeamService(invitationRepo, membershipRepo, userRepo, s.projectRepo, s.notifications, db, logger)
	s.stages = service.NewStageService(s.customerRepo, s.projectRepo, s.approvalRepo, s.historyRepo, membershipRepo, registry, s.hub, db, logger)
	s.quotes = service.NewQuoteService(s.quoteRepo, s.customerRepo, s.projectRepo, membershipRepo, db, logger)
	s.conversions = service.NewConversionService(
		s.customerRepo, s.projectRepo, s.approvalRepo, s.quoteRepo, s.transcriptRepo,
		s.runRepo, s.historyRepo, membershipRepo, s.notifications, s.hub, projectStages, 3, db, logger)
	s.approvals = service.NewApprovalService(
		s.approvalRepo, userRepo, s.team, s.stages, s.quotes, s.conversions, s.notifications, s.hub, db, logger)
	s.customers = service.NewCustomerService(s.customerRepo, s.transcriptRepo, membershipRepo, store, registry, customerStages, logger)
	s.projects = service.NewProjectService(s.projectRepo, s.customerRepo, s.transcriptRepo, membershipRepo, store, logger)
	s.sideEffects = service.NewSideEffectService(s.sideEffectRepo, s.notifications, logger)
	return s
}

// createCustomer creates a customer owned by the user in ctx
func (s *testServices) createCustomer(t *testing.T, ctx context.Context, name string) *domain.CustomerDTO {
	t.Helper()
	c, err := s.customers.Create(ctx, &domain.CreateCustomerRequest{Name: name, Email: name + "@example.com", LeadScore: 40})
	require.NoError(t, err)
	return c
}

func (s *testServices) notificationsOf(t *testing.T, user *domain.User, typ string) []domain.Notification {
	t.Helper()
	var list []domain.Notification
	require.NoError(t, s.db.Where("user_id = ? AND type = ?", user.ID, typ).Find(&list).Error)
	return list
}
