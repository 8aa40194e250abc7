package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/mapper"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TeamService maintains team invitations and the accepted-member index
type TeamService struct {
	invitationRepo *repository.InvitationRepository
	membershipRepo *repository.MembershipRepository
	userRepo       *repository.UserRepository
	projectRepo    *repository.ProjectRepository
	notifications  *NotificationService
	db             *gorm.DB
	logger         *zap.Logger
}

// NewTeamService creates a new TeamService instance
func NewTeamService(
	invitationRepo *repository.InvitationRepository,
	membershipRepo *repository.MembershipRepository,
	userRepo *repository.UserRepository,
	projectRepo *repository.ProjectRepository,
	notifications *NotificationService,
	db *gorm.DB,
	logger *zap.Logger,
) *TeamService {
	return &TeamService{
		invitationRepo: invitationRepo,
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
		projectRepo:    projectRepo,
		notifications:  notifications,
		db:             db,
		logger:         logger,
	}
}

// AcceptedMembers returns everyone connected to the user by an accepted
// invitation in either direction, sorted by display name then id
func (s *TeamService) AcceptedMembers(ctx context.Context, userID uuid.UUID) ([]domain.TeamMemberDTO, error) {
	rows, err := s.membershipRepo.ListMembers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(rows))
	members := make([]domain.TeamMemberDTO, 0, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.MemberID]; dup {
			continue
		}
		seen[row.MemberID] = struct{}{}
		members = append(members, domain.TeamMemberDTO{ID: row.MemberID, Name: row.DisplayName, Email: row.Email})
	}
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].ID.String() < members[j].ID.String()
	})
	return members, nil
}

// AcceptedMembersForProject returns the same set as AcceptedMembers.
// Any accepted member may be proposed for any existing project.
func (s *TeamService) AcceptedMembersForProject(ctx context.Context, userID, projectID uuid.UUID) ([]domain.TeamMemberDTO, error) {
	exists, err := s.projectRepo.Exists(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to check project: %w", err)
	}
	if !exists {
		return nil, ErrProjectNotFound
	}
	return s.AcceptedMembers(ctx, userID)
}

// RequireMembers fails with ErrNotTeamMember unless every id is an accepted member of userID
func (s *TeamService) RequireMembers(ctx context.Context, userID uuid.UUID, ids ...uuid.UUID) error {
	for _, id := range ids {
		ok, err := s.membershipRepo.IsMember(ctx, userID, id)
		if err != nil {
			return fmt.Errorf("failed to check team membership: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotTeamMember, id)
		}
	}
	return nil
}

// Invite creates a pending invitation from the user to an email address
func (s *TeamService) Invite(ctx context.Context, from *domain.User, email string) (*domain.InvitationDTO, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if email == strings.ToLower(from.Email) {
		return nil, ErrSelfInvite
	}

	existing, err := s.invitationRepo.FindOpen(ctx, from.ID, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check invitations: %w", err)
	}
	if existing != nil {
		return nil, ErrInvitationExists
	}

	inv := &domain.TeamInvitation{
		FromUserID:  from.ID,
		ToUserEmail: email,
		Status:      domain.InvitationStatusPending,
	}
	invitee, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up invitee: %w", err)
	}
	if invitee != nil {
		inv.ToUserID = &invitee.ID
	}

	if err := s.invitationRepo.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	s.logger.Info("team invitation created",
		zap.String("invitationID", inv.ID.String()),
		zap.String("fromUserID", from.ID.String()))

	if invitee != nil {
		s.notifications.Notify(ctx, NotificationInput{
			UserID:     invitee.ID,
			Type:       NotificationTeamInvite,
			Title:      "Team invitation",
			Message:    fmt.Sprintf("%s invited you to their team", from.DisplayName),
			EntityType: domain.EntityTypeInvite,
			EntityID:   &inv.ID,
		})
	}

	dto := mapper.ToInvitationDTO(inv)
	return &dto, nil
}

// Accept accepts a pending invitation addressed to the user and refreshes
// the membership index in the same transaction
func (s *TeamService) Accept(ctx context.Context, user *domain.User, invitationID uuid.UUID) (*domain.InvitationDTO, error) {
	inv, err := s.invitationRepo.GetByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	addressed := inv.ToUserID != nil && *inv.ToUserID == user.ID
	if !addressed && !strings.EqualFold(inv.ToUserEmail, user.Email) {
		return nil, ErrForbidden
	}
	if inv.FromUserID == user.ID {
		return nil, ErrSelfInvite
	}

	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.invitationRepo.WithTx(tx).AcceptIfPending(ctx, inv.ID, user.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvitationNotOpen
		}
		return s.membershipRepo.WithTx(tx).Link(ctx, inv.FromUserID, user.ID, inv.ID)
	})
	if err != nil {
		if errors.Is(err, ErrInvitationNotOpen) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to accept invitation: %w", err)
	}

	inv.Status = domain.InvitationStatusAccepted
	inv.ToUserID = &user.ID
	inv.AcceptedAt = &now

	s.logger.Info("team invitation accepted",
		zap.String("invitationID", inv.ID.String()),
		zap.String("userID", user.ID.String()))

	s.notifications.Notify(ctx, NotificationInput{
		UserID:     inv.FromUserID,
		Type:       NotificationTeamAccepted,
		Title:      "Invitation accepted",
		Message:    fmt.Sprintf("%s joined your team", user.DisplayName),
		EntityType: domain.EntityTypeInvite,
		EntityID:   &inv.ID,
	})

	dto := mapper.ToInvitationDTO(inv)
	return &dto, nil
}

// ListInvitations returns the user's incoming and outgoing invitations
func (s *TeamService) ListInvitations(ctx context.Context, user *domain.User) (*domain.InvitationsResponse, error) {
	incoming, err := s.invitationRepo.ListIncoming(ctx, user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to list incoming invitations: %w", err)
	}
	outgoing, err := s.invitationRepo.ListOutgoing(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outgoing invitations: %w", err)
	}
	return &domain.InvitationsResponse{
		Incoming: mapper.ToInvitationDTOs(incoming),
		Outgoing: mapper.ToInvitationDTOs(outgoing),
	}, nil
}

// RebuildIndex recomputes the user's membership rows from accepted invitations
func (s *TeamService) RebuildIndex(ctx context.Context, userID uuid.UUID) (int, error) {
	invs, err := s.invitationRepo.ListAccepted(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list accepted invitations: %w", err)
	}

	rows := make([]domain.TeamMembership, 0, len(invs))
	seen := make(map[uuid.UUID]struct{}, len(invs))
	for _, inv := range invs {
		other := inv.FromUserID
		if other == userID {
			if inv.ToUserID == nil {
				continue
			}
			other = *inv.ToUserID
		}
		if _, dup := seen[other]; dup || other == userID {
			continue
		}
		seen[other] = struct{}{}
		rows = append(rows, domain.TeamMembership{
			UserID:       userID,
			MemberID:     other,
			InvitationID: inv.ID,
			CreatedAt:    time.Now().UTC(),
		})
	}

	if err := s.membershipRepo.Replace(ctx, userID, rows); err != nil {
		return 0, fmt.Errorf("failed to rebuild membership index: %w", err)
	}
	return len(rows), nil
}
