package service_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamService_InviteAndAccept(t *testing.T) {
	s := newTestServices(t)
	alice := testutil.CreateUser(t, s.db, "Alice")
	bob := testutil.CreateUser(t, s.db, "Bob")
	ctx := testutil.ContextFor(alice)

	t.Run("self invite is refused", func(t *testing.T) {
		_, err := s.team.Invite(ctx, alice, strings.ToUpper(alice.Email))
		assert.ErrorIs(t, err, service.ErrSelfInvite)
	})

	inv, err := s.team.Invite(ctx, alice, "  "+bob.Email+" ")
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationStatusPending, inv.Status)
	require.NotNil(t, inv.ToUserID)
	assert.Equal(t, bob.ID, *inv.ToUserID)
	assert.Len(t, s.notificationsOf(t, bob, service.NotificationTeamInvite), 1)

	t.Run("duplicate open invite is refused", func(t *testing.T) {
		_, err := s.team.Invite(ctx, alice, bob.Email)
		assert.ErrorIs(t, err, service.ErrInvitationExists)
	})

	t.Run("not member before accept", func(t *testing.T) {
		err := s.team.RequireMembers(ctx, alice.ID, bob.ID)
		assert.ErrorIs(t, err, service.ErrNotTeamMember)
	})

	t.Run("only the invitee can accept", func(t *testing.T) {
		carol := testutil.CreateUser(t, s.db, "Carol")
		_, err := s.team.Accept(testutil.ContextFor(carol), carol, inv.ID)
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("accept links both directions", func(t *testing.T) {
		accepted, err := s.team.Accept(testutil.ContextFor(bob), bob, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.InvitationStatusAccepted, accepted.Status)
		assert.NotNil(t, accepted.AcceptedAt)

		assert.NoError(t, s.team.RequireMembers(ctx, alice.ID, bob.ID))
		assert.NoError(t, s.team.RequireMembers(ctx, bob.ID, alice.ID))
		assert.Len(t, s.notificationsOf(t, alice, service.NotificationTeamAccepted), 1)
	})

	t.Run("second accept is refused", func(t *testing.T) {
		_, err := s.team.Accept(testutil.ContextFor(bob), bob, inv.ID)
		assert.ErrorIs(t, err, service.ErrInvitationNotOpen)
	})

	t.Run("unknown invitation", func(t *testing.T) {
		_, err := s.team.Accept(testutil.ContextFor(bob), bob, uuid.New())
		assert.ErrorIs(t, err, service.ErrInvitationNotFound)
	})

	t.Run("invitations listed per direction", func(t *testing.T) {
		list, err := s.team.ListInvitations(ctx, alice)
		require.NoError(t, err)
		assert.Len(t, list.Outgoing, 1)
		assert.Empty(t, list.Incoming)

		list, err = s.team.ListInvitations(testutil.ContextFor(bob), bob)
		require.NoError(t, err)
		assert.Len(t, list.Incoming, 1)
	})
}

func TestTeamService_InviteUnknownEmailAcceptedLater(t *testing.T) {
	s := newTestServices(t)
	alice := testutil.CreateUser(t, s.db, "Alice")

	inv, err := s.team.Invite(testutil.ContextFor(alice), alice, "newcomer@example.com")
	require.NoError(t, err)
	assert.Nil(t, inv.ToUserID)

	newcomer := &domain.User{ID: uuid.New(), Email: "newcomer@example.com", DisplayName: "Newcomer"}
	require.NoError(t, s.db.Create(newcomer).Error)

	_, err = s.team.Accept(testutil.ContextFor(newcomer), newcomer, inv.ID)
	require.NoError(t, err)
	assert.NoError(t, s.team.RequireMembers(testutil.ContextFor(alice), alice.ID, newcomer.ID))
}

func TestTeamService_AcceptedMembers(t *testing.T) {
	s := newTestServices(t)
	owner := testutil.CreateUser(t, s.db, "Owner")
	zed := testutil.CreateUser(t, s.db, "Zed")
	amy := testutil.CreateUser(t, s.db, "Amy")
	testutil.LinkTeam(t, s.db, owner, zed)
	testutil.LinkTeam(t, s.db, amy, owner)
	ctx := testutil.ContextFor(owner)

	members, err := s.team.AcceptedMembers(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Amy", members[0].Name)
	assert.Equal(t, "Zed", members[1].Name)

	t.Run("for project", func(t *testing.T) {
		_, err := s.team.AcceptedMembersForProject(ctx, owner.ID, uuid.New())
		assert.ErrorIs(t, err, service.ErrProjectNotFound)

		customer := s.createCustomer(t, ctx, "Acme")
		result, err := s.conversions.Convert(ctx, customer.ID, &domain.ConvertCustomerRequest{Name: "Roof", BypassApproval: true})
		require.NoError(t, err)
		list, err := s.team.AcceptedMembersForProject(ctx, owner.ID, result.Project.ID)
		require.NoError(t, err)
		assert.Equal(t, members, list)
	})

	t.Run("rebuild index restores rows", func(t *testing.T) {
		require.NoError(t, s.db.Where("user_id = ?", owner.ID).Delete(&domain.TeamMembership{}).Error)
		assert.ErrorIs(t, s.team.RequireMembers(ctx, owner.ID, zed.ID), service.ErrNotTeamMember)

		n, err := s.team.RebuildIndex(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.NoError(t, s.team.RequireMembers(ctx, owner.ID, zed.ID, amy.ID))
	})
}

func TestTeamService_MutualInvitationsCountOnce(t *testing.T) {
	s := newTestServices(t)
	alice := testutil.CreateUser(t, s.db, "Alice")
	bob := testutil.CreateUser(t, s.db, "Bob")
	aliceCtx, bobCtx := testutil.ContextFor(alice), testutil.ContextFor(bob)

	inv, err := s.team.Invite(aliceCtx, alice, bob.Email)
	require.NoError(t, err)
	_, err = s.team.Accept(bobCtx, bob, inv.ID)
	require.NoError(t, err)

	back, err := s.team.Invite(bobCtx, bob, alice.Email)
	require.NoError(t, err)
	_, err = s.team.Accept(aliceCtx, alice, back.ID)
	require.NoError(t, err)

	members, err := s.team.AcceptedMembers(aliceCtx, alice.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, bob.ID, members[0].ID)

	n, err := s.team.RebuildIndex(aliceCtx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	members, err = s.team.AcceptedMembers(aliceCtx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	n, err = s.team.RebuildIndex(bobCtx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
