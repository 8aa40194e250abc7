package handler

import (
	"net/http"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"go.uber.org/zap"
)

// TeamHandler serves team membership and invitations
type TeamHandler struct {
	teamService *service.TeamService
	userRepo    UserRepository
	logger      *zap.Logger
}

func NewTeamHandler(teamService *service.TeamService, userRepo UserRepository, logger *zap.Logger) *TeamHandler {
	return &TeamHandler{
		teamService: teamService,
		userRepo:    userRepo,
		logger:      logger,
	}
}

// ListMembers godoc
// @Summary List accepted team members
// @Tags Team
// @Produce json
// @Success 200 {array} domain.TeamMemberDTO
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /team/members [get]
func (h *TeamHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	user, _, err := currentUser(r.Context(), h.userRepo)
	if err != nil {
		respondServiceError(w, h.logger, err, "list team members")
		return
	}
	members, err := h.teamService.AcceptedMembers(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, h.logger, err, "list team members")
		return
	}
	respondJSON(w, http.StatusOK, members)
}

// ListMembersForProject godoc
// @Summary List team members who can be assigned to a project
// @Tags Team
// @Produce json
// @Param projectId path string true "Project ID"
// @Success 200 {array} domain.TeamMemberDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /team/members/projects/{projectId} [get]
func (h *TeamHandler) ListMembersForProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "projectId")
	if !ok {
		return
	}
	user, _, err := currentUser(r.Context(), h.userRepo)
	if err != nil {
		respondServiceError(w, h.logger, err, "list team members")
		return
	}
	members, err := h.teamService.AcceptedMembersForProject(r.Context(), user.ID, projectID)
	if err != nil {
		respondServiceError(w, h.logger, err, "list team members")
		return
	}
	respondJSON(w, http.StatusOK, members)
}

// ListInvitations godoc
// @Summary List incoming and outgoing invitations
// @Tags Team
// @Produce json
// @Success 200 {object} domain.InvitationsResponse
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /team/invitations [get]
func (h *TeamHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	user, _, err := currentUser(r.Context(), h.userRepo)
	if err != nil {
		respondServiceError(w, h.logger, err, "list invitations")
		return
	}
	resp, err := h.teamService.ListInvitations(r.Context(), user)
	if err != nil {
		respondServiceError(w, h.logger, err, "list invitations")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Invite godoc
// @Summary Invite someone to the caller's team
// @Tags Team
// @Accept json
// @Produce json
// @Param request body domain.CreateInvitationRequest true "Invitee"
// @Success 201 {object} domain.InvitationDTO
// @Failure 400 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /team/invitations [post]
func (h *TeamHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateInvitationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, _, err := currentUser(r.Context(), h.userRepo)
	if err != nil {
		respondServiceError(w, h.logger, err, "create invitation")
		return
	}
	inv, err := h.teamService.Invite(r.Context(), user, req.Email)
	if err != nil {
		respondServiceError(w, h.logger, err, "create invitation")
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

// Accept godoc
// @Summary Accept an invitation
// @Tags Team
// @Produce json
// @Param id path string true "Invitation ID"
// @Success 200 {object} domain.InvitationDTO
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /team/invitations/{id}/accept [post]
func (h *TeamHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	user, _, err := currentUser(r.Context(), h.userRepo)
	if err != nil {
		respondServiceError(w, h.logger, err, "accept invitation")
		return
	}
	inv, err := h.teamService.Accept(r.Context(), user, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "accept invitation")
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

// RebuildIndex godoc
// @Summary Recompute the caller's membership index from accepted invitations
// @Tags Team
// @Produce json
// @Success 200 {object} map[string]int
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /team/members/rebuild [post]
func (h *TeamHandler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	user, _, err := currentUser(r.Context(), h.userRepo)
	if err != nil {
		respondServiceError(w, h.logger, err, "rebuild team index")
		return
	}
	n, err := h.teamService.RebuildIndex(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, h.logger, err, "rebuild team index")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"members": n})
}
