package service

import (
	"errors"

	"github.com/straye-as/pipeline-api/internal/domain"
)

// Common service errors
var (
	// ErrForbidden is returned when the user may not perform the action
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrUserContextRequired is returned when user context is not available
	ErrUserContextRequired = errors.New("user context required")

	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")
)

// Not-found errors per aggregate
var (
	ErrCustomerNotFound      = errors.New("customer not found")
	ErrProjectNotFound       = errors.New("project not found")
	ErrApprovalNotFound      = errors.New("approval request not found")
	ErrQuoteNotFound         = errors.New("quote not found")
	ErrInvitationNotFound    = errors.New("invitation not found")
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrConversionRunNotFound = errors.New("conversion run not found")
)

// Team errors
var (
	ErrSelfInvite        = errors.New("cannot invite yourself")
	ErrInvitationExists  = errors.New("an invitation to this email already exists")
	ErrInvitationNotOpen = errors.New("invitation is no longer pending")
	ErrNotTeamMember     = errors.New("user is not an accepted team member")
)

// Approval errors
var (
	ErrSelfApproval        = errors.New("cannot request approval from yourself")
	ErrApprovalPending     = errors.New("a pending approval request already exists for this entity")
	ErrAlreadyDecided      = errors.New("approval request has already been decided")
	ErrStaleApproval       = errors.New("the approved stage move no longer applies")
	ErrStageMismatch       = errors.New("request stages do not match the entity pipeline")
	ErrQuotationRequired   = errors.New("no quotation available to attach")
	ErrInvalidDecision     = errors.New("action must be approve or reject")
	ErrApprovalRequired    = errors.New("an approved conversion request is required")
	ErrApprovalNotApproved = errors.New("approval request is not approved")
	ErrApprovalConsumed    = errors.New("approval request was already used")
)

// Conversion errors
var (
	ErrConversionRunBusy = errors.New("conversion run is being executed")
)

// Quote and template errors
var (
	ErrQuoteNotEditable      = errors.New("only draft quotes can be edited")
	ErrTemplateNotApplicable = errors.New("template does not apply to this entity")
)

// Pipeline errors surfaced unchanged from the domain
var (
	ErrAtLastStage           = domain.ErrAtLastStage
	ErrAtFirstStage          = domain.ErrAtFirstStage
	ErrStageNotFound         = domain.ErrStageNotFound
	ErrStageTasksIncomplete  = domain.ErrStageTasksIncomplete
	ErrCannotDeleteLastStage = domain.ErrCannotDeleteLastStage
	ErrStageHasContent       = domain.ErrStageHasContent
	ErrInvalidStageName      = domain.ErrInvalidStageName
	ErrDuplicateStageName    = domain.ErrDuplicateStageName
	ErrLastQuoteItem         = domain.ErrLastQuoteItem
)
