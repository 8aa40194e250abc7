package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/templates"
	"go.uber.org/zap"
)

var validate = validator.New()

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondProblem(w http.ResponseWriter, apiErr *domain.APIError) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(apiErr)
}

// respondWithError sends a problem-details body for the status
func respondWithError(w http.ResponseWriter, status int, message string) {
	respondProblem(w, &domain.APIError{
		Type:   getErrorType(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: message,
	})
}

// respondValidationError lists each failed field
func respondValidationError(w http.ResponseWriter, err error) {
	fields := make(map[string]string)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[toJSONFieldName(fe.Field())] = formatValidationError(fe)
		}
	}
	apiErr := domain.NewAPIError(domain.ErrorTypeValidation, "One or more fields failed validation")
	apiErr.Errors = fields
	respondProblem(w, apiErr)
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", toJSONFieldName(fe.Field()))
	case "max":
		return fmt.Sprintf("Must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", fe.Param())
	case "gt":
		return fmt.Sprintf("Must be greater than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("Must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	default:
		return domain.GetValidationMessage(fe.Tag())
	}
}

func toJSONFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func getErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return domain.ErrorTypeBadRequest
	case http.StatusUnauthorized:
		return domain.ErrorTypeUnauthorized
	case http.StatusForbidden:
		return domain.ErrorTypeForbidden
	case http.StatusNotFound:
		return domain.ErrorTypeNotFound
	case http.StatusConflict:
		return domain.ErrorTypeConflict
	case http.StatusUnprocessableEntity:
		return domain.ErrorTypeUnprocessable
	default:
		return domain.ErrorTypeInternal
	}
}

// decodeJSON reads the body into dst and validates it. It writes the error
// response itself and returns false when the request should stop.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondValidationError(w, err)
		return false
	}
	return true
}

// uuidParam parses a chi URL parameter as a UUID
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads page and pageSize; the service clamps them
func pagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return page, pageSize
}

var errorClasses = []struct {
	status int
	errs   []error
}{
	{http.StatusUnauthorized, []error{service.ErrUserContextRequired}},
	{http.StatusNotFound, []error{
		service.ErrCustomerNotFound, service.ErrProjectNotFound, service.ErrApprovalNotFound,
		service.ErrQuoteNotFound, service.ErrInvitationNotFound, service.ErrNotificationNotFound,
		service.ErrConversionRunNotFound, service.ErrUserNotFound, service.ErrStageNotFound,
		templates.ErrTemplateNotFound, domain.ErrQuoteItemNotFound, domain.ErrAssociationNotFound,
		domain.ErrTaskNotFound,
	}},
	{http.StatusForbidden, []error{service.ErrForbidden, service.ErrSelfApproval, service.ErrNotTeamMember}},
	{http.StatusConflict, []error{
		service.ErrAlreadyDecided, service.ErrApprovalPending, service.ErrStaleApproval,
		service.ErrStageMismatch, service.ErrApprovalConsumed, service.ErrInvitationExists,
		service.ErrInvitationNotOpen, service.ErrQuoteNotEditable, domain.ErrAssociationExists,
		domain.ErrInvalidQuoteTransition, service.ErrConversionRunBusy,
	}},
	{http.StatusUnprocessableEntity, []error{
		service.ErrStageTasksIncomplete, service.ErrAtLastStage, service.ErrAtFirstStage,
		service.ErrStageHasContent, service.ErrCannotDeleteLastStage, service.ErrLastQuoteItem,
		service.ErrQuotationRequired, service.ErrApprovalRequired, service.ErrApprovalNotApproved,
	}},
	{http.StatusBadRequest, []error{
		service.ErrInvalidInput, service.ErrInvalidDecision, service.ErrSelfInvite,
		service.ErrTemplateNotApplicable, service.ErrInvalidStageName, service.ErrDuplicateStageName,
		domain.ErrEmptyPipeline, domain.ErrStageIndexOutOfRange, domain.ErrUnknownStageEdit,
		domain.ErrInvalidQuoteItem,
	}},
}

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	for _, class := range errorClasses {
		for _, target := range class.errs {
			if errors.Is(err, target) {
				return class.status
			}
		}
	}
	return http.StatusInternalServerError
}

// respondServiceError maps err to a problem-details response. Unmapped
// errors are logged and hidden behind a generic 500.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error, action string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("failed to "+action, zap.Error(err))
		respondWithError(w, status, "Failed to "+action)
		return
	}

	apiErr := &domain.APIError{
		Type:   getErrorType(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: err.Error(),
	}
	var blocked *domain.StageBlockedError
	if errors.As(err, &blocked) {
		apiErr.Blocking = blocked.IncompleteTasks
	}
	respondProblem(w, apiErr)
}
