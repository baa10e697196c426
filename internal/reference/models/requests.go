package models

import (
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	id "refroute/pkg/domain"
	dErrors "refroute/pkg/domain-errors"
	pstrings "refroute/pkg/platform/strings"
)

const (
	MaxSubjectLength = 500
	MaxRemarksLength = 2000
	MaxHolders       = 50
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// validateStruct runs tag validation and converts the first failure into a
// validation error naming the field.
func validateStruct(v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return dErrors.New(dErrors.CodeValidation, fieldMessage(fe))
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request")
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "max":
		return name + " must be at most " + fe.Param() + " long"
	case "min":
		return name + " must have at least " + fe.Param() + " entries"
	case "oneof":
		return name + " must be one of: " + fe.Param()
	case "uuid":
		return name + " must be a valid id"
	default:
		return name + " is invalid"
	}
}

// CreateReferenceRequest opens a new reference held by MarkedTo.
type CreateReferenceRequest struct {
	Subject        string     `json:"subject" validate:"required,max=500"`
	Remarks        string     `json:"remarks" validate:"max=2000"`
	ExternalNumber string     `json:"external_number" validate:"max=128"`
	Priority       string     `json:"priority" validate:"omitempty,oneof=Low Medium High"`
	DeliveryMode   string     `json:"delivery_mode" validate:"max=64"`
	DeliveryDetail string     `json:"delivery_detail" validate:"max=500"`
	DeliverySentAt *time.Time `json:"delivery_sent_at,omitempty"`
	MarkedTo       []string   `json:"marked_to" validate:"required,min=1,max=50,dive,uuid"`
}

func (r *CreateReferenceRequest) Normalize() {
	if r == nil {
		return
	}
	r.Subject = strings.TrimSpace(r.Subject)
	r.Remarks = strings.TrimSpace(r.Remarks)
	r.ExternalNumber = strings.TrimSpace(r.ExternalNumber)
	r.DeliveryMode = strings.TrimSpace(r.DeliveryMode)
	r.DeliveryDetail = strings.TrimSpace(r.DeliveryDetail)
	if p, err := ParsePriority(r.Priority); err == nil {
		r.Priority = string(p)
	}
	r.MarkedTo = pstrings.DedupeAndTrimLower(r.MarkedTo)
}

// Follows validation order: Size -> Required -> Syntax -> Semantic.
func (r *CreateReferenceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validateStruct(r)
}

// Holders parses MarkedTo after Normalize.
func (r *CreateReferenceRequest) Holders() ([]id.UserID, error) {
	return id.ParseUserIDs(r.MarkedTo)
}

// MovementRequest hands a reference to NextHolders with NextStatus.
type MovementRequest struct {
	NextHolders    []string `json:"next_holders" validate:"max=50,dive,uuid"`
	NextStatus     string   `json:"next_status" validate:"required,oneof=InProgress Closed"`
	Remarks        string   `json:"remarks" validate:"max=2000"`
	IdempotencyKey string   `json:"idempotency_key" validate:"max=128"`
	// ExpectedUpdatedAt pins the concurrency token the caller read. When absent
	// the token is the one read inside the operation.
	ExpectedUpdatedAt *time.Time `json:"expected_updated_at,omitempty"`
}

func (r *MovementRequest) Normalize() {
	if r == nil {
		return
	}
	r.Remarks = strings.TrimSpace(r.Remarks)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	r.NextHolders = pstrings.DedupeAndTrimLower(r.NextHolders)
	if s, err := ParseStatus(r.NextStatus); err == nil {
		r.NextStatus = string(s)
	}
}

// Follows validation order: Size -> Required -> Syntax -> Semantic.
// Reopened is reachable only through reopen resolution, hence not accepted here.
func (r *MovementRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if Status(r.NextStatus) == StatusReopened || Status(r.NextStatus) == StatusOpen {
		return dErrors.New(dErrors.CodeInvalidTransition, "status "+r.NextStatus+" cannot be set by a movement")
	}
	return validateStruct(r)
}

// ReopenRequestBody asks to reopen a Closed reference.
type ReopenRequestBody struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

func (r *ReopenRequestBody) Normalize() {
	if r != nil {
		r.Reason = strings.TrimSpace(r.Reason)
	}
}

func (r *ReopenRequestBody) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validateStruct(r)
}

// ResolveReopenRequest approves or denies a pending reopen.
type ResolveReopenRequest struct {
	Approve        bool   `json:"approve"`
	Remarks        string `json:"remarks" validate:"max=2000"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=128"`
}

func (r *ResolveReopenRequest) Normalize() {
	if r != nil {
		r.Remarks = strings.TrimSpace(r.Remarks)
		r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	}
}

func (r *ResolveReopenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validateStruct(r)
}

// BulkActionKind names the single action applied across a bulk batch.
type BulkActionKind string

const (
	BulkReassign     BulkActionKind = "reassign"
	BulkClose        BulkActionKind = "close"
	BulkMarkPriority BulkActionKind = "markPriority"
)

// BulkRequest applies one action to many references.
type BulkRequest struct {
	IDs      []string       `json:"ids" validate:"required,min=1,dive,required"`
	Action   BulkActionKind `json:"action" validate:"required,oneof=reassign close markPriority"`
	Holders  []string       `json:"holders" validate:"max=50,dive,uuid"`
	Priority string         `json:"priority" validate:"omitempty,oneof=Low Medium High"`
	Remarks  string         `json:"remarks" validate:"max=2000"`
}

func (r *BulkRequest) Normalize() {
	if r == nil {
		return
	}
	r.IDs = pstrings.DedupeAndTrimLower(r.IDs)
	r.Holders = pstrings.DedupeAndTrimLower(r.Holders)
	r.Remarks = strings.TrimSpace(r.Remarks)
	if p, err := ParsePriority(r.Priority); err == nil {
		r.Priority = string(p)
	}
}

// Follows validation order: Size -> Required -> Syntax -> Semantic.
func (r *BulkRequest) Validate(maxItems int) error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if maxItems > 0 && len(r.IDs) > maxItems {
		return dErrors.New(dErrors.CodeValidation, "too many ids in one batch")
	}
	if len(r.IDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "ids is required")
	}
	if err := validateStruct(r); err != nil {
		return err
	}
	switch r.Action {
	case BulkReassign:
		if len(r.Holders) == 0 {
			return dErrors.New(dErrors.CodeEmptyHolderSet, "reassign requires at least one holder")
		}
	case BulkMarkPriority:
		if r.Priority == "" {
			return dErrors.New(dErrors.CodeValidation, "markPriority requires a priority")
		}
	}
	return nil
}

// ListRequest is the raw list query; query.FromListRequest turns it into Filters.
type ListRequest struct {
	Status      []string `json:"status"`
	Priority    []string `json:"priority"`
	MarkedTo    []string `json:"marked_to"`
	CreatedBy   []string `json:"created_by"`
	Division    []string `json:"division"`
	Subject     string   `json:"subject"`
	PendingDays *int     `json:"pending_days,omitempty"`
	SortBy      string   `json:"sort_by"`
	SortOrder   string   `json:"sort_order"`
	Page        int      `json:"page"`
	Limit       int      `json:"limit"`
}
