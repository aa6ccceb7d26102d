package sessionkit

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshFailure         = "refresh_failure"
	auditEventRefreshRejected        = "refresh_rejected"
	auditEventRefreshRateLimited     = "refresh_rate_limited"
	auditEventUnauthorizedRetry      = "unauthorized_retry"
	auditEventRetryExhausted         = "refresh_retry_exhausted"
	auditEventPasswordChangeRequired = "password_change_required"
	auditEventFingerprintMismatch    = "fingerprint_mismatch"
	auditEventActivityAnomaly        = "activity_anomaly"
	auditEventSessionAdopted         = "session_adopted"
	auditEventSessionResumed         = "session_resumed"
	auditEventLogout                 = "logout"
	auditEventForcedLogout           = "forced_logout"
)

// AuditErrorCode defines a public type used by sessionkit APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrUnauthorized     AuditErrorCode = "unauthorized"
	auditErrRefreshInvalid   AuditErrorCode = "refresh_invalid"
	auditErrRefreshTimeout   AuditErrorCode = "refresh_timeout"
	auditErrQueueFull        AuditErrorCode = "too_many_pending"
	auditErrSessionExpired   AuditErrorCode = "session_expired"
	auditErrFingerprint      AuditErrorCode = "fingerprint_mismatch"
	auditErrPasswordChange   AuditErrorCode = "password_change_required"
	auditErrValidation       AuditErrorCode = "validation_failed"
	auditErrRetryExhausted   AuditErrorCode = "retry_budget_exhausted"
	auditErrActivityAnomaly  AuditErrorCode = "activity_anomaly"
	auditErrNotAuthenticated AuditErrorCode = "not_authenticated"
	auditErrClientClosed     AuditErrorCode = "client_closed"
	auditErrBackend          AuditErrorCode = "backend_error"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	user *User,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		InstanceID: c.fingerprint.InstanceID,
		RequestID:  requestIDFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if user != nil {
		event.UserID = user.ID
		event.Username = user.Username
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var (
		pcr *PasswordChangeRequiredError
		ve  *ValidationError
		se  *StatusError
	)
	switch {
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrRefreshTimeout):
		return auditErrRefreshTimeout
	case errors.Is(err, ErrTooManyPending):
		return auditErrQueueFull
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrFingerprintMismatch):
		return auditErrFingerprint
	case errors.Is(err, ErrRetryBudgetExhausted):
		return auditErrRetryExhausted
	case errors.Is(err, ErrActivityAnomaly):
		return auditErrActivityAnomaly
	case errors.Is(err, ErrNotAuthenticated):
		return auditErrNotAuthenticated
	case errors.Is(err, ErrClientClosed), errors.Is(err, ErrClientNotReady):
		return auditErrClientClosed
	case errors.As(err, &pcr):
		return auditErrPasswordChange
	case errors.As(err, &ve):
		return auditErrValidation
	case errors.As(err, &se):
		return auditErrBackend
	default:
		return auditErrInternal
	}
}
