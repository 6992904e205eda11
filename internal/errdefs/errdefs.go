package errdefs

import (
	"errors"
)

// Request validation.
var (
	ErrValidation = errors.New("invalid request")
)

// Authentication and authorization.
var (
	ErrAuthentication     = errors.New("invalid username/password")
	ErrTokenMissing       = errors.New("JWT token not supplied")
	ErrTokenExpired       = errors.New("JWT token has expired")
	ErrTokenInvalid       = errors.New("JWT token is invalid")
	ErrClientNotFound     = errors.New("client not found")
	ErrIdentityMismatch   = errors.New("client identity not valid")
	ErrAuthorization      = errors.New("client access not permitted")
	ErrTenantAccessDenied = errors.New("client not allowed access to tenant")
	ErrTenantNotFound     = errors.New("tenant not available")
)

// Placement and delegation.
var (
	ErrWorkshopNotAvailable = errors.New("workshop not available")
	ErrCapacityUnavailable  = errors.New("no capacity available for workshop")
	ErrUpstreamUnreachable  = errors.New("training portal unreachable")
	ErrOutcomeUnknown       = errors.New("session request outcome unknown, retry to reacquire")
)

// Capacity cache lookups.
var (
	ErrClusterNotFound     = errors.New("cluster not found")
	ErrPortalNotFound      = errors.New("training portal not found")
	ErrEnvironmentNotFound = errors.New("workshop environment not found")
)

// Configuration.
var (
	ErrConfig = errors.New("config error")
)
