package v1

var (
	// common errors
	ErrSuccess             = newError(0, "ok")
	ErrBadRequest          = newError(400, "bad request")
	ErrUnauthorized        = newError(401, "unauthorized")
	ErrForbidden           = newError(403, "forbidden")
	ErrNotFound            = newError(404, "not found")
	ErrInternalServerError = newError(500, "internal server error")

	// account errors
	ErrEmailAlreadyUse    = newError(1001, "The email is already in use.")
	ErrUsernameAlreadyUse = newError(1002, "The username is already in use.")

	// allocation and lifecycle errors
	ErrPoolRestrained      = newError(2001, "the pool is temporarily restrained")
	ErrCapacityExceeded    = newError(2002, "the pool reached its capacity ceiling")
	ErrServiceNotReady     = newError(2003, "no pool can serve the request right now")
	ErrInvalidService      = newError(2004, "unknown pool or meta pool")
	ErrAccessDenied        = newError(2005, "access to the pool is denied")
	ErrInMaintenance       = newError(2006, "the provider is in maintenance")
	ErrOperationNotAllowed = newError(2007, "operation not allowed in the current state")
	ErrTransportNotFound   = newError(2008, "no compatible transport available")
	ErrInstanceNotFound    = newError(2009, "instance not found")
	ErrAgentUnreachable    = newError(2010, "the instance agent is unreachable")
)
