package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrInvalidIdentity   = fmt.Errorf("invalid participant identity")
	ErrUnauthenticated   = fmt.Errorf("unauthenticated participant")
	ErrIllegalTransition = fmt.Errorf("illegal connection state transition")
	ErrConnectionClosed  = fmt.Errorf("connection closed")
	ErrOutboundQueueFull = fmt.Errorf("outbound queue full")
	ErrSinkPanic         = fmt.Errorf("sink panic")
	ErrInvalidConfig     = fmt.Errorf("invalid configuration")
)
