package statustoken

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSecret  = errors.New("status token secret is not configured")
	ErrWeakSecret     = fmt.Errorf("status token secret must be at least %d bytes", MinSecretLength)
	ErrInvalidPayload = errors.New("invalid status token payload")
	ErrInvalidToken   = errors.New("invalid status token")
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrInvalidToken)
)
