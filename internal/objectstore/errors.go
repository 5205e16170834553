package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/ncw/swift/v2"
)

type Kind string

const (
	KindService    Kind = "service"
	KindConnection Kind = "connection"
	KindTimeout    Kind = "timeout"
	KindMalformed  Kind = "malformed"
	KindClient     Kind = "client"
	KindCanceled   Kind = "canceled"
)

// Error is a listing failure reported by a Source.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("object store %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of a listing failure, KindClient when err does not
// carry one.
func KindOf(err error) Kind {
	var oerr *Error
	if errors.As(err, &oerr) {
		return oerr.Kind
	}
	return KindClient
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var oerr *Error
	if errors.As(err, &oerr) {
		return err
	}

	var (
		swiftErr *swift.Error
		urlErr   *url.Error
		netErr   net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.As(err, &swiftErr):
		return &Error{Kind: KindService, Err: err}
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return &Error{Kind: KindConnection, Err: err}
	default:
		return &Error{Kind: KindClient, Err: err}
	}
}
