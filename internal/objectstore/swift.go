package objectstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ncw/swift/v2"
)

const (
	userAgent      = "openstack-swift-exporter"
	connectTimeout = 10 * time.Second
	requestTimeout = 60 * time.Second

	// lastModifiedLayout is Swift's naive UTC timestamp, with microseconds.
	lastModifiedLayout = "2006-01-02T15:04:05.999999999"
)

var errStopWalk = errors.New("listing consumer stopped")

// SwiftSource lists containers of an OpenStack Swift account.
type SwiftSource struct {
	conn     *swift.Connection
	pageSize int
}

// NewSwiftSource builds a source for auth. Authentication is deferred to the
// first listing; retries is the number of extra attempts the swift client
// makes on transient failures.
func NewSwiftSource(auth AuthConfig, retries int, transport http.RoundTripper) *SwiftSource {
	// the swift client replaces 0 with its own default
	if retries == 0 {
		retries = -1
	}
	conn := &swift.Connection{
		Retries:        retries,
		UserAgent:      userAgent,
		ConnectTimeout: connectTimeout,
		Timeout:        requestTimeout,
		Transport:      transport,
	}
	auth.apply(conn)
	return &SwiftSource{conn: conn}
}

func (s *SwiftSource) Objects(ctx context.Context, container string, opts ListOptions) iter.Seq2[ObjectRecord, error] {
	return func(yield func(ObjectRecord, error) bool) {
		walkOpts, err := opts.swiftOpts()
		if err != nil {
			yield(ObjectRecord{}, &Error{Kind: KindClient, Err: err})
			return
		}
		walkOpts.Limit = s.pageSize

		err = s.conn.ObjectsWalk(ctx, container, walkOpts, func(ctx context.Context, pageOpts *swift.ObjectsOpts) (any, error) {
			page, err := s.conn.Objects(ctx, container, pageOpts)
			if err != nil {
				return nil, err
			}
			for _, obj := range page {
				// delimiter listings return sub directories as pseudo objects
				if obj.PseudoDirectory {
					continue
				}
				record, err := toRecord(obj)
				if err != nil {
					return nil, err
				}
				if !yield(record, nil) {
					return nil, errStopWalk
				}
			}
			return page, nil
		})
		if err != nil && !errors.Is(err, errStopWalk) {
			yield(ObjectRecord{}, classify(err))
		}
	}
}

func (o ListOptions) swiftOpts() (*swift.ObjectsOpts, error) {
	walkOpts := &swift.ObjectsOpts{Prefix: o.Prefix}
	if o.Delimiter != "" {
		r, size := utf8.DecodeRuneInString(o.Delimiter)
		if size != len(o.Delimiter) {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", o.Delimiter)
		}
		walkOpts.Delimiter = r
	}
	return walkOpts, nil
}

func toRecord(obj swift.Object) (ObjectRecord, error) {
	if obj.Bytes < 0 {
		return ObjectRecord{}, &Error{Kind: KindMalformed, Err: fmt.Errorf("object %q: negative size %d", obj.Name, obj.Bytes)}
	}
	// obj.LastModified is truncated to the second by the swift client.
	lastModified, err := time.ParseInLocation(lastModifiedLayout, strings.TrimSuffix(obj.ServerLastModified, "Z"), time.UTC)
	if err != nil || lastModified.IsZero() {
		return ObjectRecord{}, &Error{Kind: KindMalformed, Err: fmt.Errorf("object %q: unparseable last modified %q", obj.Name, obj.ServerLastModified)}
	}
	return ObjectRecord{
		Name:         obj.Name,
		Bytes:        obj.Bytes,
		LastModified: lastModified,
	}, nil
}
