package failure

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FromRemote maps an error returned by a Google API, gRPC or HTTP client call onto the
// taxonomy. Already-classified errors and context cancellation pass through unchanged.
func FromRemote(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return New(kindOfRemote(err), op, "", err)
}

func kindOfRemote(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		// A per-call timeout means the connection hung.
		return KindTransport
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return KindFromStatus(gerr.Code, googleReasons(gerr))
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response != nil && rerr.Response.StatusCode >= 500 {
			return KindTransport
		}
		return KindAuth
	}

	if s, ok := status.FromError(err); ok && s.Code() != codes.OK && s.Code() != codes.Unknown {
		return kindFromGRPC(s.Code())
	}

	if isTransport(err) {
		return KindTransport
	}
	return KindUnknown
}

// KindFromStatus maps an HTTP status code and optional API reasons onto a Kind.
func KindFromStatus(code int, reasons []string) Kind {
	switch {
	case code == http.StatusUnauthorized:
		return KindAuth
	case code == http.StatusForbidden:
		for _, r := range reasons {
			if strings.Contains(strings.ToLower(r), "ratelimit") {
				return KindRateLimit
			}
		}
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusBadRequest:
		return KindValidation
	case code == http.StatusRequestTimeout || code >= 500:
		return KindTransport
	default:
		return KindUnknown
	}
}

func googleReasons(gerr *googleapi.Error) []string {
	reasons := make([]string, 0, len(gerr.Errors))
	for _, item := range gerr.Errors {
		reasons = append(reasons, item.Reason)
	}
	return reasons
}

func kindFromGRPC(code codes.Code) Kind {
	switch code {
	case codes.Unauthenticated, codes.PermissionDenied:
		return KindAuth
	case codes.ResourceExhausted:
		return KindRateLimit
	case codes.NotFound:
		return KindNotFound
	case codes.InvalidArgument, codes.FailedPrecondition:
		return KindValidation
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return KindTransport
	default:
		return KindUnknown
	}
}

func isTransport(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"ssl", "tls", "handshake", "connection reset", "broken pipe", "eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
