package resilience

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// TransientError marks an error as safe to retry.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// Class buckets a failed call to a geocoding backend by what a caller should
// do about it.
type Class int

const (
	// ClassUnknown is anything not recognised below. Callers decide.
	ClassUnknown Class = iota
	// ClassTransient failures may succeed on a later attempt.
	ClassTransient
	// ClassUntrusted failures come from certificate or TLS verification.
	ClassUntrusted
	// ClassMisconfigured failures point at an endpoint that can never
	// answer: an unresolvable host or a malformed address.
	ClassMisconfigured
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassUntrusted:
		return "untrusted"
	case ClassMisconfigured:
		return "misconfigured"
	default:
		return "unknown"
	}
}

var transientPatterns = []string{
	"connection reset by peer",
	"connection refused",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
}

// Classify inspects err's chain. Typed errors win over message matching.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var te *TransientError
	if errors.As(err, &te) {
		return ClassTransient
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		hostname         x509.HostnameError
		invalidCert      x509.CertificateInvalidError
		recordHeader     tls.RecordHeaderError
		certVerify       *tls.CertificateVerificationError
	)
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostname) ||
		errors.As(err, &invalidCert) || errors.As(err, &recordHeader) ||
		errors.As(err, &certVerify) {
		return ClassUntrusted
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsTimeout, dnsErr.IsTemporary:
			return ClassTransient
		case dnsErr.IsNotFound:
			return ClassMisconfigured
		}
	}
	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return ClassMisconfigured
	}
	var invalidAddr net.InvalidAddrError
	if errors.As(err, &invalidAddr) {
		return ClassMisconfigured
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassTransient
	}

	// net/http flattens some causes into strings.
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return ClassTransient
		}
	}
	return ClassUnknown
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	return Classify(err) == ClassTransient
}
