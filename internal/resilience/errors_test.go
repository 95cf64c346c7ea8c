package resilience

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassUnknown},
		{"plain", errors.New("invalid input: missing field"), ClassUnknown},
		{"explicit transient", NewTransientError(errors.New("server overloaded"), 503), ClassTransient},
		{"wrapped transient", fmt.Errorf("api call failed: %w", NewTransientError(errors.New("busy"), 502)), ClassTransient},
		{"connection reset", eris.Wrap(syscall.ECONNRESET, "dial"), ClassTransient},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), ClassTransient},
		{"broken pipe", fmt.Errorf("write: %w", syscall.EPIPE), ClassTransient},
		{"short body", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), ClassTransient},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, ClassTransient},
		{"dns temporary", &net.DNSError{IsTemporary: true, Err: "server misbehaving"}, ClassTransient},
		{"dns not found", &net.DNSError{IsNotFound: true, Err: "no such host", Name: "nominatim.invalid"}, ClassMisconfigured},
		{"bad address", &net.OpError{Op: "dial", Err: &net.AddrError{Err: "missing port", Addr: "example.com"}}, ClassMisconfigured},
		{"unknown authority", fmt.Errorf("get: %w", x509.UnknownAuthorityError{}), ClassUntrusted},
		{"hostname mismatch", x509.HostnameError{Certificate: &x509.Certificate{}, Host: "maps.example"}, ClassUntrusted},
		{"expired", x509.CertificateInvalidError{Reason: x509.Expired}, ClassUntrusted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	patterns := []string{
		"connection reset by peer",
		"broken pipe",
		"TLS handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range patterns {
		err := errors.New(p)
		if !IsTransient(err) {
			t.Errorf("expected %q to be transient", p)
		}
	}
}

func TestIsTransient_OnlyTransientClass(t *testing.T) {
	if IsTransient(&net.DNSError{IsNotFound: true, Err: "no such host"}) {
		t.Error("unresolvable host should not be transient")
	}
	if IsTransient(x509.UnknownAuthorityError{}) {
		t.Error("certificate failure should not be transient")
	}
}

func TestClass_String(t *testing.T) {
	if ClassMisconfigured.String() != "misconfigured" {
		t.Errorf("unexpected %q", ClassMisconfigured.String())
	}
	if Class(99).String() != "unknown" {
		t.Errorf("unexpected %q", Class(99).String())
	}
}
