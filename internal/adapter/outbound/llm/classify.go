package llm

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"

	"github.com/quizforge/server/internal/port/outbound"
)

// classify maps a provider error onto the two gateway outcomes.
//
// A definite rejection (an HTTP error status, a request that never left the
// process, a refused dial) is ErrGatewayFailure: nothing was consumed.
// Everything else, including timeouts and dropped connections after the
// request was written, is ErrAmbiguousGatewayOutcome because the provider
// may have done the work.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, outbound.ErrGatewayFailure) || errors.Is(err, outbound.ErrAmbiguousGatewayOutcome) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return fmt.Errorf("%w: %s status %d: %s", outbound.ErrGatewayFailure, provider, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code > 0 {
		return fmt.Errorf("%w: %s status %d: %s", outbound.ErrGatewayFailure, provider, gErr.Code, gErr.Message)
	}

	if isDefinitelyNotSent(err) {
		return fmt.Errorf("%w: %s: %v", outbound.ErrGatewayFailure, provider, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= 400 {
		return fmt.Errorf("%w: %s status %d: %v", outbound.ErrGatewayFailure, provider, reqErr.HTTPStatusCode, reqErr.Err)
	}

	return fmt.Errorf("%w: %s: %v", outbound.ErrAmbiguousGatewayOutcome, provider, err)
}

// isDefinitelyNotSent reports errors raised before any request byte could
// reach the provider.
func isDefinitelyNotSent(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}

// ambiguous wraps a malformed 2xx response.
func ambiguous(provider, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", outbound.ErrAmbiguousGatewayOutcome, provider, fmt.Sprintf(format, args...))
}
