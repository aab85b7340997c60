package providers

import (
	"context"

	"growthsheet/internal/growth/domain"
)

// Calculator is the transport collaborator of the calculation core.
//
// Implementations send one JSON body to the calculation endpoint of the
// given reference family and return the raw response body. They must not
// retry and must not interpret the response; a failure to reach the API is
// returned as a ProviderError wrapping the underlying error.
type Calculator interface {
	Calculate(ctx context.Context, reference domain.Reference, body []byte, apiKey string) ([]byte, error)
}
