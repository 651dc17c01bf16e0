package ledgermirror

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type settings struct {
	logger     *zap.Logger
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures the mirror client.
type Option func(*settings)

// WithLogger sets a custom logger for the mirror client.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

// WithTimeout sets the per-call request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

func applyOptions(opts []Option) settings {
	s := settings{
		logger:  zap.NewNop(),
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: s.timeout}
	}
	return s
}
