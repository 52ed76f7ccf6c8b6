// ABOUTME: Push-stream subscriber over websocket
// ABOUTME: Reads change events, hands them to a blocking sink, and reconnects with backoff on drop

package backend

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/harperreed/pipedash/models"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Sink receives each decoded event. It may block; that is the back-pressure
// path into the reconciler. A non-nil error ends the subscription.
type Sink func(ctx context.Context, ev models.StreamEvent) error

type SubscriberOptions struct {
	URL        string
	Tokens     TokenSource
	HTTPClient *http.Client
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	ReadLimit  int64
	Logger     zerolog.Logger
}

// Subscriber holds the long-lived push channel.
type Subscriber struct {
	url        string
	tokens     TokenSource
	httpClient *http.Client
	baseDelay  time.Duration
	maxDelay   time.Duration
	readLimit  int64
	log        zerolog.Logger
	rng        *rand.Rand
}

func NewSubscriber(opts SubscriberOptions) *Subscriber {
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	readLimit := opts.ReadLimit
	if readLimit <= 0 {
		readLimit = 1 << 20
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = StaticTokens("")
	}
	return &Subscriber{
		url:        strings.TrimSpace(opts.URL),
		tokens:     tokens,
		httpClient: opts.HTTPClient,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		readLimit:  readLimit,
		log:        opts.Logger.With().Str("component", "subscriber").Logger(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run keeps the subscription open until ctx is cancelled or sink fails.
func (s *Subscriber) Run(ctx context.Context, sink Sink) error {
	if s.url == "" {
		return errors.New("stream url is required")
	}

	attempt := 0
	for {
		received, err := s.session(ctx, sink)
		if ctx.Err() != nil {
			return nil
		}
		var sinkErr *sinkError
		if errors.As(err, &sinkErr) {
			return sinkErr.err
		}
		if received > 0 {
			attempt = 0
		}
		attempt++
		delay := s.retryDelay(attempt)
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("stream dropped, reconnecting")
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return nil
		}
	}
}

type sinkError struct{ err error }

func (e *sinkError) Error() string { return e.err.Error() }

func (s *Subscriber) session(ctx context.Context, sink Sink) (int, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return 0, err
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{
		HTTPClient: s.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "unsubscribe") }()
	conn.SetReadLimit(s.readLimit)
	s.log.Info().Str("url", s.url).Msg("stream connected")

	received := 0
	for {
		var ev models.StreamEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return received, err
		}
		if err := sink(ctx, ev); err != nil {
			return received, &sinkError{err: err}
		}
		received++
	}
}

func (s *Subscriber) retryDelay(attempt int) time.Duration {
	delay := s.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.maxDelay {
			delay = s.maxDelay
			break
		}
	}
	// +/-20% jitter so many clients do not reconnect in lockstep.
	factor := 0.8 + s.rng.Float64()*0.4
	return time.Duration(float64(delay) * factor)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
