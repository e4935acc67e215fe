package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultStoreKeyPrefix = "retail:session:"
	defaultStoreTTL       = 24 * time.Hour
	maxResponseSizeBytes  = 2 << 20
)

// UpstashOption customizes UpstashBackend.
type UpstashOption func(*UpstashBackend)

func WithKeyPrefix(prefix string) UpstashOption {
	return func(s *UpstashBackend) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) UpstashOption {
	return func(s *UpstashBackend) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) UpstashOption {
	return func(s *UpstashBackend) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashBackend stores each session as a Redis hash {version, payload} through
// the Upstash REST API. Writes go through the CAS Lua script.
type UpstashBackend struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

var _ Backend = (*UpstashBackend)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	TTL     time.Duration `envconfig:"TTL" split_words:"true" default:"24h"`
}

func NewUpstashBackend(cfg UpstashRedisConfig, opts ...UpstashOption) (*UpstashBackend, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = defaultStoreTTL
	}

	backend := &UpstashBackend{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultStoreKeyPrefix,
		ttl:        ttl,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(backend)
		}
	}
	if backend.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return backend, nil
}

func (s *UpstashBackend) Read(ctx context.Context, sessionID string) (Session, error) {
	key, err := s.redisKey(sessionID)
	if err != nil {
		return Session{}, err
	}

	resp, err := s.exec(ctx, []any{"HMGET", key, "version", "payload"})
	if err != nil {
		return Session{}, err
	}

	var fields []*string
	if err := json.Unmarshal(resp.Result, &fields); err != nil {
		return Session{}, fmt.Errorf("decode session hash: %w", err)
	}
	if len(fields) != 2 || fields[1] == nil {
		return Session{}, ErrSessionNotFound
	}
	return decodeSession(*fields[1])
}

func (s *UpstashBackend) CompareAndSwap(ctx context.Context, expected int64, next Session) (bool, error) {
	key, err := s.redisKey(next.SessionID)
	if err != nil {
		return false, err
	}
	payload, err := encodeSession(next)
	if err != nil {
		return false, err
	}

	resp, err := s.exec(ctx, []any{
		"EVAL", casScript, "1", key,
		strconv.FormatInt(expected, 10),
		strconv.FormatInt(next.Version, 10),
		payload,
		strconv.FormatInt(ttlSeconds(s.ttl), 10),
	})
	if err != nil {
		return false, err
	}

	var swapped int64
	if err := json.Unmarshal(bytes.TrimSpace(resp.Result), &swapped); err != nil {
		return false, fmt.Errorf("decode cas result: %w", err)
	}
	return swapped == 1, nil
}

func (s *UpstashBackend) redisKey(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	return strings.TrimSpace(s.keyPrefix) + sessionID, nil
}

func (s *UpstashBackend) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

// ttlSeconds rounds up to whole seconds; 0 disables expiry.
func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	seconds := ttl / time.Second
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
