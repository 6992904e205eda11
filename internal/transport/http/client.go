package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/educates/lookup-service/internal/cache"
	"github.com/educates/lookup-service/internal/errdefs"
	"github.com/educates/lookup-service/internal/metrics"
	"github.com/educates/lookup-service/internal/transport/dto"
)

const (
	operationRequest   = "request_session"
	operationReacquire = "reacquire_session"
)

// HTTPCommunicator implements PortalCommunicator against the training portal
// REST API. Calls are authenticated with an access token obtained for the
// portal robot account using the OAuth2 password grant.
type HTTPCommunicator struct {
	httpClient *http.Client
	maxRetries int

	mu     sync.Mutex
	robots map[string]*robotToken
}

// NewHTTPCommunicator creates a portal communicator with connection pooling.
func NewHTTPCommunicator() *HTTPCommunicator {
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &HTTPCommunicator{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		maxRetries: 2,
		robots:     make(map[string]*robotToken),
	}
}

// RequestSession posts a session request to the portal. The request is not
// retried since the portal may have allocated a session before failing.
func (c *HTTPCommunicator) RequestSession(ctx context.Context, endpoint cache.PortalEndpoint, reqDTO *dto.SessionRequestDTO) (*dto.SessionDTO, error) {
	logger := log.FromContext(ctx).WithName("portal-communicator")
	started := time.Now()

	query := url.Values{}
	query.Set("user", reqDTO.User)
	query.Set("email", reqDTO.Email)
	query.Set("first_name", reqDTO.FirstName)
	query.Set("last_name", reqDTO.LastName)
	query.Set("index_url", reqDTO.IndexURL)
	query.Set("analytics_url", reqDTO.AnalyticsURL)

	parameters := reqDTO.Parameters
	if parameters == nil {
		parameters = []dto.Parameter{}
	}
	body, err := json.Marshal(map[string]any{"parameters": parameters})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	requestURL := fmt.Sprintf("%s/workshops/environment/%s/request/?%s",
		strings.TrimSuffix(endpoint.URL, "/"), url.PathEscape(reqDTO.Environment), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	session, err := c.exchange(ctx, endpoint, req, false)
	metrics.RecordPortalRequest(operationRequest, err == nil && session != nil, time.Since(started))
	if err != nil {
		return nil, err
	}
	if session == nil {
		logger.Info("Training portal declined session request",
			"cluster", endpoint.Cluster,
			"portal", endpoint.Portal,
			"environment", reqDTO.Environment)
		return nil, nil
	}

	logger.Info("Workshop session allocated by training portal",
		"cluster", endpoint.Cluster,
		"portal", endpoint.Portal,
		"environment", reqDTO.Environment,
		"session", session.Name)

	return session, nil
}

// ReacquireSession asks the portal to re-issue a session it already allocated.
func (c *HTTPCommunicator) ReacquireSession(ctx context.Context, endpoint cache.PortalEndpoint, reqDTO *dto.ReacquireRequestDTO) (*dto.SessionDTO, error) {
	logger := log.FromContext(ctx).WithName("portal-communicator")
	started := time.Now()

	query := url.Values{}
	query.Set("index_url", reqDTO.IndexURL)

	requestURL := fmt.Sprintf("%s/workshops/session/%s/reacquire/?%s",
		strings.TrimSuffix(endpoint.URL, "/"), url.PathEscape(reqDTO.Session), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	session, err := c.exchange(ctx, endpoint, req, true)
	metrics.RecordPortalRequest(operationReacquire, err == nil && session != nil, time.Since(started))
	if err != nil {
		return nil, err
	}

	if session != nil {
		logger.Info("Workshop session reacquired from training portal",
			"cluster", endpoint.Cluster,
			"portal", endpoint.Portal,
			"session", session.Name)
	}

	return session, nil
}

// Close cleans up resources
func (c *HTTPCommunicator) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// exchange authenticates and sends the request and decodes the session in
// the response. Client errors from the portal yield a nil session, transport
// failures and server errors are reported as an unreachable upstream.
func (c *HTTPCommunicator) exchange(ctx context.Context, endpoint cache.PortalEndpoint, req *http.Request, idempotent bool) (*dto.SessionDTO, error) {
	if err := c.authorize(ctx, endpoint, req); err != nil {
		return nil, err
	}

	var (
		resp *http.Response
		err  error
	)
	if idempotent {
		resp, err = c.doWithRetry(ctx, req)
	} else {
		resp, err = c.httpClient.Do(req)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("portal %s/%s: %w", endpoint.Cluster, endpoint.Portal, ctxErr)
		}
		return nil, fmt.Errorf("%w: portal %s/%s: %v", errdefs.ErrUpstreamUnreachable, endpoint.Cluster, endpoint.Portal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: portal %s/%s returned status %d: %s",
			errdefs.ErrUpstreamUnreachable, endpoint.Cluster, endpoint.Portal, resp.StatusCode, string(bodyBytes))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read portal response: %v", errdefs.ErrUpstreamUnreachable, err)
	}
	if len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil, nil
	}

	var session dto.SessionDTO
	if err := json.Unmarshal(bodyBytes, &session); err != nil {
		return nil, fmt.Errorf("%w: failed to decode portal response: %v", errdefs.ErrUpstreamUnreachable, err)
	}
	if session.Name == "" {
		return nil, nil
	}

	return &session, nil
}

// authorize sets the bearer token of the portal robot account. Portals
// without robot credentials are called unauthenticated.
func (c *HTTPCommunicator) authorize(ctx context.Context, endpoint cache.PortalEndpoint, req *http.Request) error {
	credentials := endpoint.Credentials
	if credentials.ClientID == "" {
		return nil
	}

	robot := c.robot(endpoint)
	token, err := robot.Token(ctx)
	if err != nil {
		c.forgetRobot(endpoint)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("portal %s/%s: %w", endpoint.Cluster, endpoint.Portal, ctxErr)
		}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < http.StatusInternalServerError {
			return fmt.Errorf("%w: portal %s/%s rejected robot credentials", errdefs.ErrUpstreamUnreachable, endpoint.Cluster, endpoint.Portal)
		}
		return fmt.Errorf("%w: failed to obtain access token for portal %s/%s: %v",
			errdefs.ErrUpstreamUnreachable, endpoint.Cluster, endpoint.Portal, err)
	}

	token.SetAuthHeader(req)
	return nil
}

func robotKey(endpoint cache.PortalEndpoint) string {
	return strings.Join([]string{endpoint.URL, endpoint.Credentials.ClientID, endpoint.Credentials.Username}, "|")
}

// robot returns the cached robot account of a portal, creating it on first use.
func (c *HTTPCommunicator) robot(endpoint cache.PortalEndpoint) *robotToken {
	key := robotKey(endpoint)

	c.mu.Lock()
	defer c.mu.Unlock()

	if robot, ok := c.robots[key]; ok {
		return robot
	}

	robot := &robotToken{
		config: &oauth2.Config{
			ClientID:     endpoint.Credentials.ClientID,
			ClientSecret: endpoint.Credentials.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  strings.TrimSuffix(endpoint.URL, "/") + "/oauth2/token/",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: c.httpClient,
		username:   endpoint.Credentials.Username,
		password:   endpoint.Credentials.Password,
	}
	c.robots[key] = robot
	return robot
}

func (c *HTTPCommunicator) forgetRobot(endpoint cache.PortalEndpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.robots, robotKey(endpoint))
}

// robotToken holds the access token of a portal robot account. The password
// grant runs on the context of the call needing the token and the lock is
// not held while it is in flight.
type robotToken struct {
	config     *oauth2.Config
	httpClient *http.Client
	username   string
	password   string

	mu    sync.Mutex
	token *oauth2.Token
}

// Token returns the cached token while it is valid and otherwise performs the
// password grant bounded by ctx.
func (r *robotToken) Token(ctx context.Context) (*oauth2.Token, error) {
	r.mu.Lock()
	token := r.token
	r.mu.Unlock()
	if token.Valid() {
		return token, nil
	}

	token, err := r.config.PasswordCredentialsToken(
		context.WithValue(ctx, oauth2.HTTPClient, r.httpClient), r.username, r.password)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
	return token, nil
}

// doWithRetry executes an idempotent request, retrying server errors with a
// short exponential backoff bounded by the context deadline.
func (c *HTTPCommunicator) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	backoff := 100 * time.Millisecond
	maxBackoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.httpClient.Do(req)

		if err == nil {
			if resp.StatusCode < 500 {
				return resp, nil
			}
			if attempt == c.maxRetries {
				return resp, nil
			}
			resp.Body.Close()
		} else if attempt == c.maxRetries {
			return nil, fmt.Errorf("max retries exceeded: %w", err)
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("max retries exceeded")
}
