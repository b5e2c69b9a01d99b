package camera

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/reowatch/reowatch/internal/conf"
	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/logger"
	"github.com/reowatch/reowatch/internal/privacy"
)

const (
	// requestTimeout bounds every API call
	requestTimeout = 10 * time.Second
	// tokenMargin renews the token before the camera expires it
	tokenMargin = time.Minute
	// minTokenTTL keeps short leases usable
	minTokenTTL = 30 * time.Second
	tokenKey    = "token"

	// Reolink firmware struggles with bursts; stay well under its limit
	requestsPerSecond = 5
	requestBurst      = 5
)

// jpegMagic is the start-of-image marker
var jpegMagic = []byte{0xFF, 0xD8}

// Client is a Session backed by the Reolink HTTP API. AI state changes are
// detected by polling GetAiState.
type Client struct {
	cfg     conf.CameraSettings
	http    *resty.Client
	tokens  *cache.Cache
	limiter *rate.Limiter
	log     logger.Logger

	// loginMu serializes logins so concurrent calls share one token
	loginMu sync.Mutex

	mu        sync.RWMutex
	info      DeviceInfo
	rtspPort  int
	aiState   AIState
	callbacks map[string]Callback

	subMu     sync.Mutex
	subCancel context.CancelFunc
	subDone   chan struct{}
}

// NewClient returns an unconnected client for cam.
func NewClient(cam conf.CameraSettings) *Client {
	r := resty.New().
		SetBaseURL(cam.APIBaseURL()).
		SetTimeout(requestTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	if cam.HTTPS {
		// Reolink cameras ship self-signed certificates
		r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // G402: device certificates are self-signed
	}

	return &Client{
		cfg:       cam,
		http:      r,
		tokens:    cache.New(cache.NoExpiration, 10*time.Minute),
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		log:       GetLogger().With(logger.String("camera", cam.Name)),
		callbacks: make(map[string]Callback),
	}
}

// SetTransport replaces the HTTP transport. Tests use it to mock the camera.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.http.SetTransport(rt)
}

// Connect logs in and reads device identity, ports and the initial AI state.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := c.token(ctx); err != nil {
		return err
	}

	var dev devInfoValue
	if err := c.call(ctx, cmdGetDevInfo, struct{}{}, &dev); err != nil {
		return err
	}

	rtspPort := c.cfg.RTSPPort
	if rtspPort <= 0 {
		rtspPort = DefaultRTSPPort
		var np netPortValue
		if err := c.call(ctx, cmdGetNetPort, struct{}{}, &np); err != nil {
			c.log.Warn("could not read RTSP port from device, using default",
				logger.Int("port", DefaultRTSPPort),
				logger.Error(err))
		} else if np.NetPort.RTSPPort > 0 {
			rtspPort = np.NetPort.RTSPPort
		}
	}

	state, err := c.fetchAIState(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.info = dev.DevInfo
	c.rtspPort = rtspPort
	c.aiState = state
	c.mu.Unlock()

	c.log.Info("connected to camera",
		logger.String("device_name", dev.DevInfo.Name),
		logger.String("model", dev.DevInfo.Model),
		logger.String("firmware", dev.DevInfo.Firmware),
		logger.Int("channels", dev.DevInfo.Channels),
		logger.Int("rtsp_port", rtspPort))
	return nil
}

// DeviceInfo returns the identity read during Connect.
func (c *Client) DeviceInfo() DeviceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// SupportsAI reports whether the camera can detect kind on channel.
func (c *Client) SupportsAI(channel int, kind string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aiState.Channel == channel && c.aiState.Supports(kind)
}

// IsDetected reports the last polled detection flag for kind on channel.
func (c *Client) IsDetected(channel int, kind string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aiState.Channel == channel && c.aiState.Detected(kind)
}

// StreamParams returns the RTSP connection parameters.
func (c *Client) StreamParams() StreamParams {
	c.mu.RLock()
	port := c.rtspPort
	c.mu.RUnlock()
	if port <= 0 {
		port = c.cfg.RTSPPort
	}

	return StreamParams{
		Host:     c.cfg.Host,
		Port:     port,
		Username: c.cfg.Username,
		Password: c.cfg.Password,
		Channel:  c.cfg.Channel,
		Codec:    c.cfg.Codec,
	}
}

// FetchSnapshot downloads a JPEG from the camera's Snap endpoint.
func (c *Client) FetchSnapshot(ctx context.Context, channel int) ([]byte, error) {
	body, err := c.withToken(ctx, cmdSnap, func(token string) ([]byte, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"cmd":     cmdSnap,
				"channel": fmt.Sprint(channel),
				"rs":      uuid.NewString(),
				"token":   token,
			}).
			Get(apiPath)
		if err != nil {
			return nil, c.transportError(cmdSnap, err)
		}
		if resp.IsError() {
			return nil, c.statusError(cmdSnap, resp)
		}

		data := resp.Body()
		if bytes.HasPrefix(data, jpegMagic) {
			return data, nil
		}
		// Errors come back as a JSON command response
		if _, err := decodeResponse(cmdSnap, data); err != nil {
			return nil, err
		}
		return nil, errors.Newf("camera returned %d bytes that are not a JPEG", len(data)).
			Component("camera").
			Category(errors.CategoryImageFetch).
			Context("content_type", resp.Header().Get("Content-Type")).
			Build()
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// RegisterDetectionCallback adds or replaces the callback stored under id.
func (c *Client) RegisterDetectionCallback(id string, fn Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[id] = fn
}

// Disconnect stops polling and logs out.
func (c *Client) Disconnect(ctx context.Context) error {
	if err := c.UnsubscribeEvents(ctx); err != nil {
		c.log.Debug("unsubscribe during disconnect failed", logger.Error(err))
	}

	cached, ok := c.tokens.Get(tokenKey)
	if !ok {
		return nil
	}
	token, _ := cached.(string)
	c.tokens.Delete(tokenKey)

	if err := c.post(ctx, cmdLogout, token, struct{}{}, nil); err != nil {
		return err
	}
	c.log.Debug("logged out")
	return nil
}

// token returns a cached token, logging in when there is none
func (c *Client) token(ctx context.Context) (string, error) {
	if cached, ok := c.tokens.Get(tokenKey); ok {
		if s, ok := cached.(string); ok {
			return s, nil
		}
	}

	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	if cached, ok := c.tokens.Get(tokenKey); ok {
		if s, ok := cached.(string); ok {
			return s, nil
		}
	}

	var param loginParam
	param.User.Version = "0"
	param.User.UserName = c.cfg.Username
	param.User.Password = c.cfg.Password

	var out loginValue
	if err := c.post(ctx, cmdLogin, "", param, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return "", errors.New(err).
				Component("camera").
				Category(errors.CategoryAuth).
				Context("operation", "login").
				Context("camera", c.cfg.Name).
				Build()
		}
		return "", err
	}
	if out.Token.Name == "" {
		return "", errors.Newf("login succeeded but no token was returned").
			Component("camera").
			Category(errors.CategoryAuth).
			Context("camera", c.cfg.Name).
			Build()
	}

	ttl := time.Duration(out.Token.LeaseTime)*time.Second - tokenMargin
	if ttl < minTokenTTL {
		ttl = minTokenTTL
	}
	c.tokens.Set(tokenKey, out.Token.Name, ttl)
	c.log.Debug("logged in", logger.Duration("token_ttl", ttl))
	return out.Token.Name, nil
}

// withToken runs fn with a valid token, logging in again once if the
// camera reports the token as expired
func (c *Client) withToken(ctx context.Context, cmd string, fn func(token string) ([]byte, error)) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.token(ctx)
		if err != nil {
			return nil, err
		}

		out, err := fn(token)
		var apiErr *APIError
		if err != nil && attempt == 0 && errors.As(err, &apiErr) && apiErr.authExpired() {
			c.log.Debug("token rejected, logging in again", logger.String("cmd", cmd))
			c.tokens.Delete(tokenKey)
			continue
		}
		return out, err
	}
}

// call runs an authenticated command and decodes its value into out
func (c *Client) call(ctx context.Context, cmd string, param, out any) error {
	_, err := c.withToken(ctx, cmd, func(token string) ([]byte, error) {
		return nil, c.post(ctx, cmd, token, param, out)
	})
	return err
}

// post sends one command and decodes the value of the first response
func (c *Client) post(ctx context.Context, cmd, token string, param, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.New(err).
			Component("camera").
			Category(errors.CategoryCancellation).
			Context("operation", "rate_limiter_wait").
			Context("cmd", cmd).
			Build()
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("cmd", cmd).
		SetBody([]apiRequest{{Cmd: cmd, Action: 0, Param: param}})
	if token != "" {
		req.SetQueryParam("token", token)
	}

	resp, err := req.Post(apiPath)
	if err != nil {
		return c.transportError(cmd, err)
	}
	if resp.IsError() {
		return c.statusError(cmd, resp)
	}

	value, err := decodeResponse(cmd, resp.Body())
	if err != nil {
		return err
	}
	if out == nil || len(value) == 0 {
		return nil
	}
	if err := json.Unmarshal(value, out); err != nil {
		return errors.New(fmt.Errorf("decode %s value: %w", cmd, err)).
			Component("camera").
			Category(errors.CategoryHTTP).
			Context("cmd", cmd).
			Build()
	}
	return nil
}

// decodeResponse extracts the value of the first response element or the
// camera's error
func decodeResponse(cmd string, body []byte) (json.RawMessage, error) {
	var responses []apiResponse
	if err := json.Unmarshal(body, &responses); err != nil {
		return nil, errors.New(fmt.Errorf("decode %s response: %w", cmd, err)).
			Component("camera").
			Category(errors.CategoryHTTP).
			Context("cmd", cmd).
			Build()
	}
	if len(responses) == 0 {
		return nil, errors.Newf("empty %s response", cmd).
			Component("camera").
			Category(errors.CategoryHTTP).
			Build()
	}

	r := responses[0]
	if r.Code != 0 || r.Error != nil {
		apiErr := &APIError{Cmd: cmd}
		if r.Error != nil {
			apiErr.RspCode = r.Error.RspCode
			apiErr.Detail = r.Error.Detail
		}
		return nil, apiErr
	}
	return r.Value, nil
}

func (c *Client) transportError(cmd string, err error) error {
	category := errors.CategoryNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		category = errors.CategoryTimeout
	}
	return errors.New(privacy.WrapError(err)).
		Component("camera").
		Category(category).
		NetworkContext(c.cfg.APIBaseURL(), requestTimeout).
		Context("cmd", cmd).
		Context("camera", c.cfg.Name).
		Build()
}

func (c *Client) statusError(cmd string, resp *resty.Response) error {
	category := errors.CategoryHTTP
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		category = errors.CategoryAuth
	}
	return errors.Newf("camera answered %s with HTTP %d", cmd, resp.StatusCode()).
		Component("camera").
		Category(category).
		Context("cmd", cmd).
		Context("camera", c.cfg.Name).
		Build()
}
