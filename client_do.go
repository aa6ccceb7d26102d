package sessionkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/scstanton20/sessionkit/internal/transport"
)

// retryBodyLimit caps how much of a 401 body is buffered so the
// original error can be replayed after a failed refresh.
const retryBodyLimit = 1 << 20

// NewRequest builds a request against the configured backend with the
// client's standing headers applied. Relative paths are resolved
// against the base URL; body (when non-nil) is JSON-encoded and
// replayable.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	return c.api.NewRequest(ctx, method, path, body)
}

// Do sends req through the session-aware transport. A 401 response
// triggers exactly one coordinated refresh followed by one replay of
// the request; every other status passes through untouched. When the
// refresh fails, the original 401 response is returned with its body
// intact, never the refresh error.
//
// Requests marked with WithoutRetry, requests aimed at the login or
// refresh endpoints, and requests whose body cannot be rebuilt are
// never replayed.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	return c.do(ctx, req, false)
}

func (c *Client) do(ctx context.Context, req *http.Request, retried bool) (*http.Response, error) {
	resp, err := c.api.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		if resp.StatusCode < http.StatusBadRequest {
			c.touchActivity(ctx)
		}
		return resp, nil
	}

	if retried || retryDisabled(ctx) || !c.canReplay(req) {
		return resp, nil
	}

	// Buffer the unauthorized body: if the refresh cannot rescue this
	// request, the caller must see the original error, and the wire
	// body is the only copy of it.
	original, buf := resp, readBodyForReplay(resp)

	c.metricInc(MetricUnauthorizedRetry)
	c.emitAudit(ctx, auditEventUnauthorizedRetry, true, c.CurrentUser(), nil, func() map[string]string {
		return map[string]string{"method": req.Method, "path": req.URL.Path}
	})

	if rerr := c.handleRefreshOutcome(ctx, c.coord.Refresh(ctx)); rerr != nil {
		restoreBody(original, buf)
		return original, nil
	}

	replay, err := rebuildRequest(req)
	if err != nil {
		restoreBody(original, buf)
		return original, nil
	}
	return c.do(ctx, replay, true)
}

// canReplay reports whether req may be retried after a refresh. 401s
// from the auth endpoints themselves are terminal: a rejected login has
// no session to refresh, and a rejected refresh IS the refresh.
func (c *Client) canReplay(req *http.Request) bool {
	if req.URL != nil && (req.URL.Path == transport.PathRefresh || req.URL.Path == transport.PathLogin) {
		return false
	}
	// A consumed body without GetBody cannot be rebuilt.
	if req.Body != nil && req.GetBody == nil {
		return false
	}
	// Refreshing presumes a session to refresh; without one the 401
	// stands.
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusAuthenticated || c.status == StatusRefreshing
}

// rebuildRequest clones req with a fresh body for the replay.
func rebuildRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

// readBodyForReplay drains and closes a response body, returning the
// buffered bytes.
func readBodyForReplay(resp *http.Response) []byte {
	if resp.Body == nil {
		return nil
	}
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, retryBodyLimit))
	resp.Body.Close()
	resp.Body = nil
	return buf
}

// restoreBody reattaches buffered bytes so the caller can read the
// response normally.
func restoreBody(resp *http.Response, buf []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(buf))
	resp.ContentLength = int64(len(buf))
}

// ============================================================================
// JSON convenience surface
// ============================================================================

// DoJSON issues a JSON request and decodes a 2xx body into out (which
// may be nil to discard it). Non-2xx responses are classified into the
// package error taxonomy: ErrUnauthorized, *ValidationError,
// *PasswordChangeRequiredError, or *StatusError.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	req, err := c.NewRequest(ctx, method, path, in)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, req, false)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, retryBodyLimit))
		resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return transport.DecodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.DoJSON(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body and decodes the response into
// out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.DoJSON(ctx, http.MethodPost, path, in, out)
}

// Put issues a PUT with a JSON body and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.DoJSON(ctx, http.MethodPut, path, in, out)
}

// Delete issues a DELETE and decodes the JSON response into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.DoJSON(ctx, http.MethodDelete, path, nil, out)
}

// fetchProfile retrieves the profile through the retrying transport, so
// a stale cookie heals itself on the way.
func (c *Client) fetchProfile(ctx context.Context) (*User, error) {
	var body struct {
		User User `json:"user"`
	}
	if err := c.DoJSON(ctx, http.MethodGet, transport.PathProfile, nil, &body); err != nil {
		return nil, err
	}
	user := body.User
	return &user, nil
}

// DecodeError classifies a non-2xx backend response into the package
// error taxonomy. It reads and closes the body.
func DecodeError(resp *http.Response) error {
	return transport.DecodeError(resp)
}
