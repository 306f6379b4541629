package galaxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/me/galaxyprobe/internal/logging"
)

// Service is the subset of the Galaxy API the prober consumes.
type Service interface {
	// Build evaluates inputs against the tool's form and returns the
	// resulting nested input state.
	Build(ctx context.Context, toolID, historyID string, inputs map[string]any) (map[string]any, error)
	ShowTool(ctx context.Context, toolID string) (*Tool, error)
	// Submit creates one job and returns its id without waiting.
	Submit(ctx context.Context, toolID, historyID string, inputs map[string]any) (string, error)
	JobState(ctx context.Context, jobID string) (JobState, error)
	ListArtifacts(ctx context.Context, historyID string) ([]Artifact, error)
	DatasetState(ctx context.Context, datasetID string) (JobState, error)
	Provenance(ctx context.Context, historyID, datasetID string) (*Provenance, error)
}

// inputFormat selects nested input states on submission.
const inputFormat = "21.01"

// Client implements Service over HTTP.
type Client struct {
	httpClient *http.Client
	config     Config
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a client for the configured server.
func NewClient(config Config, logger *slog.Logger) *Client {
	logger = logging.OrDiscard(logger)
	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		limiter:    limiter,
		logger:     logger.With("component", "galaxy-client"),
	}
}

// URL returns the configured server root.
func (c *Client) URL() string {
	return c.config.URL
}

// endpoint builds an API URL. Tool ids contain slashes, so each segment is
// escaped on its own.
func (c *Client) endpoint(path string, query url.Values) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	u := strings.TrimRight(c.config.URL, "/") + "/api/" + strings.Join(segs, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do performs one request and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), rdr)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("x-api-key", c.config.APIKey)
	}

	c.logger.Debug("request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	raw, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshaling response: %w", err)
	}
	return nil
}

// Version returns the server version as major.minor.
func (c *Client) Version(ctx context.Context) (string, error) {
	var v struct {
		Major string `json:"version_major"`
		Minor string `json:"version_minor"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "version", nil, nil, &v); err != nil {
		return "", wrap(OpVersion, err)
	}
	if v.Minor != "" {
		return v.Major + "." + v.Minor, nil
	}
	return v.Major, nil
}

// WaitReachable polls the version endpoint until the server answers, waiting
// ReachableInterval after each transport failure. Other errors are returned.
func (c *Client) WaitReachable(ctx context.Context) (string, error) {
	interval := c.config.ReachableInterval
	if interval <= 0 {
		interval = DefaultReachableInterval
	}
	for {
		v, err := c.Version(ctx)
		if err == nil {
			return v, nil
		}
		if !IsTransport(err) {
			return "", err
		}
		c.logger.Warn("server unreachable, retrying", "url", c.config.URL, "error", err, "delay", interval)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Build calls the tool build endpoint and returns its state_inputs. An
// internal server error is reported as ErrBuildFailure.
func (c *Client) Build(ctx context.Context, toolID, historyID string, inputs map[string]any) (map[string]any, error) {
	if inputs == nil {
		inputs = map[string]any{}
	}
	body := map[string]any{"history_id": historyID, "inputs": inputs}
	var out struct {
		StateInputs map[string]any `json:"state_inputs"`
	}
	err := c.doJSON(ctx, http.MethodPost, "tools/"+toolID+"/build", nil, body, &out)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusInternalServerError {
			err = fmt.Errorf("%w: %w", ErrBuildFailure, httpErr)
		}
		return nil, wrap(OpBuild, err)
	}
	if out.StateInputs == nil {
		out.StateInputs = map[string]any{}
	}
	return out.StateInputs, nil
}

// ShowTool fetches the tool description with io and link details.
func (c *Client) ShowTool(ctx context.Context, toolID string) (*Tool, error) {
	q := url.Values{"io_details": {"true"}, "link_details": {"true"}}
	raw, err := c.do(ctx, http.MethodGet, "tools/"+toolID, q, nil)
	if err != nil {
		return nil, wrap(OpShowTool, err)
	}
	var tool Tool
	if err := json.Unmarshal(raw, &tool); err != nil {
		return nil, wrap(OpShowTool, fmt.Errorf("unmarshaling response: %w", err))
	}
	if err := json.Unmarshal(raw, &tool.Doc); err != nil {
		return nil, wrap(OpShowTool, fmt.Errorf("unmarshaling response: %w", err))
	}
	return &tool, nil
}

// ToolSource returns the tool's XML wrapper. Servers answer with plain text,
// a JSON string or a JSON list of lines.
func (c *Client) ToolSource(ctx context.Context, toolID string) (string, error) {
	raw, err := c.do(ctx, http.MethodGet, "tools/"+toolID+"/raw_tool_source", nil, nil)
	if err != nil {
		return "", wrap(OpToolSource, err)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 {
		switch trimmed[0] {
		case '"':
			var s string
			if json.Unmarshal(trimmed, &s) == nil {
				return s, nil
			}
		case '[':
			var lines []string
			if json.Unmarshal(trimmed, &lines) == nil {
				return strings.Join(lines, "\n"), nil
			}
		}
	}
	return string(raw), nil
}

// Submit runs the tool once with a nested input state.
func (c *Client) Submit(ctx context.Context, toolID, historyID string, inputs map[string]any) (string, error) {
	body := map[string]any{
		"tool_id":      toolID,
		"history_id":   historyID,
		"inputs":       inputs,
		"input_format": inputFormat,
	}
	var out struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "tools", nil, body, &out); err != nil {
		return "", wrap(OpSubmit, err)
	}
	if len(out.Jobs) == 0 || out.Jobs[0].ID == "" {
		return "", wrap(OpSubmit, ErrNoJob)
	}
	return out.Jobs[0].ID, nil
}

// JobState returns the job's current state.
func (c *Client) JobState(ctx context.Context, jobID string) (JobState, error) {
	var job Job
	if err := c.doJSON(ctx, http.MethodGet, "jobs/"+jobID, nil, nil, &job); err != nil {
		return "", wrap(OpJobState, err)
	}
	return job.State, nil
}

// ListArtifacts returns the visible, non-deleted contents of a history.
func (c *Client) ListArtifacts(ctx context.Context, historyID string) ([]Artifact, error) {
	q := url.Values{"deleted": {"false"}, "visible": {"true"}}
	var out []Artifact
	if err := c.doJSON(ctx, http.MethodGet, "histories/"+historyID+"/contents", q, nil, &out); err != nil {
		return nil, wrap(OpListArtifacts, err)
	}
	return out, nil
}

// DatasetState returns a dataset's current state.
func (c *Client) DatasetState(ctx context.Context, datasetID string) (JobState, error) {
	var ds struct {
		State JobState `json:"state"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "datasets/"+datasetID, nil, nil, &ds); err != nil {
		return "", wrap(OpDatasetState, err)
	}
	return ds.State, nil
}

// Provenance returns the producing tool and its normalized parameters.
func (c *Client) Provenance(ctx context.Context, historyID, datasetID string) (*Provenance, error) {
	var p Provenance
	path := "histories/" + historyID + "/contents/" + datasetID + "/provenance"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &p); err != nil {
		return nil, wrap(OpProvenance, err)
	}
	p.Parameters = NormalizeParameters(p.Parameters)
	return &p, nil
}

// FindHistory returns the most recently updated history with the given name,
// or nil when there is none.
func (c *Client) FindHistory(ctx context.Context, name string) (*History, error) {
	var out []History
	q := url.Values{"name": {name}, "deleted": {"false"}}
	if err := c.doJSON(ctx, http.MethodGet, "histories", q, nil, &out); err != nil {
		return nil, wrap(OpHistories, err)
	}
	for i := range out {
		if out[i].Name == name {
			return &out[i], nil
		}
	}
	return nil, nil
}

// CreateHistory creates an empty history.
func (c *Client) CreateHistory(ctx context.Context, name string) (*History, error) {
	var h History
	if err := c.doJSON(ctx, http.MethodPost, "histories", nil, map[string]any{"name": name}, &h); err != nil {
		return nil, wrap(OpHistories, err)
	}
	return &h, nil
}

// ResolveHistory finds a history by name and creates it when missing.
func (c *Client) ResolveHistory(ctx context.Context, name string) (*History, error) {
	h, err := c.FindHistory(ctx, name)
	if err != nil {
		return nil, err
	}
	if h != nil {
		return h, nil
	}
	c.logger.Info("creating history", "name", name)
	return c.CreateHistory(ctx, name)
}
