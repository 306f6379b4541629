package model

import (
	"net/url"
	"strconv"
	"time"
)

// Response is the envelope of every status API reply.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Envelope status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Page sizes of the list endpoints. One tool's matrix can run to a few hundred
// jobs, so job listings take larger pages than run listings.
const (
	DefaultPageSize = 20
	MaxRunPageSize  = 100
	MaxJobPageSize  = 500
)

// Pagination describes one page of a run or job listing.
type Pagination struct {
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
}

// NewPagination describes the page opts selects out of total rows.
func NewPagination(total int, opts ListOptions) *Pagination {
	p := &Pagination{Total: total, Limit: opts.Limit, Offset: opts.Offset}
	if next := opts.Offset + opts.Limit; next < total {
		p.HasMore = true
		p.NextOffset = &next
	}
	return p
}

// ListOptions selects a page of runs or jobs. State holds a run state or a
// job outcome depending on the listing; ToolID only applies to jobs.
type ListOptions struct {
	Limit  int
	Offset int
	State  string
	ToolID string
}

// Bounded returns o with its page fitted to a listing whose largest page is
// maxLimit. Stores call it so direct callers get the same pages as the API.
func (o ListOptions) Bounded(maxLimit int) ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultPageSize
	}
	o.Limit = min(o.Limit, maxLimit)
	o.Offset = max(o.Offset, 0)
	return o
}

// ParseListOptions reads limit, offset, state and tool_id from a query
// string. A missing limit means DefaultPageSize and a larger one is capped at
// maxLimit. Numbers that do not parse, or are negative, come back as field
// errors.
func ParseListOptions(q url.Values, maxLimit int) (ListOptions, []FieldError) {
	opts := ListOptions{
		Limit:  DefaultPageSize,
		State:  q.Get("state"),
		ToolID: q.Get("tool_id"),
	}
	var errs []FieldError
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		switch {
		case err != nil || n < 0:
			errs = append(errs, FieldError{Field: "limit", Message: "must be a non-negative integer"})
		case n > 0:
			opts.Limit = min(n, maxLimit)
		}
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			errs = append(errs, FieldError{Field: "offset", Message: "must be a non-negative integer"})
		} else {
			opts.Offset = n
		}
	}
	return opts, errs
}
