// client.go contains the http plumbing for talking to the portal, what the pages
// mean is handled by extract.go and session.go.

package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"mmls-attendance/internal/assert"
	"mmls-attendance/internal/attendance"
	"mmls-attendance/internal/telemetry"
	libtelemetry "mmls-attendance/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const (
	report_client_send  = "client.send"
	report_client_fetch = "client.fetch"
)

const (
	DefaultBaseURL  = "https://mmls.mmu.edu.my"
	DefaultTimeout  = 15 * time.Second
	DefaultAttempts = 3
	DefaultBackoff  = 3 * time.Second
)

// Paths are the portal endpoints, the %d verbs are filled in order.
type Paths struct {
	Login           string
	CheckLogin      string
	Logout          string
	Attendance      string // timetable id
	StudentList     string // subject id, coordinator id
	AttendanceLogin string
}

var DefaultPaths = Paths{
	Login:           "/",
	CheckLogin:      "/checklogin",
	Logout:          "/logout",
	Attendance:      "/attendance:0:0:%d",
	StudentList:     "/studentlist:%d:%d:0",
	AttendanceLogin: "/attendancelogin",
}

type Options struct {
	BaseURL string
	Paths   Paths
	// MaxConnections caps the open connections to the portal.
	MaxConnections int
	// Timeout applies to every attempt separately.
	Timeout time.Duration
	// Attempts is the total amount of tries of a request that timed out.
	Attempts int
	// Backoff is the wait between attempts, negative for none.
	Backoff          time.Duration
	CloudflareBypass bool
	// TracerName enables otel spans for every request when non-empty.
	TracerName string
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Paths == (Paths{}) {
		o.Paths = DefaultPaths
	}
	if o.MaxConnections <= 0 {
		o.MaxConnections = attendance.DefaultMaxConnections
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	} else if o.Backoff == 0 {
		o.Backoff = DefaultBackoff
	}
	return o
}

// Client is a session with the portal, cookies persist between requests.
type Client struct {
	BaseURL *url.URL
	Http    *resty.Client
	Paths   Paths

	opts      Options
	transport http.RoundTripper
	tel       telemetry.API
}

func NewClient(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("portal", tel)
	opts = opts.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = opts.MaxConnections
	transport.MaxIdleConnsPerHost = opts.MaxConnections
	var rt http.RoundTripper = transport
	if opts.CloudflareBypass {
		rt = cloudflarebp.AddCloudFlareByPass(transport)
	}
	return newClient(opts, rt, tel)
}

// Fork creates a client with its own cookies that shares the connections of c.
func (c *Client) Fork() (*Client, error) {
	return newClient(c.opts, c.transport, c.tel)
}

func newClient(opts Options, transport http.RoundTripper, tel telemetry.API) (*Client, error) {
	parsedBaseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseURL)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.SetTransport(transport)

	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseURL.Hostname()))
	httpClient.SetTimeout(opts.Timeout)

	// only timeouts are retried, statuses are for the caller to interpret
	httpClient.SetRetryCount(opts.Attempts - 1)
	httpClient.SetRetryWaitTime(opts.Backoff)
	httpClient.SetRetryMaxWaitTime(opts.Backoff)
	httpClient.AddRetryCondition(func(res *resty.Response, err error) bool {
		if err == nil {
			return false
		}
		if res != nil && res.Request != nil && res.Request.Context().Err() != nil {
			return false
		}
		var netErr net.Error
		return errors.As(err, &netErr) && netErr.Timeout()
	})

	telemetry.InstrumentResty(httpClient, tel)
	if opts.TracerName != "" {
		libtelemetry.InstrumentResty(httpClient, opts.TracerName, false)
	}

	return &Client{
		BaseURL:   parsedBaseURL,
		Http:      httpClient,
		Paths:     opts.Paths,
		opts:      opts,
		transport: transport,
		tel:       tel,
	}, nil
}

type Request struct {
	Method  string
	Path    string
	Form    map[string]string
	Query   map[string]string
	Headers map[string]string
}

// Send performs req, any status is returned as a response. Errors are transport
// failures that survived every attempt.
func (c *Client) Send(ctx context.Context, req Request) (*resty.Response, error) {
	r := c.Http.R().SetContext(ctx)
	if req.Form != nil {
		r.SetFormData(req.Form)
	}
	if req.Query != nil {
		r.SetQueryParams(req.Query)
	}
	if req.Headers != nil {
		r.SetHeaders(req.Headers)
	}

	method := req.Method
	if method == "" {
		method = resty.MethodGet
	}
	res, err := r.Execute(method, req.Path)
	if err != nil {
		if ctx.Err() == nil {
			c.tel.ReportWarning(report_client_send, method, req.Path, err)
		}
		return nil, fmt.Errorf("%s %s: %w", method, req.Path, err)
	}
	return res, nil
}

// URL resolves path against the portal's base url.
func (c *Client) URL(path string) string {
	return c.BaseURL.JoinPath(path).String()
}

// Fetch requests the attendance page of a timetable id and extracts its form.
func (c *Client) Fetch(ctx context.Context, timetableID int) (*attendance.Form, error) {
	res, err := c.Send(ctx, Request{
		Path: fmt.Sprintf(c.Paths.Attendance, timetableID),
	})
	if err != nil {
		return nil, err
	}
	form, err := ExtractForm(res.StatusCode(), res.Body(), timetableID)
	if err != nil {
		var parseErr *attendance.ParseError
		if errors.As(err, &parseErr) {
			c.tel.ReportBroken(report_client_fetch, err)
		}
		return nil, err
	}
	return form, nil
}
