package browser

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"outweb/lib/restyutil"
	"outweb/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	useragent "github.com/EDDYCJY/fake-useragent"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

var tracer = telemetry.Tracer("outweb.lib.browser")

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Options struct {
	// BaseUrl is used to resolve relative targets and relative route patterns.
	BaseUrl string
	// Name scopes telemetry reports, usually the backend name.
	Name string

	// defaults to 30 seconds
	Timeout time.Duration
	// requests per second, 0 means 2, negative means unlimited
	RateLimit float64
	// negative disables retries, 0 means 2
	Retries int

	UserAgent        string
	RandomUserAgent  bool
	CloudflareBypass bool
	Headers          map[string]string
	// when set, redirects outside of these hosts are refused
	AllowedHosts []string

	Telemetry telemetry.API
	// when set, every http message is written to it
	Dump restyutil.Output
}

// Browser is an HTTP session bound to one site. It remembers its current
// location and dispatches every response to the page type of the first route
// matching the response url.
type Browser struct {
	BaseUrl *url.URL
	Http    *resty.Client

	tel    telemetry.API
	routes []route

	// held for the whole of a Location call so that navigations don't interleave
	navigation sync.Mutex
	state      sync.RWMutex
	location   *url.URL
	page       Page

	logged atomic.Bool
}

func New(opts Options) (*Browser, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !baseUrl.IsAbs() {
		return nil, fmt.Errorf("base url must be absolute: %q", opts.BaseUrl)
	}

	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}
	name := opts.Name
	if name == "" {
		name = baseUrl.Hostname()
	}
	tel = telemetry.NewScopedAPI(name, tel)

	client := resty.New()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	userAgent := opts.UserAgent
	if opts.RandomUserAgent {
		userAgent = useragent.Random()
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	client.SetHeader("user-agent", userAgent)
	client.SetHeaders(opts.Headers)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}
	client.SetTimeout(timeout)

	client.SetRedirectPolicy(redirectPolicy(opts.AllowedHosts))

	retries := opts.Retries
	if retries == 0 {
		retries = 2
	}
	if retries > 0 {
		client.SetRetryCount(retries).
			SetRetryWaitTime(time.Millisecond * 500).
			SetRetryMaxWaitTime(time.Second * 5).
			AddRetryCondition(func(res *resty.Response, err error) bool {
				if res == nil {
					return err != nil
				}
				return res.StatusCode() == 429 || res.StatusCode() >= 500
			})
	}

	limit := opts.RateLimit
	if limit == 0 {
		limit = 2
	}
	if limit > 0 {
		// max burst >= rate just means that no requests will be dropped
		rateLimiter := rate.NewLimiter(rate.Limit(limit), int(math.Max(1, math.Ceil(limit))))
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, tel, tracer)
	restyutil.DumpClient(client, name, opts.Dump)

	return &Browser{
		BaseUrl: baseUrl,
		Http:    client,
		tel:     tel,
	}, nil
}

const maxRedirects = 10

// redirectPolicy only counts hops and checks hosts. Headers are not copied,
// the jar supplies the cookies of every hop.
func redirectPolicy(allowedHosts []string) resty.RedirectPolicy {
	allowed := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		allowed[strings.ToLower(h)] = true
	}
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if len(allowed) > 0 && !allowed[strings.ToLower(req.URL.Hostname())] {
			return fmt.Errorf("redirect to %s is not allowed", req.URL.Hostname())
		}
		return nil
	})
}

// Telemetry returns the scoped telemetry API of this browser.
func (b *Browser) Telemetry() telemetry.API {
	return b.tel
}

// Abs resolves target against the base url.
func (b *Browser) Abs(target string) (*url.URL, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	return b.BaseUrl.ResolveReference(parsed), nil
}

// URL returns the current location, nil before the first Location.
func (b *Browser) URL() *url.URL {
	b.state.RLock()
	defer b.state.RUnlock()
	if b.location == nil {
		return nil
	}
	u := *b.location
	return &u
}

// Page returns the page built for the current location, nil if no route
// matched it.
func (b *Browser) Page() Page {
	b.state.RLock()
	defer b.state.RUnlock()
	return b.page
}

func (b *Browser) Logged() bool {
	return b.logged.Load()
}

func (b *Browser) SetLogged(logged bool) {
	b.logged.Store(logged)
}

// IsOnPage reports whether the current page is a P.
func IsOnPage[P any](b *Browser) bool {
	_, ok := b.Page().(P)
	return ok
}

// Location requests target, dispatches the response to a page and makes it
// the current location.
func (b *Browser) Location(ctx context.Context, target string, opts ...RequestOption) (*Response, error) {
	b.navigation.Lock()
	defer b.navigation.Unlock()

	res, err := b.do(ctx, target, opts)
	if err != nil {
		return nil, err
	}

	b.state.Lock()
	b.location = res.URL
	b.page = res.Page
	b.state.Unlock()

	if l, ok := res.Page.(LoginState); ok {
		b.SetLogged(l.Logged())
	}
	return res, nil
}

// Open is like Location but leaves the current location untouched.
func (b *Browser) Open(ctx context.Context, target string, opts ...RequestOption) (*Response, error) {
	return b.do(ctx, target, opts)
}

func (b *Browser) do(ctx context.Context, target string, opts []RequestOption) (*Response, error) {
	cfg := requestConfig{method: "GET"}
	for _, opt := range opts {
		opt(&cfg)
	}

	abs, err := b.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("parse target %q: %w", target, err)
	}

	req := b.Http.R().SetContext(ctx)
	for _, apply := range cfg.apply {
		apply(req)
	}

	res, err := req.Execute(cfg.method, abs.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, cfg.method, abs, err)
	}

	final := abs
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		final = res.RawResponse.Request.URL
	}

	if res.StatusCode() >= 400 && !cfg.allowed(res.StatusCode()) {
		return nil, &HTTPError{Status: res.StatusCode(), URL: final.String()}
	}

	out := &Response{Response: res, URL: final}
	page, err := b.dispatch(ctx, out)
	if err != nil {
		return nil, err
	}
	out.Page = page
	return out, nil
}

func (b *Browser) dispatch(ctx context.Context, res *Response) (Page, error) {
	full := res.URL.String()
	for _, r := range b.routes {
		if _, ok := r.match(full); !ok {
			continue
		}
		page, err := r.build(res)
		if err != nil {
			b.tel.ReportBroken("browser.dispatch", fmt.Errorf("build page: %w", err), full)
			return nil, fmt.Errorf("parse %s: %w", full, err)
		}
		if h, ok := page.(Here); ok && !h.IsHere() {
			continue
		}
		if l, ok := page.(Loader); ok {
			err = l.OnLoad(ctx)
			if err != nil {
				return nil, err
			}
		}
		return page, nil
	}
	b.tel.ReportDebug("browser.dispatch: no page", full)
	return nil, nil
}

type requestConfig struct {
	method        string
	allowedStatus []int
	apply         []func(req *resty.Request)
}

func (c requestConfig) allowed(status int) bool {
	for _, s := range c.allowedStatus {
		if s == status {
			return true
		}
	}
	return false
}

type RequestOption func(cfg *requestConfig)

func WithMethod(method string) RequestOption {
	return func(cfg *requestConfig) {
		cfg.method = strings.ToUpper(method)
	}
}

// WithForm sends data url-encoded. The method becomes POST.
func WithForm(data url.Values) RequestOption {
	return func(cfg *requestConfig) {
		cfg.method = "POST"
		cfg.apply = append(cfg.apply, func(req *resty.Request) {
			req.SetFormDataFromValues(data)
		})
	}
}

// WithJSON sends body encoded as json. The method becomes POST.
func WithJSON(body any) RequestOption {
	return func(cfg *requestConfig) {
		cfg.method = "POST"
		cfg.apply = append(cfg.apply, func(req *resty.Request) {
			req.SetHeader("content-type", "application/json")
			req.SetBody(body)
		})
	}
}

func WithQuery(params url.Values) RequestOption {
	return func(cfg *requestConfig) {
		cfg.apply = append(cfg.apply, func(req *resty.Request) {
			req.SetQueryParamsFromValues(params)
		})
	}
}

func WithHeader(key, value string) RequestOption {
	return func(cfg *requestConfig) {
		cfg.apply = append(cfg.apply, func(req *resty.Request) {
			req.SetHeader(key, value)
		})
	}
}

// WithAllowedStatus lets responses with the given error statuses through to
// page dispatch instead of failing with an HTTPError.
func WithAllowedStatus(status ...int) RequestOption {
	return func(cfg *requestConfig) {
		cfg.allowedStatus = append(cfg.allowedStatus, status...)
	}
}
