package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"go-procurement-agent/internal/agent"
	"go-procurement-agent/internal/dom"
	"go-procurement-agent/internal/models"
)

type Options struct {
	Headless          bool
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	// SettleDelay is how long to let client-side rendering finish after a
	// navigation or click.
	SettleDelay    time.Duration
	MaxHTMLChars   int
	ScreenshotJPEG int
}

func DefaultOptions() Options {
	return Options{
		Headless:          true,
		ViewportWidth:     1366,
		ViewportHeight:    900,
		NavigationTimeout: 60 * time.Second,
		SettleDelay:       3 * time.Second,
		MaxHTMLChars:      60000,
		ScreenshotJPEG:    60,
	}
}

type PlaywrightManager struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
	log     *zap.SugaredLogger
}

// NewPlaywright starts the driver and one shared Chromium. Each job gets
// its own context from Open.
func NewPlaywright(ctx context.Context, opts Options) (*PlaywrightManager, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch chromium: %w", err)
	}

	return &PlaywrightManager{
		pw:      pw,
		browser: b,
		opts:    opts,
		log:     zap.S().Named("browser"),
	}, nil
}

func (pm *PlaywrightManager) NewContext() (playwright.BrowserContext, error) {
	opts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: pm.opts.ViewportWidth, Height: pm.opts.ViewportHeight},
		Locale:   playwright.String("en-US"),
	}
	if pm.opts.UserAgent != "" {
		opts.UserAgent = playwright.String(pm.opts.UserAgent)
	}
	return pm.browser.NewContext(opts)
}

// Open gives job a fresh browser context and page. The caller must Close
// the returned session.
func (pm *PlaywrightManager) Open(ctx context.Context, job *models.ScrapingJob) (agent.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bctx, err := pm.NewContext()
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	pm.log.Infof("🌐 Session opened for job %s", job.ID)
	return &Session{
		bctx: bctx,
		page: page,
		opts: pm.opts,
		log:  pm.log.With("job_id", job.ID),
	}, nil
}

func (pm *PlaywrightManager) Close() error {
	var errs []string
	if pm.browser != nil {
		if err := pm.browser.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if pm.pw != nil {
		if err := pm.pw.Stop(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close playwright: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Session is one job's page. It implements agent.Browser.
type Session struct {
	bctx playwright.BrowserContext
	page playwright.Page
	opts Options
	log  *zap.SugaredLogger
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	strategy := WaitStrategy(url)
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: strategy,
		Timeout:   timeoutMs(ctx, s.opts.NavigationTimeout),
	})
	if err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	if strategy != playwright.WaitUntilStateNetworkidle {
		// best effort; busy portals never go idle
		if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateNetworkidle,
			Timeout: timeoutMs(ctx, s.opts.NavigationTimeout/2),
		}); err != nil {
			s.log.Debugf("networkidle not reached on %s: %v", url, err)
		}
	}
	return s.Wait(ctx, s.opts.SettleDelay)
}

func (s *Session) Click(ctx context.Context, selector string) error {
	err := s.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: timeoutMs(ctx, 10*time.Second),
	})
	if err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: timeoutMs(ctx, 15*time.Second),
	}); err != nil {
		s.log.Debugf("load state after click: %v", err)
	}
	return s.Wait(ctx, s.opts.SettleDelay)
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	err := s.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: timeoutMs(ctx, 10*time.Second),
	})
	if err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

// Scroll wheels the viewport, which also triggers lazy-loaded rows.
func (s *Session) Scroll(ctx context.Context, direction string, amount int) error {
	dy := float64(amount)
	if direction == "up" {
		dy = -dy
	}
	if err := s.page.Mouse().Wheel(0, dy); err != nil {
		return fmt.Errorf("scroll %s: %w", direction, err)
	}
	return s.Wait(ctx, time.Second)
}

func (s *Session) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Session) Snapshot(ctx context.Context) (*models.PageSnapshot, error) {
	shot, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Type:    playwright.ScreenshotTypeJpeg,
		Quality: playwright.Int(s.opts.ScreenshotJPEG),
		Timeout: timeoutMs(ctx, 15*time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	html, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("page content: %w", err)
	}
	title, err := s.page.Title()
	if err != nil {
		s.log.Debugf("page title: %v", err)
	}

	return &models.PageSnapshot{
		URL:          s.page.URL(),
		Title:        title,
		HTML:         dom.Prepare(html, s.opts.MaxHTMLChars),
		Screenshot:   shot,
		Verification: s.detectVerification(title),
	}, nil
}

func (s *Session) Content(ctx context.Context) (string, error) {
	return s.page.Content()
}

func (s *Session) Close() error {
	return s.bctx.Close()
}

// verificationChecks are the selectors of the verification walls the agent
// must stop at.
var verificationChecks = []struct {
	name     string
	selector string
}{
	{"Cloudflare", "div.cf-error-title, div#challenge-running, div.challenge-form"},
	{"reCAPTCHA", "iframe[src*='recaptcha'], div.g-recaptcha"},
	{"hCaptcha", "iframe[src*='hcaptcha'], div.h-captcha"},
	{"DataDome", "div#datadome, script[src*='datadome']"},
}

func (s *Session) detectVerification(title string) string {
	if name := VerificationFromTitle(title); name != "" {
		return name
	}
	for _, c := range verificationChecks {
		n, err := s.page.Locator(c.selector).Count()
		if err != nil {
			s.log.Debugf("verification check %s: %v", c.name, err)
			continue
		}
		if n > 0 {
			s.log.Warnf("🛡️ %s detected", c.name)
			return c.name
		}
	}
	return ""
}

// VerificationFromTitle recognizes interstitial pages by their title.
func VerificationFromTitle(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "just a moment"), strings.Contains(t, "attention required"):
		return "Cloudflare"
	case strings.Contains(t, "are you a robot"), strings.Contains(t, "captcha"):
		return "CAPTCHA"
	}
	return ""
}

// WaitStrategy picks the load state Goto waits for. Some portals render
// their listings only after every XHR settles.
func WaitStrategy(url string) *playwright.WaitUntilState {
	u := strings.ToLower(url)
	for pattern, strategy := range networkIdlePortals {
		if strings.Contains(u, pattern) {
			return strategy
		}
	}
	return playwright.WaitUntilStateDomcontentloaded
}

var networkIdlePortals = map[string]*playwright.WaitUntilState{
	"opengov": playwright.WaitUntilStateNetworkidle,
}

// timeoutMs bounds a playwright call by def and by the context deadline.
func timeoutMs(ctx context.Context, def time.Duration) *float64 {
	d := def
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return playwright.Float(float64(d.Milliseconds()))
}
