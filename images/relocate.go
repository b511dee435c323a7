// Package images re-hosts user supplied image links in owned storage.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/Espresso-Aficionados/sprobot/apperr"
	"github.com/Espresso-Aficionados/sprobot/config"
	"github.com/Espresso-Aficionados/sprobot/logging"
	"github.com/Espresso-Aficionados/sprobot/metrics"
	"github.com/Espresso-Aficionados/sprobot/storage"
)

const (
	userAgent    = "sprobot-image-fetcher/1.0"
	maxRedirects = 5
)

// Kind is the result class of a relocation.
type Kind int

const (
	// KindNone means there was nothing to relocate.
	KindNone Kind = iota
	KindAlreadyOwned
	KindRelocated
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindAlreadyOwned:
		return "already_owned"
	case KindRelocated:
		return "relocated"
	case KindRejected:
		return "rejected"
	default:
		return "none"
	}
}

// Outcome describes what happened to a candidate image URL. Rejections are
// not errors: Message is meant for the user and Reason for logs and tests.
type Outcome struct {
	Kind    Kind
	URL     string
	Message string
	Reason  apperr.Code
}

// Destination names the owner of the image.
type Destination struct {
	CommunityID string
	Template    string
	UserID      string
}

func (d Destination) validate() error {
	if d.CommunityID == "" || d.Template == "" || d.UserID == "" {
		return apperr.InvalidArgument("image destination is incomplete")
	}
	return nil
}

const savedSuffix = "The rest of your profile has been saved."

var (
	msgInvalidURL   = "The URL provided is not valid. Make sure it's a publicly accessible image URL and try again. " + savedSuffix
	msgFetchFailed  = "Unable to fetch from the URL provided, make sure it's an image and try again. " + savedSuffix
	msgUnrecognized = "Unable to determine what type of file you linked. " + savedSuffix
	msgUploadFailed = "Unable to save image. " + savedSuffix
)

func msgNonImage(mime string) string {
	return fmt.Sprintf("It looks like you uploaded a %s, but we can only use images. %s If this looked like a gif, discord probably used a mp4.", mime, savedSuffix)
}

func msgTooLarge(limit int64) string {
	return fmt.Sprintf("That image is larger than %s, please link a smaller one. %s", humanize.IBytes(uint64(limit)), savedSuffix)
}

// IPLookup resolves a host name to its addresses.
type IPLookup func(ctx context.Context, host string) ([]net.IP, error)

// Relocator fetches, sniffs and uploads candidate images.
type Relocator struct {
	store        storage.ObjectStore
	client       *http.Client
	maxBytes     int64
	allowPrivate bool
	lookup       IPLookup
	log          *zap.Logger
}

// NewRelocator builds a Relocator that uploads into store.
func NewRelocator(store storage.ObjectStore, cfg config.ImageConfig, log *zap.Logger) *Relocator {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Relocator{
		store:        store,
		maxBytes:     cfg.MaxBytes,
		allowPrivate: cfg.AllowPrivate,
		lookup: func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip", host)
		},
		log: log,
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.AllowPrivate {
		// The address actually dialled is checked, not only what the
		// resolver said during validation.
		dialer.Control = checkDialAddress
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext
	r.client = &http.Client{
		Timeout:       cfg.FetchTimeout,
		Transport:     transport,
		CheckRedirect: r.checkRedirect,
	}
	return r
}

// WithLookup replaces the resolver used for the private address check.
func (r *Relocator) WithLookup(lookup IPLookup) *Relocator {
	r.lookup = lookup
	return r
}

// Relocate moves sourceURL into owned storage when needed. The returned
// error is only set for an incomplete destination; every fetch, sniff or
// upload problem is reported as a KindRejected outcome.
func (r *Relocator) Relocate(ctx context.Context, sourceURL string, dest Destination) (Outcome, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return Outcome{Kind: KindNone}, nil
	}
	if err := dest.validate(); err != nil {
		return Outcome{}, err
	}

	if r.store.Owns(sourceURL) {
		return r.finish(Outcome{Kind: KindAlreadyOwned, URL: sourceURL}), nil
	}

	log := r.log.With(logging.ProfileFields(dest.Template, dest.CommunityID, dest.UserID)...).
		With(zap.String("source_url", sourceURL))

	if err := r.validateURL(ctx, sourceURL); err != nil {
		log.Info("Image URL rejected", zap.Error(err))
		return r.reject(apperr.CodeInvalidURL, msgInvalidURL), nil
	}

	scratch, err := os.CreateTemp("", "sprobot-image-*")
	if err != nil {
		log.Error("Unable to create scratch file", zap.Error(err))
		return r.reject(apperr.CodeFetchFailure, msgFetchFailed), nil
	}
	defer func() {
		scratch.Close()
		os.Remove(scratch.Name())
	}()

	size, err := r.fetch(ctx, sourceURL, scratch)
	switch {
	case errors.Is(err, errBlockedAddress):
		log.Info("Image fetch reached a blocked address", zap.Error(err))
		return r.reject(apperr.CodeInvalidURL, msgInvalidURL), nil
	case errors.Is(err, errTooLarge):
		log.Info("Image exceeds size limit", zap.Int64("limit", r.maxBytes))
		return r.reject(apperr.CodeTooLarge, msgTooLarge(r.maxBytes)), nil
	case err != nil:
		log.Info("Unable to fetch image", zap.Error(err))
		return r.reject(apperr.CodeFetchFailure, msgFetchFailed), nil
	case size == 0:
		return r.reject(apperr.CodeUnrecognizedContent, msgUnrecognized), nil
	}

	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		log.Error("Unable to rewind scratch file", zap.Error(err))
		return r.reject(apperr.CodeFetchFailure, msgFetchFailed), nil
	}
	detected, err := mimetype.DetectReader(scratch)
	if err != nil {
		log.Info("Unable to sniff image", zap.Error(err))
		return r.reject(apperr.CodeUnrecognizedContent, msgUnrecognized), nil
	}

	mime, _, _ := strings.Cut(detected.String(), ";")
	mime = strings.TrimSpace(mime)
	if detected.Is("application/octet-stream") {
		return r.reject(apperr.CodeUnrecognizedContent, msgUnrecognized), nil
	}
	// SVG can carry script and would be served from the bucket's origin.
	if !strings.HasPrefix(mime, "image/") || mime == "image/svg+xml" {
		log.Info("Linked file is not an image", zap.String("mime", mime))
		return r.reject(apperr.CodeNonImageContent, msgNonImage(mime)), nil
	}

	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		log.Error("Unable to rewind scratch file", zap.Error(err))
		return r.reject(apperr.CodeFetchFailure, msgFetchFailed), nil
	}

	key := storage.ImageKey(dest.CommunityID, dest.Template, dest.UserID, detected.Extension())
	err = r.store.Put(ctx, key, scratch, size, storage.PutOptions{
		ContentType:  mime,
		CacheControl: "public, max-age=604800",
		PublicRead:   true,
	})
	if err != nil {
		log.Error("Unable to upload image", zap.String("key", key), zap.Error(err))
		return r.reject(apperr.CodeStorageFailure, msgUploadFailed), nil
	}

	finalURL := r.store.PublicURL(key)
	log.Info("Profile image saved", zap.String("s3_url", finalURL), zap.String("mime", mime), zap.Int64("bytes", size))
	return r.finish(Outcome{Kind: KindRelocated, URL: finalURL}), nil
}

func (r *Relocator) reject(reason apperr.Code, message string) Outcome {
	return r.finish(Outcome{Kind: KindRejected, Reason: reason, Message: message})
}

func (r *Relocator) finish(outcome Outcome) Outcome {
	label := outcome.Kind.String()
	if outcome.Kind == KindRejected {
		label = string(outcome.Reason)
	}
	metrics.ImageRelocations.WithLabelValues(label).Inc()
	return outcome
}

var (
	errTooLarge       = errors.New("images: body exceeds size limit")
	errBlockedAddress = errors.New("images: blocked address")
)

// checkRedirect applies the URL rules to every hop.
func (r *Relocator) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("images: stopped after %d redirects", len(via))
	}
	if err := r.validateURL(req.Context(), req.URL.String()); err != nil {
		return fmt.Errorf("%w: redirect to %s: %v", errBlockedAddress, req.URL.Redacted(), err)
	}
	return nil
}

func checkDialAddress(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", errBlockedAddress, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || blockedIP(ip) {
		return fmt.Errorf("%w: %s", errBlockedAddress, host)
	}
	return nil
}

func (r *Relocator) fetch(ctx context.Context, sourceURL string, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("images: GET %s: status %d", sourceURL, resp.StatusCode)
	}
	if resp.ContentLength > r.maxBytes {
		return 0, errTooLarge
	}

	written, err := io.Copy(dst, io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return 0, err
	}
	if written > r.maxBytes {
		return 0, errTooLarge
	}
	r.log.Debug("Fetched candidate image", zap.Int64("bytes", written), zap.Duration("elapsed", time.Since(start)))
	return written, nil
}

// validateURL allows only http(s) URLs whose host does not resolve into
// loopback, private or link-local ranges.
func (r *Relocator) validateURL(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return errors.New("URL has no host")
	}
	if r.allowPrivate {
		return nil
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		ips, err = r.lookup(ctx, host)
		if err != nil {
			return fmt.Errorf("DNS lookup failed for %q: %w", host, err)
		}
	}
	for _, ip := range ips {
		if blockedIP(ip) {
			return fmt.Errorf("%q resolves to a blocked address", host)
		}
	}
	return nil
}

func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast()
}
