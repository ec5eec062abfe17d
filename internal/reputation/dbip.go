package reputation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// riskyPhrases mark an address page as describing a non-residential or
// abusive address.
var riskyPhrases = []string{
	"Hosting",
	"Wireless",
	"This IP address is used by a proxy",
	"This IP address is a known source of cyber attack",
}

// DBIP classifies addresses by scraping the public db-ip.com address page.
type DBIP struct {
	baseURL string
	client  *http.Client
}

// NewDBIP creates a DBIP classifier. baseURL is normally "https://db-ip.com".
func NewDBIP(baseURL string, timeout time.Duration) *DBIP {
	return &DBIP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *DBIP) IsRiskyIP(ctx context.Context, ip string) (bool, error) {
	u := fmt.Sprintf("%s/%s", d.baseURL, url.PathEscape(ip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := d.client.Do(req)
	if err != nil {
		return false, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return false, fmt.Errorf("%w: parsing page: %v", ErrLookupFailed, err)
	}

	return containsRiskyPhrase(doc.Text()), nil
}

func containsRiskyPhrase(text string) bool {
	for _, phrase := range riskyPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// classifyError maps transport-level errors to ErrLookupUnavailable, noting
// timeouts separately in the message.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: timed out: %v", ErrLookupUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timed out: %v", ErrLookupUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
}

var _ Classifier = (*DBIP)(nil)
