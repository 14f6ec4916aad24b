package registrar

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/blog"
	"github.com/barbapulpe/xmppapbridge/internal/model"
)

// detectApp implements spec.md §4.3.1: XMPP registrations are always
// labeled "XMPP"; Fediverse registrations are labeled after the
// remote instance's nodeinfo software name, falling back to
// "Fediverse" on any failure. The HTTP round trip is treated as
// optional per DESIGN NOTES §9 — nothing here is fatal.
func detectApp(side model.Side, user, userAgent string) string {
	if side == model.XMPP {
		return "XMPP"
	}
	domain := domainOf(user)
	name, err := fetchNodeinfoSoftwareName(domain, userAgent)
	if err != nil {
		blog.Debugf("registrar: nodeinfo lookup for %s failed: %v", domain, err)
		return "Fediverse"
	}
	return name
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

type wellKnownNodeinfo struct {
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

type nodeinfoDoc struct {
	Software struct {
		Name string `json:"name"`
	} `json:"software"`
}

func fetchNodeinfoSoftwareName(domain, userAgent string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wk wellKnownNodeinfo
	if err := getJSON(ctx, "https://"+domain+"/.well-known/nodeinfo", userAgent, &wk); err != nil {
		return "", err
	}
	if len(wk.Links) == 0 {
		return "", errNoNodeinfoLink
	}
	var doc nodeinfoDoc
	if err := getJSON(ctx, wk.Links[0].Href, userAgent, &doc); err != nil {
		return "", err
	}
	if doc.Software.Name == "" {
		return "", errNoSoftwareName
	}
	return strings.Title(doc.Software.Name), nil
}

func getJSON(ctx context.Context, url, userAgent string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errBadStatus
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func domainOf(addr string) string {
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return addr
}
