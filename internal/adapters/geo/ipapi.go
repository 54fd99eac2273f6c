// Package geo resolves client addresses to a country for the call
// region check.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

var ErrLookupFailed = errors.New("geo lookup failed")

// IPAPI queries an ip-api.com compatible endpoint. Endpoint must contain a
// single %s for the address.
type IPAPI struct {
	Endpoint string
	Client   *http.Client
}

func NewIPAPI(endpoint string, timeout time.Duration) *IPAPI {
	return &IPAPI{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
	}
}

var _ core.GeoLocator = (*IPAPI)(nil)

type ipapiResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	CountryCode string  `json:"countryCode"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

func (g *IPAPI) Lookup(ctx context.Context, addr string) (domain.Geo, error) {
	host := hostOnly(addr)
	ip := net.ParseIP(host)
	if ip == nil {
		return domain.Geo{}, fmt.Errorf("%w: bad address %q", ErrLookupFailed, addr)
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
		return domain.Geo{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(g.Endpoint, ip.String()), nil)
	if err != nil {
		return domain.Geo{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return domain.Geo{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Geo{}, fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	}

	var body ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Geo{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if body.Status != "success" {
		return domain.Geo{}, fmt.Errorf("%w: %s", ErrLookupFailed, body.Message)
	}
	return domain.Geo{
		Region:    domain.Region(strings.ToUpper(body.CountryCode)),
		Latitude:  body.Lat,
		Longitude: body.Lon,
	}, nil
}

func hostOnly(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}

// Disabled always answers unknown.
type Disabled struct{}

func (Disabled) Lookup(context.Context, string) (domain.Geo, error) { return domain.Geo{}, nil }
