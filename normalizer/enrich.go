package normalizer

import (
	"fmt"
	"net"
	"strings"

	"github.com/mssola/user_agent"
	"github.com/oschwald/geoip2-golang"

	"storepulse/api/models"
)

// DeviceFromUserAgent is the device_type fallback when the pixel did not send
// one.
func DeviceFromUserAgent(ua string) *string {
	if ua == "" {
		return nil
	}
	lower := strings.ToLower(ua)
	parsed := user_agent.New(ua)

	var d string
	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		d = models.DeviceTablet
	case strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"):
		d = models.DeviceTablet
	case parsed.Mobile():
		d = models.DeviceMobile
	default:
		d = models.DeviceDesktop
	}
	return &d
}

// IsBot reports crawler and monitoring traffic that should not reach the
// store.
func IsBot(ua string) bool {
	if ua == "" {
		return false
	}
	lower := strings.ToLower(ua)
	if strings.Contains(lower, "pingdom") || strings.Contains(lower, "lighthouse") {
		return true
	}
	return user_agent.New(ua).Bot()
}

// GeoIP looks locations up in a MaxMind City database.
type GeoIP struct {
	db *geoip2.Reader
}

// OpenGeoIP opens the database at path.
func OpenGeoIP(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database %s: %w", path, err)
	}
	return &GeoIP{db: db}, nil
}

func (g *GeoIP) Lookup(ip string) (*models.Geo, bool) {
	addr := net.ParseIP(ip)
	if addr == nil || addr.IsLoopback() || addr.IsPrivate() {
		return nil, false
	}
	rec, err := g.db.City(addr)
	if err != nil || rec.Country.IsoCode == "" {
		return nil, false
	}
	geo := &models.Geo{
		Country: rec.Country.IsoCode,
		City:    rec.City.Names["en"],
	}
	if len(rec.Subdivisions) > 0 {
		geo.Region = rec.Subdivisions[0].Names["en"]
	}
	return geo, true
}

func (g *GeoIP) Close() error {
	return g.db.Close()
}
