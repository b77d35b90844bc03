package classifier

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"github.com/kleaSCM/tunnelscope/internal/ipaddr"
)

// GeoASN resolves autonomous system numbers from a MaxMind GeoLite2
// ASN database, for hostname-based classifications (matched or not)
// whose hostname isn't already covered by the built-in CDN table. Optional: the classifier runs
// fine without one.
type GeoASN struct {
	mu sync.RWMutex
	db *geoip2.Reader
}

// OpenGeoASN opens a GeoLite2-ASN .mmdb file.
func OpenGeoASN(path string) (*GeoASN, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: opening ASN database: %w", err)
	}
	return &GeoASN{db: db}, nil
}

// LookupASN implements ASNLookup.
func (g *GeoASN) LookupASN(ip ipaddr.IPAddress) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.db == nil {
		return "", false
	}
	netIP := net.ParseIP(ip.String())
	if netIP == nil {
		return "", false
	}
	record, err := g.db.ASN(netIP)
	if err != nil || record.AutonomousSystemNumber == 0 {
		return "", false
	}
	return fmt.Sprintf("AS%d", record.AutonomousSystemNumber), true
}

// Close releases the underlying database handle.
func (g *GeoASN) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	return err
}
