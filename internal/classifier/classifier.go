// Package classifier assigns a best-effort TrafficClassification to a
// packet using DNS/TLS/QUIC signals plus a signature catalog, caching
// IP-to-classification results so that later IP-only packets on the
// same flow still classify correctly.
//
// Author: KleaSCM
// Email: KleaSCM@gmail.com
package classifier

import (
	"fmt"
	"os"
	"sync"

	"github.com/kleaSCM/tunnelscope/internal/heapindex"
	"github.com/kleaSCM/tunnelscope/internal/ipaddr"
	"github.com/kleaSCM/tunnelscope/internal/model"
	"github.com/kleaSCM/tunnelscope/internal/signatures"
)

// ASNLookup resolves the autonomous system for an IP address, e.g. via
// a GeoIP2 ASN database. It is optional; a nil ASNLookup simply skips
// enrichment.
type ASNLookup interface {
	LookupASN(ip ipaddr.IPAddress) (asn string, ok bool)
}

type cacheEntry struct {
	classification model.TrafficClassification
	deadline       float64
}

// Config controls Classifier behavior.
type Config struct {
	MaxEntries         int
	TTLCache           float64
	SignatureFilePath  string
	SignatureCheckInterval float64
}

// Classifier implements the traffic classification algorithm.
type Classifier struct {
	mu sync.Mutex

	maxEntries    int
	ttlCache      float64
	sigPath       string
	checkInterval float64

	lastCheck  float64
	lastModSec int64

	patterns   []domainPattern
	asnLookup  ASNLookup

	cache map[string]*cacheEntry
	index *heapindex.Index
}

// New creates a Classifier from an initial (already validated)
// signature catalog and configuration.
func New(initial []model.AppSignature, cfg Config, asnLookup ASNLookup) *Classifier {
	return &Classifier{
		maxEntries:    cfg.MaxEntries,
		ttlCache:      cfg.TTLCache,
		sigPath:       cfg.SignatureFilePath,
		checkInterval: cfg.SignatureCheckInterval,
		patterns:      compilePatterns(signatures.Normalize(initial)),
		asnLookup:     asnLookup,
		cache:         make(map[string]*cacheEntry),
		index:         heapindex.New(),
	}
}

// Classify applies the signal-priority algorithm described in the
// component design: TLS SNI, then DNS CNAME, then DNS query name, then
// IP cache. Returns ok=false only when every signal is absent.
func (c *Classifier) Classify(meta *model.PacketMetadata, outbound bool, timestamp float64) (model.TrafficClassification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeReload(timestamp)

	cacheIP := meta.DstAddress
	if !outbound {
		cacheIP = meta.SrcAddress
	}
	cacheKey := cacheIP.String()

	var hostname, reasonKind string
	switch {
	case meta.TLSServerName != "":
		hostname, reasonKind = meta.TLSServerName, "tls"
	case meta.DNSCname != "":
		hostname, reasonKind = meta.DNSCname, "dns"
	case meta.DNSQueryName != "":
		hostname, reasonKind = meta.DNSQueryName, "dns"
	}

	if hostname != "" {
		label, matched := matchDomain(c.patterns, hostname)
		result := model.TrafficClassification{Domain: hostname, Confidence: 0}
		result.Reasons = append(result.Reasons, fmt.Sprintf("%s=%s", reasonKind, hostname))
		if matched {
			result.Label = label
			result.Confidence = 1
			result.Reasons = append(result.Reasons, fmt.Sprintf("app=%s", label))
		}
		if cdn, asn, ok := lookupCDN(hostname); ok {
			result.CDN = cdn
			result.ASN = asn
		} else if c.asnLookup != nil {
			if asn, ok := c.asnLookup.LookupASN(cacheIP); ok {
				result.ASN = asn
			}
		}

		c.store(cacheKey, result, timestamp, meta.DNSAnswerAddresses)
		return result, true
	}

	if entry, ok := c.lookupCache(cacheKey, timestamp); ok {
		result := entry
		result.Reasons = append(append([]string{}, entry.Reasons...), fmt.Sprintf("ip_cache=%s", cacheKey))
		return result, true
	}

	return model.TrafficClassification{}, false
}

// store records a classification for the primary cache key and, when
// DNS answers are present, for each answer address too (so subsequent
// IP-only packets to any of those addresses classify).
func (c *Classifier) store(primaryKey string, result model.TrafficClassification, timestamp float64, answers []ipaddr.IPAddress) {
	deadline := timestamp + c.ttlCache
	keys := []string{primaryKey}
	for _, a := range answers {
		keys = append(keys, a.String())
	}
	for _, k := range keys {
		c.evictExpired(timestamp)
		c.compactIfBloated()
		if _, exists := c.cache[k]; !exists && len(c.cache) >= c.maxEntries {
			c.evictOldest()
		}
		c.cache[k] = &cacheEntry{classification: result, deadline: deadline}
		c.index.Touch(k, timestamp)
	}
}

func (c *Classifier) lookupCache(key string, now float64) (model.TrafficClassification, bool) {
	e, ok := c.cache[key]
	if !ok {
		return model.TrafficClassification{}, false
	}
	if now >= e.deadline {
		delete(c.cache, key)
		c.index.Remove(key)
		return model.TrafficClassification{}, false
	}
	c.index.Touch(key, now)
	return e.classification, true
}

func (c *Classifier) evictExpired(now float64) {
	for _, k := range c.index.EvictExpired(now, c.ttlCache) {
		delete(c.cache, k.(string))
	}
}

func (c *Classifier) compactIfBloated() {
	if c.index.HeapSize() > c.maxEntries*4 {
		c.index.Compact()
	}
}

func (c *Classifier) evictOldest() {
	if k, ok := c.index.PopOldest(); ok {
		delete(c.cache, k.(string))
	}
}

// maybeReload re-checks the signature file's mtime at most once per
// checkInterval of ingest time, reloading and re-normalizing the
// catalog if it changed. Invalid JSON leaves the existing catalog
// intact.
func (c *Classifier) maybeReload(now float64) {
	if c.sigPath == "" || c.checkInterval <= 0 {
		return
	}
	if now-c.lastCheck < c.checkInterval {
		return
	}
	c.lastCheck = now

	info, err := os.Stat(c.sigPath)
	if err != nil {
		return
	}
	modSec := info.ModTime().Unix()
	if modSec == c.lastModSec {
		return
	}

	loaded := signatures.Load(c.sigPath)
	if loaded == nil {
		return
	}
	if err := signatures.Validate(loaded); err != nil {
		return
	}
	c.lastModSec = modSec
	c.patterns = compilePatterns(signatures.Normalize(loaded))
}

// Len reports the number of live IP cache entries.
func (c *Classifier) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}
