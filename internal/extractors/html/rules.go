package html

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SiteRules maps a host to the CSS selectors whose text makes up a page.
// Every selector must match; a page missing one is skipped.
type SiteRules map[string][]string

// DefaultSiteRules returns the built-in rules for known agricultural sites.
func DefaultSiteRules() SiteRules {
	return SiteRules{
		"fcri.com.vn":            {"div.content-right-sp", "div.content-main-sp"},
		"khuyennongvn.gov.vn":    {"h1.post-title", "div.postsummary", "div.noidung"},
		"nongnghiepmoitruong.vn": {"h1.main-title-super", "div.content"},
	}
}

// rulesFile is the YAML layout of a site rules file:
//
//	sites:
//	  example.com:
//	    - h1.title
//	    - div.article
type rulesFile struct {
	Sites map[string][]string `yaml:"sites"`
}

// LoadSiteRules reads a YAML rules file.
func LoadSiteRules(path string) (SiteRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site rules: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse site rules %s: %w", path, err)
	}

	rules := make(SiteRules, len(f.Sites))
	for host, selectors := range f.Sites {
		if len(selectors) == 0 {
			return nil, fmt.Errorf("site rules %s: host %q has no selectors", path, host)
		}
		rules[normaliseHost(host)] = selectors
	}
	return rules, nil
}

// Merge returns the union of r and other; other wins on conflicts.
func (r SiteRules) Merge(other SiteRules) SiteRules {
	out := make(SiteRules, len(r)+len(other))
	for host, selectors := range r {
		out[host] = selectors
	}
	for host, selectors := range other {
		out[normaliseHost(host)] = selectors
	}
	return out
}

// Lookup returns the selectors for a host, ignoring a leading "www.".
func (r SiteRules) Lookup(host string) ([]string, bool) {
	selectors, ok := r[normaliseHost(host)]
	return selectors, ok
}

func normaliseHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
