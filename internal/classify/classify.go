// Package classify maps finalized object paths onto the business entities
// that own them. Classification is pure: it never touches storage and
// always returns.
package classify

import (
	"path"
	"regexp"
	"strings"
)

// Category identifies which business entity a source video belongs to.
type Category string

const (
	CategoryBackground Category = "background"
	CategoryProduct    Category = "product"
	CategorySection    Category = "section"
	CategoryAboutPage  Category = "aboutPage"
	// CategoryUnrecognized covers objects accepted via the metadata
	// opt-in flag whose path matches none of the structural patterns.
	// Such jobs are transcoded and published but update no record.
	CategoryUnrecognized Category = "unrecognized"
)

const (
	// OutputSegment is the reserved directory name for published
	// renditions. Input paths containing it are never reprocessed.
	OutputSegment = "hls"

	// Opt-in custom metadata: transcode=hls forces processing of a
	// video whose path matches no structural pattern.
	optInKey   = "transcode"
	optInValue = "hls"
)

// Result carries the category plus the identifiers extracted from the
// path. EntityID is set only for product and section videos.
type Result struct {
	Category Category
	SiteKey  string
	EntityID string

	// sourceDir is the directory of the triggering object, used to
	// derive a destination prefix for unrecognized opt-in sources.
	sourceDir string
}

var (
	reBackground = regexp.MustCompile(`^videos/public/([^/]+)/homeBackground\.(?i:mp4|mov)$`)
	reProduct    = regexp.MustCompile(`^products/public/([^/]+)/([^/]+)\.(?i:mp4|mov)$`)
	reSection    = regexp.MustCompile(`^videos/public/([^/]+)/sections/([^/]+)\.(?i:mp4|mov)$`)
	reAboutPage  = regexp.MustCompile(`^sitePages/([^/]+)/about/[^/]+\.(?i:mp4|mov)$`)
)

// Classify evaluates the filter and pattern rules in order and reports
// whether the object is a transcode source. ok=false means the object is
// out of scope; that is a silent skip, never an error.
func Classify(objectPath, contentType string, metadata map[string]string) (Result, bool) {
	if !strings.HasPrefix(contentType, "video/") {
		return Result{}, false
	}
	switch strings.ToLower(path.Ext(objectPath)) {
	case ".mp4", ".mov":
	default:
		return Result{}, false
	}
	// Anti-retrigger guard: published output lives under an "hls" path
	// segment and must never be fed back through the pipeline.
	for _, seg := range strings.Split(objectPath, "/") {
		if seg == OutputSegment {
			return Result{}, false
		}
	}

	if m := reBackground.FindStringSubmatch(objectPath); m != nil {
		return Result{Category: CategoryBackground, SiteKey: m[1]}, true
	}
	if m := reProduct.FindStringSubmatch(objectPath); m != nil {
		return Result{Category: CategoryProduct, SiteKey: m[1], EntityID: m[2]}, true
	}
	if m := reSection.FindStringSubmatch(objectPath); m != nil {
		return Result{Category: CategorySection, SiteKey: m[1], EntityID: m[2]}, true
	}
	if m := reAboutPage.FindStringSubmatch(objectPath); m != nil {
		return Result{Category: CategoryAboutPage, SiteKey: m[1]}, true
	}
	if metadata[optInKey] == optInValue {
		return Result{Category: CategoryUnrecognized, sourceDir: path.Dir(objectPath)}, true
	}
	return Result{}, false
}

// DestinationPrefix returns the object-storage prefix under which this
// job's renditions, playlists and poster are published.
func (r Result) DestinationPrefix() string {
	switch r.Category {
	case CategoryBackground:
		return "videos/public/" + r.SiteKey + "/" + OutputSegment
	case CategoryProduct:
		return "products/public/" + r.SiteKey + "/" + OutputSegment + "/" + r.EntityID
	case CategorySection:
		return "videos/public/" + r.SiteKey + "/sections/" + OutputSegment + "/" + r.EntityID
	case CategoryAboutPage:
		return "sitePages/" + r.SiteKey + "/about/" + OutputSegment
	default:
		// Opt-in sources publish next to wherever they were uploaded.
		return path.Join(r.sourceDir, OutputSegment)
	}
}
