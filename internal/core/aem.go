package core

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

// AEMDetectionThreshold is the accumulated confidence at or above which a
// page is reported as served by Adobe Experience Manager.
const AEMDetectionThreshold = 0.30

// Detection is the outcome of a platform scan: the binary call, the
// clamped confidence score, and the evidence grouped by category. Matched
// categories only; an empty map means nothing AEM-shaped was found.
type Detection struct {
	Detected   bool
	Confidence float64
	Evidence   map[string][]string
}

// categoryResult ties one evidence category to its weight and matches.
// Categories contribute their weight at most once no matter how many
// matches they carry.
type categoryResult struct {
	category string
	weight   float64
	matches  []string
}

var (
	aemClassPattern    = regexp.MustCompile(`(?i)^(cq|aem)-[a-z-]+$`)
	aemDataAttrPattern = regexp.MustCompile(`^data-cq-[a-z-]+$`)
	wcmmodePattern     = regexp.MustCompile(`(?i)wcmmode`)

	clientlibJSPattern        = regexp.MustCompile(`(?i)/etc\.clientlibs/[^\s"'<>]+\.js`)
	legacyClientlibJSPattern  = regexp.MustCompile(`(?i)/etc/clientlibs/[^\s"'<>]+\.js`)
	uiFrameworkPattern        = regexp.MustCompile(`(?i)granite\.js|coral\.js|graniteui`)
	clientlibCSSPattern       = regexp.MustCompile(`(?i)/etc\.clientlibs/[^\s"'<>]+\.css`)
	legacyClientlibCSSPattern = regexp.MustCompile(`(?i)/etc/clientlibs/[^\s"'<>]+\.css`)

	libsPathPattern = regexp.MustCompile(`(?i)/libs/[^\s"'<>]+`)
	appsPathPattern = regexp.MustCompile(`(?i)/apps/[^\s"'<>]+`)

	htmlExtensionPattern = regexp.MustCompile(`\.html(\?|$)`)
	selectorURLPattern   = regexp.MustCompile(`\.[a-z]+\.[a-z]+\.html`)
)

// aemCommentMarkers are matched case-insensitively inside HTML comments.
var aemCommentMarkers = []string{
	"adobe experience manager",
	"day cq",
	"/apps/",
	"/libs/",
	"/content/",
}

// DetectAEM scores a fetched page for AEM signatures across nine evidence
// categories. Each category that matches adds its weight to the confidence
// once, clamped to [0, 1] after every addition. The scan is total: any
// byte sequence is acceptable input.
func DetectAEM(body []byte, headers http.Header, finalURL string) Detection {
	facts := utils.ExtractHTMLFacts(body)
	markup := string(body)

	categories := []categoryResult{
		{category: "html_classes", weight: 0.25, matches: classMatches(facts, markup)},
		{category: "data_attributes", weight: 0.30, matches: dataAttributeMatches(facts)},
		{category: "html_comments", weight: 0.20, matches: commentMatches(facts)},
		{category: "headers", weight: 0.30, matches: headerMatches(headers)},
		{category: "javascript_paths", weight: 0.35, matches: javascriptMatches(markup)},
		{category: "css_paths", weight: 0.30, matches: cssMatches(markup)},
		{category: "repository_paths", weight: 0.20, matches: repositoryMatches(markup)},
		{category: "url_patterns", weight: 0.15, matches: urlMatches(finalURL)},
		{category: "meta_tags", weight: 0.30, matches: metaMatches(facts)},
	}

	return scoreCategories(categories)
}

// scoreCategories folds tagged category results into the final outcome.
// Categories with no matches are dropped from the evidence map entirely.
func scoreCategories(categories []categoryResult) Detection {
	confidence := 0.0
	evidence := make(map[string][]string)
	for _, c := range categories {
		if len(c.matches) == 0 {
			continue
		}
		evidence[c.category] = c.matches
		confidence = clampUnit(confidence + c.weight)
	}
	return Detection{
		Detected:   confidence >= AEMDetectionThreshold,
		Confidence: confidence,
		Evidence:   evidence,
	}
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func classMatches(facts utils.HTMLFacts, markup string) []string {
	var matches []string
	for _, token := range facts.ClassTokens {
		if aemClassPattern.MatchString(token) {
			matches = append(matches, token)
		}
	}
	matches = dedupeInOrder(matches)
	if wcmmodePattern.MatchString(markup) {
		matches = append(matches, "wcmmode present")
	}
	return matches
}

func dataAttributeMatches(facts utils.HTMLFacts) []string {
	var matches []string
	for _, name := range facts.DataAttrNames {
		if aemDataAttrPattern.MatchString(name) {
			matches = append(matches, name)
		}
	}
	matches = dedupeInOrder(matches)
	if facts.HasDataPath {
		matches = append(matches, "data-path")
	}
	return matches
}

// commentMatches reports a single count line rather than the comment
// bodies; editorial comments can run to kilobytes.
func commentMatches(facts utils.HTMLFacts) []string {
	count := 0
	for _, comment := range facts.Comments {
		lower := strings.ToLower(comment)
		for _, marker := range aemCommentMarkers {
			if strings.Contains(lower, marker) {
				count++
				break
			}
		}
	}
	if count == 0 {
		return nil
	}
	return []string{fmt.Sprintf("Found %d AEM-related comments", count)}
}

func headerMatches(headers http.Header) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var matches []string
	for _, name := range names {
		lowerName := strings.ToLower(name)
		for _, value := range headers[name] {
			aemName := strings.Contains(lowerName, "x-aem") || strings.Contains(lowerName, "x-cq")
			aemValue := strings.Contains(strings.ToLower(value), "day cq")
			if aemName || aemValue {
				matches = append(matches, fmt.Sprintf("%s: %s", name, value))
			}
		}
	}
	return dedupeInOrder(matches)
}

func javascriptMatches(markup string) []string {
	matches := capMatches(findDistinct(clientlibJSPattern, markup), 3)
	matches = append(matches, capMatches(findDistinct(legacyClientlibJSPattern, markup), 3)...)
	if uiFrameworkPattern.MatchString(markup) {
		matches = append(matches, "AEM UI frameworks (granite.js/coral.js)")
	}
	return matches
}

func cssMatches(markup string) []string {
	matches := capMatches(findDistinct(clientlibCSSPattern, markup), 3)
	return append(matches, capMatches(findDistinct(legacyClientlibCSSPattern, markup), 3)...)
}

func repositoryMatches(markup string) []string {
	matches := capMatches(findDistinct(libsPathPattern, markup), 2)
	return append(matches, capMatches(findDistinct(appsPathPattern, markup), 2)...)
}

func urlMatches(finalURL string) []string {
	var matches []string
	if strings.Contains(finalURL, "/content/") {
		matches = append(matches, "/content/ in URL")
	}
	if htmlExtensionPattern.MatchString(finalURL) {
		matches = append(matches, ".html extension")
	}
	if selectorURLPattern.MatchString(finalURL) {
		matches = append(matches, "Selector pattern in URL")
	}
	return matches
}

func metaMatches(facts utils.HTMLFacts) []string {
	if facts.MetaGenerator == "" {
		return nil
	}
	lower := strings.ToLower(facts.MetaGenerator)
	if strings.Contains(lower, "aem") || strings.Contains(lower, "day cq") {
		return []string{"Generator: " + facts.MetaGenerator}
	}
	return nil
}

// findDistinct returns the pattern's matches in document order with
// duplicates removed, preserving original casing.
func findDistinct(pattern *regexp.Regexp, markup string) []string {
	return dedupeInOrder(pattern.FindAllString(markup, -1))
}

func capMatches(matches []string, max int) []string {
	if len(matches) > max {
		return matches[:max]
	}
	return matches
}

func dedupeInOrder(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
