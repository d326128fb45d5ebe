package mapping

import (
	"sort"
	"strings"
)

// image-field heuristics: name keywords and URL shapes the PIM is known to
// use for media.
var imageNameKeywords = []string{"image", "photo", "picture", "img", "gallery"}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"}

// Discover inspects a sample of source records and proposes image mapping
// rules for fields whose names or value shapes look like media. The result
// is advisory: it is returned to the operator, never applied silently.
func Discover(samples []map[string]interface{}) []Rule {
	seen := make(map[string]bool)
	var proposed []Rule

	for _, record := range samples {
		for _, path := range flattenPaths(record, "") {
			if seen[path.key] {
				continue
			}
			if !isImageField(path.key, path.value) {
				continue
			}
			seen[path.key] = true
			proposed = append(proposed, Rule{
				Source: path.key,
				Dest:   destForImageField(path.key),
				Kind:   KindImage,
			})
		}
	}

	sort.Slice(proposed, func(i, j int) bool { return proposed[i].Source < proposed[j].Source })
	return proposed
}

type flatField struct {
	key   string
	value interface{}
}

func flattenPaths(record map[string]interface{}, prefix string) []flatField {
	var fields []flatField
	for key, value := range record {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			// Nested objects with a url key are asset-shaped leaves, not
			// containers to descend into.
			if _, hasURL := nested["url"]; hasURL {
				fields = append(fields, flatField{key: full, value: value})
				continue
			}
			fields = append(fields, flattenPaths(nested, full)...)
			continue
		}
		fields = append(fields, flatField{key: full, value: value})
	}
	return fields
}

func isImageField(path string, value interface{}) bool {
	lower := strings.ToLower(path)
	nameMatches := false
	for _, keyword := range imageNameKeywords {
		if strings.Contains(lower, keyword) {
			nameMatches = true
			break
		}
	}

	switch v := value.(type) {
	case string:
		if isImageURL(v) {
			return true
		}
		// A keyword-named field holding some other URL is still worth
		// proposing; the operator decides.
		return nameMatches && strings.HasPrefix(v, "http") && !placeholderImage(v)
	case map[string]interface{}:
		url, _ := v["url"].(string)
		return isImageURL(url)
	case []interface{}:
		if len(v) == 0 {
			return false
		}
		first, ok := v[0].(string)
		return ok && isImageURL(first)
	}
	return false
}

func isImageURL(url string) bool {
	if url == "" || placeholderImage(url) {
		return false
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return false
	}
	lower := strings.ToLower(url)
	for _, ext := range imageExtensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

// destForImageField maps a discovered source field onto the destination's
// media slots: one main image, everything plural goes to the gallery.
func destForImageField(path string) string {
	lower := strings.ToLower(path)
	if strings.Contains(lower, "gallery") || strings.Contains(lower, "more") || strings.HasSuffix(lower, "s") {
		return "more-images"
	}
	return "main-image"
}
