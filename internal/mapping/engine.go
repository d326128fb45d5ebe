package mapping

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"catalog-sync/internal/models"
)

// Engine applies a mapping document to source records.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Transform produces a destination record from a source record under the
// document's rules. Rules run in order; a later rule writing the same
// destination field overwrites the earlier one. A required destination field
// with no source value and no default fails with MappingError, scoping the
// failure to the product being transformed.
func (e *Engine) Transform(record map[string]interface{}, doc *Document) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(doc.Rules))

	for _, rule := range doc.Rules {
		value, found := Lookup(record, rule.Source)
		if !found || value == nil {
			if rule.Default != nil {
				out[rule.Dest] = rule.Default
				continue
			}
			if rule.Required {
				return nil, &models.MappingError{Field: rule.Dest, Detail: "required field has no source value and no default"}
			}
			// Optional with nothing to write: omit.
			continue
		}

		transformed, err := e.apply(rule, value, record)
		if err != nil {
			return nil, err
		}
		if transformed == nil {
			if rule.Required {
				return nil, &models.MappingError{Field: rule.Dest, Detail: "transform produced no value for required field"}
			}
			continue
		}
		out[rule.Dest] = transformed
	}

	return out, nil
}

func (e *Engine) apply(rule Rule, value interface{}, record map[string]interface{}) (interface{}, error) {
	switch rule.Kind {
	case KindPassthrough:
		return value, nil
	case KindFormat:
		return formatValue(value, rule.Args["format"]), nil
	case KindTemplate:
		return expandTemplate(rule.Args["template"], record), nil
	case KindUnit:
		return unitConvert(rule, value)
	case KindImage:
		return imageValue(value), nil
	}
	return nil, &models.MappingError{Field: rule.Dest, Detail: "unknown transform kind " + strconv.Quote(rule.Kind)}
}

// Lookup reads a dotted path from a nested record. A single segment reads a
// top-level key; "attributes.color" descends one map level per segment.
func Lookup(record map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current interface{} = record
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func formatValue(value interface{}, format string) interface{} {
	s := stringify(value)
	switch format {
	case "lower":
		return strings.ToLower(s)
	case "upper":
		return strings.ToUpper(s)
	case "trim":
		return strings.TrimSpace(s)
	case "slug":
		return Slugify(s)
	case "text":
		return collapseWhitespace(s)
	default:
		return s
	}
}

var templatePattern = regexp.MustCompile(`\{([a-zA-Z0-9_.-]+)\}`)

// expandTemplate substitutes {path} placeholders with values from the source
// record; unknown placeholders expand to the empty string.
func expandTemplate(template string, record map[string]interface{}) string {
	return templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		path := match[1 : len(match)-1]
		if v, ok := Lookup(record, path); ok && v != nil {
			return stringify(v)
		}
		return ""
	})
}

func unitConvert(rule Rule, value interface{}) (interface{}, error) {
	factor, _ := strconv.ParseFloat(rule.Args["factor"], 64)
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, &models.MappingError{Field: rule.Dest, Detail: "unit transform on non-numeric value " + strconv.Quote(v)}
		}
		n = parsed
	default:
		return nil, &models.MappingError{Field: rule.Dest, Detail: fmt.Sprintf("unit transform on non-numeric type %T", value)}
	}
	result := n * factor
	if rule.Args["round"] == "int" {
		return int64(result + 0.5), nil
	}
	return result, nil
}

// imageValue normalizes an image field to {url, alt}. Placeholder assets are
// dropped rather than synced.
func imageValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		if v == "" || placeholderImage(v) {
			return nil
		}
		return map[string]interface{}{"url": strings.TrimSpace(v), "alt": "Product image"}
	case map[string]interface{}:
		url, _ := v["url"].(string)
		if url == "" || placeholderImage(url) {
			return nil
		}
		alt, _ := v["filename"].(string)
		if alt == "" {
			alt = "Product image"
		}
		return map[string]interface{}{"url": url, "alt": alt}
	case []interface{}:
		var urls []interface{}
		for _, item := range v {
			if img := imageValue(item); img != nil {
				urls = append(urls, img)
			}
		}
		if len(urls) == 0 {
			return nil
		}
		return urls
	}
	return nil
}

var placeholderIndicators = []string{"placeholder", "no-image", "/template", "default"}

func placeholderImage(url string) bool {
	lower := strings.ToLower(url)
	for _, indicator := range placeholderIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

var (
	slugInvalid  = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces   = regexp.MustCompile(`\s+`)
	slugHyphens  = regexp.MustCompile(`-+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Slugify produces a URL-friendly slug from a display name.
func Slugify(name string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(name), "")
	slug = slugSpaces.ReplaceAllString(slug, "-")
	slug = slugHyphens.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

func collapseWhitespace(s string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
