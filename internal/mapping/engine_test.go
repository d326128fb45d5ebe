package mapping

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-sync/internal/models"
)

func transform(t *testing.T, rules []Rule, record map[string]interface{}) map[string]interface{} {
	t.Helper()
	out, err := NewEngine().Transform(record, &Document{Version: 1, Rules: rules})
	require.NoError(t, err)
	return out
}

func TestTransformPassthrough(t *testing.T) {
	out := transform(t,
		[]Rule{{Source: "label", Dest: "name", Kind: KindPassthrough}},
		map[string]interface{}{"label": "Blue Shirt"})

	assert.Equal(t, "Blue Shirt", out["name"])
}

func TestTransformDottedPathLookup(t *testing.T) {
	out := transform(t,
		[]Rule{{Source: "attributes.material", Dest: "material", Kind: KindPassthrough}},
		map[string]interface{}{
			"attributes": map[string]interface{}{"material": "cotton"},
		})

	assert.Equal(t, "cotton", out["material"])
}

func TestTransformFormat(t *testing.T) {
	record := map[string]interface{}{"label": "  Blue   Shirt! "}

	out := transform(t, []Rule{
		{Source: "label", Dest: "slug", Kind: KindFormat, Args: map[string]string{"format": "slug"}},
		{Source: "label", Dest: "lower", Kind: KindFormat, Args: map[string]string{"format": "lower"}},
		{Source: "label", Dest: "text", Kind: KindFormat, Args: map[string]string{"format": "text"}},
	}, record)

	assert.Equal(t, "blue-shirt", out["slug"])
	assert.Equal(t, "  blue   shirt! ", out["lower"])
	assert.Equal(t, "Blue Shirt!", out["text"])
}

func TestTransformTemplate(t *testing.T) {
	out := transform(t,
		[]Rule{{Source: "label", Dest: "title", Kind: KindTemplate,
			Args: map[string]string{"template": "{label} ({attributes.color})"}}},
		map[string]interface{}{
			"label":      "Shirt",
			"attributes": map[string]interface{}{"color": "Blue"},
		})

	assert.Equal(t, "Shirt (Blue)", out["title"])
}

func TestTransformTemplateUnknownPlaceholderExpandsEmpty(t *testing.T) {
	out := transform(t,
		[]Rule{{Source: "label", Dest: "title", Kind: KindTemplate,
			Args: map[string]string{"template": "{label}{nope}"}}},
		map[string]interface{}{"label": "Shirt"})

	assert.Equal(t, "Shirt", out["title"])
}

func TestTransformUnit(t *testing.T) {
	record := map[string]interface{}{"weight_g": 1500.0}

	out := transform(t, []Rule{
		{Source: "weight_g", Dest: "weight_kg", Kind: KindUnit, Args: map[string]string{"factor": "0.001"}},
		{Source: "weight_g", Dest: "weight_rounded", Kind: KindUnit, Args: map[string]string{"factor": "0.001", "round": "int"}},
	}, record)

	assert.Equal(t, 1.5, out["weight_kg"])
	assert.Equal(t, int64(2), out["weight_rounded"])
}

func TestTransformUnitOnNonNumericFails(t *testing.T) {
	_, err := NewEngine().Transform(
		map[string]interface{}{"weight": "heavy"},
		&Document{Version: 1, Rules: []Rule{
			{Source: "weight", Dest: "w", Kind: KindUnit, Args: map[string]string{"factor": "2"}},
		}})

	var mapErr *models.MappingError
	require.True(t, errors.As(err, &mapErr))
	assert.Equal(t, "w", mapErr.Field)
}

func TestTransformImage(t *testing.T) {
	out := transform(t,
		[]Rule{{Source: "thumbnail", Dest: "main-image", Kind: KindImage}},
		map[string]interface{}{
			"thumbnail": map[string]interface{}{"url": "https://cdn.example.com/a.jpg", "filename": "a.jpg"},
		})

	img, ok := out["main-image"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/a.jpg", img["url"])
	assert.Equal(t, "a.jpg", img["alt"])
}

func TestTransformImageDropsPlaceholders(t *testing.T) {
	out := transform(t,
		[]Rule{{Source: "thumbnail", Dest: "main-image", Kind: KindImage}},
		map[string]interface{}{"thumbnail": "https://cdn.example.com/placeholder.png"})

	_, present := out["main-image"]
	assert.False(t, present)
}

func TestTransformRequiredWithoutValueFails(t *testing.T) {
	_, err := NewEngine().Transform(
		map[string]interface{}{},
		&Document{Version: 1, Rules: []Rule{
			{Source: "label", Dest: "name", Kind: KindPassthrough, Required: true},
		}})

	var mapErr *models.MappingError
	require.True(t, errors.As(err, &mapErr))
	assert.Equal(t, "name", mapErr.Field)
}

func TestTransformDefaultFillsMissingValue(t *testing.T) {
	out := transform(t,
		[]Rule{{Source: "color", Dest: "color", Kind: KindPassthrough, Default: "unspecified", Required: true}},
		map[string]interface{}{})

	assert.Equal(t, "unspecified", out["color"])
}

func TestTransformOptionalWithoutValueOmitsField(t *testing.T) {
	out := transform(t,
		[]Rule{{Source: "color", Dest: "color", Kind: KindPassthrough}},
		map[string]interface{}{})

	_, present := out["color"]
	assert.False(t, present)
}

func TestTransformLastRuleWins(t *testing.T) {
	out := transform(t, []Rule{
		{Source: "a", Dest: "name", Kind: KindPassthrough},
		{Source: "b", Dest: "name", Kind: KindPassthrough},
	}, map[string]interface{}{"a": "first", "b": "second"})

	assert.Equal(t, "second", out["name"])
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "blue-shirt-xl", Slugify("Blue Shirt (XL)"))
	assert.Equal(t, "a-b", Slugify("  a   b  "))
	assert.Equal(t, "", Slugify("!!!"))
}
