// Package templates defines the profile form schemas served per community.
package templates

import (
	"errors"
	"fmt"
	"strings"
)

// TextStyle selects a single-line or multi-line input for a field.
type TextStyle int

const (
	TextStyleShort TextStyle = iota
	TextStyleLong
)

func (s TextStyle) MarshalText() ([]byte, error) {
	if s == TextStyleLong {
		return []byte("long"), nil
	}
	return []byte("short"), nil
}

func (s *TextStyle) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "short":
		*s = TextStyleShort
	case "long", "multiline", "paragraph":
		*s = TextStyleLong
	default:
		return fmt.Errorf("templates: unknown text style %q", text)
	}
	return nil
}

type Field struct {
	Name        string    `yaml:"name" json:"name"`
	Placeholder string    `yaml:"placeholder" json:"placeholder"`
	Style       TextStyle `yaml:"style" json:"style"`
}

// Multiline reports whether the field takes paragraph input.
func (f Field) Multiline() bool {
	return f.Style == TextStyleLong
}

// Template is an immutable form schema. Image is nil for templates without
// an image field.
type Template struct {
	Name        string  `yaml:"name" json:"name"`
	ShortName   string  `yaml:"short_name" json:"short_name"`
	Description string  `yaml:"description" json:"description"`
	Fields      []Field `yaml:"fields" json:"fields"`
	Image       *Field  `yaml:"image,omitempty" json:"image,omitempty"`
}

// ImageFieldName returns the image field name and whether the template has one.
func (t Template) ImageFieldName() (string, bool) {
	if t.Image == nil || t.Image.Name == "" {
		return "", false
	}
	return t.Image.Name, true
}

// HasField reports whether name is a text field or the image field.
func (t Template) HasField(name string) bool {
	if image, ok := t.ImageFieldName(); ok && image == name {
		return true
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Validate checks the schema invariants.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("templates: template name is required")
	}
	if strings.TrimSpace(t.ShortName) == "" {
		return fmt.Errorf("templates: %q: short name is required", t.Name)
	}
	if strings.ContainsAny(t.Name, "/") {
		return fmt.Errorf("templates: %q: name must not contain '/'", t.Name)
	}

	image, hasImage := t.ImageFieldName()
	seen := make(map[string]struct{}, len(t.Fields))
	for _, f := range t.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("templates: %q: field name is required", t.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("templates: %q: duplicate field %q", t.Name, f.Name)
		}
		if hasImage && f.Name == image {
			return fmt.Errorf("templates: %q: field %q collides with the image field", t.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

var ProfileTemplate = Template{
	Name:        "Coffee Setup",
	ShortName:   "profile",
	Description: "Edit or Create your profile",
	Fields: []Field{
		{"Machine", "A description of your machine(s).", TextStyleLong},
		{"Grinder", "A description of your grinder(s).", TextStyleLong},
		{"Favorite Beans", "What are your favorite beans / roasts?", TextStyleLong},
		{"Location", "Where are you located?", TextStyleShort},
	},
	Image: &Field{
		Name:        "Gear Picture",
		Placeholder: "Please put a link to an image of your machine here!",
		Style:       TextStyleShort,
	},
}

var RoasterTemplate = Template{
	Name:        "Roasting Setup",
	ShortName:   "roaster",
	Description: "Edit or Create your profile",
	Fields: []Field{
		{"Roasting Machine", "A description of your machine(s).", TextStyleLong},
		{"Favorite Greens", "What are your favorite greens to work with?", TextStyleLong},
		{"Website", "Link to your website.", TextStyleShort},
		{"Location", "Where are you located?", TextStyleShort},
	},
	Image: &Field{
		Name:        "Gear Picture",
		Placeholder: "Please put a link to an image of your machine here!",
		Style:       TextStyleShort,
	},
}

// Defaults returns the built-in community mapping for a deployment
// environment, or nil for an unknown one.
func Defaults(env string) map[string][]Template {
	switch env {
	case "dev":
		return map[string][]Template{
			"1013566342345019512": {ProfileTemplate, RoasterTemplate},
		}
	case "prod":
		return map[string][]Template{
			"726985544038612993": {ProfileTemplate, RoasterTemplate},
		}
	default:
		return nil
	}
}
