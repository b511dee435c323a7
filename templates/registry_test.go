package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prodGuild = "726985544038612993"

func TestDefaultsValidate(t *testing.T) {
	for _, env := range []string{"dev", "prod"} {
		t.Run(env, func(t *testing.T) {
			reg, err := NewRegistry(Defaults(env))
			require.NoError(t, err)
			assert.Len(t, reg.Communities(), 1)
		})
	}
	assert.Nil(t, Defaults("staging"))
}

func TestForCommunity(t *testing.T) {
	reg, err := Load("", "prod")
	require.NoError(t, err)

	tmpls := reg.ForCommunity(prodGuild)
	require.Len(t, tmpls, 2)
	assert.Equal(t, "Coffee Setup", tmpls[0].Name)
	assert.Equal(t, "Roasting Setup", tmpls[1].Name)

	assert.Empty(t, reg.ForCommunity("unknown"))
}

func TestByShortName(t *testing.T) {
	reg, err := Load("", "prod")
	require.NoError(t, err)

	tmpl, ok := reg.ByShortName(prodGuild, "roaster")
	require.True(t, ok)
	assert.Equal(t, "Roasting Setup", tmpl.Name)

	_, ok = reg.ByShortName(prodGuild, "missing")
	assert.False(t, ok)

	_, ok = reg.ByShortName("unknown", "profile")
	assert.False(t, ok)
}

func TestSearch(t *testing.T) {
	reg, err := Load("", "prod")
	require.NoError(t, err)

	t.Run("empty query lists all", func(t *testing.T) {
		assert.Len(t, reg.Search(prodGuild, " "), 2)
	})

	t.Run("fuzzy match", func(t *testing.T) {
		got := reg.Search(prodGuild, "roast")
		require.NotEmpty(t, got)
		assert.Equal(t, "roaster", got[0].ShortName)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, reg.Search(prodGuild, "zzzz"))
	})
}

func TestValidate(t *testing.T) {
	base := func() Template {
		return Template{
			Name:      "Coffee Setup",
			ShortName: "profile",
			Fields:    []Field{{Name: "Machine"}, {Name: "Grinder"}},
			Image:     &Field{Name: "Gear Picture"},
		}
	}

	cases := map[string]func(*Template){
		"missing name":       func(t *Template) { t.Name = "" },
		"missing short name": func(t *Template) { t.ShortName = "" },
		"slash in name":      func(t *Template) { t.Name = "a/b" },
		"duplicate field":    func(t *Template) { t.Fields = append(t.Fields, Field{Name: "Machine"}) },
		"image collision":    func(t *Template) { t.Fields = append(t.Fields, Field{Name: "Gear Picture"}) },
		"blank field":        func(t *Template) { t.Fields = append(t.Fields, Field{Name: " "}) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tmpl := base()
			mutate(&tmpl)
			assert.Error(t, tmpl.Validate())
		})
	}

	assert.NoError(t, base().Validate())
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(map[string][]Template{"1": {ProfileTemplate, ProfileTemplate}})
	assert.Error(t, err)

	renamed := RoasterTemplate
	renamed.ShortName = "profile"
	_, err = NewRegistry(map[string][]Template{"1": {ProfileTemplate, renamed}})
	assert.Error(t, err)
}

func TestImageFieldName(t *testing.T) {
	name, ok := ProfileTemplate.ImageFieldName()
	assert.True(t, ok)
	assert.Equal(t, "Gear Picture", name)

	_, ok = Template{Name: "x", ShortName: "x"}.ImageFieldName()
	assert.False(t, ok)

	assert.True(t, ProfileTemplate.HasField("Machine"))
	assert.True(t, ProfileTemplate.HasField("Gear Picture"))
	assert.False(t, ProfileTemplate.HasField("Website"))
}

const sampleYAML = `
templates:
  - name: Coffee Setup
    short_name: profile
    description: Edit or Create your profile
    fields:
      - name: Machine
        placeholder: A description of your machine(s).
        style: long
      - name: Location
        placeholder: Where are you located?
    image:
      name: Gear Picture
      placeholder: Link to an image
  - name: Tea Setup
    short_name: tea
    fields:
      - name: Kettle
environments:
  dev:
    "42": [profile, tea]
  prod:
    "7": [profile]
`

func TestParseYAML(t *testing.T) {
	reg, err := Parse([]byte(sampleYAML), "dev")
	require.NoError(t, err)

	tmpls := reg.ForCommunity("42")
	require.Len(t, tmpls, 2)
	assert.True(t, tmpls[0].Fields[0].Multiline())
	assert.False(t, tmpls[0].Fields[1].Multiline())

	tea, ok := reg.ByShortName("42", "tea")
	require.True(t, ok)
	_, hasImage := tea.ImageFieldName()
	assert.False(t, hasImage)
}

func TestParseYAMLErrors(t *testing.T) {
	_, err := Parse([]byte(sampleYAML), "staging")
	assert.Error(t, err)

	_, err = Parse([]byte("templates: []\nenvironments:\n  dev:\n    \"1\": [nope]\n"), "dev")
	assert.Error(t, err)

	_, err = Parse([]byte("templates: [\n"), "dev")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	reg, err := Load(path, "prod")
	require.NoError(t, err)
	assert.Len(t, reg.ForCommunity("7"), 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), "prod")
	assert.Error(t, err)
}
