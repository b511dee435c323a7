package templates

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"
)

// Registry maps community ids to the templates enabled there. It is built
// once at startup and only read afterwards.
type Registry struct {
	byCommunity map[string][]Template
}

// NewRegistry validates the mapping and returns a Registry over a copy of it.
func NewRegistry(byCommunity map[string][]Template) (*Registry, error) {
	copied := make(map[string][]Template, len(byCommunity))
	for communityID, tmpls := range byCommunity {
		names := make(map[string]struct{}, len(tmpls))
		shortNames := make(map[string]struct{}, len(tmpls))
		for _, tmpl := range tmpls {
			if err := tmpl.Validate(); err != nil {
				return nil, err
			}
			if _, dup := names[tmpl.Name]; dup {
				return nil, fmt.Errorf("templates: community %s: duplicate template name %q", communityID, tmpl.Name)
			}
			if _, dup := shortNames[tmpl.ShortName]; dup {
				return nil, fmt.Errorf("templates: community %s: duplicate short name %q", communityID, tmpl.ShortName)
			}
			names[tmpl.Name] = struct{}{}
			shortNames[tmpl.ShortName] = struct{}{}
		}
		copied[communityID] = append([]Template(nil), tmpls...)
	}
	return &Registry{byCommunity: copied}, nil
}

// ForCommunity returns the templates enabled for a community. Unknown
// communities get an empty result.
func (r *Registry) ForCommunity(communityID string) []Template {
	if r == nil {
		return nil
	}
	return append([]Template(nil), r.byCommunity[communityID]...)
}

// ByShortName finds a community's template by its short name.
func (r *Registry) ByShortName(communityID, shortName string) (Template, bool) {
	if r == nil {
		return Template{}, false
	}
	for _, tmpl := range r.byCommunity[communityID] {
		if tmpl.ShortName == shortName {
			return tmpl, true
		}
	}
	return Template{}, false
}

// Communities returns every configured community id.
func (r *Registry) Communities() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.byCommunity))
	for id := range r.byCommunity {
		ids = append(ids, id)
	}
	return ids
}

type templateSource []Template

func (s templateSource) String(i int) string {
	return s[i].ShortName + " " + s[i].Name
}

func (s templateSource) Len() int {
	return len(s)
}

// Search ranks a community's templates against query for autocomplete.
// An empty query returns every template in declaration order.
func (r *Registry) Search(communityID, query string) []Template {
	tmpls := r.ForCommunity(communityID)
	query = strings.TrimSpace(query)
	if query == "" {
		return tmpls
	}

	matches := fuzzy.FindFrom(query, templateSource(tmpls))
	result := make([]Template, 0, len(matches))
	for _, match := range matches {
		result = append(result, tmpls[match.Index])
	}
	return result
}

type fileFormat struct {
	Templates    []Template                     `yaml:"templates"`
	Environments map[string]map[string][]string `yaml:"environments"`
}

// Load builds the registry for env. With an empty path the built-in
// defaults are used; otherwise the YAML file lists the templates and, per
// environment, which short names each community enables.
func Load(path, env string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		defaults := Defaults(env)
		if defaults == nil {
			return nil, fmt.Errorf("templates: unknown environment %q", env)
		}
		return NewRegistry(defaults)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("templates: read %s: %w", path, err)
	}
	return Parse(data, env)
}

// Parse builds the registry for env from a YAML document.
func Parse(data []byte, env string) (*Registry, error) {
	var file fileFormat
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("templates: decode yaml: %w", err)
	}

	byShortName := make(map[string]Template, len(file.Templates))
	for _, tmpl := range file.Templates {
		if _, dup := byShortName[tmpl.ShortName]; dup {
			return nil, fmt.Errorf("templates: duplicate short name %q", tmpl.ShortName)
		}
		byShortName[tmpl.ShortName] = tmpl
	}

	communities, ok := file.Environments[env]
	if !ok {
		return nil, fmt.Errorf("templates: environment %q not defined", env)
	}

	mapping := make(map[string][]Template, len(communities))
	for communityID, shortNames := range communities {
		for _, shortName := range shortNames {
			tmpl, ok := byShortName[shortName]
			if !ok {
				return nil, fmt.Errorf("templates: community %s references unknown template %q", communityID, shortName)
			}
			mapping[communityID] = append(mapping[communityID], tmpl)
		}
	}
	if len(mapping) == 0 {
		return nil, errors.New("templates: no communities configured")
	}

	return NewRegistry(mapping)
}
