package project

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed projects.yaml
var builtinCatalogue []byte

//go:embed schema.json
var catalogueSchema string

type UnknownProjectError struct {
	Name  string
	Known []string
}

func (e *UnknownProjectError) Error() string {
	return fmt.Sprintf("unknown project %q: must be one of %s", e.Name, strings.Join(e.Known, ", "))
}

// Registry holds the compiled policies of a catalogue, keyed by lower-cased project id.
type Registry struct {
	policies map[string]*Policy
}

// Builtin returns the registry of the projects shipped with reml.
func Builtin() (*Registry, error) {
	return Load(builtinCatalogue)
}

// Load validates a YAML catalogue against the catalogue schema and compiles every project in it.
func Load(bs []byte) (*Registry, error) {
	var doc interface{}
	if err := yaml.Unmarshal(bs, &doc); err != nil {
		return nil, fmt.Errorf("parsing project catalogue: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(catalogueSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("validating project catalogue: %w", err)
	}
	if !result.Valid() {
		msgs := []string{}
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid project catalogue: %s", strings.Join(msgs, "; "))
	}

	var cat Catalogue
	if err := yaml.Unmarshal(bs, &cat); err != nil {
		return nil, fmt.Errorf("decoding project catalogue: %w", err)
	}

	r := &Registry{policies: map[string]*Policy{}}
	for _, spec := range cat.Projects {
		id := strings.ToLower(spec.ID)
		if _, dup := r.policies[id]; dup {
			return nil, fmt.Errorf("duplicate project %q in catalogue", spec.ID)
		}

		p, err := Compile(spec)
		if err != nil {
			return nil, err
		}
		r.policies[id] = p
	}

	return r, nil
}

// Lookup finds a project by id, ignoring case.
func (r *Registry) Lookup(id string) (*Policy, error) {
	p, ok := r.policies[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, &UnknownProjectError{Name: id, Known: r.IDs()}
	}
	return p, nil
}

func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
