package catalog

import (
	"context"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/kvartali/internal/domain"
)

// Diagnostic reports a piece of catalog data that was missing and replaced.
type Diagnostic struct {
	Field   string
	Message string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("catalog %s: %s", d.Field, d.Message)
}

func (d Diagnostic) Unwrap() error { return domain.ErrConfigurationMissing }

// Sources lists where the catalog may come from, in priority order: Remote, then Path.
type Sources struct {
	Remote Source
	Path   string
}

// LoadFile reads a YAML or JSON catalog document.
func LoadFile(path string) (*Document, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load catalog file %s: %w", path, err)
	}
	var doc Document
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("decode catalog file %s: %w", path, err)
	}
	return &doc, nil
}

// Load runs the configuration-loading phase. It always returns a usable catalog; every
// missing piece is substituted by its documented default and reported once as a
// Diagnostic, which is also logged at warn level.
func Load(ctx context.Context, src Sources, logger zerolog.Logger) (*Catalog, []Diagnostic) {
	var (
		doc   *Document
		diags []Diagnostic
	)

	if src.Remote != nil {
		d, err := src.Remote.Fetch(ctx)
		if err != nil {
			diags = append(diags, Diagnostic{Field: "source", Message: fmt.Sprintf("remote catalog unavailable: %v", err)})
		} else {
			doc = d
		}
	}
	if doc == nil && src.Path != "" {
		d, err := LoadFile(src.Path)
		if err != nil {
			diags = append(diags, Diagnostic{Field: "source", Message: err.Error()})
		} else {
			doc = d
		}
	}
	if doc == nil {
		diags = append(diags, Diagnostic{Field: "source", Message: "no catalog source available, using built-in defaults"})
		doc = &Document{}
	}

	diags = append(diags, fillDefaults(doc)...)
	for _, d := range diags {
		logger.Warn().Str("field", d.Field).Msg(d.Message)
	}
	return New(*doc), diags
}

func fillDefaults(doc *Document) []Diagnostic {
	var diags []Diagnostic

	if len(doc.Cities) == 0 {
		doc.Cities = DefaultCities()
		diags = append(diags, Diagnostic{Field: "cities", Message: "city list missing, using fallback data"})
	}
	withChildcare := false
	for _, c := range doc.Cities {
		if len(c.Childcare) > 0 {
			withChildcare = true
			break
		}
	}
	if !withChildcare {
		diags = append(diags, Diagnostic{Field: "childcare", Message: "childcare lists missing, using empty lists"})
	}

	labels := make(map[string]string, len(doc.Criteria))
	for _, c := range doc.Criteria {
		labels[c.Key] = c.Label
	}
	missing := 0
	criteria := make([]Criterion, 0, len(domain.NeighborhoodCriteria))
	for _, def := range DefaultCriteria() {
		if l, ok := labels[def.Key]; ok && l != "" {
			criteria = append(criteria, Criterion{Key: def.Key, Label: l})
			continue
		}
		missing++
		criteria = append(criteria, def)
	}
	doc.Criteria = criteria
	if missing > 0 {
		diags = append(diags, Diagnostic{Field: "criteria", Message: fmt.Sprintf("%d criterion labels missing, using fallback labels", missing)})
	}

	if len(doc.Specialties) == 0 {
		doc.Specialties = DefaultSpecialties()
		diags = append(diags, Diagnostic{Field: "specialties", Message: "specialty list missing, using fallback list"})
	}
	return diags
}
