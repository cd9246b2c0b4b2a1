package scrape

import (
	"errors"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/huntred/circle/internal/model"
)

// Catalogue is the on-disk base target list: default groups plus optional
// per-business-unit overrides.
type Catalogue struct {
	Default       []model.TargetGroup            `yaml:"default"`
	BusinessUnits map[string][]model.TargetGroup `yaml:"business_units"`
}

// For returns the targets for businessUnitID, falling back to the defaults.
func (c *Catalogue) For(businessUnitID string) model.TargetSpec {
	groups := c.Default
	if bu, ok := c.BusinessUnits[businessUnitID]; ok && len(bu) > 0 {
		groups = bu
	}
	return model.TargetSpec{BusinessUnitID: businessUnitID, Groups: groups}.Clone()
}

// DefaultCatalogue is used when no targets file exists.
func DefaultCatalogue() *Catalogue {
	return &Catalogue{Default: []model.TargetGroup{
		{
			Category:    model.CategoryJobBoards,
			Priority:    model.PriorityHigh,
			Domains:     []string{"occ.com.mx", "computrabajo.com.mx", "mx.indeed.com"},
			SearchTerms: []string{"director", "gerente", "vacantes ejecutivas"},
		},
		{
			Category:    model.CategoryCompanyWebsites,
			Priority:    model.PriorityMedium,
			Domains:     []string{"expansion.mx", "eleconomista.com.mx"},
			SearchTerms: []string{"expansión empresa México", "nueva planta"},
		},
		{
			Category:    model.CategoryGovernment,
			Priority:    model.PriorityLow,
			Domains:     []string{"gob.mx"},
			SearchTerms: []string{"inversión extranjera directa"},
		},
		{
			Category:    model.CategorySocial,
			Priority:    model.PriorityMedium,
			Domains:     []string{"linkedin.com"},
			SearchTerms: []string{"hiring México"},
		},
	}}
}

// LoadCatalogue reads a YAML catalogue. A missing file yields
// DefaultCatalogue.
func LoadCatalogue(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultCatalogue(), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: read catalogue %s", path)
	}

	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrapf(err, "scrape: parse catalogue %s", path)
	}
	if err := c.validate(); err != nil {
		return nil, eris.Wrapf(err, "scrape: catalogue %s", path)
	}
	return &c, nil
}

func (c *Catalogue) validate() error {
	if len(c.Default) == 0 {
		return eris.New("default groups are required")
	}
	check := func(groups []model.TargetGroup) error {
		seen := make(map[model.TargetCategory]bool)
		for i := range groups {
			g := &groups[i]
			switch g.Category {
			case model.CategoryJobBoards, model.CategoryCompanyWebsites, model.CategoryGovernment, model.CategorySocial:
			default:
				return eris.Errorf("unknown category %q", g.Category)
			}
			if seen[g.Category] {
				return eris.Errorf("duplicate category %q", g.Category)
			}
			seen[g.Category] = true
			switch g.Priority {
			case model.PriorityHigh, model.PriorityMedium, model.PriorityLow:
			case "":
				g.Priority = model.PriorityMedium
			default:
				return eris.Errorf("category %s: unknown priority %q", g.Category, g.Priority)
			}
		}
		return nil
	}
	if err := check(c.Default); err != nil {
		return err
	}
	for bu, groups := range c.BusinessUnits {
		if err := check(groups); err != nil {
			return eris.Wrapf(err, "business unit %s", bu)
		}
	}
	return nil
}
