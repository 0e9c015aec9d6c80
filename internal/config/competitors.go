package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/compintel-cli/internal/model"
)

// competitorsFile is the on-disk shape of the competitor definition file.
type competitorsFile struct {
	Competitors []model.Competitor `yaml:"competitors"`
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify derives a competitor ID from its display name.
func slugify(name string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}

// LoadCompetitors reads and validates the competitor definition file.
// Missing IDs are derived from names; crawl depth and page limit get
// conservative defaults.
func LoadCompetitors(path string) ([]model.Competitor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read competitors file %s", path)
	}

	var file competitorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "config: parse competitors file %s", path)
	}
	if len(file.Competitors) == 0 {
		return nil, eris.Errorf("config: no competitors defined in %s", path)
	}

	seen := make(map[string]bool, len(file.Competitors))
	out := make([]model.Competitor, 0, len(file.Competitors))
	for i, c := range file.Competitors {
		if c.Name == "" {
			return nil, eris.Errorf("config: competitor %d has no name", i)
		}
		if c.ID == "" {
			c.ID = slugify(c.Name)
		}
		if seen[c.ID] {
			return nil, eris.Errorf("config: duplicate competitor id %q", c.ID)
		}
		seen[c.ID] = true
		if len(c.NewProductURLs) == 0 && len(c.PromoURLs) == 0 {
			return nil, eris.Errorf("config: competitor %q has no URLs", c.ID)
		}
		if c.CrawlDepth <= 0 {
			c.CrawlDepth = 1
		}
		if c.PageLimit <= 0 {
			c.PageLimit = 10
		}
		out = append(out, c)
	}
	return out, nil
}
