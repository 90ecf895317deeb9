// Package catalog loads the source catalog and research priorities from YAML
// files and imports them into the store.
package catalog

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/store"
)

// LoadSources reads a sources file with a top-level "sources" list.
func LoadSources(path string) ([]model.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read sources %s", path)
	}
	return ParseSources(data)
}

// ParseSources decodes and validates a sources document.
func ParseSources(data []byte) ([]model.Source, error) {
	var wrapper struct {
		Sources []model.Source `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "catalog: parse sources")
	}

	seen := make(map[string]bool, len(wrapper.Sources))
	for i := range wrapper.Sources {
		src := &wrapper.Sources[i]
		src.Name = strings.TrimSpace(src.Name)
		src.URL = strings.TrimSpace(src.URL)
		src.Format = model.SourceFormat(strings.ToLower(string(src.Format)))
		if src.Format == "" {
			src.Format = model.SourceFormatRSS
		}
		switch {
		case src.Name == "":
			return nil, eris.Errorf("catalog: source %d has no name", i)
		case src.URL == "":
			return nil, eris.Errorf("catalog: source %q has no url", src.Name)
		case seen[src.Name]:
			return nil, eris.Errorf("catalog: duplicate source %q", src.Name)
		}
		switch src.Format {
		case model.SourceFormatRSS, model.SourceFormatJSON, model.SourceFormatCSV, model.SourceFormatXLSX:
		default:
			return nil, eris.Errorf("catalog: source %q has unknown format %q", src.Name, src.Format)
		}
		seen[src.Name] = true
	}
	return wrapper.Sources, nil
}

// LoadPriorities reads a priorities file with a top-level "priorities" list.
func LoadPriorities(path string) ([]model.ResearchPriority, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read priorities %s", path)
	}
	return ParsePriorities(data)
}

// ParsePriorities decodes and validates a priorities document. Entries
// without an explicit active key are active.
func ParsePriorities(data []byte) ([]model.ResearchPriority, error) {
	var wrapper struct {
		Priorities []struct {
			Name     string   `yaml:"name"`
			Category string   `yaml:"category"`
			Keywords []string `yaml:"keywords"`
			Active   *bool    `yaml:"active"`
		} `yaml:"priorities"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "catalog: parse priorities")
	}

	out := make([]model.ResearchPriority, 0, len(wrapper.Priorities))
	for i, p := range wrapper.Priorities {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, eris.Errorf("catalog: priority %d has no name", i)
		}
		cat := model.PriorityCategory(strings.ToLower(strings.TrimSpace(p.Category)))
		if cat != model.PriorityCategoryCondition && cat != model.PriorityCategoryMetric {
			return nil, eris.Errorf("catalog: priority %q has unknown category %q", name, p.Category)
		}

		var keywords []string
		for _, k := range p.Keywords {
			if k = strings.TrimSpace(k); k != "" {
				keywords = append(keywords, k)
			}
		}
		if len(keywords) == 0 {
			keywords = []string{name}
		}

		active := true
		if p.Active != nil {
			active = *p.Active
		}
		out = append(out, model.ResearchPriority{
			Name:     name,
			Category: cat,
			Keywords: keywords,
			Active:   active,
		})
	}
	return out, nil
}

// ImportSources upserts every source by name. Returns the number written.
func ImportSources(ctx context.Context, st store.SourceStore, sources []model.Source) (int, error) {
	for i := range sources {
		if err := st.UpsertSource(ctx, &sources[i]); err != nil {
			return i, eris.Wrapf(err, "catalog: import source %q", sources[i].Name)
		}
	}
	zap.L().Info("catalog: imported sources", zap.Int("count", len(sources)))
	return len(sources), nil
}

// ImportPriorities upserts every priority by name. Returns the number written.
func ImportPriorities(ctx context.Context, st store.SourceStore, priorities []model.ResearchPriority) (int, error) {
	for i := range priorities {
		if err := st.UpsertPriority(ctx, &priorities[i]); err != nil {
			return i, eris.Wrapf(err, "catalog: import priority %q", priorities[i].Name)
		}
	}
	zap.L().Info("catalog: imported priorities", zap.Int("count", len(priorities)))
	return len(priorities), nil
}
