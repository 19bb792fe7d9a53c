package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

type seedYAML struct {
	Templates []seedRubric `yaml:"templates"`
}

type seedRubric struct {
	Name                  string          `yaml:"name"`
	Description           string          `yaml:"description"`
	Criteria              []seedCriterion `yaml:"criteria"`
	TargetDurationSeconds int             `yaml:"target_duration_seconds"`
	MaxDurationSeconds    int             `yaml:"max_duration_seconds"`
}

type seedCriterion struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Weight      float64 `yaml:"weight"`
}

// seedTemplates loads the template rubrics from YAML and inserts any that
// are not already present, matching by name. Safe to run on every startup.
func seedTemplates(ctx domain.Context, path string, repo domain.RubricRepository) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("seed file not found: %s", path)
		}
		return err
	}
	var doc seedYAML
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("yaml parse: %w", err)
	}
	if len(doc.Templates) == 0 {
		return fmt.Errorf("no templates in %s", path)
	}

	existing, err := repo.ListForOwner(ctx, nil)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(existing))
	for _, rb := range existing {
		if rb.IsTemplate {
			present[rb.Name] = true
		}
	}

	seeded := 0
	for _, t := range doc.Templates {
		if present[t.Name] {
			continue
		}
		criteria := make([]domain.Criterion, 0, len(t.Criteria))
		for _, c := range t.Criteria {
			criteria = append(criteria, domain.Criterion{Name: c.Name, Description: c.Description, Weight: c.Weight})
		}
		_, err := repo.Create(ctx, domain.Rubric{
			Name:                  t.Name,
			Description:           t.Description,
			Criteria:              criteria,
			TargetDurationSeconds: t.TargetDurationSeconds,
			MaxDurationSeconds:    t.MaxDurationSeconds,
			IsTemplate:            true,
			CreatedAt:             time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		seeded++
	}
	slog.Info("template rubrics seeded", slog.Int("new", seeded), slog.Int("total", len(doc.Templates)))
	return nil
}
