package rubrics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/indecisive-app/indecisive/internal/genid"
	"github.com/indecisive-app/indecisive/internal/models"
)

// seedRubric is the YAML shape of one seed file.
type seedRubric struct {
	Name     string `yaml:"name"`
	Criteria []struct {
		Name   string `yaml:"name"`
		Levels []struct {
			Name        string  `yaml:"name"`
			Points      float64 `yaml:"points"`
			Description string  `yaml:"description"`
		} `yaml:"levels"`
	} `yaml:"criteria"`
}

// Seed loads every *.yaml / *.yml rubric under dir. Ids are content hashes
// of the parsed seed, so an unchanged file reseeds to the same id and is
// skipped; an edited file produces a new rubric. Returns the ids created
// in this run.
func (s *Service) Seed(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, models.StorageError("failed to read seed directory", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var created []string
	for _, name := range files {
		path := filepath.Join(dir, name)
		id, err := s.seedFile(ctx, path)
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", name, err)
		}
		if id != "" {
			created = append(created, id)
		}
	}
	if len(created) > 0 {
		slog.InfoContext(ctx, "Seeded rubrics", "count", len(created))
	}
	return created, nil
}

// seedFile loads one seed file. It returns "" when the rubric already
// exists.
func (s *Service) seedFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", models.StorageError("failed to read seed file", err)
	}
	var seed seedRubric
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return "", models.BadRequest("invalid rubric seed").Wrap(err)
	}

	id, err := genid.ContentHash(seed, 0)
	if err != nil {
		return "", models.Internal("cannot hash rubric seed").Wrap(err)
	}
	if _, err := s.rubrics.Get(ctx, id); err == nil {
		return "", nil
	} else if !models.IsNotFound(err) {
		return "", err
	}

	r := &models.Rubric{Name: seed.Name}
	r.SetID(id)
	for _, c := range seed.Criteria {
		crit := models.RubricCriterion{Name: c.Name}
		// Criterion ids are content hashes too, stable across reseeds.
		cid, err := genid.ContentHash(c, 0)
		if err != nil {
			return "", models.Internal("cannot hash rubric criterion").Wrap(err)
		}
		crit.ID = cid
		for _, l := range c.Levels {
			crit.Levels = append(crit.Levels, models.RubricLevel{
				Name:        l.Name,
				Points:      l.Points,
				Description: l.Description,
			})
		}
		r.Criteria = append(r.Criteria, crit)
	}
	if _, err := s.CreateRubric(ctx, r); err != nil {
		if models.IsConflict(err) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}
