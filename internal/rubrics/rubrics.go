// Package rubrics stores grading schemes and the grades awarded against
// them. Grades are nested under their rubric on disk, so deleting a rubric
// removes its grades with it.
package rubrics

import (
	"context"
	"fmt"
	"time"

	"github.com/indecisive-app/indecisive/internal/filedb"
	"github.com/indecisive-app/indecisive/internal/genid"
	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/mutex"
	"github.com/indecisive-app/indecisive/internal/resource"
)

// RubricDef describes the rubrics collection.
var RubricDef = &filedb.Def{
	Namespace: "grading",
	Name:      "rubrics",
	Singular:  "rubric",
	Param:     "rubricId",
	SortField: "name",
}

// GradeDef describes the grades collection, nested under rubrics.
var GradeDef = &filedb.Def{
	Namespace: "grading",
	Name:      "grades",
	Singular:  "grade",
	Param:     "gradeId",
	SortField: "userId",
	Parents:   []*filedb.Def{RubricDef},
}

// Service manages rubrics and their grades.
type Service struct {
	rubrics *resource.Collection[*models.Rubric]
	grades  *resource.Collection[*models.Grade]
}

// NewService creates a rubric service over the shared store and locks.
func NewService(db *filedb.DB, locks *mutex.Table, lockTimeout time.Duration) *Service {
	return &Service{
		rubrics: resource.NewCollection(db, locks, RubricDef, resource.Options[*models.Rubric]{
			New:         func() *models.Rubric { return &models.Rubric{} },
			Less:        func(a, b *models.Rubric) bool { return a.Name < b.Name },
			LockTimeout: lockTimeout,
		}),
		grades: resource.NewCollection(db, locks, GradeDef, resource.Options[*models.Grade]{
			New:         func() *models.Grade { return &models.Grade{} },
			Less:        func(a, b *models.Grade) bool { return a.UserID < b.UserID },
			LockTimeout: lockTimeout,
		}),
	}
}

// Rubrics exposes the rubric collection for HTTP handlers.
func (s *Service) Rubrics() *resource.Collection[*models.Rubric] { return s.rubrics }

// Grades exposes the grade collection for HTTP handlers.
func (s *Service) Grades() *resource.Collection[*models.Grade] { return s.grades }

// CreateRubric persists a rubric. Criterion ids are minted when absent.
func (s *Service) CreateRubric(ctx context.Context, r *models.Rubric) (*models.Rubric, error) {
	if err := validateRubric(r); err != nil {
		return nil, err
	}
	for i := range r.Criteria {
		if r.Criteria[i].ID == "" {
			r.Criteria[i].ID = genid.Random(0)
		}
	}
	return s.rubrics.Create(ctx, r)
}

// GetRubric resolves one rubric.
func (s *Service) GetRubric(ctx context.Context, id string) (*models.Rubric, error) {
	return s.rubrics.Get(ctx, id)
}

// ListRubrics returns all rubrics ordered by name.
func (s *Service) ListRubrics(ctx context.Context) ([]*models.Rubric, error) {
	return s.rubrics.List(ctx, nil)
}

// DeleteRubric removes a rubric and every grade stored under it.
func (s *Service) DeleteRubric(ctx context.Context, id string) (bool, []error, error) {
	return s.rubrics.Delete(ctx, id, func(ctx context.Context, _ *models.Rubric) []error {
		grades, err := s.grades.List(ctx, nil, id)
		if err != nil {
			return []error{err}
		}
		var errs []error
		for _, g := range grades {
			if _, _, err := s.grades.Delete(ctx, g.ID, nil, id); err != nil {
				errs = append(errs, fmt.Errorf("grade %s: %w", g.ID, err))
			}
		}
		return errs
	})
}

// CreateGrade records a grading against the rubric. Every score must name
// a criterion of that rubric; the total is computed, never client-supplied.
func (s *Service) CreateGrade(ctx context.Context, rubricID string, g *models.Grade) (*models.Grade, error) {
	rubric, err := s.rubrics.Get(ctx, rubricID)
	if err != nil {
		return nil, err
	}
	if g.UserID == "" {
		return nil, models.MissingField("userId")
	}
	if g.GraderID == "" {
		return nil, models.MissingField("graderId")
	}
	if err := validateScores(rubric, g.Scores); err != nil {
		return nil, err
	}
	g.RubricID = rubricID
	if g.Scores == nil {
		g.Scores = []models.GradeScore{}
	}
	g.ComputeTotal()
	return s.grades.Create(ctx, g, rubricID)
}

// GetGrade resolves one grade under its rubric.
func (s *Service) GetGrade(ctx context.Context, rubricID, gradeID string) (*models.Grade, error) {
	return s.grades.Get(ctx, gradeID, rubricID)
}

// ListGrades returns the grades recorded against one rubric.
func (s *Service) ListGrades(ctx context.Context, rubricID string) ([]*models.Grade, error) {
	return s.grades.List(ctx, nil, rubricID)
}

// UpdateScores replaces a grade's scores and recomputes its total.
func (s *Service) UpdateScores(ctx context.Context, rubricID, gradeID string, scores []models.GradeScore) (*models.Grade, error) {
	rubric, err := s.rubrics.Get(ctx, rubricID)
	if err != nil {
		return nil, err
	}
	if err := validateScores(rubric, scores); err != nil {
		return nil, err
	}
	return s.grades.Update(ctx, gradeID, func(cur *models.Grade) error {
		cur.Scores = scores
		cur.ComputeTotal()
		return nil
	}, rubricID)
}

// DeleteGrade removes one grade.
func (s *Service) DeleteGrade(ctx context.Context, rubricID, gradeID string) (bool, error) {
	removed, _, err := s.grades.Delete(ctx, gradeID, nil, rubricID)
	return removed, err
}

func validateRubric(r *models.Rubric) error {
	if r.Name == "" {
		return models.MissingField("name")
	}
	if len(r.Criteria) == 0 {
		return models.MissingField("criteria")
	}
	for _, c := range r.Criteria {
		if c.Name == "" {
			return models.MissingField("criteria.name")
		}
		if len(c.Levels) == 0 {
			return models.BadRequest(fmt.Sprintf("criterion %q has no levels", c.Name))
		}
	}
	return nil
}

// validateScores checks that each score targets a distinct criterion of
// the rubric.
func validateScores(rubric *models.Rubric, scores []models.GradeScore) error {
	known := make(map[string]bool, len(rubric.Criteria))
	for _, c := range rubric.Criteria {
		known[c.ID] = true
	}
	seen := make(map[string]bool, len(scores))
	for _, sc := range scores {
		if !known[sc.CriterionID] {
			return models.BadRequest("score names an unknown criterion").WithDetail("criterionId", sc.CriterionID)
		}
		if seen[sc.CriterionID] {
			return models.BadRequest("criterion scored twice").WithDetail("criterionId", sc.CriterionID)
		}
		seen[sc.CriterionID] = true
	}
	return nil
}
