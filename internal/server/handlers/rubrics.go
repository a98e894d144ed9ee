package handlers

import (
	"context"

	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/rubrics"
	"github.com/indecisive-app/indecisive/internal/server/reqctx"
)

// RubricHandler handles rubrics and grades. Writes require the grader
// scope, enforced at the router.
type RubricHandler struct {
	rubrics *rubrics.Service
}

// NewRubricHandler creates a rubric handler.
func NewRubricHandler(svc *rubrics.Service) *RubricHandler {
	return &RubricHandler{rubrics: svc}
}

// ListRubricsRequest is empty.
type ListRubricsRequest struct{}

func (r *ListRubricsRequest) Validate() error { return nil }

// RubricListResponse carries the rubrics ordered by name.
type RubricListResponse struct {
	Rubrics []*models.Rubric `json:"rubrics"`
}

// ListRubrics returns all rubrics.
func (h *RubricHandler) ListRubrics(ctx context.Context, _ *ListRubricsRequest) (*RubricListResponse, error) {
	list, err := h.rubrics.ListRubrics(ctx)
	if err != nil {
		return nil, err
	}
	return &RubricListResponse{Rubrics: list}, nil
}

// GetRubricRequest identifies one rubric.
type GetRubricRequest struct {
	RubricID string `path:"rubricId"`
}

func (r *GetRubricRequest) Validate() error {
	if r.RubricID == "" {
		return models.MissingField("rubricId")
	}
	return nil
}

// GetRubric returns one rubric.
func (h *RubricHandler) GetRubric(ctx context.Context, req *GetRubricRequest) (*models.Rubric, error) {
	return h.rubrics.GetRubric(ctx, req.RubricID)
}

// CreateRubricRequest defines a new rubric.
type CreateRubricRequest struct {
	Name     string                   `json:"name"`
	Criteria []models.RubricCriterion `json:"criteria"`
}

func (r *CreateRubricRequest) Validate() error {
	if r.Name == "" {
		return models.MissingField("name")
	}
	if len(r.Criteria) == 0 {
		return models.MissingField("criteria")
	}
	return nil
}

// CreateRubric persists a rubric.
func (h *RubricHandler) CreateRubric(ctx context.Context, req *CreateRubricRequest) (*models.Rubric, error) {
	return h.rubrics.CreateRubric(ctx, &models.Rubric{Name: req.Name, Criteria: req.Criteria})
}

// DeleteRubricRequest identifies the rubric to remove.
type DeleteRubricRequest struct {
	RubricID string `path:"rubricId"`
}

func (r *DeleteRubricRequest) Validate() error {
	if r.RubricID == "" {
		return models.MissingField("rubricId")
	}
	return nil
}

// DeleteRubric removes a rubric and its grades.
func (h *RubricHandler) DeleteRubric(ctx context.Context, req *DeleteRubricRequest) (*OkResponse, error) {
	removed, cascadeErrs, err := h.rubrics.DeleteRubric(ctx, req.RubricID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, models.NotFound("rubric").WithDetail("id", req.RubricID)
	}
	resp := &OkResponse{Ok: true}
	for _, cerr := range cascadeErrs {
		resp.Warnings = append(resp.Warnings, cerr.Error())
	}
	return resp, nil
}

// ListGradesRequest identifies the rubric whose grades to list.
type ListGradesRequest struct {
	RubricID string `path:"rubricId"`
}

func (r *ListGradesRequest) Validate() error {
	if r.RubricID == "" {
		return models.MissingField("rubricId")
	}
	return nil
}

// GradeListResponse carries the grades of one rubric.
type GradeListResponse struct {
	Grades []*models.Grade `json:"grades"`
}

// ListGrades returns the grades recorded against a rubric.
func (h *RubricHandler) ListGrades(ctx context.Context, req *ListGradesRequest) (*GradeListResponse, error) {
	list, err := h.rubrics.ListGrades(ctx, req.RubricID)
	if err != nil {
		return nil, err
	}
	return &GradeListResponse{Grades: list}, nil
}

// GetGradeRequest identifies one grade under its rubric.
type GetGradeRequest struct {
	RubricID string `path:"rubricId"`
	GradeID  string `path:"gradeId"`
}

func (r *GetGradeRequest) Validate() error {
	if r.RubricID == "" {
		return models.MissingField("rubricId")
	}
	if r.GradeID == "" {
		return models.MissingField("gradeId")
	}
	return nil
}

// GetGrade returns one grade.
func (h *RubricHandler) GetGrade(ctx context.Context, req *GetGradeRequest) (*models.Grade, error) {
	return h.rubrics.GetGrade(ctx, req.RubricID, req.GradeID)
}

// CreateGradeRequest records a grading. The grader is the acting user.
type CreateGradeRequest struct {
	RubricID string              `path:"rubricId"`
	UserID   string              `json:"userId"`
	Scores   []models.GradeScore `json:"scores"`
}

func (r *CreateGradeRequest) Validate() error {
	if r.RubricID == "" {
		return models.MissingField("rubricId")
	}
	if r.UserID == "" {
		return models.MissingField("userId")
	}
	return nil
}

// CreateGrade records a grading against the rubric.
func (h *RubricHandler) CreateGrade(ctx context.Context, req *CreateGradeRequest) (*models.Grade, error) {
	graderID := reqctx.UserID(ctx)
	if graderID == "" {
		return nil, models.Forbidden("token is not bound to a user")
	}
	return h.rubrics.CreateGrade(ctx, req.RubricID, &models.Grade{
		UserID:   req.UserID,
		GraderID: graderID,
		Scores:   req.Scores,
	})
}

// UpdateGradeRequest replaces a grade's scores.
type UpdateGradeRequest struct {
	RubricID string              `path:"rubricId"`
	GradeID  string              `path:"gradeId"`
	Scores   []models.GradeScore `json:"scores"`
}

func (r *UpdateGradeRequest) Validate() error {
	if r.RubricID == "" {
		return models.MissingField("rubricId")
	}
	if r.GradeID == "" {
		return models.MissingField("gradeId")
	}
	return nil
}

// UpdateGrade replaces the scores and recomputes the total.
func (h *RubricHandler) UpdateGrade(ctx context.Context, req *UpdateGradeRequest) (*models.Grade, error) {
	return h.rubrics.UpdateScores(ctx, req.RubricID, req.GradeID, req.Scores)
}

// DeleteGradeRequest identifies the grade to remove.
type DeleteGradeRequest struct {
	RubricID string `path:"rubricId"`
	GradeID  string `path:"gradeId"`
}

func (r *DeleteGradeRequest) Validate() error {
	if r.RubricID == "" {
		return models.MissingField("rubricId")
	}
	if r.GradeID == "" {
		return models.MissingField("gradeId")
	}
	return nil
}

// DeleteGrade removes one grade.
func (h *RubricHandler) DeleteGrade(ctx context.Context, req *DeleteGradeRequest) (*OkResponse, error) {
	removed, err := h.rubrics.DeleteGrade(ctx, req.RubricID, req.GradeID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, models.NotFound("grade").WithDetail("id", req.GradeID)
	}
	return &OkResponse{Ok: true}, nil
}
