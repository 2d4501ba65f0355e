package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/gradelens/gradelens/internal/config"
	"github.com/gradelens/gradelens/internal/middleware"
	"github.com/gradelens/gradelens/internal/models"
	"github.com/gradelens/gradelens/internal/services"
	"github.com/gradelens/gradelens/pkg/response"
	"gorm.io/gorm"
)

type AnalysisHandler struct {
	db       *gorm.DB
	cfg      *config.Config
	analysis *services.AnalysisService
}

func NewAnalysisHandler(db *gorm.DB, cfg *config.Config, analysis *services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{
		db:       db,
		cfg:      cfg,
		analysis: analysis,
	}
}

// Create triggers a new analysis run
// POST /api/analyses
func (h *AnalysisHandler) Create(c *gin.Context) {
	var opts services.AnalysisOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	userID := middleware.GetUserID(c)
	var triggeredBy *uint
	if userID > 0 {
		triggeredBy = &userID
	}

	run, err := h.analysis.CreateRun(&opts, triggeredBy)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	queue := services.GetTaskQueue()
	if queue == nil {
		response.ServerError(c, "task queue not initialized")
		return
	}
	if err := queue.Enqueue(&services.AnalysisTask{RunUUID: run.UUID}); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Accepted(c, run)
}

type listRunsRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status"`
	CourseID string `form:"course_id"`
}

// List returns past analysis runs, newest first
// GET /api/analyses
func (h *AnalysisHandler) List(c *gin.Context) {
	var req listRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := h.db.Model(&models.AnalysisRun{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.CourseID != "" {
		query = query.Where("course_id = ?", req.CourseID)
	}

	var total int64
	query.Count(&total)

	var runs []models.AnalysisRun
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(req.PageSize).Find(&runs).Error; err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"total":     total,
		"page":      req.Page,
		"page_size": req.PageSize,
		"items":     runs,
	})
}

// Get returns one analysis run
// GET /api/analyses/:uuid
func (h *AnalysisHandler) Get(c *gin.Context) {
	run, ok := h.findRun(c)
	if !ok {
		return
	}
	response.Success(c, run)
}

type statsQuery struct {
	MinRequests int    `form:"min_requests"`
	Metric      string `form:"metric"`
}

// Students returns the per-student report of a completed run
// GET /api/analyses/:uuid/students
func (h *AnalysisHandler) Students(c *gin.Context) {
	run, ok := h.findRun(c)
	if !ok {
		return
	}

	var q statsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if q.Metric == "" {
		q.Metric = h.cfg.Analysis.Metric
	}
	if q.MinRequests == 0 {
		q.MinRequests = h.cfg.Analysis.MinRequests
	}

	result, err := h.analysis.Result(run.CourseID, run.AssignmentID)
	if err != nil {
		response.NotFound(c, "no stored result for this run")
		return
	}

	response.Success(c, gin.H{
		"metric":       q.Metric,
		"min_requests": q.MinRequests,
		"rows":         services.StudentRows(result.Students, q.MinRequests, q.Metric),
	})
}

// Staff returns the per-grader report of a completed run
// GET /api/analyses/:uuid/staff
func (h *AnalysisHandler) Staff(c *gin.Context) {
	run, ok := h.findRun(c)
	if !ok {
		return
	}

	result, err := h.analysis.Result(run.CourseID, run.AssignmentID)
	if err != nil {
		response.NotFound(c, "no stored result for this run")
		return
	}

	response.Success(c, gin.H{
		"rows": services.StaffRows(result.Students, result.Conversations),
	})
}

// StudentRequests returns one student's requests with their conversations
// GET /api/analyses/:uuid/students/:name/requests
func (h *AnalysisHandler) StudentRequests(c *gin.Context) {
	run, ok := h.findRun(c)
	if !ok {
		return
	}

	result, err := h.analysis.Result(run.CourseID, run.AssignmentID)
	if err != nil {
		response.NotFound(c, "no stored result for this run")
		return
	}

	name := c.Param("name")
	summary, ok := result.Students[name]
	if !ok {
		response.NotFound(c, "no such student in this run")
		return
	}

	type requestDetail struct {
		Question     string      `json:"question"`
		Grader       string      `json:"grader"`
		QuestionLink string      `json:"question_link"`
		ReviewLink   string      `json:"review_link"`
		Conversation interface{} `json:"conversation,omitempty"`
	}

	details := make([]requestDetail, 0, len(summary.Requests))
	for _, req := range summary.Requests {
		d := requestDetail{
			Question:     req.Question,
			Grader:       req.Grader,
			QuestionLink: req.QuestionLink,
			ReviewLink:   req.ReviewLink,
		}
		if record, ok := result.Conversations[req.ReviewLink]; ok {
			d.Conversation = record
		}
		details = append(details, d)
	}

	response.Success(c, gin.H{
		"student":     name,
		"total_count": summary.TotalCount,
		"requests":    details,
	})
}

func (h *AnalysisHandler) findRun(c *gin.Context) (*models.AnalysisRun, bool) {
	var run models.AnalysisRun
	if err := h.db.Where("uuid = ?", c.Param("uuid")).First(&run).Error; err != nil {
		response.NotFound(c, "analysis run not found")
		return nil, false
	}
	return &run, true
}
