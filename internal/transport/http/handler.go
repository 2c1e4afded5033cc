package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"skill-assessment-service/internal/app"
	"skill-assessment-service/internal/domain"
	"skill-assessment-service/internal/logger"
	"skill-assessment-service/internal/reference"
)

// Reloader swaps in a freshly loaded reference snapshot.
type Reloader interface {
	Reload(ctx context.Context) (*reference.Snapshot, error)
}

// Handler exposes the assessment use cases as JSON endpoints.
type Handler struct {
	service *app.AssessmentService
	refs    Reloader
	log     *logger.Logger
}

func NewHandler(service *app.AssessmentService, refs Reloader, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{service: service, refs: refs, log: log}
}

// Register mounts every endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("PUT /students/{studentID}/courses", h.putCourses)
	mux.HandleFunc("POST /students/{studentID}/recompute", h.recompute)
	mux.HandleFunc("GET /students/{studentID}/scores", h.listScores)
	mux.HandleFunc("GET /students/{studentID}/scores/{tier}/{skill}/explanation", h.explain)
	mux.HandleFunc("POST /students/{studentID}/quiz-plans", h.planQuiz)
	mux.HandleFunc("POST /quiz-plans/{planID}/attempts", h.startAttempt)
	mux.HandleFunc("GET /quiz-attempts/{attemptID}", h.getAttempt)
	mux.HandleFunc("POST /quiz-attempts/{attemptID}/submission", h.submitAttempt)
	mux.HandleFunc("GET /students/{studentID}/final-scores", h.finalScores)
	mux.HandleFunc("GET /students/{studentID}/jobs/{jobID}/match", h.matchJob)
	mux.HandleFunc("GET /students/{studentID}/job-recommendations", h.recommendJobs)
	mux.HandleFunc("GET /questions/stats", h.bankStats)
	mux.HandleFunc("POST /reference/reload", h.reloadReference)
}

type courseRequest struct {
	CourseCode   string  `json:"courseCode"`
	Grade        string  `json:"grade"`
	Credits      float64 `json:"credits"`
	AcademicYear int     `json:"academicYear"`
}

type coursesRequest struct {
	Courses []courseRequest `json:"courses"`
}

type scoresResponse struct {
	StudentID string              `json:"studentId"`
	Evidence  int                 `json:"evidenceCount"`
	Scores    []domain.SkillScore `json:"scores"`
}

func (h *Handler) putCourses(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	var req coursesRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	courses := make([]domain.CourseRecord, 0, len(req.Courses))
	for _, c := range req.Courses {
		rec, err := domain.NewCourseRecord(studentID, c.CourseCode, c.Grade, c.Credits, c.AcademicYear)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		courses = append(courses, rec)
	}
	res, err := h.service.RecomputeScores(r.Context(), studentID, courses)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scoresResponse{StudentID: studentID, Evidence: len(res.Evidence), Scores: res.Scores})
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	res, err := h.service.RecomputeStored(r.Context(), studentID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scoresResponse{StudentID: studentID, Evidence: len(res.Evidence), Scores: res.Scores})
}

func (h *Handler) listScores(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	var tier domain.Tier
	if raw := r.URL.Query().Get("tier"); raw != "" {
		parsed, err := domain.ParseTier(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		tier = parsed
	}
	scores, err := h.service.ClaimedScores(r.Context(), studentID, tier)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if scores == nil {
		scores = []domain.SkillScore{}
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *Handler) explain(w http.ResponseWriter, r *http.Request) {
	tier, err := domain.ParseTier(r.PathValue("tier"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ex, err := h.service.Explain(r.Context(), r.PathValue("studentID"), tier, r.PathValue("skill"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

type planRequest struct {
	Skills []string `json:"skills"`
}

func (h *Handler) planQuiz(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	plan, err := h.service.PlanQuiz(r.Context(), r.PathValue("studentID"), req.Skills)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

// attemptView hides answer keys until the attempt is completed.
type attemptView struct {
	ID             string                      `json:"id"`
	StudentID      string                      `json:"studentId"`
	QuizPlanID     string                      `json:"quizPlanId"`
	Status         domain.AttemptStatus        `json:"status"`
	Questions      []domain.PublicQuestion     `json:"questions"`
	Shortfalls     []domain.Shortfall          `json:"shortfalls,omitempty"`
	Answers        []domain.GradedAnswer       `json:"answers,omitempty"`
	VerifiedScores []domain.VerifiedSkillScore `json:"verifiedScores,omitempty"`
	OverallScore   *float64                    `json:"overallScore,omitempty"`
	CreatedAt      time.Time                   `json:"createdAt"`
	CompletedAt    *time.Time                  `json:"completedAt,omitempty"`
}

func newAttemptView(a domain.QuizAttempt) attemptView {
	v := attemptView{
		ID:         a.ID,
		StudentID:  a.StudentID,
		QuizPlanID: a.QuizPlanID,
		Status:     a.Status,
		Questions:  make([]domain.PublicQuestion, 0, len(a.Questions)),
		Shortfalls: a.Shortfalls,
		CreatedAt:  a.CreatedAt,
	}
	for _, q := range a.Questions {
		v.Questions = append(v.Questions, q.Public())
	}
	if a.Status == domain.AttemptCompleted {
		overall := a.OverallScore
		v.Answers = a.Answers
		v.VerifiedScores = a.VerifiedScores
		v.OverallScore = &overall
		v.CompletedAt = a.CompletedAt
	}
	return v
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.StartAttempt(r.Context(), r.PathValue("planID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAttemptView(attempt))
}

func (h *Handler) getAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.GetAttempt(r.Context(), r.PathValue("attemptID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAttemptView(attempt))
}

type submissionRequest struct {
	Answers []domain.AnswerSubmission `json:"answers"`
}

func (h *Handler) submitAttempt(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	attempt, err := h.service.SubmitAttempt(r.Context(), r.PathValue("attemptID"), req.Answers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAttemptView(attempt))
}

func (h *Handler) finalScores(w http.ResponseWriter, r *http.Request) {
	finals, err := h.service.FinalScores(r.Context(), r.PathValue("studentID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if finals == nil {
		finals = []domain.FinalSkillScore{}
	}
	writeJSON(w, http.StatusOK, finals)
}

func (h *Handler) matchJob(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.MatchJob(r.Context(), r.PathValue("studentID"), r.PathValue("jobID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) recommendJobs(w http.ResponseWriter, r *http.Request) {
	topK := 5
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.fail(w, r, badRequest("top must be a positive integer"))
			return
		}
		topK = n
	}
	reports, err := h.service.RecommendJobs(r.Context(), r.PathValue("studentID"), topK)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handler) bankStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.BankStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type reloadResponse struct {
	Version   int64                `json:"version"`
	Source    string               `json:"source"`
	LoadedAt  time.Time            `json:"loadedAt"`
	Jobs      int                  `json:"jobs"`
	Recompute app.RecomputeSummary `json:"recompute"`
}

var errReloadUnavailable = errors.New("reference reload not configured")

// reloadReference swaps in a fresh snapshot and moves stored students onto it.
func (h *Handler) reloadReference(w http.ResponseWriter, r *http.Request) {
	if h.refs == nil {
		h.fail(w, r, errReloadUnavailable)
		return
	}
	snap, err := h.refs.Reload(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("reference reloaded", "version", snap.Version, "source", snap.Source)
	summary, err := h.service.RecomputeAll(r.Context())
	if err != nil {
		h.fail(w, r, fmt.Errorf("recompute after reload: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{
		Version:   snap.Version,
		Source:    snap.Source,
		LoadedAt:  snap.LoadedAt,
		Jobs:      len(snap.Jobs()),
		Recompute: summary,
	})
}

type errorPayload struct {
	Message string `json:"message"`
}

type requestError struct{ msg string }

func (e requestError) Error() string { return e.msg }

func badRequest(format string, args ...interface{}) error {
	return requestError{msg: fmt.Sprintf(format, args...)}
}

func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

func statusFor(err error) int {
	var reqErr requestError
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, domain.ErrInvalidCourseRecord),
		errors.Is(err, domain.ErrInvalidGrade),
		errors.Is(err, domain.ErrInvalidTier),
		errors.Is(err, domain.ErrInvalidDifficulty),
		errors.Is(err, domain.ErrNoSkillsSelected),
		errors.Is(err, domain.ErrTooManySkills),
		errors.Is(err, domain.ErrDuplicateSkill),
		errors.Is(err, domain.ErrUnknownQuestion),
		errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, domain.ErrDuplicateAnswer):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPlanNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrJobNotFound),
		errors.Is(err, domain.ErrNoScores),
		errors.Is(err, domain.ErrSkillNotScored):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAttemptCompleted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoQuestionsAvailable),
		errors.Is(err, domain.ErrInvalidMapping),
		errors.Is(err, domain.ErrInvalidQuestion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, app.ErrStatsUnsupported),
		errors.Is(err, errReloadUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, reference.ErrNoSnapshot):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
