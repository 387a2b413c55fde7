package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sysdesign-ai/internal/app"
	"sysdesign-ai/internal/artifact"
	"sysdesign-ai/internal/diagram"
	"sysdesign-ai/internal/model"
	"sysdesign-ai/internal/pkg/jwtutil"
	"sysdesign-ai/internal/pkg/pdfextract"
	"sysdesign-ai/internal/transport/http/middleware"
	"sysdesign-ai/internal/transport/http/response"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// headers and boundaries around the uploaded file
	multipartOverhead = 64 << 10
)

type PlanHandler struct {
	planService   *app.PlanService
	tokenSecret   string
	tokenTTL      time.Duration
	maxBriefChars int
	maxBriefBytes int64
}

type GenerateRequest struct {
	Prompt string `json:"prompt" binding:"max=8000"`
}

type StartSessionResponse struct {
	Token   string      `json:"token"`
	Session SessionView `json:"session"`
}

// SessionView is what the page renders: every table with its headers and
// display rows, the diagrams and the actions allowed next.
type SessionView struct {
	ID               string           `json:"id"`
	Prompt           string           `json:"prompt"`
	State            string           `json:"state"`
	Locked           bool             `json:"locked"`
	Actions          []string         `json:"actions"`
	Components       *TableView       `json:"components,omitempty"`
	Requirements     *TableView       `json:"requirements,omitempty"`
	ComponentDiagram *diagram.Payload `json:"component_diagram,omitempty"`
	FunctionDiagram  *diagram.Payload `json:"function_diagram,omitempty"`
	FMEA             *TableView       `json:"fmea,omitempty"`
	DVPR             *TableView       `json:"dvpr,omitempty"`
	ExportedFile     string           `json:"exported_file,omitempty"`
}

type TableView struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Status  string     `json:"status"`
	Reason  string     `json:"reason,omitempty"`
}

func NewPlanHandler(planService *app.PlanService, tokenSecret string, tokenTTL time.Duration, maxBriefChars int, maxBriefBytes int64) *PlanHandler {
	if maxBriefBytes <= 0 {
		maxBriefBytes = 10 << 20
	}
	return &PlanHandler{
		planService:   planService,
		tokenSecret:   tokenSecret,
		tokenTTL:      tokenTTL,
		maxBriefChars: maxBriefChars,
		maxBriefBytes: maxBriefBytes,
	}
}

func (h *PlanHandler) StartSession(c *gin.Context) {
	session, err := h.planService.Start(c.Request.Context())
	if err != nil {
		writeError(c, err, "start session failed")
		return
	}

	token, err := jwtutil.GenerateToken(h.tokenSecret, h.tokenTTL, session.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "issue session token failed")
		return
	}

	response.OK(c, StartSessionResponse{Token: token, Session: NewSessionView(session)})
}

func (h *PlanHandler) GetSession(c *gin.Context) {
	sessionID, ok := requireSessionID(c)
	if !ok {
		return
	}
	session, err := h.planService.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err, "get session failed")
		return
	}
	response.OK(c, NewSessionView(session))
}

func (h *PlanHandler) EndSession(c *gin.Context) {
	sessionID, ok := requireSessionID(c)
	if !ok {
		return
	}
	if err := h.planService.End(c.Request.Context(), sessionID); err != nil {
		writeError(c, err, "end session failed")
		return
	}
	response.OK(c, gin.H{"ended_session_id": sessionID})
}

func (h *PlanHandler) Generate(c *gin.Context) {
	sessionID, ok := requireSessionID(c)
	if !ok {
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	session, err := h.planService.Generate(c.Request.Context(), sessionID, req.Prompt)
	if err != nil {
		writeError(c, err, "generate components failed")
		return
	}
	response.OK(c, NewSessionView(session))
}

// UploadBrief seeds the prompt from the text of an uploaded PDF. The request
// body is capped at maxBriefBytes plus room for the multipart envelope.
func (h *PlanHandler) UploadBrief(c *gin.Context) {
	sessionID, ok := requireSessionID(c)
	if !ok {
		return
	}

	limit := h.maxBriefBytes + multipartOverhead
	if c.Request.ContentLength > limit {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeBriefTooLarge, "brief too large")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodeBriefTooLarge, "brief too large")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if fileHeader.Size > h.maxBriefBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeBriefTooLarge, "brief too large")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "open file failed")
		return
	}
	defer file.Close()

	brief, err := pdfextract.ExtractBrief(file, h.maxBriefChars)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBriefUnreadable, "read pdf brief failed")
		return
	}

	session, err := h.planService.ImportBrief(c.Request.Context(), sessionID, brief)
	if err != nil {
		writeError(c, err, "import brief failed")
		return
	}
	response.OK(c, NewSessionView(session))
}

func (h *PlanHandler) DeriveRequirements(c *gin.Context) {
	h.advance(c, h.planService.DeriveRequirements, "derive requirements failed")
}

func (h *PlanHandler) DrawComponentDiagram(c *gin.Context) {
	h.advance(c, h.planService.DrawComponentDiagram, "draw component diagram failed")
}

func (h *PlanHandler) DrawFunctionDiagram(c *gin.Context) {
	h.advance(c, h.planService.DrawFunctionDiagram, "draw function diagram failed")
}

func (h *PlanHandler) AnalyzeFMEA(c *gin.Context) {
	h.advance(c, h.planService.AnalyzeFMEA, "analyze fmea failed")
}

func (h *PlanHandler) PlanDVPR(c *gin.Context) {
	h.advance(c, h.planService.PlanDVPR, "plan dvpr failed")
}

func (h *PlanHandler) Export(c *gin.Context) {
	sessionID, ok := requireSessionID(c)
	if !ok {
		return
	}

	result, err := h.planService.Export(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err, "export plan failed")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	c.Data(http.StatusOK, xlsxContentType, result.Content)
}

type stageFunc func(ctx context.Context, sessionID string) (*model.PlanSession, error)

func (h *PlanHandler) advance(c *gin.Context, stage stageFunc, fallback string) {
	sessionID, ok := requireSessionID(c)
	if !ok {
		return
	}
	session, err := stage(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err, fallback)
		return
	}
	response.OK(c, NewSessionView(session))
}

func NewSessionView(session *model.PlanSession) SessionView {
	return SessionView{
		ID:               session.ID,
		Prompt:           session.Prompt,
		State:            session.State,
		Locked:           session.Locked,
		Actions:          app.AvailableActions(session),
		Components:       newTableView(session.Components, artifact.ComponentFunctionHeaders),
		Requirements:     newTableView(session.Requirements, artifact.RequirementHeaders),
		ComponentDiagram: session.ComponentDiagram,
		FunctionDiagram:  session.FunctionDiagram,
		FMEA:             newTableView(session.FMEA, artifact.FMEAHeaders),
		DVPR:             newTableView(session.DVPR, artifact.DVPRHeaders),
		ExportedFile:     session.ExportedFile,
	}
}

func newTableView[R artifact.Row](table artifact.Table[R], headers []string) *TableView {
	if !table.Present() {
		return nil
	}
	return &TableView{
		Headers: headers,
		Rows:    table.Display(len(headers)),
		Status:  string(table.Status),
		Reason:  table.Reason,
	}
}

func requireSessionID(c *gin.Context) (string, bool) {
	sessionID, ok := middleware.SessionID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return "", false
	}
	return sessionID, true
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrPromptEmpty):
		response.Error(c, http.StatusBadRequest, response.CodePromptEmpty, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	case errors.Is(err, app.ErrStageNotAllowed):
		response.Error(c, http.StatusConflict, response.CodeStageNotAllowed, err.Error())
	case errors.Is(err, app.ErrEndpointNotConfigured):
		response.Error(c, http.StatusServiceUnavailable, response.CodeEndpointNotConfigured, err.Error())
	case errors.Is(err, app.ErrUpstream):
		response.Error(c, http.StatusBadGateway, response.CodeUpstream, err.Error())
	case errors.Is(err, app.ErrDiagram):
		response.Error(c, http.StatusBadGateway, response.CodeDiagram, err.Error())
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
