package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sysdesign-ai/internal/ai"
	"sysdesign-ai/internal/artifact"
	"sysdesign-ai/internal/diagram"
	"sysdesign-ai/internal/export"
	"sysdesign-ai/internal/model"
	"sysdesign-ai/internal/pipeline"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrPromptEmpty           = errors.New("prompt is empty")
	ErrSessionNotFound       = errors.New("session not found")
	ErrStageNotAllowed       = errors.New("stage not allowed in current state")
	ErrUpstream              = errors.New("prediction endpoint failed")
	ErrDiagram               = errors.New("diagram generation failed")
	ErrEndpointNotConfigured = errors.New("prediction endpoint not configured")
	ErrExport                = errors.New("export failed")
)

// fallback key tried after the configured diagram key
const mermaidKey = "mermaid"

type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*model.PlanSession, bool, error)
	Save(ctx context.Context, session *model.PlanSession) error
	Delete(ctx context.Context, sessionID string) error
}

type Predictor interface {
	Query(ctx context.Context, url string, payload map[string]interface{}) (map[string]interface{}, error)
}

type ExportPublisher interface {
	Publish(ctx context.Context, export model.PlanExport) error
}

// Endpoints maps every stage to its prediction URL.
type Endpoints struct {
	Components          string
	Requirements        string
	ComponentDiagram    string
	FunctionDiagram     string
	FMEA                string
	DVPR                string
	ComponentDiagramKey string
	FunctionDiagramKey  string
}

type ExportResult struct {
	FileName string
	Content  []byte
}

type PlanService struct {
	store      SessionStore
	predictor  Predictor
	publisher  ExportPublisher
	endpoints  Endpoints
	filePrefix string
	logger     *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewPlanService(
	store SessionStore,
	predictor Predictor,
	publisher ExportPublisher,
	endpoints Endpoints,
	filePrefix string,
	logger *zap.Logger,
) *PlanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if endpoints.ComponentDiagramKey == "" {
		endpoints.ComponentDiagramKey = "component_diagram"
	}
	if endpoints.FunctionDiagramKey == "" {
		endpoints.FunctionDiagramKey = "function_diagram"
	}
	return &PlanService{
		store:      store,
		predictor:  predictor,
		publisher:  publisher,
		endpoints:  endpoints,
		filePrefix: filePrefix,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (s *PlanService) Start(ctx context.Context) (*model.PlanSession, error) {
	session := model.NewPlanSession(s.newID(), s.now())
	if err := s.store.Save(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("plan session started", zap.String("session_id", session.ID))
	return session, nil
}

func (s *PlanService) Get(ctx context.Context, sessionID string) (*model.PlanSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidInput
	}
	session, found, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *PlanService) End(ctx context.Context, sessionID string) error {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return err
	}
	return s.store.Delete(ctx, sessionID)
}

// ImportBrief sets the prompt from the text of an uploaded brief. It is only
// accepted before components exist, so the prompt on record is always the one
// the components were generated from.
func (s *PlanService) ImportBrief(ctx context.Context, sessionID, text string) (*model.PlanSession, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != pipeline.StateIdle || session.Locked {
		return nil, fmt.Errorf("%w: brief can only be imported before components are generated", ErrStageNotAllowed)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrPromptEmpty
	}

	session.Prompt = text
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Generate produces the components/functions table from prompt. It can be
// repeated until the session is locked; once locked it returns the session
// untouched without calling the endpoint. An empty prompt reuses the stored
// one.
func (s *PlanService) Generate(ctx context.Context, sessionID, prompt string) (*model.PlanSession, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Locked {
		s.logger.Debug("components locked, generate ignored", zap.String("session_id", session.ID))
		return session, nil
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = session.Prompt
	}
	if prompt == "" {
		return nil, ErrPromptEmpty
	}

	next := session.State
	if session.State != pipeline.StateComponentsReady {
		next, err = s.nextState(session, pipeline.EventGenerate)
		if err != nil {
			return nil, err
		}
	}

	body, err := s.dispatch(ctx, session, "components", s.endpoints.Components, prompt)
	if err != nil {
		return nil, err
	}

	session.Prompt = prompt
	session.Components = artifact.NormalizeComponents(body)
	session.State = next
	s.logTable(session, "components", session.Components.Status, len(session.Components.Rows))
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// DeriveRequirements locks the components table and derives engineering
// requirements from it. The lock stays even if the endpoint call fails.
func (s *PlanService) DeriveRequirements(ctx context.Context, sessionID string) (*model.PlanSession, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := s.nextState(session, pipeline.EventDeriveRequirements)
	if err != nil {
		return nil, err
	}

	if !session.Locked {
		session.Locked = true
		if err := s.save(ctx, session); err != nil {
			return nil, err
		}
	}

	question, err := componentsQuestion(session.Components.Rows)
	if err != nil {
		return nil, err
	}
	body, err := s.dispatch(ctx, session, "requirements", s.endpoints.Requirements, question)
	if err != nil {
		return nil, err
	}

	session.Requirements = artifact.NormalizeRequirements(body)
	session.State = next
	s.logTable(session, "requirements", session.Requirements.Status, len(session.Requirements.Rows))
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *PlanService) DrawComponentDiagram(ctx context.Context, sessionID string) (*model.PlanSession, error) {
	return s.drawDiagram(ctx, sessionID, pipeline.EventDrawComponentDiagram, "component_diagram",
		s.endpoints.ComponentDiagram, s.endpoints.ComponentDiagramKey,
		func(session *model.PlanSession, p *diagram.Payload) { session.ComponentDiagram = p })
}

func (s *PlanService) DrawFunctionDiagram(ctx context.Context, sessionID string) (*model.PlanSession, error) {
	return s.drawDiagram(ctx, sessionID, pipeline.EventDrawFunctionDiagram, "function_diagram",
		s.endpoints.FunctionDiagram, s.endpoints.FunctionDiagramKey,
		func(session *model.PlanSession, p *diagram.Payload) { session.FunctionDiagram = p })
}

func (s *PlanService) drawDiagram(
	ctx context.Context,
	sessionID, event, stage, url, key string,
	assign func(*model.PlanSession, *diagram.Payload),
) (*model.PlanSession, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := s.nextState(session, event)
	if err != nil {
		return nil, err
	}

	question, err := componentsQuestion(session.Components.Rows)
	if err != nil {
		return nil, err
	}
	body, err := s.dispatch(ctx, session, stage, url, question)
	if err != nil {
		return nil, err
	}

	payload, err := diagram.FromResponse(body, key, mermaidKey)
	if err != nil {
		s.logger.Warn("diagram stage failed",
			zap.String("session_id", session.ID),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrDiagram, err)
	}

	assign(session, &payload)
	session.State = next
	s.logger.Info("diagram stage finished",
		zap.String("session_id", session.ID),
		zap.String("stage", stage),
		zap.Int("edges", len(payload.Graph.Edges)),
	)
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *PlanService) AnalyzeFMEA(ctx context.Context, sessionID string) (*model.PlanSession, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := s.nextState(session, pipeline.EventAnalyzeFMEA)
	if err != nil {
		return nil, err
	}

	question, err := componentsQuestion(session.Components.Rows)
	if err != nil {
		return nil, err
	}
	body, err := s.dispatch(ctx, session, "fmea", s.endpoints.FMEA, question)
	if err != nil {
		return nil, err
	}

	session.FMEA = artifact.NormalizeFMEA(body)
	session.State = next
	s.logTable(session, "fmea", session.FMEA.Status, len(session.FMEA.Rows))
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *PlanService) PlanDVPR(ctx context.Context, sessionID string) (*model.PlanSession, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := s.nextState(session, pipeline.EventPlanDVPR)
	if err != nil {
		return nil, err
	}

	question := dvprQuestion(session.Requirements, session.FMEA)
	body, err := s.dispatch(ctx, session, "dvpr", s.endpoints.DVPR, question)
	if err != nil {
		return nil, err
	}

	session.DVPR = artifact.NormalizeDVPR(body)
	session.State = next
	s.logTable(session, "dvpr", session.DVPR.Status, len(session.DVPR.Rows))
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Export renders the workbook. The first export moves the session to its
// terminal state and announces the export; later calls re-render the same
// file without either.
func (s *PlanService) Export(ctx context.Context, sessionID string) (*ExportResult, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	repeat := pipeline.IsTerminal(session.State)
	next := session.State
	if !repeat {
		next, err = s.nextState(session, pipeline.EventExport)
		if err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, PlanOf(session)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExport, err)
	}

	result := &ExportResult{FileName: session.ExportedFile, Content: buf.Bytes()}
	if repeat {
		return result, nil
	}

	exportedAt := s.now()
	result.FileName = export.FileName(s.filePrefix, session.ID, exportedAt)
	session.ExportedFile = result.FileName
	session.State = next
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}

	s.archive(ctx, session, exportedAt)
	return result, nil
}

// PlanOf collects the displayed rows of every stage for the workbook.
func PlanOf(session *model.PlanSession) export.Plan {
	return export.Plan{
		Prompt:       session.Prompt,
		Components:   session.Components.Display(len(artifact.ComponentFunctionHeaders)),
		Requirements: session.Requirements.Display(len(artifact.RequirementHeaders)),
		FMEA:         session.FMEA.Display(len(artifact.FMEAHeaders)),
		DVPR:         session.DVPR.Display(len(artifact.DVPRHeaders)),
	}
}

// AvailableActions lists the events the session accepts right now.
func AvailableActions(session *model.PlanSession) []string {
	var actions []string
	if !session.Locked && (session.State == pipeline.StateIdle || session.State == pipeline.StateComponentsReady) {
		actions = append(actions, pipeline.EventGenerate)
	}
	for _, event := range []string{
		pipeline.EventDeriveRequirements,
		pipeline.EventDrawComponentDiagram,
		pipeline.EventDrawFunctionDiagram,
		pipeline.EventAnalyzeFMEA,
		pipeline.EventPlanDVPR,
		pipeline.EventExport,
	} {
		if _, err := pipeline.Next(session.State, event, session.Outputs()); err == nil {
			actions = append(actions, event)
		}
	}
	if pipeline.IsTerminal(session.State) {
		actions = append(actions, pipeline.EventExport)
	}
	return actions
}

func (s *PlanService) nextState(session *model.PlanSession, event string) (string, error) {
	next, err := pipeline.Next(session.State, event, session.Outputs())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStageNotAllowed, err)
	}
	return next, nil
}

func (s *PlanService) dispatch(ctx context.Context, session *model.PlanSession, stage, url, question string) (map[string]interface{}, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEndpointNotConfigured, stage)
	}

	s.logger.Info("stage started", zap.String("session_id", session.ID), zap.String("stage", stage))
	body, err := s.predictor.Query(ctx, url, ai.Question(question))
	if err != nil {
		s.logger.Warn("stage request failed",
			zap.String("session_id", session.ID),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if msg, failed := ai.ErrorMessage(body); failed {
		s.logger.Warn("stage returned error",
			zap.String("session_id", session.ID),
			zap.String("stage", stage),
			zap.String("error", msg),
		)
		return nil, fmt.Errorf("%w: %s", ErrUpstream, msg)
	}
	return body, nil
}

func (s *PlanService) save(ctx context.Context, session *model.PlanSession) error {
	session.UpdatedAt = s.now()
	err := s.store.Save(ctx, session)
	if errors.Is(err, model.ErrSessionChanged) {
		s.logger.Warn("stale session save rejected", zap.String("session_id", session.ID))
		return fmt.Errorf("%w: %v", ErrStageNotAllowed, err)
	}
	return err
}

func (s *PlanService) archive(ctx context.Context, session *model.PlanSession, exportedAt time.Time) {
	if s.publisher == nil {
		return
	}
	event := model.PlanExport{
		SessionID:       session.ID,
		Prompt:          session.Prompt,
		FileName:        session.ExportedFile,
		ComponentRows:   len(session.Components.Rows),
		RequirementRows: len(session.Requirements.Rows),
		FMEARows:        len(session.FMEA.Rows),
		DVPRRows:        len(session.DVPR.Rows),
		ExportedAt:      exportedAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish export event failed", zap.String("session_id", session.ID), zap.Error(err))
	}
}

func (s *PlanService) logTable(session *model.PlanSession, stage string, status artifact.Status, rows int) {
	s.logger.Info("stage finished",
		zap.String("session_id", session.ID),
		zap.String("stage", stage),
		zap.String("status", string(status)),
		zap.Int("rows", rows),
	)
}
