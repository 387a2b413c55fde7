package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sysdesign-ai/internal/ai"
	"sysdesign-ai/internal/artifact"
	"sysdesign-ai/internal/export"
	"sysdesign-ai/internal/model"
	"sysdesign-ai/internal/pipeline"
)

// memoryStore keeps encoded copies so the service cannot mutate stored state
// behind the store's back.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: map[string][]byte{}}
}

func (m *memoryStore) Get(ctx context.Context, id string) (*model.PlanSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, found := m.sessions[id]
	if !found {
		return nil, false, nil
	}
	var s model.PlanSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (m *memoryStore) Save(ctx context.Context, s *model.PlanSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stored struct {
		Version int64 `json:"version"`
	}
	if raw, found := m.sessions[s.ID]; found {
		if err := json.Unmarshal(raw, &stored); err != nil {
			return err
		}
	}
	if stored.Version != s.Version {
		return model.ErrSessionChanged
	}
	next := *s
	next.Version++
	raw, err := json.Marshal(&next)
	if err != nil {
		return err
	}
	m.sessions[s.ID] = raw
	s.Version = next.Version
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

type predictorMock struct {
	QueryFunc func(url, question string) (map[string]interface{}, error)

	mu    sync.Mutex
	calls []string
}

func (m *predictorMock) Query(ctx context.Context, url string, payload map[string]interface{}) (map[string]interface{}, error) {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	m.mu.Unlock()
	question, _ := payload["question"].(string)
	return m.QueryFunc(url, question)
}

type publisherMock struct {
	published []model.PlanExport
	err       error
}

func (m *publisherMock) Publish(ctx context.Context, export model.PlanExport) error {
	m.published = append(m.published, export)
	return m.err
}

func testEndpoints(base string) Endpoints {
	return Endpoints{
		Components:       base + "/components",
		Requirements:     base + "/requirements",
		ComponentDiagram: base + "/component-diagram",
		FunctionDiagram:  base + "/function-diagram",
		FMEA:             base + "/fmea",
		DVPR:             base + "/dvpr",
	}
}

func newTestService(t *testing.T, predictor Predictor, publisher ExportPublisher) (*PlanService, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	svc := NewPlanService(store, predictor, publisher, testEndpoints("http://upstream"), "experimentation_plan", nil)
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return svc, store
}

func text(s string) map[string]interface{} {
	return map[string]interface{}{"text": s}
}

const componentsAnswer = "```json\n" + `{"components_and_functions":[
	{"specification_category":"Thermal","component":"Heater","function":"Heat water"},
	{"specification_category":"Fluid","component":"Pump","function":"Move water"},
	{"specification_category":"Control","component":"Controller","function":"Sequence brew"}
]}` + "\n```"

const requirementsAnswer = "```json\n" + `[
	{"user_req_id":"U1","user_need":"Hot coffee","tech_req_id":"T1","description":"Brew at 92C"},
	{"user_req_id":"U2","user_need":"Quick","tech_req_id":"T2","description":"Brew under 5 min"},
	{"user_req_id":"U3","user_need":"Safe","tech_req_id":"T3","description":"Auto shutoff"},
	{"user_req_id":"U4","user_need":"Quiet","tech_req_id":"T4","description":"Below 50 dB"}
]` + "\n```"

const fmeaAnswer = "```json\n" + `{"fmea":[
	{"id":"F1","related_function":"Heat water","requirement":"T1","failure_mode":"No heat","effects":"Cold coffee","severity":7,"cause":"Open element","occurrence":3,"controls":"Fuse","detection":4,"rpn":84,"recommended_actions":"Add sensor"},
	{"id":"F2","related_function":"Move water","requirement":"T2","failure_mode":"Pump stall","effects":"No brew","severity":6,"cause":"Scale","occurrence":4,"controls":"Descale alert","detection":3,"rpn":72,"recommended_actions":"Filter"}
]}` + "\n```"

const dvprAnswer = "```json\n" + `{"dvpr":[
	{"related_id":"F1","test_no":"1","test_name":"Heat-up","method":"Bench","duration":"2h","acceptance_criteria":"92C within 3 min"},
	{"related_id":"F2","test_no":"2","test_name":"Scale life","method":"Accelerated","duration":"10d","acceptance_criteria":"No stall"}
]}` + "\n```"

func TestPlanService_EndToEndCoffeeMaker(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	questions := map[string]string{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]string
		if err := json.Unmarshal(raw, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		mu.Lock()
		calls[r.URL.Path]++
		questions[r.URL.Path] = payload["question"]
		mu.Unlock()

		var answer string
		switch r.URL.Path {
		case "/components":
			answer = componentsAnswer
		case "/requirements":
			answer = requirementsAnswer
		case "/component-diagram":
			answer = "```json\n{\"component_diagram\": \"graph TD\\nHeater[Heater]-->Boiler\\nBoiler-->Pump\"}\n```"
		case "/function-diagram":
			answer = `{"mermaid": "flowchart LR\nHeat-->Brew"}`
		case "/fmea":
			answer = fmeaAnswer
		case "/dvpr":
			answer = dvprAnswer
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": answer})
	}))
	defer srv.Close()

	store := newMemoryStore()
	publisher := &publisherMock{}
	svc := NewPlanService(store, ai.NewPredictionClient(5*time.Second, nil), publisher, testEndpoints(srv.URL), "experimentation_plan", nil)
	ctx := context.Background()

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateIdle, session.State)

	session, err = svc.Generate(ctx, session.ID, "Generate experimentation plan for a coffee maker")
	require.NoError(t, err)
	require.Len(t, session.Components.Rows, 3)
	assert.Equal(t, pipeline.StateComponentsReady, session.State)
	assert.Equal(t, "Generate experimentation plan for a coffee maker", questions["/components"])

	session, err = svc.DeriveRequirements(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, session.Locked)
	require.Len(t, session.Requirements.Rows, 4)

	var sent struct {
		Rows []artifact.ComponentFunctionRow `json:"components_and_functions"`
	}
	require.NoError(t, json.Unmarshal([]byte(questions["/requirements"]), &sent))
	assert.Equal(t, session.Components.Rows, sent.Rows)

	session, err = svc.DrawComponentDiagram(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, session.ComponentDiagram)
	assert.Len(t, session.ComponentDiagram.Graph.Edges, 2)

	session, err = svc.DrawFunctionDiagram(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, session.FunctionDiagram)
	assert.Equal(t, "Heat", session.FunctionDiagram.Graph.Edges[0].From)

	session, err = svc.AnalyzeFMEA(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, session.FMEA.Rows, 2)
	assert.Equal(t, "84", session.FMEA.Rows[0].RPN)

	session, err = svc.PlanDVPR(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, session.DVPR.Rows, 2)
	assert.Equal(t, pipeline.StateDVPRReady, session.State)
	assert.Contains(t, questions["/dvpr"], "U1 (Hot coffee) -> T1: Brew at 92C")
	assert.Contains(t, questions["/dvpr"], "F2 | function: Move water")

	result, err := svc.Export(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.FileName, ".xlsx"))

	f, err := excelize.OpenReader(bytes.NewReader(result.Content))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{
		export.SheetPrompt, export.SheetComponents, export.SheetRequirements, export.SheetFMEA, export.SheetDVPR,
	}, f.GetSheetList())
	fmeaRows, err := f.GetRows(export.SheetFMEA)
	require.NoError(t, err)
	assert.Len(t, fmeaRows, 3)

	stored, err := svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateExported, stored.State)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, 2, publisher.published[0].FMEARows)
	assert.Equal(t, 4, publisher.published[0].RequirementRows)

	for path, n := range calls {
		assert.Equal(t, 1, n, path)
	}
}

func TestPlanService_GenerateIsNoOpOnceLocked(t *testing.T) {
	predictor := &predictorMock{QueryFunc: func(url, question string) (map[string]interface{}, error) {
		if strings.HasSuffix(url, "/components") {
			return text(componentsAnswer), nil
		}
		return nil, errors.New("connection reset")
	}}
	svc, _ := newTestService(t, predictor, nil)
	ctx := context.Background()

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	session, err = svc.Generate(ctx, session.ID, "coffee maker")
	require.NoError(t, err)
	before := session.Components

	// the requirements call fails, the lock still holds
	_, err = svc.DeriveRequirements(ctx, session.ID)
	require.ErrorIs(t, err, ErrUpstream)

	callsBefore := len(predictor.calls)
	session, err = svc.Generate(ctx, session.ID, "a completely different kettle")
	require.NoError(t, err)

	assert.Len(t, predictor.calls, callsBefore)
	assert.True(t, session.Locked)
	assert.Equal(t, before, session.Components)
	assert.Equal(t, "coffee maker", session.Prompt)
	assert.Equal(t, pipeline.StateComponentsReady, session.State)
}

func TestPlanService_RegenerateWhileUnlocked(t *testing.T) {
	predictor := &predictorMock{QueryFunc: func(url, question string) (map[string]interface{}, error) {
		return text(componentsAnswer), nil
	}}
	svc, _ := newTestService(t, predictor, nil)
	ctx := context.Background()

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.Generate(ctx, session.ID, "coffee maker")
	require.NoError(t, err)
	session, err = svc.Generate(ctx, session.ID, "")
	require.NoError(t, err)

	assert.Len(t, predictor.calls, 2)
	assert.Equal(t, "coffee maker", session.Prompt)
	assert.Equal(t, pipeline.StateComponentsReady, session.State)
}

func TestPlanService_InvalidResponseHaltsStage(t *testing.T) {
	predictor := &predictorMock{QueryFunc: func(url, question string) (map[string]interface{}, error) {
		return map[string]interface{}{"error": ai.InvalidResponseMessage}, nil
	}}
	svc, _ := newTestService(t, predictor, nil)
	ctx := context.Background()

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.Generate(ctx, session.ID, "coffee maker")
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), ai.InvalidResponseMessage)

	stored, err := svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateIdle, stored.State)
	assert.False(t, stored.Components.Present())
}

func TestPlanService_MalformedTableStillAdvances(t *testing.T) {
	var requirementsQuestion string
	predictor := &predictorMock{QueryFunc: func(url, question string) (map[string]interface{}, error) {
		if strings.HasSuffix(url, "/components") {
			return text("```json\n{\"components_and_functions\": [\n```"), nil
		}
		requirementsQuestion = question
		return text(`{"unexpected": true}`), nil
	}}
	svc, _ := newTestService(t, predictor, nil)
	ctx := context.Background()

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	session, err = svc.Generate(ctx, session.ID, "coffee maker")
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusMalformed, session.Components.Status)
	assert.Equal(t, pipeline.StateComponentsReady, session.State)

	session, err = svc.DeriveRequirements(ctx, session.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"components_and_functions":[]}`, requirementsQuestion)
	assert.Equal(t, artifact.StatusNoData, session.Requirements.Status)
	assert.Equal(t, pipeline.StateRequirementsReady, session.State)
}

func TestPlanService_OutOfOrderStageMakesNoCall(t *testing.T) {
	predictor := &predictorMock{QueryFunc: func(url, question string) (map[string]interface{}, error) {
		return text(componentsAnswer), nil
	}}
	svc, _ := newTestService(t, predictor, nil)
	ctx := context.Background()

	session, err := svc.Start(ctx)
	require.NoError(t, err)

	_, err = svc.DeriveRequirements(ctx, session.ID)
	assert.ErrorIs(t, err, ErrStageNotAllowed)
	_, err = svc.AnalyzeFMEA(ctx, session.ID)
	assert.ErrorIs(t, err, ErrStageNotAllowed)
	_, err = svc.Export(ctx, session.ID)
	assert.ErrorIs(t, err, ErrStageNotAllowed)
	assert.Empty(t, predictor.calls)

	stored, err := svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, stored.Locked)
}

func TestPlanService_DiagramFailureKeepsState(t *testing.T) {
	predictor := &predictorMock{QueryFunc: func(url, question string) (map[string]interface{}, error) {
		switch {
		case strings.HasSuffix(url, "/components"):
			return text(componentsAnswer), nil
		case strings.HasSuffix(url, "/requirements"):
			return text(requirementsAnswer), nil
		default:
			return text(`{"diagram_in_wrong_key": "graph TD\nA-->B"}`), nil
		}
	}}
	svc, _ := newTestService(t, predictor, nil)
	ctx := context.Background()

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.Generate(ctx, session.ID, "coffee maker")
	require.NoError(t, err)
	_, err = svc.DeriveRequirements(ctx, session.ID)
	require.NoError(t, err)

	_, err = svc.DrawComponentDiagram(ctx, session.ID)
	require.ErrorIs(t, err, ErrDiagram)

	stored, err := svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateRequirementsReady, stored.State)
	assert.Nil(t, stored.ComponentDiagram)
}

func TestPlanService_EndpointNotConfigured(t *testing.T) {
	predictor := &predictorMock{QueryFunc: func(url, question string) (map[string]interface{}, error) {
		return text(componentsAnswer), nil
	}}
	store := newMemoryStore()
	svc := NewPlanService(store, predictor, nil, Endpoints{}, "", nil)
	ctx := context.Background()

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.Generate(ctx, session.ID, "coffee maker")
	assert.ErrorIs(t, err, ErrEndpointNotConfigured)
	assert.Empty(t, predictor.calls)
}

func TestPlanService_ExportTwiceRendersSameFile(t *testing.T) {
	svc, store := newTestService(t, &predictorMock{}, &publisherMock{err: errors.New("broker down")})
	ctx := context.Background()

	session := model.NewPlanSession("s-export", time.Now())
	session.Prompt = "coffee maker"
	session.State = pipeline.StateDVPRReady
	session.Components = artifact.NormalizeComponents(text(componentsAnswer))
	session.Requirements = artifact.NormalizeRequirements(text(requirementsAnswer))
	session.FMEA = artifact.NormalizeFMEA(text(`{"fmea": []}`))
	session.DVPR = artifact.NormalizeDVPR(text(dvprAnswer))
	require.NoError(t, store.Save(ctx, session))

	first, err := svc.Export(ctx, session.ID)
	require.NoError(t, err, "publish failures must not fail the download")
	second, err := svc.Export(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, first.FileName, second.FileName)
	assert.Equal(t, "experimentation_plan_s-export_20261019T120000Z.xlsx", first.FileName)
	assert.Len(t, svc.publisher.(*publisherMock).published, 1)

	f, err := excelize.OpenReader(bytes.NewReader(second.Content))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetFMEA)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "No data found in the 'fmea' key.", rows[1][0])
}

func TestPlanService_ImportBrief(t *testing.T) {
	svc, _ := newTestService(t, &predictorMock{}, nil)
	ctx := context.Background()

	session, err := svc.Start(ctx)
	require.NoError(t, err)

	session, err = svc.ImportBrief(ctx, session.ID, "  A drip coffee maker for offices  ")
	require.NoError(t, err)
	assert.Equal(t, "A drip coffee maker for offices", session.Prompt)
	assert.Equal(t, pipeline.StateIdle, session.State)

	_, err = svc.ImportBrief(ctx, session.ID, "   ")
	assert.ErrorIs(t, err, ErrPromptEmpty)
}

func TestPlanService_ImportBriefRefusedOnceComponentsExist(t *testing.T) {
	predictor := &predictorMock{QueryFunc: func(url, question string) (map[string]interface{}, error) {
		return text(componentsAnswer), nil
	}}
	svc, _ := newTestService(t, predictor, nil)
	ctx := context.Background()

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.Generate(ctx, session.ID, "coffee maker")
	require.NoError(t, err)

	_, err = svc.ImportBrief(ctx, session.ID, "industrial kettle brief")
	require.ErrorIs(t, err, ErrStageNotAllowed)

	stored, err := svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "coffee maker", stored.Prompt)
	assert.Len(t, stored.Components.Rows, 3)
	assert.Equal(t, "coffee maker", PlanOf(stored).Prompt)
}

func TestPlanService_StaleGenerateCannotUndoLock(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	predictor := &predictorMock{QueryFunc: func(url, question string) (map[string]interface{}, error) {
		switch {
		case strings.HasSuffix(url, "/components") && question == "slow":
			close(entered)
			<-release
			return text(componentsAnswer), nil
		case strings.HasSuffix(url, "/components"):
			return text(componentsAnswer), nil
		default:
			return text(requirementsAnswer), nil
		}
	}}
	svc, _ := newTestService(t, predictor, nil)
	ctx := context.Background()

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.Generate(ctx, session.ID, "coffee maker")
	require.NoError(t, err)

	slowErr := make(chan error, 1)
	go func() {
		_, err := svc.Generate(ctx, session.ID, "slow")
		slowErr <- err
	}()
	<-entered

	locked, err := svc.DeriveRequirements(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, locked.Locked)

	close(release)
	assert.ErrorIs(t, <-slowErr, ErrStageNotAllowed)

	stored, err := svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, stored.Locked)
	assert.Equal(t, pipeline.StateRequirementsReady, stored.State)
	assert.Equal(t, "coffee maker", stored.Prompt)
	assert.Len(t, stored.Requirements.Rows, 4)
}

func TestPlanService_SessionLifecycle(t *testing.T) {
	svc, _ := newTestService(t, &predictorMock{}, nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Get(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	session, err := svc.Start(ctx)
	require.NoError(t, err)
	_, err = svc.Generate(ctx, session.ID, "")
	assert.ErrorIs(t, err, ErrPromptEmpty)

	require.NoError(t, svc.End(ctx, session.ID))
	_, err = svc.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAvailableActions(t *testing.T) {
	session := model.NewPlanSession("s", time.Now())
	assert.Equal(t, []string{pipeline.EventGenerate}, AvailableActions(session))

	session.State = pipeline.StateComponentsReady
	session.Components = artifact.NormalizeComponents(text(componentsAnswer))
	assert.Equal(t, []string{pipeline.EventGenerate, pipeline.EventDeriveRequirements}, AvailableActions(session))

	session.Locked = true
	assert.Equal(t, []string{pipeline.EventDeriveRequirements}, AvailableActions(session))

	session.State = pipeline.StateExported
	assert.Equal(t, []string{pipeline.EventExport}, AvailableActions(session))
}
