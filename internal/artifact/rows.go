package artifact

// Row is one fixed-width line of an artifact table.
type Row interface {
	Cells() []string
}

var (
	ComponentFunctionHeaders = []string{"Specification Category", "Component", "Function"}
	RequirementHeaders       = []string{"User Requirement ID", "User Need", "Technical Requirement ID", "Description"}
	FMEAHeaders              = []string{
		"ID", "Related Function", "Requirement", "Failure Mode", "Effects", "Severity",
		"Cause", "Occurrence", "Controls", "Detection", "RPN", "Recommended Actions",
	}
	DVPRHeaders = []string{"Related ID", "Test No", "Test Name", "Method", "Duration", "Acceptance Criteria"}
)

type ComponentFunctionRow struct {
	SpecificationCategory string `json:"specification_category"`
	Component             string `json:"component"`
	Function              string `json:"function"`
}

func (r ComponentFunctionRow) Cells() []string {
	return []string{r.SpecificationCategory, r.Component, r.Function}
}

type RequirementRow struct {
	UserReqID   string `json:"user_req_id"`
	UserNeed    string `json:"user_need"`
	TechReqID   string `json:"tech_req_id"`
	Description string `json:"description"`
}

func (r RequirementRow) Cells() []string {
	return []string{r.UserReqID, r.UserNeed, r.TechReqID, r.Description}
}

type FMEARow struct {
	ID                 string `json:"id"`
	RelatedFunction    string `json:"related_function"`
	Requirement        string `json:"requirement"`
	FailureMode        string `json:"failure_mode"`
	Effects            string `json:"effects"`
	Severity           string `json:"severity"`
	Cause              string `json:"cause"`
	Occurrence         string `json:"occurrence"`
	Controls           string `json:"controls"`
	Detection          string `json:"detection"`
	RPN                string `json:"rpn"`
	RecommendedActions string `json:"recommended_actions"`
}

func (r FMEARow) Cells() []string {
	return []string{
		r.ID, r.RelatedFunction, r.Requirement, r.FailureMode, r.Effects, r.Severity,
		r.Cause, r.Occurrence, r.Controls, r.Detection, r.RPN, r.RecommendedActions,
	}
}

type DVPRRow struct {
	RelatedID          string `json:"related_id"`
	TestNo             string `json:"test_no"`
	TestName           string `json:"test_name"`
	Method             string `json:"method"`
	Duration           string `json:"duration"`
	AcceptanceCriteria string `json:"acceptance_criteria"`
}

func (r DVPRRow) Cells() []string {
	return []string{r.RelatedID, r.TestNo, r.TestName, r.Method, r.Duration, r.AcceptanceCriteria}
}
