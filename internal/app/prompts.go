package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"sysdesign-ai/internal/artifact"
)

// componentsQuestion re-serializes the stage-1 rows in the shape the
// endpoints were trained on.
func componentsQuestion(rows []artifact.ComponentFunctionRow) (string, error) {
	if rows == nil {
		rows = []artifact.ComponentFunctionRow{}
	}
	payload := struct {
		ComponentsAndFunctions []artifact.ComponentFunctionRow `json:"components_and_functions"`
	}{ComponentsAndFunctions: rows}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal components question failed: %w", err)
	}
	return string(encoded), nil
}

func dvprQuestion(requirements artifact.Table[artifact.RequirementRow], fmea artifact.Table[artifact.FMEARow]) string {
	var b strings.Builder
	b.WriteString("Create a Design Verification Plan and Report (DVP&R) for the engineering requirements and FMEA below. ")
	b.WriteString("Answer with a JSON object holding a \"dvpr\" array; every entry has related_id, test_no, test_name, method, duration and acceptance_criteria.\n\n")

	b.WriteString("Engineering Requirements:\n")
	if len(requirements.Rows) == 0 {
		fmt.Fprintf(&b, "- %s\n", placeholderText(requirements.Reason))
	}
	for _, r := range requirements.Rows {
		fmt.Fprintf(&b, "- %s (%s) -> %s: %s\n", r.UserReqID, r.UserNeed, r.TechReqID, r.Description)
	}

	b.WriteString("\nFMEA:\n")
	if len(fmea.Rows) == 0 {
		fmt.Fprintf(&b, "- %s\n", placeholderText(fmea.Reason))
	}
	for _, r := range fmea.Rows {
		fmt.Fprintf(&b, "- %s | function: %s | requirement: %s | failure mode: %s | effects: %s | severity: %s | cause: %s | occurrence: %s | controls: %s | detection: %s | RPN: %s | actions: %s\n",
			r.ID, r.RelatedFunction, r.Requirement, r.FailureMode, r.Effects, r.Severity,
			r.Cause, r.Occurrence, r.Controls, r.Detection, r.RPN, r.RecommendedActions)
	}
	return b.String()
}

func placeholderText(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return "none"
	}
	return reason
}
