package artifact

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	keyComponents   = "components_and_functions"
	keyRequirements = "engineering_requirements"
	keyFMEA         = "fmea"
	keyDVPR         = "dvpr"

	reasonDecode = "Error decoding JSON from 'text' field."
)

// NormalizeComponents maps a components/functions response to rows.
func NormalizeComponents(body map[string]interface{}) Table[ComponentFunctionRow] {
	return normalize(body, objectKey(keyComponents), noDataReason(keyComponents),
		func(e map[string]interface{}) ComponentFunctionRow {
			return ComponentFunctionRow{
				SpecificationCategory: cell(e, "specification_category"),
				Component:             cell(e, "component"),
				Function:              cell(e, "function"),
			}
		})
}

// NormalizeRequirements maps an engineering requirements response to rows.
// The endpoint answers with a bare array; an object wrapping the array under
// "engineering_requirements" is accepted too.
func NormalizeRequirements(body map[string]interface{}) Table[RequirementRow] {
	return normalize(body, topLevelOr(keyRequirements), "No engineering requirements found in the response.",
		func(e map[string]interface{}) RequirementRow {
			return RequirementRow{
				UserReqID:   cell(e, "user_req_id"),
				UserNeed:    cell(e, "user_need"),
				TechReqID:   cell(e, "tech_req_id"),
				Description: cell(e, "description"),
			}
		})
}

// NormalizeFMEA maps an FMEA response to rows.
func NormalizeFMEA(body map[string]interface{}) Table[FMEARow] {
	return normalize(body, objectKey(keyFMEA), noDataReason(keyFMEA),
		func(e map[string]interface{}) FMEARow {
			return FMEARow{
				ID:                 cell(e, "id"),
				RelatedFunction:    cell(e, "related_function"),
				Requirement:        cell(e, "requirement"),
				FailureMode:        cell(e, "failure_mode"),
				Effects:            cell(e, "effects"),
				Severity:           cell(e, "severity"),
				Cause:              cell(e, "cause"),
				Occurrence:         cell(e, "occurrence"),
				Controls:           cell(e, "controls"),
				Detection:          cell(e, "detection"),
				RPN:                cell(e, "rpn"),
				RecommendedActions: cell(e, "recommended_actions"),
			}
		})
}

// NormalizeDVPR maps a DVP&R response to rows.
func NormalizeDVPR(body map[string]interface{}) Table[DVPRRow] {
	return normalize(body, objectKey(keyDVPR), noDataReason(keyDVPR),
		func(e map[string]interface{}) DVPRRow {
			return DVPRRow{
				RelatedID:          cell(e, "related_id"),
				TestNo:             cell(e, "test_no"),
				TestName:           cell(e, "test_name"),
				Method:             cell(e, "method"),
				Duration:           cell(e, "duration"),
				AcceptanceCriteria: cell(e, "acceptance_criteria"),
			}
		})
}

type locator func(parsed interface{}) []interface{}

func normalize[R Row](body map[string]interface{}, locate locator, emptyReason string, build func(map[string]interface{}) R) Table[R] {
	text, found := TextField(body)
	if !found {
		return noDataTable[R](emptyReason)
	}

	parsed, err := DecodeText(text)
	if err != nil {
		return malformedTable[R](reasonDecode)
	}

	entries := locate(parsed)
	if len(entries) == 0 {
		return noDataTable[R](emptyReason)
	}

	rows := make([]R, 0, len(entries))
	for _, entry := range entries {
		fields, _ := entry.(map[string]interface{})
		rows = append(rows, build(fields))
	}
	return okTable(rows)
}

func objectKey(key string) locator {
	return func(parsed interface{}) []interface{} {
		obj, isObject := parsed.(map[string]interface{})
		if !isObject {
			return nil
		}
		entries, _ := obj[key].([]interface{})
		return entries
	}
}

func topLevelOr(key string) locator {
	nested := objectKey(key)
	return func(parsed interface{}) []interface{} {
		if entries, isArray := parsed.([]interface{}); isArray {
			return entries
		}
		return nested(parsed)
	}
}

func noDataReason(key string) string {
	return fmt.Sprintf("No data found in the '%s' key.", key)
}

// cell renders one field; absent or null fields become "".
func cell(entry map[string]interface{}, key string) string {
	value, found := entry[key]
	if !found || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}
