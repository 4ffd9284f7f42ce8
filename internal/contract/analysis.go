package contract

import (
	"encoding/json"
	"fmt"

	"obd-analyzer/internal/domain/entity"
	"obd-analyzer/internal/domain/fault"
	"obd-analyzer/internal/domain/port"
)

// AnalysisSchema единственное описание формы entity.AnalysisOutput.
func AnalysisSchema() *Node {
	return Object("Repair-oriented analysis of an OBD-II vehicle scan",
		Field("codes", Array("One finding per diagnostic trouble code, in scan order",
			Object("Finding for a single diagnostic trouble code",
				Field("code", String("Trouble code exactly as reported, e.g. P0420")),
				Field("description", String("Plain-language meaning of the code")),
				Field("module", String("Vehicle module that reported the code, e.g. ECM")),
				Field("severity", Enum("How serious the fault is", enumValues(entity.Severities())...)),
				Field("possibleCauses", Array("Likely causes, most probable first", String("Cause"))),
				Field("repairEstimate", Object("Estimated repair cost in USD",
					Field("description", String("Recommended repair")),
					Field("partsCost", Number("Parts cost in USD").Min(0)),
					Field("laborCost", Number("Labor cost in USD").Min(0)),
				)),
				Field("urgency", Enum("How soon the repair is needed", enumValues(entity.Urgencies())...)),
			),
		)),
		Field("emissionsCheck", Object("Emissions readiness verdict",
			Field("status", Enum("Whether the vehicle would pass an emissions inspection", enumValues(entity.EmissionsStatuses())...)),
			Field("testsPassed", Integer("Number of readiness monitors complete").Min(0)),
			Field("testsFailed", Integer("Number of readiness monitors incomplete or failed").Min(0)),
			Field("monitorStatus", String("Short summary of monitor readiness")),
		)),
		Field("mileageRisks", Array("Upcoming issues tied to mileage",
			Object("Mileage-related risk",
				Field("issue", String("Expected issue")),
				Field("costEstimateLow", Number("Lower bound of the cost in USD, not greater than costEstimateHigh").Min(0)),
				Field("costEstimateHigh", Number("Upper bound of the cost in USD").Min(0)),
				Field("mileageEstimate", Integer("Odometer reading at which the issue is expected").Min(0)),
			).With(costRangeRule),
		)),
		Field("modulesScanned", Array("Vehicle modules covered by the scan", String("Module name"))),
		Field("datapointsScanned", Integer("Number of datapoints considered").Min(0)),
		Field("summary", String("Two or three sentence overview for the vehicle owner")),
	)
}

var costRangeRule = Rule{
	Name: "costEstimateLow <= costEstimateHigh",
	Check: func(obj map[string]any) error {
		low, err := NumberField(obj, "costEstimateLow")
		if err != nil {
			return err
		}
		high, err := NumberField(obj, "costEstimateHigh")
		if err != nil {
			return err
		}
		if low > high {
			return fmt.Errorf("low %v exceeds high %v", low, high)
		}
		return nil
	},
}

// AnalysisContract отдаёт схему для запроса и проверяет ответ по той же схеме.
type AnalysisContract struct {
	schema  *Node
	request map[string]any
}

// NewAnalysisContract создаёт контракт. Создаётся один раз на процесс.
func NewAnalysisContract() *AnalysisContract {
	schema := AnalysisSchema()
	return &AnalysisContract{
		schema:  schema,
		request: schema.JSONSchema(),
	}
}

// Schema возвращает дерево схемы.
func (c *AnalysisContract) Schema() *Node {
	return c.schema
}

// RequestSchema возвращает JSON Schema для structured output. Менять результат нельзя.
func (c *AnalysisContract) RequestSchema() map[string]any {
	return c.request
}

// Validate проверяет ответ модели независимо от того, что проверила сама модель.
func (c *AnalysisContract) Validate(raw port.RawResult) (*entity.AnalysisOutput, error) {
	if violations := c.schema.Check(raw.Content); len(violations) > 0 {
		return nil, fault.New(fault.KindSchemaViolation, violations)
	}

	var out entity.AnalysisOutput
	if err := json.Unmarshal(raw.Content, &out); err != nil {
		return nil, fault.Newf(fault.KindSchemaViolation, "decode analysis: %w", err)
	}
	return &out, nil
}

func enumValues[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

var _ port.ResultValidator = (*AnalysisContract)(nil)
