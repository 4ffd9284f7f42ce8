package entity

// Severity насколько серьёзна неисправность.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// Urgency как скоро нужен ремонт.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencySoon      Urgency = "soon"
	UrgencyMonitor   Urgency = "monitor"
)

// EmissionsStatus итог проверки готовности мониторов выбросов.
type EmissionsStatus string

const (
	EmissionsPass EmissionsStatus = "pass"
	EmissionsFail EmissionsStatus = "fail"
)

// Severities возвращает допустимые значения Severity в фиксированном порядке.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityModerate, SeverityMinor}
}

// Urgencies возвращает допустимые значения Urgency в фиксированном порядке.
func Urgencies() []Urgency {
	return []Urgency{UrgencyImmediate, UrgencySoon, UrgencyMonitor}
}

// EmissionsStatuses возвращает допустимые значения EmissionsStatus.
func EmissionsStatuses() []EmissionsStatus {
	return []EmissionsStatus{EmissionsPass, EmissionsFail}
}

// AnalysisOutput проверенный результат анализа скана.
// После успешной валидации не изменяется.
type AnalysisOutput struct {
	Codes             []CodeFinding    `json:"codes"`
	EmissionsCheck    EmissionsFinding `json:"emissionsCheck"`
	MileageRisks      []MileageRisk    `json:"mileageRisks"`
	ModulesScanned    []string         `json:"modulesScanned"`
	DatapointsScanned int              `json:"datapointsScanned"`
	Summary           string           `json:"summary"`
}

// CodeFinding разбор одного кода неисправности.
type CodeFinding struct {
	Code           string         `json:"code"`
	Description    string         `json:"description"`
	Module         string         `json:"module"`
	Severity       Severity       `json:"severity"`
	PossibleCauses []string       `json:"possibleCauses"`
	RepairEstimate RepairEstimate `json:"repairEstimate"`
	Urgency        Urgency        `json:"urgency"`
}

// RepairEstimate оценка стоимости ремонта.
type RepairEstimate struct {
	Description string  `json:"description"`
	PartsCost   float64 `json:"partsCost"`
	LaborCost   float64 `json:"laborCost"`
}

// Total возвращает полную стоимость ремонта.
func (r RepairEstimate) Total() float64 {
	return r.PartsCost + r.LaborCost
}

// EmissionsFinding состояние мониторов выбросов.
type EmissionsFinding struct {
	Status        EmissionsStatus `json:"status"`
	TestsPassed   int             `json:"testsPassed"`
	TestsFailed   int             `json:"testsFailed"`
	MonitorStatus string          `json:"monitorStatus"`
}

// MileageRisk ожидаемая проблема с привязкой к пробегу.
type MileageRisk struct {
	Issue            string  `json:"issue"`
	CostEstimateLow  float64 `json:"costEstimateLow"`
	CostEstimateHigh float64 `json:"costEstimateHigh"`
	MileageEstimate  int     `json:"mileageEstimate"`
}

// HasCritical сообщает, есть ли среди кодов критичные.
func (a *AnalysisOutput) HasCritical() bool {
	for _, c := range a.Codes {
		if c.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// RepairTotal суммирует оценки ремонта по всем кодам.
func (a *AnalysisOutput) RepairTotal() float64 {
	var total float64
	for _, c := range a.Codes {
		total += c.RepairEstimate.Total()
	}
	return total
}
