// Package prompt строит текст инструкции для модели по скану.
package prompt

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"obd-analyzer/internal/domain/entity"
	"obd-analyzer/internal/domain/port"
)

const (
	unknown = "Unknown"
	none    = "None"
)

const analysisTemplate = `You are an ASE-certified master automotive technician reviewing an OBD-II scan.
Produce a repair-oriented analysis of the vehicle below.

Vehicle:
- VIN: {{.VIN}}
- Year: {{.Year}}
- Make: {{.Make}}
- Model: {{.Model}}
- Mileage: {{.Mileage}}

Diagnostics:
- Check engine light (MIL): {{.MIL}}
- Trouble codes reported by the vehicle: {{.DTCCount}}
- Distance since codes cleared: {{.DistanceSinceCleared}}
- Warm-up cycles since codes cleared: {{.WarmupsSinceCleared}}
- Stored codes: {{.Stored}}
- Pending codes: {{.Pending}}
- Permanent codes: {{.Permanent}}

Instructions:
1. Add one entry to "codes" for every stored, pending and permanent code, in the order listed above. Use the code exactly as written.
2. severity must be one of: {{.Severities}}. urgency must be one of: {{.Urgencies}}.
3. Give possible causes from most to least likely.
4. Estimate parts and labor cost in US dollars for a typical independent shop. Costs are never negative.
5. Judge emissions readiness from the MIL state and the codes: status must be one of: {{.Statuses}}.
6. List likely upcoming issues for this mileage in "mileageRisks"; costEstimateLow must not exceed costEstimateHigh.
7. If a value is unknown, reason from what is given. Do not invent codes that were not reported.
8. Respond with a single JSON object that matches the provided schema. No markdown, no commentary.`

// view хранит скан, уже приведённый к строкам; шаблон только раскладывает их.
type view struct {
	VIN                  string
	Year                 string
	Make                 string
	Model                string
	Mileage              string
	MIL                  string
	DTCCount             string
	DistanceSinceCleared string
	WarmupsSinceCleared  string
	Stored               string
	Pending              string
	Permanent            string
	Severities           string
	Urgencies            string
	Statuses             string
}

// Builder строит промпт по скану. Шаблон разбирается один раз в NewBuilder,
// после этого Builder можно использовать из нескольких горутин.
type Builder struct {
	tmpl *template.Template
}

// NewBuilder создаёт построитель промптов.
func NewBuilder() *Builder {
	return &Builder{
		tmpl: template.Must(template.New("analysis").Option("missingkey=error").Parse(analysisTemplate)),
	}
}

// Build возвращает промпт. Один и тот же скан всегда даёт одну и ту же строку.
func (b *Builder) Build(scan *entity.ScanInput) string {
	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, newView(scan)); err != nil {
		// view состоит только из строк, ошибка здесь означает сломанный шаблон.
		panic(fmt.Sprintf("prompt: render analysis template: %v", err))
	}
	return sb.String()
}

func newView(scan *entity.ScanInput) view {
	mil := "Off"
	if scan.MilOn {
		mil = "On"
	}

	return view{
		VIN:                  scan.VIN,
		Year:                 optInt(scan.Year, ""),
		Make:                 optString(scan.Make),
		Model:                optString(scan.Model),
		Mileage:              optInt(scan.Mileage, " miles"),
		MIL:                  mil,
		DTCCount:             strconv.Itoa(scan.DTCCount),
		DistanceSinceCleared: optInt(scan.DistanceSinceCleared, " miles"),
		WarmupsSinceCleared:  optInt(scan.WarmupsSinceCleared, ""),
		Stored:               codeList(scan.StoredDTCCodes),
		Pending:              codeList(scan.PendingDTCCodes),
		Permanent:            codeList(scan.PermanentDTCCodes),
		Severities:           joinValues(entity.Severities()),
		Urgencies:            joinValues(entity.Urgencies()),
		Statuses:             joinValues(entity.EmissionsStatuses()),
	}
}

func optInt(v *int, unit string) string {
	if v == nil {
		return unknown
	}
	return strconv.Itoa(*v) + unit
}

func optString(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return unknown
	}
	return strings.TrimSpace(*v)
}

func codeList(codes []string) string {
	if len(codes) == 0 {
		return none
	}
	return strings.Join(codes, ", ")
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

var _ port.PromptBuilder = (*Builder)(nil)
