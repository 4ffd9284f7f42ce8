package telegram

import (
	"fmt"
	"strings"
	"unicode/utf8"

	app "obd-analyzer/internal/application"
	"obd-analyzer/internal/domain/entity"
)

// maxMessageLen лимит Telegram на длину одного сообщения.
const maxMessageLen = 4096

var severityIcons = map[entity.Severity]string{
	entity.SeverityCritical: "🔴",
	entity.SeverityModerate: "🟠",
	entity.SeverityMinor:    "🟢",
}

// FormatSummary собирает текстовый отчёт по результату анализа.
func FormatSummary(scan *entity.ScanInput, outcome *app.AnalysisOutcome) string {
	a := outcome.Analysis
	var b strings.Builder

	fmt.Fprintf(&b, "🚗 VIN: %s%s\n", scan.VIN, vehicleLine(scan))
	if scan.Mileage != nil {
		fmt.Fprintf(&b, "Пробег: %d миль\n", *scan.Mileage)
	}
	b.WriteString("\n")

	if len(a.Codes) == 0 {
		b.WriteString("✅ Коды неисправностей не обнаружены.\n")
	} else {
		fmt.Fprintf(&b, "🔧 Коды неисправностей: %d\n", len(a.Codes))
		if a.HasCritical() {
			b.WriteString("⚠️ Есть критичные неисправности, эксплуатацию лучше прекратить до ремонта.\n")
		}
		for _, c := range a.Codes {
			fmt.Fprintf(&b, "\n%s %s (%s, %s): %s\n", severityIcons[c.Severity], c.Code, c.Severity, c.Urgency, c.Description)
			if c.Module != "" {
				fmt.Fprintf(&b, "Модуль: %s\n", c.Module)
			}
			if len(c.PossibleCauses) > 0 {
				fmt.Fprintf(&b, "Возможные причины: %s\n", strings.Join(c.PossibleCauses, "; "))
			}
			r := c.RepairEstimate
			fmt.Fprintf(&b, "Ремонт: %s, детали %s + работа %s = %s\n", r.Description, money(r.PartsCost), money(r.LaborCost), money(r.Total()))
		}
		fmt.Fprintf(&b, "\n💰 Итого по ремонту: %s\n", money(a.RepairTotal()))
	}

	e := a.EmissionsCheck
	fmt.Fprintf(&b, "\n🌫 Экология: %s (пройдено %d, не пройдено %d)\n", e.Status, e.TestsPassed, e.TestsFailed)
	if e.MonitorStatus != "" {
		fmt.Fprintf(&b, "Мониторы: %s\n", e.MonitorStatus)
	}

	if len(a.MileageRisks) > 0 {
		b.WriteString("\n📈 Риски по пробегу:\n")
		for _, r := range a.MileageRisks {
			fmt.Fprintf(&b, "• %s: %s–%s, около %d миль\n", r.Issue, money(r.CostEstimateLow), money(r.CostEstimateHigh), r.MileageEstimate)
		}
	}

	if a.Summary != "" {
		fmt.Fprintf(&b, "\n📝 %s\n", a.Summary)
	}

	modules := "нет данных"
	if len(a.ModulesScanned) > 0 {
		modules = strings.Join(a.ModulesScanned, ", ")
	}
	fmt.Fprintf(&b, "\nМодули: %s. Параметров: %d. Попыток: %d.", modules, a.DatapointsScanned, outcome.Attempts)

	return b.String()
}

func vehicleLine(scan *entity.ScanInput) string {
	var parts []string
	if scan.Year != nil {
		parts = append(parts, fmt.Sprint(*scan.Year))
	}
	if scan.Make != nil && *scan.Make != "" {
		parts = append(parts, *scan.Make)
	}
	if scan.Model != nil && *scan.Model != "" {
		parts = append(parts, *scan.Model)
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, " ") + ")"
}

func money(v float64) string {
	return fmt.Sprintf("$%.0f", v)
}

// SplitMessage режет текст на части не длиннее limit символов.
// Старается резать по строкам, слишком длинные строки режет как есть.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if size > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if size+n <= limit {
			current.WriteString(line)
			size += n
			continue
		}

		flush()
		for n > limit {
			runes := []rune(line)
			chunks = append(chunks, string(runes[:limit]))
			line = string(runes[limit:])
			n -= limit
		}
		current.WriteString(line)
		size = n
	}
	flush()

	return chunks
}
