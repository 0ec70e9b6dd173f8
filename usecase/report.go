package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/aidoctor/domain/entities"
	"github.com/satriahrh/aidoctor/internal/persona"
)

const reportRule = "=================================================="

// Report is a downloadable plain-text consultation summary
type Report struct {
	FileName string
	Content  string
}

// BuildReport renders the result in the language it was produced in
func BuildReport(catalog *persona.Catalog, result *entities.ConsultationResult, at time.Time) (Report, error) {
	if result == nil {
		return Report{}, fmt.Errorf("no consultation to report")
	}
	doctor, ok := catalog.Persona(result.Persona)
	if !ok {
		doctor = persona.Persona{ID: result.Persona, Name: string(result.Persona), Specialty: string(result.Persona)}
	}
	label := func(key string) string {
		return catalog.Label(result.Language, key)
	}

	var b strings.Builder
	section := func(title string) {
		b.WriteString(reportRule + "\n")
		b.WriteString(title + "\n")
		b.WriteString(reportRule + "\n")
	}

	section(label("report.title"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s: %s\n", label("report.type"), doctor.Name)
	fmt.Fprintf(&b, "%s: %s\n", label("report.date"), at.Format("2006-01-02 15:04:05"))
	b.WriteString("\n")

	section(label("report.symptoms") + ":")
	b.WriteString(result.Narrative + "\n\n")

	section(strings.TrimSpace(fmt.Sprintf("%s %s %s:", doctor.Icon, strings.ToUpper(doctor.Specialty), label("report.assessment"))))
	b.WriteString(result.ReplyText + "\n\n")

	section(label("report.disclaimer") + ":")
	b.WriteString(label("disclaimer."+string(result.Persona)) + "\n")
	b.WriteString(label("disclaimer.general") + "\n")

	return Report{
		FileName: fmt.Sprintf("medical_consultation_%s_%s.txt", result.Persona, at.Format("20060102_150405")),
		Content:  b.String(),
	}, nil
}
