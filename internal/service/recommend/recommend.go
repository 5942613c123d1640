// Package recommend turns patient records into prompts for the medical
// recommendation model.
package recommend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"anima/internal/logger"
	"anima/internal/service"
	"anima/internal/textgen"
)

const (
	// TemplateFilename is the download name of the CSV template.
	TemplateFilename = "patient_records_template.csv"

	// MaxNewTokens bounds each recommendation.
	MaxNewTokens = 300

	// Disclaimer accompanies every recommendation.
	Disclaimer = "These recommendations are generated by an AI model based on the provided patient information. They should be reviewed by a qualified healthcare professional before making any medical decisions."

	missingCell = "nan"

	instruction = "Based on this information, provide medical recommendations and suggest next steps for the patient's care."
)

// Columns is the CSV header, in template order.
var Columns = []string{"Age", "Gender", "Symptom", "Duration", "Severity", "Past Surgeries", "Current Medications", "Allergies"}

var (
	genders    = []string{"Male", "Female", "Other"}
	severities = []string{"Mild", "Moderate", "Severe"}
)

// ErrInvalidCSV is returned for unreadable uploads or missing columns.
var ErrInvalidCSV = errors.New("invalid patient records")

// PatientRecord holds one patient's details. Age is kept as text so CSV
// values are reproduced exactly.
type PatientRecord struct {
	Age                string `json:"age"`
	Gender             string `json:"gender"`
	Symptom            string `json:"symptom"`
	Duration           string `json:"duration"`
	Severity           string `json:"severity"`
	PastSurgeries      string `json:"pastSurgeries"`
	CurrentMedications string `json:"currentMedications"`
	Allergies          string `json:"allergies"`
}

func (p PatientRecord) values() []string {
	return []string{p.Age, p.Gender, p.Symptom, p.Duration, p.Severity, p.PastSurgeries, p.CurrentMedications, p.Allergies}
}

// TemplateRecord is the example row shipped in the CSV template.
var TemplateRecord = PatientRecord{
	Age:                "35",
	Gender:             "Male",
	Symptom:            "Headache",
	Duration:           "3 days",
	Severity:           "Mild",
	PastSurgeries:      "None",
	CurrentMedications: "None",
	Allergies:          "Penicillin",
}

// WriteTemplate writes the CSV template.
func WriteTemplate(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	if err := cw.Write(TemplateRecord.values()); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// ParseCSV reads patient records keyed by header name. Extra columns are
// ignored; missing ones are an error.
func ParseCSV(r io.Reader) ([]PatientRecord, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidCSV, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	var missing []string
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrInvalidCSV, strings.Join(missing, ", "))
	}

	var records []PatientRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCSV, line, err)
		}
		get := func(col string) string { return cellValue(row[index[col]]) }
		records = append(records, PatientRecord{
			Age:                get("Age"),
			Gender:             get("Gender"),
			Symptom:            get("Symptom"),
			Duration:           get("Duration"),
			Severity:           get("Severity"),
			PastSurgeries:      get("Past Surgeries"),
			CurrentMedications: get("Current Medications"),
			Allergies:          get("Allergies"),
		})
	}
	return records, nil
}

// cellValue keeps a cell verbatim; empty cells render as "nan".
func cellValue(v string) string {
	if v == "" {
		return missingCell
	}
	return v
}

// FormatPrompt renders a record as the model prompt.
func FormatPrompt(p PatientRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Age: %s\n", p.Age)
	fmt.Fprintf(&b, "Gender: %s\n", p.Gender)
	fmt.Fprintf(&b, "Primary Symptom: %s\n", p.Symptom)
	fmt.Fprintf(&b, "Symptom Duration: %s\n", p.Duration)
	fmt.Fprintf(&b, "Symptom Severity: %s\n", p.Severity)
	fmt.Fprintf(&b, "Past Surgeries: %s\n", p.PastSurgeries)
	fmt.Fprintf(&b, "Current Medications: %s\n", p.CurrentMedications)
	fmt.Fprintf(&b, "Allergies: %s\n", p.Allergies)
	b.WriteString(instruction)
	return b.String()
}

// ValidateForm checks a record entered through the form.
func ValidateForm(p PatientRecord) error {
	if strings.TrimSpace(p.Symptom) == "" && strings.TrimSpace(p.CurrentMedications) == "" {
		return service.ErrMissingFields
	}
	age, err := strconv.Atoi(p.Age)
	if err != nil || age < 0 || age > 120 {
		return fmt.Errorf("age must be a whole number between 0 and 120")
	}
	if !oneOf(p.Gender, genders) {
		return fmt.Errorf("gender must be one of %s", strings.Join(genders, ", "))
	}
	if !oneOf(p.Severity, severities) {
		return fmt.Errorf("severity must be one of %s", strings.Join(severities, ", "))
	}
	return nil
}

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// Recommendation is the model output for one patient.
type Recommendation struct {
	Patient PatientRecord `json:"patient"`
	Prompt  string        `json:"prompt"`
	Text    string        `json:"text"`
	Error   string        `json:"error,omitempty"`
}

// Result groups the recommendations of one request with the disclaimer.
type Result struct {
	Recommendations []Recommendation `json:"recommendations"`
	Disclaimer      string           `json:"disclaimer"`
}

// RecommendService generates recommendations with a causal language model.
type RecommendService struct {
	generator textgen.Generator
	logger    *logger.Logger
}

// NewRecommendService creates a service backed by generator.
func NewRecommendService(generator textgen.Generator, logger *logger.Logger) *RecommendService {
	return &RecommendService{generator: generator, logger: logger}
}

// Recommend generates one recommendation per record. A failed generation is
// reported on its record with empty text; the others still run.
func (s *RecommendService) Recommend(ctx context.Context, records []PatientRecord) *Result {
	result := &Result{Recommendations: make([]Recommendation, 0, len(records)), Disclaimer: Disclaimer}
	for _, p := range records {
		prompt := FormatPrompt(p)
		rec := Recommendation{Patient: p, Prompt: prompt}

		output, err := s.generator.Generate(ctx, prompt, textgen.Options{MaxNewTokens: MaxNewTokens})
		if err != nil {
			s.logger.Error("Error during model prediction: %v", err)
			rec.Error = err.Error()
		} else {
			rec.Text = textgen.TrimToLastSentence(output)
		}
		result.Recommendations = append(result.Recommendations, rec)
	}
	s.logger.Info("Generated %d recommendations", len(records))
	return result
}
