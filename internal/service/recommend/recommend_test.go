package recommend

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"anima/internal/config"
	"anima/internal/logger"
	"anima/internal/service"
	"anima/internal/textgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const templatePrompt = "Age: 35\n" +
	"Gender: Male\n" +
	"Primary Symptom: Headache\n" +
	"Symptom Duration: 3 days\n" +
	"Symptom Severity: Mild\n" +
	"Past Surgeries: None\n" +
	"Current Medications: None\n" +
	"Allergies: Penicillin\n" +
	"Based on this information, provide medical recommendations and suggest next steps for the patient's care."

func TestWriteTemplate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf))

	assert.Equal(t,
		"Age,Gender,Symptom,Duration,Severity,Past Surgeries,Current Medications,Allergies\n"+
			"35,Male,Headache,3 days,Mild,None,None,Penicillin\n",
		buf.String())
}

func TestTemplateRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf))

	records, err := ParseCSV(&buf)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, templatePrompt, FormatPrompt(records[0]))

	// the form path produces the same prompt for the same values
	form := PatientRecord{
		Age: "35", Gender: "Male", Symptom: "Headache", Duration: "3 days",
		Severity: "Mild", PastSurgeries: "None", CurrentMedications: "None", Allergies: "Penicillin",
	}
	require.NoError(t, ValidateForm(form))
	assert.Equal(t, FormatPrompt(records[0]), FormatPrompt(form))
}

func TestParseCSV_ReorderedAndMissingColumns(t *testing.T) {
	in := "Allergies,Age,Gender,Symptom,Duration,Severity,Past Surgeries,Current Medications,Notes\n" +
		"None,60,Female,Cough,2 weeks,Moderate,Appendectomy,Ibuprofen,x\n"
	records, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "60", records[0].Age)
	assert.Equal(t, "None", records[0].Allergies)

	_, err = ParseCSV(strings.NewReader("Age,Gender\n1,Male\n"))
	assert.ErrorIs(t, err, ErrInvalidCSV)
	assert.Contains(t, err.Error(), "Symptom")

	_, err = ParseCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidCSV)
}

func TestParseCSV_KeepsCellsVerbatim(t *testing.T) {
	in := "Age,Gender,Symptom,Duration,Severity,Past Surgeries,Current Medications,Allergies\n" +
		"42,Female, Back pain ,1 week,Mild,,Aspirin,\n"
	records, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, " Back pain ", records[0].Symptom)
	assert.Equal(t, "nan", records[0].PastSurgeries)
	assert.Equal(t, "nan", records[0].Allergies)

	prompt := FormatPrompt(records[0])
	assert.Contains(t, prompt, "Primary Symptom:  Back pain \n")
	assert.Contains(t, prompt, "Past Surgeries: nan\n")
	assert.Contains(t, prompt, "Allergies: nan\n")
}

func TestValidateForm(t *testing.T) {
	ok := TemplateRecord

	tests := []struct {
		name   string
		mutate func(*PatientRecord)
		want   error
	}{
		{"valid", func(*PatientRecord) {}, nil},
		{"only medications", func(p *PatientRecord) { p.Symptom = "" }, nil},
		{"both required blank", func(p *PatientRecord) { p.Symptom = ""; p.CurrentMedications = " " }, service.ErrMissingFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ok
			tt.mutate(&p)
			err := ValidateForm(p)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	for _, bad := range []func(*PatientRecord){
		func(p *PatientRecord) { p.Age = "121" },
		func(p *PatientRecord) { p.Age = "-1" },
		func(p *PatientRecord) { p.Age = "thirty" },
		func(p *PatientRecord) { p.Gender = "Unknown" },
		func(p *PatientRecord) { p.Severity = "Critical" },
	} {
		p := ok
		bad(&p)
		assert.Error(t, ValidateForm(p))
	}
}

type fakeGenerator struct {
	fail string
	opts textgen.Options
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, opts textgen.Options) (string, error) {
	f.opts = opts
	if strings.Contains(prompt, f.fail) && f.fail != "" {
		return "", errors.New("generation failed")
	}
	return prompt + " Rest and hydrate. Follow up in a", nil
}

func TestRecommend(t *testing.T) {
	cfg := config.Default()
	cfg.LogDirectory = t.TempDir()
	log := logger.NewLogger(cfg)
	defer log.Close()

	gen := &fakeGenerator{fail: "Cough"}
	s := NewRecommendService(gen, log)

	second := TemplateRecord
	second.Symptom = "Cough"
	res := s.Recommend(context.Background(), []PatientRecord{TemplateRecord, second})

	assert.Equal(t, Disclaimer, res.Disclaimer)
	assert.Equal(t, MaxNewTokens, gen.opts.MaxNewTokens)
	require.Len(t, res.Recommendations, 2)
	assert.Equal(t, templatePrompt+" Rest and hydrate.", res.Recommendations[0].Text)
	assert.Empty(t, res.Recommendations[1].Text)
	assert.NotEmpty(t, res.Recommendations[1].Error)
}
