package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"anima/internal/config"
	"anima/internal/logger"
	"anima/internal/service"
	"anima/internal/service/recommend"
)

const msgMissingFields = "Please fill in the required fields."

// recommendForm mirrors the form; age arrives as a number.
type recommendForm struct {
	Age                int    `json:"age"`
	Gender             string `json:"gender"`
	Symptom            string `json:"symptom"`
	Duration           string `json:"duration"`
	Severity           string `json:"severity"`
	PastSurgeries      string `json:"pastSurgeries"`
	CurrentMedications string `json:"currentMedications"`
	Allergies          string `json:"allergies"`
}

func (f recommendForm) record() recommend.PatientRecord {
	return recommend.PatientRecord{
		Age:                strconv.Itoa(f.Age),
		Gender:             f.Gender,
		Symptom:            f.Symptom,
		Duration:           f.Duration,
		Severity:           f.Severity,
		PastSurgeries:      f.PastSurgeries,
		CurrentMedications: f.CurrentMedications,
		Allergies:          f.Allergies,
	}
}

// RecommendTemplateHandler downloads the patient records CSV template.
func RecommendTemplateHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodGet) {
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+recommend.TemplateFilename+`"`)
		if err := recommend.WriteTemplate(w); err != nil {
			logger.Error("Error writing CSV template: %v", err)
		}
	}
}

// RecommendCSVHandler generates a recommendation per uploaded patient record.
func RecommendCSVHandler(recommendService *recommend.RecommendService, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodPost) {
			return
		}
		if err := r.ParseMultipartForm(cfg.MaxUploadSizeMB << 20); err != nil {
			writeError(w, http.StatusBadRequest, "Upload patient records (CSV)")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Upload patient records (CSV)")
			return
		}
		defer file.Close()

		records, err := recommend.ParseCSV(file)
		if err != nil {
			logger.Warning("Rejected patient records %s: %v", header.Filename, err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, recommendService.Recommend(r.Context(), records))
	}
}

// RecommendFormHandler generates a recommendation from the patient form.
func RecommendFormHandler(recommendService *recommend.RecommendService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodPost) {
			return
		}

		var form recommendForm
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		record := form.record()
		if err := recommend.ValidateForm(record); err != nil {
			if errors.Is(err, service.ErrMissingFields) {
				writeError(w, http.StatusBadRequest, msgMissingFields)
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, recommendService.Recommend(r.Context(), []recommend.PatientRecord{record}))
	}
}
