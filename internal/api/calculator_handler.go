package api

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/zinses-rechner/calcsync/internal/api/shared"
	"github.com/zinses-rechner/calcsync/internal/calc"
	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/export"
	"github.com/zinses-rechner/calcsync/internal/platform/logger"
	"github.com/zinses-rechner/calcsync/internal/redact"
)

// apiVersion is reported by the limits and health endpoints.
const apiVersion = "1.0.0"

// LimitsResponse is the body of GET /calculator/limits.
type LimitsResponse struct {
	calc.Limits
	APIVersion string `json:"api_version"`
}

// calculationFields maps the request struct fields to their wire names,
// their German display names, and the per-tag validation messages shown to
// end users.
var calculationFields = map[string]struct {
	jsonName   string
	germanName string
	messages   map[string]string
}{
	"Principal": {
		jsonName:   "principal",
		germanName: "Startkapital",
		messages: map[string]string{
			"gt":  "Das Startkapital muss größer als 0€ sein",
			"lte": "Das Startkapital darf nicht größer als 10.000.000€ sein",
		},
	},
	"MonthlyPayment": {
		jsonName:   "monthly_payment",
		germanName: "Monatliche Sparrate",
		messages: map[string]string{
			"gte": "Die monatliche Sparrate kann nicht negativ sein",
			"lte": "Die monatliche Sparrate darf nicht größer als 50.000€ sein",
		},
	},
	"AnnualRate": {
		jsonName:   "annual_rate",
		germanName: "Zinssatz",
		messages: map[string]string{
			"gt":  "Der Zinssatz muss größer als 0% sein",
			"lte": "Der Zinssatz darf nicht größer als 20% sein",
		},
	},
	"Years": {
		jsonName:   "years",
		germanName: "Laufzeit",
		messages: map[string]string{
			"gte": "Die Laufzeit muss mindestens 1 Jahr betragen",
			"lte": "Die Laufzeit darf nicht länger als 50 Jahre sein",
		},
	},
	"CompoundFrequency": {
		jsonName:   "compound_frequency",
		germanName: "Zinszahlungsfrequenz",
		messages: map[string]string{
			"oneof": "Ungültige Zinszahlungsfrequenz. Erlaubt: monthly, quarterly, yearly",
		},
	},
}

// germanFieldError converts a single validator error into the localized
// detail entry of the validation envelope.
func germanFieldError(fe validator.FieldError) shared.FieldError {
	field, known := calculationFields[fe.Field()]
	if !known {
		field.jsonName = fe.Field()
		field.germanName = fe.Field()
	}

	if fe.Tag() == "required" {
		return shared.FieldError{
			Field:   field.jsonName,
			Message: fmt.Sprintf("Das Feld '%s' ist erforderlich", field.germanName),
			Code:    codeRequiredField,
		}
	}

	if msg, ok := field.messages[fe.Tag()]; ok {
		return shared.FieldError{
			Field:   field.jsonName,
			Message: msg,
			Code:    codeValueOutOfRange,
		}
	}

	return shared.FieldError{
		Field:   field.jsonName,
		Message: fmt.Sprintf("Ungültiger Wert für das Feld '%s'", field.germanName),
		Code:    codeValueOutOfRange,
	}
}

// CalculatorHandler serves the public compound interest endpoints of the
// remote calculation service.
type CalculatorHandler struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewCalculatorHandler creates a new CalculatorHandler.
func NewCalculatorHandler(log *slog.Logger) *CalculatorHandler {
	if log == nil {
		log = slog.Default()
	}

	return &CalculatorHandler{
		logger: log.With(slog.String("component", "calculator_handler")),
		now:    time.Now,
	}
}

// Calculate handles POST /calculator/compound-interest requests.
func (h *CalculatorHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req domain.CalculationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("malformed calculation request", slog.String("error", redact.Error(err)))
		shared.RespondWithEnvelope(w, r, http.StatusBadRequest, shared.ErrorEnvelope{
			Error:   "Bad Request",
			Message: "Invalid input parameters",
			Code:    codeInvalidInput,
		})
		return
	}

	if err := calc.Validate(req); err != nil {
		h.respondValidationError(w, r, err)
		return
	}

	result := calc.Calculate(req)
	result.CalculationTime = h.now().UTC()

	log.Info("calculation completed",
		slog.Float64("principal", req.Principal),
		slog.Int("years", req.Years),
		slog.Float64("final_amount", result.FinalAmount))
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// GetLimits handles GET /calculator/limits requests, publishing the input
// ranges clients should validate against before submitting.
func (h *CalculatorHandler) GetLimits(w http.ResponseWriter, r *http.Request) {
	limits := calc.DefaultLimits()
	limits.LastUpdated = h.now().UTC()

	shared.RespondWithJSON(w, r, http.StatusOK, LimitsResponse{
		Limits:     limits,
		APIVersion: apiVersion,
	})
}

// ExportCSV handles GET /calculator/export/csv requests. The calculation
// inputs arrive as query parameters and the projection is returned as a
// CSV download. The CSV is rendered into memory first so a rendering
// failure can still produce a JSON error response.
func (h *CalculatorHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	req, err := calculationRequestFromQuery(r)
	if err != nil {
		log.Warn("malformed export query", slog.String("error", redact.Error(err)))
		shared.RespondWithEnvelope(w, r, http.StatusBadRequest, shared.ErrorEnvelope{
			Error:   "Bad Request",
			Message: "Invalid input parameters",
			Code:    codeInvalidInput,
		})
		return
	}

	if err := calc.Validate(req); err != nil {
		h.respondValidationError(w, r, err)
		return
	}

	now := h.now().UTC()
	result := calc.Calculate(req)
	result.CalculationTime = now

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, req, &result, now); err != nil {
		log.Error("csv rendering failed", slog.String("error", redact.Error(err)))
		shared.RespondWithEnvelope(w, r, http.StatusInternalServerError, shared.ErrorEnvelope{
			Error:   "EXPORT_FAILED",
			Message: "CSV-Export fehlgeschlagen",
			Code:    codeCSVExportError,
		})
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(req, now)))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Error("failed to write csv response", slog.String("error", redact.Error(err)))
	}
}

// respondValidationError writes the localized validation envelope for a
// calc.Validate failure.
func (h *CalculatorHandler) respondValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		shared.RespondWithEnvelope(w, r, http.StatusBadRequest, shared.ErrorEnvelope{
			Error:   "Bad Request",
			Message: "Invalid input parameters",
			Code:    codeInvalidInput,
		})
		return
	}

	details := make([]shared.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, germanFieldError(fe))
	}

	shared.RespondWithEnvelope(w, r, http.StatusUnprocessableEntity, shared.ErrorEnvelope{
		Error:   "Validation Error",
		Message: "Die Eingabedaten sind ungültig",
		Code:    codeValidationFailed,
		Details: details,
	})
}

// calculationRequestFromQuery parses the export query parameters. Absent
// parameters stay zero so the validator reports them as missing fields.
func calculationRequestFromQuery(r *http.Request) (domain.CalculationRequest, error) {
	var req domain.CalculationRequest
	query := r.URL.Query()

	var err error
	if raw := query.Get("principal"); raw != "" {
		if req.Principal, err = strconv.ParseFloat(raw, 64); err != nil {
			return domain.CalculationRequest{}, fmt.Errorf("parse principal: %w", err)
		}
	}
	if raw := query.Get("monthly_payment"); raw != "" {
		if req.MonthlyPayment, err = strconv.ParseFloat(raw, 64); err != nil {
			return domain.CalculationRequest{}, fmt.Errorf("parse monthly_payment: %w", err)
		}
	}
	if raw := query.Get("annual_rate"); raw != "" {
		if req.AnnualRate, err = strconv.ParseFloat(raw, 64); err != nil {
			return domain.CalculationRequest{}, fmt.Errorf("parse annual_rate: %w", err)
		}
	}
	if raw := query.Get("years"); raw != "" {
		if req.Years, err = strconv.Atoi(raw); err != nil {
			return domain.CalculationRequest{}, fmt.Errorf("parse years: %w", err)
		}
	}
	if raw := query.Get("compound_frequency"); raw != "" {
		req.CompoundFrequency = domain.CompoundFrequency(raw)
	}

	return req, nil
}
