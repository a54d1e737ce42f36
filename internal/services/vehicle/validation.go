package vehicle

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vehix/vehix/internal/domain"
)

var (
	// Old-format (ABC1234) or Mercosul (ABC1D23) plates.
	placaPattern = regexp.MustCompile(`^(?:[A-Z]{3}\d{4}|[A-Z]{3}\d[A-Z]\d{2})$`)

	// 17-character VIN, letters I, O and Q excluded.
	chassiPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

	renavamPattern = regexp.MustCompile(`^\d{11}$`)
)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func validationError(fields []fieldError) *domain.Error {
	return domain.InvalidInput("invalid vehicle data", map[string]any{"fields": fields})
}

// validateNew normalizes nv in place and checks every field. It
// returns an INVALID_INPUT domain error listing each violation, or nil.
func validateNew(nv *domain.NewVehicle) *domain.Error {
	nv.Placa = strings.ToUpper(strings.TrimSpace(nv.Placa))
	nv.Chassi = strings.ToUpper(strings.TrimSpace(nv.Chassi))
	nv.Renavam = strings.TrimSpace(nv.Renavam)
	nv.Modelo = strings.TrimSpace(nv.Modelo)
	nv.Marca = strings.TrimSpace(nv.Marca)

	var fields []fieldError
	fields = appendPlacaError(fields, nv.Placa)
	fields = appendChassiError(fields, nv.Chassi)
	fields = appendRenavamError(fields, nv.Renavam)
	fields = appendTextError(fields, "modelo", nv.Modelo)
	fields = appendTextError(fields, "marca", nv.Marca)
	fields = appendAnoError(fields, nv.Ano)

	if len(fields) > 0 {
		return validationError(fields)
	}
	return nil
}

// validateUpdate normalizes and checks only the fields present.
func validateUpdate(upd *domain.VehicleUpdate) *domain.Error {
	var fields []fieldError

	if upd.Placa != nil {
		*upd.Placa = strings.ToUpper(strings.TrimSpace(*upd.Placa))
		fields = appendPlacaError(fields, *upd.Placa)
	}
	if upd.Chassi != nil {
		*upd.Chassi = strings.ToUpper(strings.TrimSpace(*upd.Chassi))
		fields = appendChassiError(fields, *upd.Chassi)
	}
	if upd.Renavam != nil {
		*upd.Renavam = strings.TrimSpace(*upd.Renavam)
		fields = appendRenavamError(fields, *upd.Renavam)
	}
	if upd.Modelo != nil {
		*upd.Modelo = strings.TrimSpace(*upd.Modelo)
		fields = appendTextError(fields, "modelo", *upd.Modelo)
	}
	if upd.Marca != nil {
		*upd.Marca = strings.TrimSpace(*upd.Marca)
		fields = appendTextError(fields, "marca", *upd.Marca)
	}
	if upd.Ano != nil {
		fields = appendAnoError(fields, *upd.Ano)
	}

	if len(fields) > 0 {
		return validationError(fields)
	}
	return nil
}

func appendPlacaError(fields []fieldError, placa string) []fieldError {
	if !placaPattern.MatchString(placa) {
		fields = append(fields, fieldError{
			Field:   "placa",
			Message: "placa must match ABC1234 or the Mercosul format ABC1D23",
		})
	}
	return fields
}

func appendChassiError(fields []fieldError, chassi string) []fieldError {
	if !chassiPattern.MatchString(chassi) {
		fields = append(fields, fieldError{
			Field:   "chassi",
			Message: "chassi must be 17 alphanumeric characters (I, O and Q excluded)",
		})
	}
	return fields
}

func appendRenavamError(fields []fieldError, renavam string) []fieldError {
	if !renavamPattern.MatchString(renavam) {
		fields = append(fields, fieldError{
			Field:   "renavam",
			Message: "renavam must be exactly 11 digits",
		})
	}
	return fields
}

func appendTextError(fields []fieldError, name, value string) []fieldError {
	if len(value) < 1 || len(value) > 120 {
		fields = append(fields, fieldError{
			Field:   name,
			Message: fmt.Sprintf("%s must be between 1 and 120 characters", name),
		})
	}
	return fields
}

func appendAnoError(fields []fieldError, ano int) []fieldError {
	max := time.Now().Year() + 1
	if ano < 1900 || ano > max {
		fields = append(fields, fieldError{
			Field:   "ano",
			Message: fmt.Sprintf("ano must be between 1900 and %d", max),
		})
	}
	return fields
}
