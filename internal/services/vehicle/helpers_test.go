package vehicle

import (
	"github.com/vehix/vehix/internal/domain"
)

func validNewVehicle() domain.NewVehicle {
	return domain.NewVehicle{
		Placa:   "ABC1D23",
		Chassi:  "9BWZZZ377VT004251",
		Renavam: "12345678901",
		Modelo:  "Onix",
		Marca:   "Chevrolet",
		Ano:     2023,
	}
}
