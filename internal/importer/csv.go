package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/example/carparkd/internal/carpark/domain"
)

// carParkColumns is the fixed number of positional fields in a registry row.
const carParkColumns = 12

// parseCarParkRow maps one CSV record onto a CarPark. Fields are positional;
// the header is never consulted. Any short row or non-numeric value in a
// numeric column fails this row only.
func parseCarParkRow(record []string) (domain.CarPark, error) {
	if len(record) < carParkColumns {
		return domain.CarPark{}, fmt.Errorf("invalid row: expected %d columns, got %d", carParkColumns, len(record))
	}

	x, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return domain.CarPark{}, fmt.Errorf("parse x coordinate %q: %w", record[2], err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
	if err != nil {
		return domain.CarPark{}, fmt.Errorf("parse y coordinate %q: %w", record[3], err)
	}
	decks, err := strconv.Atoi(strings.TrimSpace(record[9]))
	if err != nil {
		return domain.CarPark{}, fmt.Errorf("parse deck count %q: %w", record[9], err)
	}
	gantry, err := strconv.ParseFloat(strings.TrimSpace(record[10]), 64)
	if err != nil {
		return domain.CarPark{}, fmt.Errorf("parse gantry height %q: %w", record[10], err)
	}

	return domain.CarPark{
		CarParkNo:           strings.TrimSpace(record[0]),
		Address:             strings.TrimSpace(record[1]),
		XCoord:              x,
		YCoord:              y,
		CarParkType:         strings.TrimSpace(record[4]),
		TypeOfParkingSystem: strings.TrimSpace(record[5]),
		ShortTermParking:    strings.TrimSpace(record[6]),
		FreeParking:         strings.TrimSpace(record[7]),
		NightParking:        strings.TrimSpace(record[8]),
		CarParkDecks:        decks,
		GantryHeight:        gantry,
		CarParkBasement:     strings.TrimSpace(record[11]),
	}, nil
}
