package timetable

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParams is returned when hyperparameters are out of range.
	ErrInvalidParams = errors.New("timetable: invalid parameters")
	// ErrEmptyCatalog is returned when there is demand but nowhere to place it.
	ErrEmptyCatalog = errors.New("timetable: catalog has demand but no classrooms, days or time slots")
)

// Params are the search hyperparameters.
type Params struct {
	PopulationSize int     `json:"populationSize"`
	Generations    int     `json:"generations"`
	MutationRate   float64 `json:"mutationRate"`
	CrossoverRate  float64 `json:"crossoverRate"`
	EliteSize      int     `json:"eliteSize"`
	TournamentSize int     `json:"tournamentSize"`
	// Patience is how many generations without improvement are tolerated once a
	// conflict-free schedule is held, before stopping early.
	Patience int `json:"patience"`
	// MinGenerations must elapse before early stopping is considered.
	MinGenerations int `json:"minGenerations"`
}

// DefaultParams returns the stock budget.
func DefaultParams() Params {
	return Params{
		PopulationSize: 100,
		Generations:    300,
		MutationRate:   0.15,
		CrossoverRate:  0.85,
		EliteSize:      8,
		TournamentSize: 5,
		Patience:       20,
		MinGenerations: 20,
	}
}

// Validate checks every field range.
func (p Params) Validate() error {
	switch {
	case p.PopulationSize < 1:
		return fmt.Errorf("%w: population size must be >= 1 (got %d)", ErrInvalidParams, p.PopulationSize)
	case p.Generations < 1:
		return fmt.Errorf("%w: generations must be >= 1 (got %d)", ErrInvalidParams, p.Generations)
	case p.EliteSize < 0 || p.EliteSize > p.PopulationSize:
		return fmt.Errorf("%w: elite size must be within [0, %d] (got %d)", ErrInvalidParams, p.PopulationSize, p.EliteSize)
	case p.TournamentSize < 1:
		return fmt.Errorf("%w: tournament size must be >= 1 (got %d)", ErrInvalidParams, p.TournamentSize)
	case p.MutationRate < 0 || p.MutationRate > 1:
		return fmt.Errorf("%w: mutation rate must be within [0, 1] (got %f)", ErrInvalidParams, p.MutationRate)
	case p.CrossoverRate < 0 || p.CrossoverRate > 1:
		return fmt.Errorf("%w: crossover rate must be within [0, 1] (got %f)", ErrInvalidParams, p.CrossoverRate)
	case p.Patience < 0 || p.MinGenerations < 0:
		return fmt.Errorf("%w: patience and min generations must be >= 0", ErrInvalidParams)
	}
	return nil
}
