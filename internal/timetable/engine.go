package timetable

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// StopReason tells why a run ended.
type StopReason string

const (
	StopConverged       StopReason = "converged"
	StopBudgetExhausted StopReason = "budget_exhausted"
	StopCancelled       StopReason = "cancelled"
)

// GenerationStats is reported to the observer once per generation, after scoring.
type GenerationStats struct {
	Generation    int
	TopFitness    float64
	TopConflicts  int
	MeanFitness   float64
	BestFitness   float64
	BestConflicts int
	Stale         int
	Improved      bool
}

// Option customises an Engine.
type Option func(*Engine)

// WithSeed pins the random source. Runs with the same seed, catalog and params are identical.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.seed = seed
		e.seeded = true
	}
}

// WithWorkers bounds the goroutines used for evaluation and breeding.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger attaches a logger for generation milestones.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLogEvery sets how often (in generations) progress is logged. 0 disables it.
func WithLogEvery(n int) Option {
	return func(e *Engine) {
		e.logEvery = n
	}
}

// WithObserver registers a callback invoked after each generation is scored.
func WithObserver(fn func(GenerationStats)) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// Engine is the population manager. An Engine may run several times; runs share nothing
// but the read-only catalog.
type Engine struct {
	catalog  *Catalog
	params   Params
	idx      *index
	template []Gene

	seed     int64
	seeded   bool
	workers  int
	logEvery int
	logger   *zap.Logger
	observer func(GenerationStats)
}

// NewEngine validates params against the catalog and prepares the canonical gene template.
func NewEngine(catalog *Catalog, params Params, opts ...Option) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog is nil", ErrEmptyCatalog)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if catalog.TotalDemand() > 0 && (len(catalog.Classrooms) == 0 || len(catalog.Days) == 0 || len(catalog.TimeSlots) == 0) {
		return nil, ErrEmptyCatalog
	}

	e := &Engine{
		catalog:  catalog,
		params:   params,
		idx:      newIndex(catalog),
		template: newTemplate(catalog),
		workers:  runtime.NumCPU(),
		logEvery: 50,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if !e.seeded {
		e.seed = time.Now().UnixNano()
	}
	return e, nil
}

// Seed reports the seed the engine runs with.
func (e *Engine) Seed() int64 {
	return e.seed
}

// Run searches until the generation budget is spent, the early-stopping rule fires or ctx
// is done. It always returns the best individual seen. When ctx ends the run, the result is
// returned together with ctx.Err().
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	p := e.params
	log := e.logger.With(zap.Int64("seed", e.seed))

	if !PenaltyDominates(e.catalog) {
		floor, ceiling := DistributionRange(e.catalog)
		log.Warn("distribution range exceeds conflict penalty; a conflicted schedule may outrank a clean one",
			zap.Float64("floor", floor), zap.Float64("ceiling", ceiling), zap.Float64("penalty", ConflictPenalty))
	}
	log.Info("timetable search started",
		zap.Int("genes", len(e.template)),
		zap.Int("population", p.PopulationSize),
		zap.Int("generations", p.Generations),
		zap.Int("workers", e.workers))

	pop := e.initialPopulation()

	var (
		best          *Individual
		bestBreakdown ConflictBreakdown
		bestFitness   = -math.MaxFloat64
		stale         int
		generations   int
		reason        = StopBudgetExhausted
		runErr        error
	)

	for gen := 0; gen < p.Generations; gen++ {
		breakdowns := e.evaluateAll(pop)
		order := rank(pop)
		generations = gen + 1

		top := order[0]
		improved := pop[top].Fitness > bestFitness
		if improved {
			best = pop[top].Clone()
			bestBreakdown = breakdowns[top]
			bestFitness = best.Fitness
			stale = 0
		} else {
			stale++
		}

		stats := GenerationStats{
			Generation:    gen,
			TopFitness:    pop[top].Fitness,
			TopConflicts:  pop[top].Conflicts,
			MeanFitness:   meanFitness(pop),
			BestFitness:   best.Fitness,
			BestConflicts: best.Conflicts,
			Stale:         stale,
			Improved:      improved,
		}
		if e.observer != nil {
			e.observer(stats)
		}
		if e.logEvery > 0 && gen%e.logEvery == 0 {
			log.Debug("generation scored",
				zap.Int("generation", gen),
				zap.Float64("best_fitness", stats.BestFitness),
				zap.Int("best_conflicts", stats.BestConflicts),
				zap.Float64("mean_fitness", stats.MeanFitness),
				zap.Int("stale", stale))
		}

		if best.Conflicts == 0 && gen >= p.MinGenerations && stale > p.Patience {
			reason = StopConverged
			break
		}
		if err := ctx.Err(); err != nil {
			reason = StopCancelled
			runErr = err
			break
		}
		if gen == p.Generations-1 {
			break
		}

		sorted := make([]*Individual, len(order))
		for i, k := range order {
			sorted[i] = pop[k]
		}
		pop = e.breed(sorted, gen)
	}

	result := &Result{
		Best:              best,
		Breakdown:         bestBreakdown,
		DistributionScore: DistributionScore(best, e.catalog),
		Generations:       generations,
		StopReason:        reason,
		Seed:              e.seed,
		Duration:          time.Since(start),
		catalog:           e.catalog,
	}
	log.Info("timetable search finished",
		zap.String("reason", string(reason)),
		zap.Int("generations", generations),
		zap.Float64("fitness", best.Fitness),
		zap.Int("conflicts", best.Conflicts),
		zap.Duration("duration", result.Duration))
	return result, runErr
}

func (e *Engine) initialPopulation() []*Individual {
	pop := make([]*Individual, e.params.PopulationSize)
	wp := pool.New().WithMaxGoroutines(e.workers)
	for i := range pop {
		i := i
		wp.Go(func() {
			pop[i] = randomIndividual(e.template, e.catalog, initRNG(e.seed, i))
		})
	}
	wp.Wait()
	return pop
}

// evaluateAll scores every individual in parallel. Each task writes only its own slot.
func (e *Engine) evaluateAll(pop []*Individual) []ConflictBreakdown {
	breakdowns := make([]ConflictBreakdown, len(pop))
	wp := pool.New().WithMaxGoroutines(e.workers)
	for i := range pop {
		i := i
		wp.Go(func() {
			breakdowns[i] = evaluate(pop[i], e.catalog, e.idx)
		})
	}
	wp.Wait()
	return breakdowns
}

// breed builds the next generation from a population sorted best first: elites are cloned
// verbatim, every other slot gets tournament parents, optional crossover and mutation.
func (e *Engine) breed(sorted []*Individual, gen int) []*Individual {
	p := e.params
	next := make([]*Individual, p.PopulationSize)
	for i := 0; i < p.EliteSize; i++ {
		next[i] = sorted[i].Clone()
	}

	wp := pool.New().WithMaxGoroutines(e.workers)
	for slot := p.EliteSize; slot < p.PopulationSize; slot++ {
		slot := slot
		wp.Go(func() {
			rng := slotRNG(e.seed, gen, slot)
			p1 := TournamentSelect(sorted, p.TournamentSize, rng)
			p2 := TournamentSelect(sorted, p.TournamentSize, rng)
			var child *Individual
			if rng.Float64() < p.CrossoverRate {
				child = Crossover(p1, p2)
			} else {
				child = p1
			}
			next[slot] = Mutate(child, e.catalog, p.MutationRate, rng)
		})
	}
	wp.Wait()
	return next
}

// rank returns population indices ordered by fitness descending. Ties go to fewer
// conflicts, then to the lower index, so ordering is deterministic.
func rank(pop []*Individual) []int {
	order := make([]int, len(pop))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		x, y := pop[order[a]], pop[order[b]]
		if x.Fitness != y.Fitness {
			return x.Fitness > y.Fitness
		}
		return x.Conflicts < y.Conflicts
	})
	return order
}

func meanFitness(pop []*Individual) float64 {
	if len(pop) == 0 {
		return 0
	}
	sum := 0.0
	for _, ind := range pop {
		sum += ind.Fitness
	}
	return sum / float64(len(pop))
}
