// Command dragonn-regress trains the standard scenarios
// on simulated motif data and compares the results to
// recorded golden values.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Wainberg/dragonn"
	"github.com/Wainberg/dragonn/golden"
	"github.com/Wainberg/dragonn/metrics"
	"github.com/Wainberg/dragonn/regress"
	"github.com/Wainberg/dragonn/rundb"
	"github.com/alexflint/go-arg"
	"github.com/dustin/go-humanize"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/rip"
)

var defaultScenarios = []string{"shallow_cnn", "deep_cnn"}

type cmdArgs struct {
	Scenario  []string `arg:"separate" help:"scenario to run (repeatable); default shallow_cnn and deep_cnn"`
	Seed      int64    `help:"random seed"`
	Epochs    int      `help:"training epochs"`
	GoldenDir string   `arg:"--golden-dir" help:"directory of golden files"`
	Update    bool     `help:"record golden files instead of checking them"`
	DB        string   `help:"SQLite database for run history"`
	ModelOut  string   `arg:"--model-out" help:"directory to save trained models"`
}

// newArgs returns the default arguments.
// Repeated flags append to slice defaults, so Scenario is
// left empty and filled in by scenarios.
func newArgs() *cmdArgs {
	return &cmdArgs{
		Seed:      regress.DefaultConfig().Seed,
		Epochs:    regress.DefaultConfig().NumEpochs,
		GoldenDir: "regress/testdata",
	}
}

func (c *cmdArgs) scenarios() ([]regress.Scenario, error) {
	names := c.Scenario
	if len(names) == 0 {
		names = defaultScenarios
	}
	var res []regress.Scenario
	for _, name := range names {
		s, ok := regress.LookupScenario(name)
		if !ok {
			return nil, fmt.Errorf("unknown scenario: %s", name)
		}
		res = append(res, s)
	}
	return res, nil
}

func main() {
	args := newArgs()
	p := arg.MustParse(args)
	scenarios, err := args.scenarios()
	if err != nil {
		p.Fail(err.Error())
	}

	cfg := regress.DefaultConfig()
	cfg.Seed = args.Seed
	cfg.NumEpochs = args.Epochs

	r := &runner{
		Config:    cfg,
		GoldenDir: args.GoldenDir,
		Update:    args.Update,
		ModelOut:  args.ModelOut,
	}
	os.Exit(r.RunAll(context.Background(), scenarios, args.DB))
}

type runner struct {
	Config    regress.Config
	GoldenDir string
	Update    bool
	ModelOut  string

	stop  <-chan struct{}
	store *rundb.Store
}

// RunAll runs every scenario and returns the exit status.
func (r *runner) RunAll(ctx context.Context, scenarios []regress.Scenario, dbPath string) int {
	if dbPath != "" {
		store, err := rundb.Open(ctx, dbPath)
		if err != nil {
			log.Println(err)
			return 1
		}
		defer store.Close()
		r.store = store
	}

	log.Println("Press ctrl+c once to stop training early...")
	r.stop = rip.NewRIP().Chan()

	status := 0
	for _, s := range scenarios {
		if !r.run(ctx, s) {
			status = 1
		}
	}
	return status
}

func (r *runner) run(ctx context.Context, s regress.Scenario) bool {
	cfg := r.Config
	log.Printf("%s: training (seed %d, %d epochs)", s.Label, cfg.Seed, cfg.NumEpochs)
	start := time.Now()
	out, err := regress.Run(anyvec64.CurrentCreator(), cfg, s, &dragonn.TrainOptions{
		Stop: r.stop,
		StatusFunc: func(st *dragonn.EpochStatus) {
			log.Printf("%s: epoch %d: train auPRC=%f valid auPRC=%f best=%v", s.Label,
				st.Epoch, st.Train.Mean(metrics.AuPRC), st.Valid.Mean(metrics.AuPRC), st.Best)
		},
	})
	if err != nil {
		log.Printf("%s: %v", s.Label, err)
		return false
	}
	log.Printf("%s: trained on %s sequences, tested on %s in %v", s.Label,
		humanize.Comma(int64(out.NumTrain)), humanize.Comma(int64(out.NumTest)),
		time.Since(start).Round(time.Millisecond))
	log.Printf("%s: first sequence %s", s.Label, out.FirstSequence)
	log.Printf("%s: %s", s.Label, out.Result)

	passed := true
	path := filepath.Join(r.GoldenDir, golden.Filename(s.Label))
	if r.Update {
		if err := out.Snapshot().Save(path); err != nil {
			log.Printf("%s: %v", s.Label, err)
			return false
		}
		log.Printf("%s: recorded golden file %s", s.Label, path)
	} else if g, err := golden.Load(path); err != nil {
		log.Printf("%s: %v", s.Label, err)
		passed = false
	} else if err := out.Check(g); err != nil {
		log.Printf("%s: FAIL: %v", s.Label, err)
		passed = false
	} else {
		log.Printf("%s: PASS", s.Label)
	}

	if r.ModelOut != "" {
		name := strings.TrimSuffix(golden.Filename(s.Label), ".json") + ".model"
		if err := os.MkdirAll(r.ModelOut, 0755); err != nil {
			log.Printf("%s: %v", s.Label, err)
			return false
		}
		if err := out.Model.Save(filepath.Join(r.ModelOut, name)); err != nil {
			log.Printf("%s: %v", s.Label, err)
			return false
		}
	}

	if r.store != nil {
		if prev, ok, err := r.store.Latest(ctx, s.Label); err != nil {
			log.Printf("%s: %v", s.Label, err)
		} else if ok {
			log.Printf("%s: previous run %s (passed=%v)", s.Label,
				humanize.Time(prev.CreatedAt), prev.Passed)
		}
		run := &rundb.Run{
			Label:         s.Label,
			Seed:          cfg.Seed,
			FirstSequence: out.FirstSequence,
			Result:        out.Result,
			Passed:        passed,
		}
		if err := r.store.Record(ctx, run); err != nil {
			log.Printf("%s: %v", s.Label, err)
			return false
		}
	}
	return passed
}
