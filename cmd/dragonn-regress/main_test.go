package main

import (
	"reflect"
	"testing"

	"github.com/Wainberg/dragonn/regress"
	"github.com/alexflint/go-arg"
)

func parseTestArgs(t *testing.T, argv ...string) *cmdArgs {
	args := newArgs()
	p, err := arg.NewParser(arg.Config{}, args)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Parse(argv); err != nil {
		t.Fatal(err)
	}
	return args
}

func TestScenarioFlag(t *testing.T) {
	for _, tc := range []struct {
		argv     []string
		expected []regress.Scenario
	}{
		{nil, []regress.Scenario{regress.ShallowCNN, regress.DeepCNN}},
		{[]string{"--scenario", "deep_rnn"}, []regress.Scenario{regress.DeepRNN}},
		{
			[]string{"--scenario", "shallow_rnn", "--scenario", "Deep CNN"},
			[]regress.Scenario{regress.ShallowRNN, regress.DeepCNN},
		},
	} {
		args := parseTestArgs(t, tc.argv...)
		actual, err := args.scenarios()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(actual, tc.expected) {
			t.Errorf("%v: expected %v but got %v", tc.argv, tc.expected, actual)
		}
	}
}

func TestScenarioFlagUnknown(t *testing.T) {
	args := parseTestArgs(t, "--scenario", "medium_cnn")
	if _, err := args.scenarios(); err == nil {
		t.Error("expected error for unknown scenario")
	}
}

func TestDefaultFlags(t *testing.T) {
	args := parseTestArgs(t, "--seed", "3", "--golden-dir", "gold", "--model-out", "models")
	if args.Seed != 3 || args.GoldenDir != "gold" || args.ModelOut != "models" {
		t.Errorf("unexpected args: %+v", args)
	}
	if args.Epochs != regress.DefaultConfig().NumEpochs {
		t.Errorf("unexpected epochs: %d", args.Epochs)
	}
}
