package dragonn

import "testing"

func TestDefaultHyperparameters(t *testing.T) {
	h := DefaultHyperparameters()
	if err := h.Validate(); err != nil {
		t.Fatal(err)
	}
	if h.ConvOutputWidth() != 458 || h.PooledWidth() != 13 {
		t.Errorf("unexpected widths: %d, %d", h.ConvOutputWidth(), h.PooledWidth())
	}
}

func TestHyperparametersValidate(t *testing.T) {
	for name, modify := range map[string]func(h *Hyperparameters){
		"SeqLength":  func(h *Hyperparameters) { h.SeqLength = 0 },
		"NumTasks":   func(h *Hyperparameters) { h.NumTasks = 0 },
		"NoLayers":   func(h *Hyperparameters) { h.NumFilters, h.ConvWidth = nil, nil },
		"Mismatch":   func(h *Hyperparameters) { h.ConvWidth = []int{15} },
		"Filters":    func(h *Hyperparameters) { h.NumFilters[1] = 0 },
		"Pool":       func(h *Hyperparameters) { h.PoolWidth = 0 },
		"Dropout":    func(h *Hyperparameters) { h.Dropout = 1 },
		"L1":         func(h *Hyperparameters) { h.L1 = -1 },
		"GRU":        func(h *Hyperparameters) { h.UseRNN, h.GRUSize = true, 0 },
		"BatchSize":  func(h *Hyperparameters) { h.BatchSize = 0 },
		"TooShort":   func(h *Hyperparameters) { h.SeqLength = 40 },
		"PoolTooBig": func(h *Hyperparameters) { h.PoolWidth = 459 },
	} {
		h := DefaultHyperparameters()
		modify(&h)
		if err := h.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
