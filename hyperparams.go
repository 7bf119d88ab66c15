package dragonn

import (
	"errors"
	"fmt"
)

// Hyperparameters determine the topology of a SequenceDNN
// and the way it is trained.
type Hyperparameters struct {
	SeqLength int `json:"seq_length"`
	NumTasks  int `json:"num_tasks"`

	// NumFilters and ConvWidth describe the convolutional
	// layers, one entry per layer.
	NumFilters []int `json:"num_filters"`
	ConvWidth  []int `json:"conv_width"`

	PoolWidth int     `json:"pool_width"`
	Dropout   float64 `json:"dropout"`
	L1        float64 `json:"L1"`

	// UseRNN adds a GRU over the pooled positions, followed
	// by a per-position dense layer of size TDDSize.
	UseRNN  bool `json:"use_RNN"`
	GRUSize int  `json:"GRU_size"`
	TDDSize int  `json:"TDD_size"`

	NumEpochs    int     `json:"num_epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`

	// Patience is the number of epochs without validation
	// improvement to tolerate before stopping early.
	Patience int `json:"patience"`
}

// DefaultHyperparameters returns the default settings for
// a single-task model of 500bp sequences.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		SeqLength:    500,
		NumTasks:     1,
		NumFilters:   []int{15, 15, 15},
		ConvWidth:    []int{15, 15, 15},
		PoolWidth:    35,
		GRUSize:      35,
		TDDSize:      15,
		NumEpochs:    100,
		BatchSize:    128,
		LearningRate: 0.001,
		Patience:     5,
	}
}

// Validate checks that the hyperparameters describe a
// usable network.
func (h *Hyperparameters) Validate() error {
	if h.SeqLength <= 0 {
		return fmt.Errorf("invalid sequence length: %d", h.SeqLength)
	}
	if h.NumTasks <= 0 {
		return fmt.Errorf("invalid task count: %d", h.NumTasks)
	}
	if len(h.NumFilters) == 0 {
		return errors.New("at least one convolutional layer is required")
	}
	if len(h.NumFilters) != len(h.ConvWidth) {
		return fmt.Errorf("%d filter counts but %d filter widths",
			len(h.NumFilters), len(h.ConvWidth))
	}
	for i, n := range h.NumFilters {
		if n <= 0 || h.ConvWidth[i] <= 0 {
			return fmt.Errorf("conv layer %d: invalid shape %dx%d", i, n, h.ConvWidth[i])
		}
	}
	if h.PoolWidth <= 0 {
		return fmt.Errorf("invalid pool width: %d", h.PoolWidth)
	}
	if h.Dropout < 0 || h.Dropout >= 1 {
		return fmt.Errorf("invalid dropout rate: %f", h.Dropout)
	}
	if h.L1 < 0 {
		return fmt.Errorf("invalid L1 penalty: %f", h.L1)
	}
	if h.UseRNN && (h.GRUSize <= 0 || h.TDDSize <= 0) {
		return fmt.Errorf("invalid recurrent sizes: GRU %d, TDD %d", h.GRUSize, h.TDDSize)
	}
	if h.NumEpochs < 0 || h.BatchSize <= 0 || h.LearningRate <= 0 || h.Patience < 0 {
		return errors.New("invalid training settings")
	}
	if h.ConvOutputWidth() <= 0 {
		return fmt.Errorf("sequence length %d is too short for the conv layers", h.SeqLength)
	}
	if h.PooledWidth() <= 0 {
		return fmt.Errorf("pool width %d exceeds conv output width %d",
			h.PoolWidth, h.ConvOutputWidth())
	}
	return nil
}

// ConvOutputWidth returns the number of positions left
// after the convolutional layers.
func (h *Hyperparameters) ConvOutputWidth() int {
	w := h.SeqLength
	for _, cw := range h.ConvWidth {
		w -= cw - 1
	}
	return w
}

// PooledWidth returns the number of positions left after
// max-pooling.
// Incomplete pools at the end are dropped.
func (h *Hyperparameters) PooledWidth() int {
	if h.PoolWidth <= 0 {
		return 0
	}
	return h.ConvOutputWidth() / h.PoolWidth
}
