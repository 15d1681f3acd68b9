package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/escrowhq/escrow/logging"
	"github.com/escrowhq/escrow/models"
)

// Step is a single transaction of a multi-transaction operation. Run must
// block until the transaction is included.
type Step struct {
	Name string
	Run  func(ctx context.Context) (*types.Receipt, error)
}

// CommittedStep is a step whose transaction was included successfully.
type CommittedStep struct {
	Name    string
	Receipt *types.Receipt
}

// Pipeline runs steps strictly in order, each one starting only after the
// previous transaction was included. A failure after at least one committed
// step is reported as a partial failure naming what already landed on-chain.
type Pipeline struct {
	steps  []Step
	note   func() string
	logger zerolog.Logger
}

// NewPipeline creates a pipeline of steps.
func NewPipeline(logger zerolog.Logger, steps ...Step) *Pipeline {
	return &Pipeline{steps: steps, logger: logger}
}

// Then appends a step.
func (p *Pipeline) Then(step Step) *Pipeline {
	p.steps = append(p.steps, step)
	return p
}

// WithNote sets a callback whose result is appended to partial failure
// messages, e.g. the address of an escrow created by an earlier step.
func (p *Pipeline) WithNote(note func() string) *Pipeline {
	p.note = note
	return p
}

// Run executes the steps and returns the committed ones.
func (p *Pipeline) Run(ctx context.Context) ([]CommittedStep, error) {
	committed := make([]CommittedStep, 0, len(p.steps))

	for i, step := range p.steps {
		logger := p.logger.With().
			Str(logging.FieldStep, step.Name).
			Int("index", i).
			Logger()

		receipt, err := step.Run(ctx)
		if err != nil {
			logger.Error().Err(err).Int("committed", len(committed)).Msg("Pipeline step failed")
			return committed, p.failure(step, committed, err)
		}

		if receipt != nil {
			logger.Debug().Str(logging.FieldTx, receipt.TxHash.Hex()).Msg("Pipeline step committed")
		}

		committed = append(committed, CommittedStep{Name: step.Name, Receipt: receipt})
	}

	return committed, nil
}

func (p *Pipeline) failure(step Step, committed []CommittedStep, err error) error {
	if len(committed) == 0 {
		// keep a classified cause as is
		var classified *models.Error
		if errors.As(err, &classified) {
			return err
		}

		return models.WrapError(models.KindLedger, err, step.Name+" failed")
	}

	parts := make([]string, 0, len(committed))
	for _, c := range committed {
		if c.Receipt != nil {
			parts = append(parts, fmt.Sprintf("%s (%s)", c.Name, c.Receipt.TxHash.Hex()))
		} else {
			parts = append(parts, c.Name)
		}
	}

	msg := fmt.Sprintf("%s failed after committed steps %s", step.Name, strings.Join(parts, ", "))
	if p.note != nil {
		if note := p.note(); note != "" {
			msg += "; " + note
		}
	}

	return models.WrapError(models.KindPartialFailure, err, msg)
}

// LastReceipt returns the receipt of the final committed step.
func LastReceipt(committed []CommittedStep) *types.Receipt {
	for i := len(committed) - 1; i >= 0; i-- {
		if committed[i].Receipt != nil {
			return committed[i].Receipt
		}
	}

	return nil
}

// committedResult builds the success envelope carrying the final transaction hash.
func committedResult(committed []CommittedStep) *models.TransactionResult {
	receipt := LastReceipt(committed)
	if receipt == nil {
		return models.Succeeded("")
	}

	return models.Succeeded(receipt.TxHash.Hex())
}
