package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quizforge/server/internal/model"
	"github.com/quizforge/server/internal/port/inbound"
	"github.com/quizforge/server/internal/port/outbound"
	"go.uber.org/zap"
)

// Config holds quiz generation settings.
type Config struct {
	PromptTemplate string
	// MaxTokens is the completion budget sent to the provider.
	MaxTokens int
	// MaxEstimate caps the authorization estimate. Zero disables the cap.
	MaxEstimate int64
	// SettleTimeout bounds bookkeeping that outlives the request.
	SettleTimeout time.Duration
}

// Domain orchestrates authorize, invoke and settle for one quiz.
type Domain struct {
	metering inbound.MeteringDomain
	gateway  outbound.CompletionGatewayPort
	runner   outbound.BackgroundRunnerPort
	metrics  outbound.MetricsPort
	prompt   *Prompt
	cfg      Config
	logger   *zap.Logger
}

// NewQuizDomain creates a new quiz domain.
func NewQuizDomain(
	metering inbound.MeteringDomain,
	gateway outbound.CompletionGatewayPort,
	runner outbound.BackgroundRunnerPort,
	metrics outbound.MetricsPort,
	cfg Config,
	logger *zap.Logger,
) (*Domain, error) {
	prompt, err := NewPrompt(cfg.PromptTemplate)
	if err != nil {
		return nil, err
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = outbound.NopMetrics{}
	}
	return &Domain{
		metering: metering,
		gateway:  gateway,
		runner:   runner,
		metrics:  metrics,
		prompt:   prompt,
		cfg:      cfg,
		logger:   logger.Named("quiz"),
	}, nil
}

// Compile-time interface check
var _ inbound.QuizDomain = (*Domain)(nil)

// Generate produces a quiz for text and bills the account for exactly the
// completion that produced it.
func (d *Domain) Generate(ctx context.Context, accountID, text string) (*model.Quiz, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	prompt, err := d.prompt.Render(text)
	if err != nil {
		return nil, err
	}

	reservation, err := d.metering.Authorize(ctx, accountID, d.estimate(prompt))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := d.gateway.Invoke(ctx, outbound.CompletionRequest{
		Prompt:  prompt,
		MaxCost: int64(d.cfg.MaxTokens),
	})
	if err != nil {
		return nil, d.handleGatewayError(ctx, reservation, err, time.Since(start))
	}
	d.metrics.RecordGatewayCall(result.Provider, result.Model, "success", result.ActualCost, time.Since(start))

	quiz := &model.Quiz{
		Content:       result.Content,
		ReservationID: reservation.ID,
		Cost:          result.ActualCost,
		Model:         result.Model,
	}

	if ctx.Err() != nil {
		// The caller is gone but the tokens were spent.
		d.settleDetached(accountID, reservation.ID, result.ActualCost)
		return nil, ctx.Err()
	}

	settleCtx, cancel := d.detached(ctx)
	defer cancel()

	settlement, err := d.metering.Settle(settleCtx, accountID, reservation.ID, result.ActualCost)
	if err != nil {
		d.logger.Error("settlement failed, retrying in background",
			zap.String("account_id", accountID),
			zap.String("reservation_id", reservation.ID),
			zap.Int64("actual_cost", result.ActualCost),
			zap.Error(err),
		)
		d.settleDetached(accountID, reservation.ID, result.ActualCost)
		quiz.Pending = true
		return quiz, nil
	}

	quiz.Balance = settlement.Balance
	quiz.Deficit = settlement.Deficit
	return quiz, nil
}

// handleGatewayError closes or queues the reservation according to the
// outcome class. Unclassified errors are treated as ambiguous so a cost is
// never silently assumed to be zero.
func (d *Domain) handleGatewayError(ctx context.Context, reservation *model.Reservation, err error, elapsed time.Duration) error {
	bookCtx, cancel := d.detached(ctx)
	defer cancel()

	provider := d.gateway.Name()
	fields := []zap.Field{
		zap.String("account_id", reservation.AccountID),
		zap.String("reservation_id", reservation.ID),
		zap.String("provider", provider),
		zap.Error(err),
	}

	if errors.Is(err, outbound.ErrGatewayFailure) && !errors.Is(err, outbound.ErrAmbiguousGatewayOutcome) {
		d.metrics.RecordGatewayCall(provider, "", "failure", 0, elapsed)
		d.logger.Warn("completion failed, releasing reservation", fields...)
		if abandonErr := d.metering.Abandon(bookCtx, reservation.ID); abandonErr != nil {
			d.logger.Error("abandon reservation failed", zap.String("reservation_id", reservation.ID), zap.Error(abandonErr))
		}
		return &OutcomeError{ReservationID: reservation.ID, Err: err}
	}

	d.metrics.RecordGatewayCall(provider, "", "ambiguous", 0, elapsed)
	d.logger.Warn("completion outcome unknown, queueing for reconciliation", fields...)
	if !errors.Is(err, outbound.ErrAmbiguousGatewayOutcome) {
		err = fmt.Errorf("%w: %w", outbound.ErrAmbiguousGatewayOutcome, err)
	}
	if flagErr := d.metering.FlagAmbiguous(bookCtx, reservation.ID, err.Error()); flagErr != nil {
		d.logger.Error("queue ambiguous outcome failed", zap.String("reservation_id", reservation.ID), zap.Error(flagErr))
	}
	return &OutcomeError{ReservationID: reservation.ID, Err: err}
}

func (d *Domain) settleDetached(accountID, reservationID string, cost int64) {
	ok := d.runner.Go("settle:"+reservationID, func(ctx context.Context) {
		s, err := d.metering.Settle(ctx, accountID, reservationID, cost)
		if err != nil {
			// The reservation expires and stays settleable for reconciliation.
			d.logger.Error("background settlement failed",
				zap.String("account_id", accountID),
				zap.String("reservation_id", reservationID),
				zap.Int64("actual_cost", cost),
				zap.Error(err),
			)
			return
		}
		d.logger.Info("background settlement recorded",
			zap.String("reservation_id", reservationID),
			zap.Int64("balance", s.Balance),
			zap.Int64("deficit", s.Deficit),
		)
	})
	if !ok {
		d.logger.Error("background settlement dropped",
			zap.String("account_id", accountID),
			zap.String("reservation_id", reservationID),
			zap.Int64("actual_cost", cost),
		)
	}
}

// detached returns a context that survives cancellation of ctx but keeps
// its values, bounded by the settle timeout.
func (d *Domain) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.cfg.SettleTimeout)
}

// estimate is the authorization amount: the full completion budget plus the
// prompt, capped by MaxEstimate.
func (d *Domain) estimate(prompt string) int64 {
	est := int64(d.cfg.MaxTokens) + estimateTokens(prompt)
	if d.cfg.MaxEstimate > 0 && est > d.cfg.MaxEstimate {
		est = d.cfg.MaxEstimate
	}
	return est
}
