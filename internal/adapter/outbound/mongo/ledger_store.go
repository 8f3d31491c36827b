package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quizforge/server/internal/model"
	"github.com/quizforge/server/internal/port/outbound"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const maxChargeAttempts = 8

var errDuplicateGrant = errors.New("duplicate credit grant")

// LedgerStore implements outbound.LedgerStorePort on MongoDB. Account
// documents are keyed by account id and mutated with $inc, and every
// multi-document write runs in a session transaction, so the deployment
// must be a replica set.
type LedgerStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewLedgerStore creates a new MongoDB ledger store.
func NewLedgerStore(client *mongo.Client, database string) *LedgerStore {
	return &LedgerStore{
		client: client,
		db:     client.Database(database),
	}
}

var _ outbound.LedgerStorePort = (*LedgerStore)(nil)

// Migrate creates the ledger indexes.
func (s *LedgerStore) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

func (s *LedgerStore) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return s.readBalance(ctx, accountID)
}

func (s *LedgerStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if _, err := s.db.Collection(colReservations).InsertOne(ctx, toReservationDoc(r)); err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (s *LedgerStore) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var doc reservationDoc
	err := s.db.Collection(colReservations).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, outbound.ErrReservationNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return fromReservationDoc(&doc), nil
}

func (s *LedgerStore) SettleReservation(ctx context.Context, p outbound.SettleParams) (*model.Settlement, bool, error) {
	var (
		settlement *model.Settlement
		applied    bool
	)

	err := s.withTransaction(ctx, func(ctx context.Context) error {
		// Reset for transient-error retries of this callback.
		settlement, applied = nil, false

		reservations := s.db.Collection(colReservations)
		claim := reservations.FindOneAndUpdate(ctx,
			bson.M{
				"_id":        p.ReservationID,
				"account_id": p.AccountID,
				"status":     bson.M{"$in": settleableStatuses()},
			},
			bson.M{"$set": bson.M{
				"status":     string(model.ReservationStatusSettled),
				"updated_at": p.At,
			}},
		)
		if err := claim.Err(); err != nil {
			if !errors.Is(err, mongo.ErrNoDocuments) {
				return fmt.Errorf("claim reservation: %w", err)
			}
			var doc reservationDoc
			if err := reservations.FindOne(ctx, bson.M{"_id": p.ReservationID}).Decode(&doc); err != nil {
				if errors.Is(err, mongo.ErrNoDocuments) {
					return outbound.ErrReservationNotFound
				}
				return fmt.Errorf("get reservation: %w", err)
			}
			switch {
			case doc.AccountID != p.AccountID:
				return outbound.ErrReservationMismatch
			case doc.Status == string(model.ReservationStatusSettled):
				settlement = fromReservationDoc(&doc).Settlement()
				return nil
			default:
				return outbound.ErrReservationClosed
			}
		}

		charged, balance, err := s.chargeAccount(ctx, p.AccountID, p.ActualCost, p.At)
		if err != nil {
			return err
		}
		deficit := p.ActualCost - charged

		_, err = reservations.UpdateOne(ctx,
			bson.M{"_id": p.ReservationID},
			bson.M{"$set": bson.M{
				"actual_cost":   p.ActualCost,
				"charged":       charged,
				"deficit":       deficit,
				"balance_after": balance,
				"settled_at":    p.At,
			}},
		)
		if err != nil {
			return fmt.Errorf("record settlement: %w", err)
		}

		if deficit > 0 {
			doc := &deficitDoc{
				ID:            uuid.NewString(),
				ReservationID: p.ReservationID,
				AccountID:     p.AccountID,
				ActualCost:    p.ActualCost,
				Charged:       charged,
				Shortfall:     deficit,
				CreatedAt:     p.At,
			}
			if _, err := s.db.Collection(colDeficits).InsertOne(ctx, doc); err != nil {
				return fmt.Errorf("record billing deficit: %w", err)
			}
		}

		if err := s.resolveAmbiguous(ctx, p.ReservationID, p.ActualCost, p.At); err != nil {
			return err
		}

		applied = true
		settlement = &model.Settlement{
			ReservationID: p.ReservationID,
			AccountID:     p.AccountID,
			ActualCost:    p.ActualCost,
			Charged:       charged,
			Deficit:       deficit,
			Balance:       balance,
			SettledAt:     p.At,
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return settlement, applied, nil
}

// chargeAccount deducts cost with a conditional $inc, falling back to a
// compare-and-swap to zero when the balance cannot cover it.
func (s *LedgerStore) chargeAccount(ctx context.Context, accountID string, cost int64, at time.Time) (charged, balance int64, err error) {
	accounts := s.db.Collection(colAccounts)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	for attempt := 0; attempt < maxChargeAttempts; attempt++ {
		var doc accountDoc
		err := accounts.FindOneAndUpdate(ctx,
			bson.M{"_id": accountID, "balance": bson.M{"$gte": cost}},
			bson.M{
				"$inc": bson.M{"balance": -cost},
				"$set": bson.M{"updated_at": at},
			},
			opts,
		).Decode(&doc)
		if err == nil {
			return cost, doc.Balance, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return 0, 0, fmt.Errorf("deduct balance: %w", err)
		}

		observed, err := s.readBalance(ctx, accountID)
		if err != nil {
			return 0, 0, err
		}
		if observed >= cost {
			continue
		}

		res, err := accounts.UpdateOne(ctx,
			bson.M{"_id": accountID, "balance": observed},
			bson.M{"$set": bson.M{"balance": int64(0), "updated_at": at}},
		)
		if err != nil {
			return 0, 0, fmt.Errorf("floor balance: %w", err)
		}
		if res.MatchedCount == 1 {
			return observed, 0, nil
		}
	}
	return 0, 0, outbound.ErrConcurrentUpdate
}

func (s *LedgerStore) AbandonReservation(ctx context.Context, id string, at time.Time) (bool, error) {
	var closed bool
	err := s.withTransaction(ctx, func(ctx context.Context) error {
		closed = false
		res, err := s.db.Collection(colReservations).UpdateOne(ctx,
			bson.M{"_id": id, "status": bson.M{"$in": settleableStatuses()}},
			bson.M{"$set": bson.M{
				"status":     string(model.ReservationStatusAbandoned),
				"updated_at": at,
			}},
		)
		if err != nil {
			return fmt.Errorf("abandon reservation: %w", err)
		}
		if res.MatchedCount == 0 {
			return s.reservationExists(ctx, id)
		}
		closed = true
		return s.resolveAmbiguous(ctx, id, 0, at)
	})
	return closed, err
}

func (s *LedgerStore) MarkAmbiguous(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	var queued bool
	err := s.withTransaction(ctx, func(ctx context.Context) error {
		queued = false
		var doc reservationDoc
		err := s.db.Collection(colReservations).FindOneAndUpdate(ctx,
			bson.M{"_id": id, "status": bson.M{"$in": []string{
				string(model.ReservationStatusPending),
				string(model.ReservationStatusExpired),
			}}},
			bson.M{"$set": bson.M{
				"status":     string(model.ReservationStatusAmbiguous),
				"updated_at": at,
			}},
		).Decode(&doc)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return s.reservationExists(ctx, id)
			}
			return fmt.Errorf("mark reservation ambiguous: %w", err)
		}

		// Upsert keyed by reservation keeps the enqueue idempotent without a
		// duplicate-key error aborting the transaction.
		_, err = s.db.Collection(colAmbiguous).UpdateOne(ctx,
			bson.M{"reservation_id": id},
			bson.M{"$setOnInsert": bson.M{
				"_id":            uuid.NewString(),
				"account_id":     doc.AccountID,
				"estimated_cost": doc.EstimatedCost,
				"reason":         reason,
				"resolved":       false,
				"created_at":     at,
			}},
			options.UpdateOne().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("enqueue ambiguous outcome: %w", err)
		}
		queued = true
		return nil
	})
	return queued, err
}

func (s *LedgerStore) ExpireReservations(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.Collection(colReservations).UpdateMany(ctx,
		bson.M{
			"status":     string(model.ReservationStatusPending),
			"expires_at": bson.M{"$lt": now},
		},
		bson.M{"$set": bson.M{
			"status":     string(model.ReservationStatusExpired),
			"updated_at": now,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("expire reservations: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *LedgerStore) ApplyGrant(ctx context.Context, grant *model.CreditGrant) (int64, bool, error) {
	var balance int64

	err := s.withTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.db.Collection(colGrants).InsertOne(ctx, toGrantDoc(grant)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return errDuplicateGrant
			}
			return fmt.Errorf("record credit grant: %w", err)
		}

		var doc accountDoc
		err := s.db.Collection(colAccounts).FindOneAndUpdate(ctx,
			bson.M{"_id": grant.AccountID},
			bson.M{
				"$inc":         bson.M{"balance": grant.Credits},
				"$set":         bson.M{"updated_at": grant.CreatedAt},
				"$setOnInsert": bson.M{"created_at": grant.CreatedAt},
			},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&doc)
		if err != nil {
			return fmt.Errorf("credit account: %w", err)
		}
		balance = doc.Balance
		return nil
	})

	if errors.Is(err, errDuplicateGrant) {
		// The aborted transaction wrote nothing; report the live balance.
		current, err := s.readBalance(ctx, grant.AccountID)
		if err != nil && !errors.Is(err, outbound.ErrAccountNotFound) {
			return 0, false, err
		}
		return current, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

func (s *LedgerStore) ListDeficits(ctx context.Context, limit int) ([]*model.BillingDeficit, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.db.Collection(colDeficits).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list billing deficits: %w", err)
	}
	var docs []deficitDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode billing deficits: %w", err)
	}

	out := make([]*model.BillingDeficit, len(docs))
	for i := range docs {
		out[i] = fromDeficitDoc(&docs[i])
	}
	return out, nil
}

func (s *LedgerStore) ListAmbiguous(ctx context.Context, limit int, includeResolved bool) ([]*model.AmbiguousOutcome, error) {
	filter := bson.M{}
	if !includeResolved {
		filter["resolved"] = false
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))

	cur, err := s.db.Collection(colAmbiguous).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list ambiguous outcomes: %w", err)
	}
	var docs []ambiguousDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode ambiguous outcomes: %w", err)
	}

	out := make([]*model.AmbiguousOutcome, len(docs))
	for i := range docs {
		out[i] = fromAmbiguousDoc(&docs[i])
	}
	return out, nil
}

func (s *LedgerStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *LedgerStore) withTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

func (s *LedgerStore) readBalance(ctx context.Context, accountID string) (int64, error) {
	var doc accountDoc
	err := s.db.Collection(colAccounts).FindOne(ctx, bson.M{"_id": accountID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, outbound.ErrAccountNotFound
		}
		return 0, fmt.Errorf("get account: %w", err)
	}
	return doc.Balance, nil
}

func (s *LedgerStore) reservationExists(ctx context.Context, id string) error {
	n, err := s.db.Collection(colReservations).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("check reservation: %w", err)
	}
	if n == 0 {
		return outbound.ErrReservationNotFound
	}
	return nil
}

func (s *LedgerStore) resolveAmbiguous(ctx context.Context, reservationID string, cost int64, at time.Time) error {
	_, err := s.db.Collection(colAmbiguous).UpdateOne(ctx,
		bson.M{"reservation_id": reservationID, "resolved": false},
		bson.M{"$set": bson.M{
			"resolved":      true,
			"resolved_cost": cost,
			"resolved_at":   at,
		}},
	)
	if err != nil {
		return fmt.Errorf("resolve ambiguous outcome: %w", err)
	}
	return nil
}

func settleableStatuses() []string {
	out := make([]string, len(model.SettleableStatuses))
	for i, st := range model.SettleableStatuses {
		out[i] = string(st)
	}
	return out
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colReservations: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}}},
		},
		colGrants: {
			{Keys: bson.D{{Key: "account_id", Value: 1}}},
		},
		colDeficits: {
			{
				Keys:    bson.D{{Key: "reservation_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colAmbiguous: {
			{
				Keys:    bson.D{{Key: "reservation_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "resolved", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}
