// Package mongo provides a MongoDB store.Store via Grove's mongo driver.
// Atomic runs in a multi-document transaction, which requires a replica set
// or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/patron"
	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/store"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

// Collection name constants.
const (
	colAccounts      = "patron_accounts"
	colTransfers     = "patron_transfers"
	colCreators      = "patron_creators"
	colSubscriptions = "patron_subscriptions"
	colPayments      = "patron_payments"
	colCounters      = "patron_counters"
)

// paymentSequence is the counter document holding the next payment ID.
const paymentSequence = "payments"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db   *grove.DB
	mdb  *mongodriver.MongoDB
	inTx bool
}

// Open connects to uri and uses the named database. An empty database
// falls back to the one named in the URI path.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	mdb := mongodriver.New()
	var opts []mongodriver.MongoOption
	if database != "" {
		opts = append(opts, mongodriver.WithDatabase(database))
	}
	if err := mdb.Open(ctx, uri, opts...); err != nil {
		_ = mdb.Close() //nolint:errcheck // open error wins
		return nil, fmt.Errorf("patron/mongo: %w", err)
	}
	db, err := grove.Open(mdb)
	if err != nil {
		_ = mdb.Close() //nolint:errcheck // open error wins
		return nil, fmt.Errorf("patron/mongo: %w", err)
	}
	return New(db), nil
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Database returns the underlying mongo database.
func (s *Store) Database() *mongo.Database { return s.mdb.Database() }

// Atomic implements store.Store. Nested calls join the outer transaction.
// The driver may run fn more than once on transient transaction errors.
func (s *Store) Atomic(ctx context.Context, fn store.TxFunc) error {
	if s.inTx {
		return fn(ctx, s)
	}

	sess, err := s.mdb.Client().StartSession()
	if err != nil {
		return fmt.Errorf("patron/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	tx := &Store{db: s.db, mdb: s.mdb, inTx: true}
	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx, tx)
	})
	return err
}

// Migrate creates the collections' indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: patron/mongo: %s indexes: %w", patron.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) col(name string) *mongo.Collection { return s.mdb.Collection(name) }

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	var m accountModel
	err := s.col(colAccounts).FindOne(ctx, bson.M{"_id": accountID}).Decode(&m)
	if isNoDocuments(err) {
		return nil, fmt.Errorf("%w: %q", patron.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("patron/mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

// CreditAccount increments the balance in place. The filter only matches
// while the sum stays within MaxMicro; when it does not, the upsert collides
// with the existing document and the credit is reported as an overflow.
func (s *Store) CreditAccount(ctx context.Context, accountID string, amount types.Micro, at time.Time) error {
	if !amount.Valid() {
		return fmt.Errorf("%w: %w: %d", patron.ErrAmountOverflow, types.ErrOverflow, amount)
	}

	_, err := s.col(colAccounts).UpdateOne(ctx,
		bson.M{"_id": accountID, "balance": bson.M{"$lte": int64(types.MaxMicro - amount)}},
		bson.M{
			"$inc":         bson.M{"balance": int64(amount)},
			"$set":         bson.M{"updated_at": toNanos(at)},
			"$setOnInsert": bson.M{"created_at": toNanos(at)},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w: %q + %d", patron.ErrAmountOverflow, types.ErrOverflow, accountID, amount)
	}
	if err != nil {
		return fmt.Errorf("patron/mongo: credit account: %w", err)
	}
	return nil
}

func (s *Store) DebitAccount(ctx context.Context, accountID string, amount types.Micro, at time.Time) error {
	res, err := s.col(colAccounts).UpdateOne(ctx,
		bson.M{"_id": accountID, "balance": bson.M{"$gte": int64(amount)}},
		bson.M{
			"$inc": bson.M{"balance": -int64(amount)},
			"$set": bson.M{"updated_at": toNanos(at)},
		},
	)
	if err != nil {
		return fmt.Errorf("patron/mongo: debit account: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %q cannot cover %d", patron.ErrInsufficientFunds, accountID, amount)
	}
	return nil
}

func (s *Store) RecordTransfer(ctx context.Context, t *account.Transfer) error {
	if _, err := s.col(colTransfers).InsertOne(ctx, toTransferModel(t)); err != nil {
		return fmt.Errorf("patron/mongo: record transfer: %w", err)
	}
	return nil
}

func (s *Store) ListTransfers(ctx context.Context, opts account.ListOpts) ([]*account.Transfer, error) {
	filter := bson.M{}
	if opts.AccountID != "" {
		filter["$or"] = bson.A{bson.M{"from": opts.AccountID}, bson.M{"to": opts.AccountID}}
	}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	var models []transferModel
	if err := s.find(ctx, colTransfers, filter, bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
		opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("patron/mongo: list transfers: %w", err)
	}

	result := make([]*account.Transfer, 0, len(models))
	for i := range models {
		t, err := fromTransferModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

// ==================== Creator Store ====================

func (s *Store) CreateCreator(ctx context.Context, c *creator.Creator) error {
	_, err := s.col(colCreators).InsertOne(ctx, toCreatorModel(c))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %q", patron.ErrDuplicateCreator, c.ID)
	}
	if err != nil {
		return fmt.Errorf("patron/mongo: create creator: %w", err)
	}
	return nil
}

func (s *Store) GetCreator(ctx context.Context, creatorID string) (*creator.Creator, error) {
	var m creatorModel
	err := s.col(colCreators).FindOne(ctx, bson.M{"_id": creatorID}).Decode(&m)
	if isNoDocuments(err) {
		return nil, fmt.Errorf("%w: %q", patron.ErrCreatorNotFound, creatorID)
	}
	if err != nil {
		return nil, fmt.Errorf("patron/mongo: get creator: %w", err)
	}
	return fromCreatorModel(&m), nil
}

func (s *Store) UpdateCreator(ctx context.Context, c *creator.Creator) error {
	res, err := s.col(colCreators).ReplaceOne(ctx, bson.M{"_id": c.ID}, toCreatorModel(c))
	if err != nil {
		return fmt.Errorf("patron/mongo: update creator: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %q", patron.ErrCreatorNotFound, c.ID)
	}
	return nil
}

func (s *Store) ListCreators(ctx context.Context, opts creator.ListOpts) ([]*creator.Creator, error) {
	var models []creatorModel
	if err := s.find(ctx, colCreators, bson.M{}, bson.D{{Key: "_id", Value: 1}},
		opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("patron/mongo: list creators: %w", err)
	}

	result := make([]*creator.Creator, 0, len(models))
	for i := range models {
		result = append(result, fromCreatorModel(&models[i]))
	}
	return result, nil
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(ctx context.Context, creatorID, fanID string) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.col(colSubscriptions).FindOne(ctx, bson.M{"creator_id": creatorID, "fan_id": fanID}).Decode(&m)
	if isNoDocuments(err) {
		return nil, fmt.Errorf("%w: creator %q fan %q", patron.ErrNoSubscription, creatorID, fanID)
	}
	if err != nil {
		return nil, fmt.Errorf("patron/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) SaveSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.col(colSubscriptions).ReplaceOne(ctx,
		bson.M{"creator_id": sub.CreatorID, "fan_id": sub.FanID},
		toSubscriptionModel(sub),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("patron/mongo: save subscription: %w", err)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	filter := bson.M{}
	if opts.CreatorID != "" {
		filter["creator_id"] = opts.CreatorID
	}
	if opts.FanID != "" {
		filter["fan_id"] = opts.FanID
	}
	return s.listSubscriptions(ctx, filter,
		bson.D{{Key: "creator_id", Value: 1}, {Key: "fan_id", Value: 1}}, opts.Limit, opts.Offset)
}

func (s *Store) ListDueRenewals(ctx context.Context, now time.Time, after subscription.DueCursor, limit int) ([]*subscription.Subscription, error) {
	filter := bson.M{
		"auto_renew":    true,
		"cancelled_at":  nil,
		"expires_at":    bson.M{"$lte": toNanos(now)},
		"next_retry_at": bson.M{"$lte": toNanos(now)},
	}
	if !after.IsZero() {
		retry := toNanos(after.NextRetryAt)
		filter["$or"] = bson.A{
			bson.M{"next_retry_at": bson.M{"$gt": retry}},
			bson.M{"next_retry_at": retry, "creator_id": bson.M{"$gt": after.CreatorID}},
			bson.M{"next_retry_at": retry, "creator_id": after.CreatorID, "fan_id": bson.M{"$gt": after.FanID}},
		}
	}
	return s.listSubscriptions(ctx, filter,
		bson.D{{Key: "next_retry_at", Value: 1}, {Key: "creator_id", Value: 1}, {Key: "fan_id", Value: 1}}, limit, 0)
}

func (s *Store) listSubscriptions(ctx context.Context, filter bson.M, sort bson.D, limit, offset int) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	if err := s.find(ctx, colSubscriptions, filter, sort, limit, offset, &models); err != nil {
		return nil, fmt.Errorf("patron/mongo: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, 0, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}

// ==================== Payment Store ====================

func (s *Store) AppendPayment(ctx context.Context, e *payment.Entry) error {
	var counter counterModel
	err := s.col(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": paymentSequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return fmt.Errorf("patron/mongo: next payment id: %w", err)
	}
	e.ID = uint64(counter.Seq - 1)

	if _, err := s.col(colPayments).InsertOne(ctx, toPaymentModel(e)); err != nil {
		return fmt.Errorf("patron/mongo: append payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, paymentID uint64) (*payment.Entry, error) {
	if paymentID > math.MaxInt64 {
		return nil, fmt.Errorf("%w: payment %d", patron.ErrNotFound, paymentID)
	}
	var m paymentModel
	err := s.col(colPayments).FindOne(ctx, bson.M{"_id": int64(paymentID)}).Decode(&m)
	if isNoDocuments(err) {
		return nil, fmt.Errorf("%w: payment %d", patron.ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("patron/mongo: get payment: %w", err)
	}
	return fromPaymentModel(&m)
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Entry, error) {
	filter := bson.M{}
	if opts.CreatorID != "" {
		filter["creator_id"] = opts.CreatorID
	}
	if opts.FanID != "" {
		filter["fan_id"] = opts.FanID
	}
	if opts.Outcome != "" {
		filter["outcome"] = string(opts.Outcome)
	}

	var models []paymentModel
	if err := s.find(ctx, colPayments, filter, bson.D{{Key: "_id", Value: 1}},
		opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("patron/mongo: list payments: %w", err)
	}

	result := make([]*payment.Entry, 0, len(models))
	for i := range models {
		e, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

// ==================== Helpers ====================

// find runs a sorted, paged query and decodes every document into results.
// A zero limit means no limit.
func (s *Store) find(ctx context.Context, col string, filter bson.M, sort bson.D, limit, offset int, results any) error {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}

	cur, err := s.col(col).Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cur.All(ctx, results)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all patron collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colTransfers: {
			{Keys: bson.D{{Key: "from", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "to", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colSubscriptions: {
			{
				Keys:    bson.D{{Key: "creator_id", Value: 1}, {Key: "fan_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "fan_id", Value: 1}, {Key: "creator_id", Value: 1}}},
			{Keys: bson.D{{Key: "auto_renew", Value: 1}, {Key: "next_retry_at", Value: 1}, {Key: "creator_id", Value: 1}, {Key: "fan_id", Value: 1}}},
		},
		colPayments: {
			{
				Keys:    bson.D{{Key: "reference", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "creator_id", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "fan_id", Value: 1}, {Key: "_id", Value: 1}}},
		},
	}
}
