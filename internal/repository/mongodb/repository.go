package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/stockbook/stockbook/internal/domain/errs"
	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/internal/repository"
)

const (
	itemsCollection     = "items"
	vendorsCollection   = "vendors"
	customersCollection = "customers"
	purchasesCollection = "purchases"
	salesCollection     = "sales"
	sequenceCollection  = "sequences"
)

// Options tunes the repository behaviour.
type Options struct {
	// UseTransactions runs each unit of work in a multi-document transaction.
	// Requires a replica set; without it writes are compensated on failure.
	UseTransactions bool
}

var _ repository.Store = (*MongoDBRepository)(nil)

// MongoDBRepository implements repository.Store for MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	opts   Options
	logger *zap.Logger
}

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, opts Options, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	r := &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
		opts:   opts,
		logger: logger,
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MongoDBRepository) ensureIndexes(ctx context.Context) error {
	unique := map[string]string{
		itemsCollection:     "itemNumber",
		purchasesCollection: "purchaseId",
		salesCollection:     "saleId",
	}
	for coll, field := range unique {
		model := mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
		if _, err := r.db.Collection(coll).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("create %s.%s index: %w", coll, field, err)
		}
	}
	return nil
}

// WithTx runs fn as one unit of work, in a session transaction when enabled.
func (r *MongoDBRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if !r.opts.UseTransactions {
		tx := &mongoTx{repo: r, log: &repository.UndoLog{}}
		if err := fn(ctx, tx); err != nil {
			return tx.log.Rollback(ctx, err, r.logger)
		}
		return nil
	}

	session, err := r.client.StartSession()
	if err != nil {
		return errs.Persistence("transaction", "start session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTx{repo: r})
	})
	if err != nil {
		var pe *errs.PersistenceError
		if errors.As(err, &pe) {
			pe.RolledBack = true
		}
		return err
	}
	return nil
}

// NextSequence increments the counter document in one findAndModify.
func (r *MongoDBRepository) NextSequence(ctx context.Context, name string) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	res := r.db.Collection(sequenceCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"sequence_value": 1}},
		opts,
	)
	var seq models.Sequence
	if err := res.Decode(&seq); err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", name, err)
	}
	return seq.Value, nil
}

func (r *MongoDBRepository) GetItem(ctx context.Context, itemNumber int) (*models.Item, error) {
	var item models.Item
	err := r.db.Collection(itemsCollection).FindOne(ctx, bson.M{"itemNumber": itemNumber}).Decode(&item)
	if err != nil {
		return nil, lookupErr("item", err)
	}
	return &item, nil
}

func (r *MongoDBRepository) GetVendor(ctx context.Context, id string) (*models.Vendor, error) {
	var vendor models.Vendor
	err := r.db.Collection(vendorsCollection).FindOne(ctx, bson.M{"_id": documentID(id)}).Decode(&vendor)
	if err != nil {
		return nil, lookupErr("vendor", err)
	}
	return &vendor, nil
}

func (r *MongoDBRepository) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.Collection(customersCollection).FindOne(ctx, bson.M{"_id": documentID(id)}).Decode(&customer)
	if err != nil {
		return nil, lookupErr("customer", err)
	}
	return &customer, nil
}

func (r *MongoDBRepository) GetPurchase(ctx context.Context, purchaseID string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.Collection(purchasesCollection).FindOne(ctx, bson.M{"purchaseId": purchaseID}).Decode(&purchase)
	if err != nil {
		return nil, lookupErr("purchase", err)
	}
	return &purchase, nil
}

func (r *MongoDBRepository) GetSale(ctx context.Context, saleID string) (*models.Sale, error) {
	var sale models.Sale
	err := r.db.Collection(salesCollection).FindOne(ctx, bson.M{"saleId": saleID}).Decode(&sale)
	if err != nil {
		return nil, lookupErr("sale", err)
	}
	return &sale, nil
}

func (r *MongoDBRepository) ListItems(ctx context.Context, activeOnly bool) ([]models.Item, error) {
	filter := bson.M{}
	if activeOnly {
		filter["status"] = models.ItemActive
	}
	cur, err := r.db.Collection(itemsCollection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "itemName", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find items: %w", err)
	}
	var items []models.Item
	if err := cur.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}

func (r *MongoDBRepository) ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, error) {
	query := bson.M{}
	if dates := dateRange(filter.From, filter.To); dates != nil {
		query["purchaseDate"] = dates
	}
	if filter.VendorID != "" {
		query["vendor"] = filter.VendorID
	}
	opts := options.Find().SetSort(bson.D{{Key: "purchaseDate", Value: -1}, {Key: "purchaseId", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := r.db.Collection(purchasesCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find purchases: %w", err)
	}
	var purchases []models.Purchase
	if err := cur.All(ctx, &purchases); err != nil {
		return nil, fmt.Errorf("decode purchases: %w", err)
	}
	return purchases, nil
}

func (r *MongoDBRepository) ListSales(ctx context.Context, filter models.SaleFilter) ([]models.Sale, error) {
	query := bson.M{}
	if dates := dateRange(filter.From, filter.To); dates != nil {
		query["saleDate"] = dates
	}
	if filter.CustomerID != "" {
		query["customerId"] = filter.CustomerID
	}
	opts := options.Find().SetSort(bson.D{{Key: "saleDate", Value: -1}, {Key: "saleId", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := r.db.Collection(salesCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find sales: %w", err)
	}
	var sales []models.Sale
	if err := cur.All(ctx, &sales); err != nil {
		return nil, fmt.Errorf("decode sales: %w", err)
	}
	return sales, nil
}

// QuantityTotals sums quantities per item over the whole purchase and sale history.
func (r *MongoDBRepository) QuantityTotals(ctx context.Context) (map[int]repository.QuantityTotals, error) {
	totals := make(map[int]repository.QuantityTotals)

	sum := func(coll string, apply func(t *repository.QuantityTotals, qty int)) error {
		pipeline := mongo.Pipeline{
			{{Key: "$group", Value: bson.D{
				{Key: "_id", Value: "$itemNumber"},
				{Key: "qty", Value: bson.D{{Key: "$sum", Value: "$quantity"}}},
			}}},
		}
		cur, err := r.db.Collection(coll).Aggregate(ctx, pipeline)
		if err != nil {
			return fmt.Errorf("aggregate %s quantities: %w", coll, err)
		}
		var rows []struct {
			ItemNumber int `bson:"_id"`
			Qty        int `bson:"qty"`
		}
		if err := cur.All(ctx, &rows); err != nil {
			return fmt.Errorf("decode %s quantities: %w", coll, err)
		}
		for _, row := range rows {
			t := totals[row.ItemNumber]
			apply(&t, row.Qty)
			totals[row.ItemNumber] = t
		}
		return nil
	}

	if err := sum(purchasesCollection, func(t *repository.QuantityTotals, qty int) { t.Purchased += qty }); err != nil {
		return nil, err
	}
	if err := sum(salesCollection, func(t *repository.QuantityTotals, qty int) { t.Sold += qty }); err != nil {
		return nil, err
	}
	return totals, nil
}

func (r *MongoDBRepository) SaveItem(ctx context.Context, item models.Item) error {
	if item.Status == "" {
		item.Status = models.ItemActive
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	_, err := r.db.Collection(itemsCollection).ReplaceOne(ctx, bson.M{"itemNumber": item.ItemNumber}, item, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save item %d: %w", item.ItemNumber, err)
	}
	return nil
}

func (r *MongoDBRepository) SaveVendor(ctx context.Context, vendor models.Vendor) error {
	doc, err := withDocumentID(vendor.ID, vendor)
	if err != nil {
		return fmt.Errorf("encode vendor %s: %w", vendor.ID, err)
	}
	_, err = r.db.Collection(vendorsCollection).ReplaceOne(ctx, bson.M{"_id": documentID(vendor.ID)}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save vendor %s: %w", vendor.ID, err)
	}
	return nil
}

func (r *MongoDBRepository) SaveCustomer(ctx context.Context, customer models.Customer) error {
	doc, err := withDocumentID(customer.ID, customer)
	if err != nil {
		return fmt.Errorf("encode customer %s: %w", customer.ID, err)
	}
	_, err = r.db.Collection(customersCollection).ReplaceOne(ctx, bson.M{"_id": documentID(customer.ID)}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save customer %s: %w", customer.ID, err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// documentID matches directory records created with ObjectIDs as well as string ids.
func documentID(id string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

// withDocumentID encodes v with its _id in the form documentID gives, so a
// saved vendor or customer is found again by GetVendor/GetCustomer.
func withDocumentID(id string, v interface{}) (bson.D, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for i := range doc {
		if doc[i].Key == "_id" {
			doc[i].Value = documentID(id)
		}
	}
	return doc, nil
}

func dateRange(from, to time.Time) bson.M {
	if from.IsZero() && to.IsZero() {
		return nil
	}
	cond := bson.M{}
	if !from.IsZero() {
		cond["$gte"] = from
	}
	if !to.IsZero() {
		cond["$lte"] = to
	}
	return cond
}

func lookupErr(entity string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	return fmt.Errorf("find %s: %w", entity, err)
}

func writeErr(action string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", action, repository.ErrDuplicateKey)
	}
	return fmt.Errorf("%s: %w", action, err)
}
