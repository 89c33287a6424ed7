package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stockbook/stockbook/internal/domain/models"
	"github.com/stockbook/stockbook/internal/repository"
)

// mongoTx performs unit-of-work writes. Inside a session transaction ctx is the
// mongo.SessionContext and log is nil; otherwise each write pushes its inverse.
type mongoTx struct {
	repo *MongoDBRepository
	log  *repository.UndoLog
}

func (t *mongoTx) push(label string, undo func(ctx context.Context) error) {
	if t.log != nil {
		t.log.Push(label, undo)
	}
}

func (t *mongoTx) GetItem(ctx context.Context, itemNumber int) (*models.Item, error) {
	return t.repo.GetItem(ctx, itemNumber)
}

func (t *mongoTx) GetVendor(ctx context.Context, id string) (*models.Vendor, error) {
	return t.repo.GetVendor(ctx, id)
}

func (t *mongoTx) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	return t.repo.GetCustomer(ctx, id)
}

func (t *mongoTx) GetPurchase(ctx context.Context, purchaseID string) (*models.Purchase, error) {
	return t.repo.GetPurchase(ctx, purchaseID)
}

func (t *mongoTx) GetSale(ctx context.Context, saleID string) (*models.Sale, error) {
	return t.repo.GetSale(ctx, saleID)
}

// AdjustStock applies $inc on the item document. The guard is expressed in the
// filter so the check and the decrement are one server-side operation.
func (t *mongoTx) AdjustStock(ctx context.Context, itemNumber int, delta int, guard bool) (int, error) {
	coll := t.repo.db.Collection(itemsCollection)
	filter := bson.M{"itemNumber": itemNumber}
	if guard && delta < 0 {
		filter["stock"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"stock": delta},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}

	var item models.Item
	err := coll.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, getErr := t.repo.GetItem(ctx, itemNumber)
		if getErr != nil {
			return 0, getErr
		}
		return current.Stock, repository.ErrStockGuard
	}
	if err != nil {
		return 0, fmt.Errorf("adjust stock of item %d: %w", itemNumber, err)
	}

	t.push(fmt.Sprintf("stock %+d on item %d", delta, itemNumber), func(ctx context.Context) error {
		_, err := coll.UpdateOne(ctx, bson.M{"itemNumber": itemNumber}, bson.M{"$inc": bson.M{"stock": -delta}})
		return err
	})
	return item.Stock, nil
}

func (t *mongoTx) InsertPurchase(ctx context.Context, purchase models.Purchase) error {
	coll := t.repo.db.Collection(purchasesCollection)
	if _, err := coll.InsertOne(ctx, purchase); err != nil {
		return writeErr("insert purchase", err)
	}
	t.push("insert purchase "+purchase.PurchaseID, func(ctx context.Context) error {
		_, err := coll.DeleteOne(ctx, bson.M{"purchaseId": purchase.PurchaseID})
		return err
	})
	return nil
}

func (t *mongoTx) ReplacePurchase(ctx context.Context, purchase models.Purchase) error {
	coll := t.repo.db.Collection(purchasesCollection)
	var prev models.Purchase
	err := coll.FindOneAndReplace(ctx, bson.M{"purchaseId": purchase.PurchaseID}, purchase,
		options.FindOneAndReplace().SetReturnDocument(options.Before)).Decode(&prev)
	if err != nil {
		return lookupErr("purchase", err)
	}
	t.push("update purchase "+purchase.PurchaseID, func(ctx context.Context) error {
		_, err := coll.ReplaceOne(ctx, bson.M{"purchaseId": prev.PurchaseID}, prev)
		return err
	})
	return nil
}

func (t *mongoTx) DeletePurchase(ctx context.Context, purchaseID string) error {
	coll := t.repo.db.Collection(purchasesCollection)
	var prev models.Purchase
	if err := coll.FindOneAndDelete(ctx, bson.M{"purchaseId": purchaseID}).Decode(&prev); err != nil {
		return lookupErr("purchase", err)
	}
	t.push("delete purchase "+purchaseID, func(ctx context.Context) error {
		_, err := coll.InsertOne(ctx, prev)
		return err
	})
	return nil
}

func (t *mongoTx) InsertSale(ctx context.Context, sale models.Sale) error {
	coll := t.repo.db.Collection(salesCollection)
	if _, err := coll.InsertOne(ctx, sale); err != nil {
		return writeErr("insert sale", err)
	}
	t.push("insert sale "+sale.SaleID, func(ctx context.Context) error {
		_, err := coll.DeleteOne(ctx, bson.M{"saleId": sale.SaleID})
		return err
	})
	return nil
}

func (t *mongoTx) ReplaceSale(ctx context.Context, sale models.Sale) error {
	coll := t.repo.db.Collection(salesCollection)
	var prev models.Sale
	err := coll.FindOneAndReplace(ctx, bson.M{"saleId": sale.SaleID}, sale,
		options.FindOneAndReplace().SetReturnDocument(options.Before)).Decode(&prev)
	if err != nil {
		return lookupErr("sale", err)
	}
	t.push("update sale "+sale.SaleID, func(ctx context.Context) error {
		_, err := coll.ReplaceOne(ctx, bson.M{"saleId": prev.SaleID}, prev)
		return err
	})
	return nil
}

func (t *mongoTx) DeleteSale(ctx context.Context, saleID string) error {
	coll := t.repo.db.Collection(salesCollection)
	var prev models.Sale
	if err := coll.FindOneAndDelete(ctx, bson.M{"saleId": saleID}).Decode(&prev); err != nil {
		return lookupErr("sale", err)
	}
	t.push("delete sale "+saleID, func(ctx context.Context) error {
		_, err := coll.InsertOne(ctx, prev)
		return err
	})
	return nil
}
