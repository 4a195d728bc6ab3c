package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	"github.com/electrocart/api/internal/domain"
	platformfs "github.com/electrocart/api/internal/platform/firestore"
	"github.com/electrocart/api/internal/platform/observability"
	"github.com/electrocart/api/internal/repositories"
)

// InventoryRepository applies stock-moving order transitions. Every operation
// runs as a single transaction over the order document and every product it
// references, so the stockUpdated flag can never drift from the product
// counters.
type InventoryRepository struct {
	provider *platformfs.Provider
	orders   *platformfs.BaseRepository[domain.Order]
	products *platformfs.BaseRepository[domain.Product]
}

// NewInventoryRepository constructs the Firestore-backed inventory repository.
func NewInventoryRepository(provider *platformfs.Provider) *InventoryRepository {
	return &InventoryRepository{
		provider: provider,
		orders:   platformfs.NewBaseRepository[domain.Order](provider, ordersCollection, encodeOrder, decodeOrder),
		products: platformfs.NewBaseRepository[domain.Product](provider, productsCollection, encodeProduct, decodeProduct),
	}
}

// Reserve decrements stock for every line item and stamps the order with the
// target status and stockUpdated=true. The whole transaction aborts when a
// product is missing or its stock would go negative. An order that already
// holds a reservation only gets the status write.
func (r *InventoryRepository) Reserve(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	if !status.RequiresStock() {
		return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidState,
			fmt.Sprintf("status %s does not hold stock", status), nil)
	}
	return r.move(ctx, orderID, status, true)
}

// Release returns stock for every line item and stamps the order with the
// target status and stockUpdated=false. Products deleted since the order was
// placed are skipped so cancellation always succeeds.
func (r *InventoryRepository) Release(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	if status.RequiresStock() {
		return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidState,
			fmt.Sprintf("status %s holds stock", status), nil)
	}
	return r.move(ctx, orderID, status, false)
}

func (r *InventoryRepository) move(ctx context.Context, orderID string, status domain.OrderStatus, reserving bool) (*domain.Order, error) {
	logger := observability.FromContext(ctx)

	orderRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return nil, wrapInventoryError("inventory.move", err)
	}

	var result domain.Order

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Firestore requires every read to precede the first write, so the
		// order and all product snapshots are fetched up front.
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			if platformfs.IsNotFound(platformfs.WrapError("inventory.order", err)) {
				return repositories.NewInventoryError(repositories.InventoryErrorOrderNotFound,
					fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		order, err := r.orders.Decode(ctx, orderSnap)
		if err != nil {
			return err
		}

		// Re-check the flag inside the transaction: a concurrent transition
		// may have moved stock between the caller's read and this one. The
		// stock writes become a no-op and only the status changes.
		if order.StockUpdated == reserving {
			tx.Update(orderRef, statusUpdates(status))
			result = order
			result.Status = status
			result.UpdatedAt = time.Now()
			return nil
		}

		required := make(map[string]int, len(order.Items))
		names := make(map[string]string, len(order.Items))
		for _, item := range order.Items {
			required[item.ProductID] += item.Quantity
			names[item.ProductID] = item.Name
		}

		type stockWrite struct {
			ref      *firestore.DocumentRef
			quantity int
		}
		writes := make([]stockWrite, 0, len(required))

		for productID, quantity := range required {
			productRef, err := r.products.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			productSnap, err := tx.Get(productRef)
			if err != nil {
				if platformfs.IsNotFound(platformfs.WrapError("inventory.product", err)) {
					if reserving {
						return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound,
							fmt.Sprintf("product %q is no longer available", names[productID]), err).
							WithItem(names[productID])
					}
					logger.Warn("skipping stock return for deleted product",
						zap.String("order_id", orderID),
						zap.String("product_id", productID),
						zap.String("product_name", names[productID]))
					continue
				}
				return err
			}
			product, err := r.products.Decode(ctx, productSnap)
			if err != nil {
				return err
			}

			newQuantity := product.StockQuantity + quantity
			if reserving {
				newQuantity = product.StockQuantity - quantity
				if newQuantity < 0 {
					return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock,
						fmt.Sprintf("insufficient stock for %q", product.Name), nil).
						WithItem(product.Name)
				}
			}
			writes = append(writes, stockWrite{ref: productRef, quantity: newQuantity})
		}

		for _, write := range writes {
			if err := tx.Update(write.ref, []firestore.Update{
				{Path: "stockQuantity", Value: write.quantity},
				{Path: "updatedAt", Value: firestore.ServerTimestamp},
			}); err != nil {
				return err
			}
		}

		updates := statusUpdates(status)
		updates = append(updates, firestore.Update{Path: "stockUpdated", Value: reserving})
		if err := tx.Update(orderRef, updates); err != nil {
			return err
		}

		result = order
		result.Status = status
		result.StockUpdated = reserving
		result.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, wrapInventoryError("inventory.move", err)
	}
	return &result, nil
}

func statusUpdates(status domain.OrderStatus) []firestore.Update {
	return []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
}

func wrapInventoryError(op string, err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		return invErr
	}
	wrapped := repositories.NewInventoryError(repositories.InventoryErrorUnknown, err.Error(), err)
	wrapped.Op = op
	return wrapped
}
