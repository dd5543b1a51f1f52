package fulfillment

import (
	"context"
	"fmt"

	"github.com/parcelforge/fulfillment/internal/domain"
)

type saleDirection int

const (
	// saleDirectionSell converts allocated stock to sold stock.
	saleDirectionSell saleDirection = iota
	// saleDirectionReturn reverses a sale back into an allocation.
	saleDirectionReturn
)

// moveStock converts stock between allocated and sold for every line of the
// fulfillment. Entering Pending sells the allocation; leaving Pending
// returns it.
func (m *Machine) moveStock(ctx context.Context, f *domain.Fulfillment, dir saleDirection) error {
	for _, fl := range f.Lines {
		v, _, err := m.variantForLine(ctx, f, fl.OrderLineID)
		if err != nil {
			return err
		}
		switch dir {
		case saleDirectionSell:
			v.StockAllocated -= fl.Quantity
			v.StockOnHand -= fl.Quantity
		case saleDirectionReturn:
			v.StockAllocated += fl.Quantity
			v.StockOnHand += fl.Quantity
		}
		if err := m.store.SaveVariant(ctx, v); err != nil {
			return fmt.Errorf("saving variant %s: %w", v.ID, err)
		}
	}
	return nil
}
