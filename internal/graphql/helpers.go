package graphql

import (
	"time"

	"github.com/parcelforge/fulfillment/internal/domain"
	"github.com/parcelforge/fulfillment/internal/fulfillment"
	"github.com/parcelforge/fulfillment/internal/graphql/generated"
	"github.com/parcelforge/fulfillment/internal/pickups"
	"github.com/parcelforge/fulfillment/internal/rates"
	"github.com/parcelforge/fulfillment/pkg/provider"
)

func moneyFromCents(cents int64, currency string) *generated.Money {
	return &generated.Money{
		Amount:   provider.FromCents(cents),
		Currency: currency,
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func linesInputToDomain(inputs []*generated.FulfillmentLineInput) []domain.FulfillmentLine {
	lines := make([]domain.FulfillmentLine, 0, len(inputs))
	for _, in := range inputs {
		if in == nil {
			continue
		}
		lines = append(lines, domain.FulfillmentLine{
			OrderLineID: in.OrderLineID,
			Quantity:    in.Quantity,
		})
	}
	return lines
}

func fulfillmentToGraphQL(f *domain.Fulfillment, currency string) *generated.Fulfillment {
	if f == nil {
		return nil
	}
	out := &generated.Fulfillment{
		ID:           f.ID,
		State:        string(f.State),
		Carrier:      f.Carrier,
		Service:      f.Service,
		Manual:       f.Manual,
		TrackingCode: strPtr(f.TrackingCode),
		LabelURL:     strPtr(f.LabelURL),
		PickupID:     strPtr(f.PickupID),
	}
	if f.RateCostCents > 0 {
		out.RateCost = moneyFromCents(f.RateCostCents, currency)
	}
	if f.InsuranceCostCents > 0 {
		out.InsuranceCost = moneyFromCents(f.InsuranceCostCents, currency)
	}
	if f.PurchasedAt != nil {
		ts := f.PurchasedAt.Format(time.RFC3339)
		out.PurchasedAt = &ts
	}
	return out
}

func transitionResultToGraphQL(result fulfillment.Result, f *domain.Fulfillment, currency string) *generated.TransitionResult {
	out := &generated.TransitionResult{
		Ok:          result.Ok,
		Fulfillment: fulfillmentToGraphQL(f, currency),
	}
	if result.Reason != "" {
		out.Reason = &result.Reason
	}
	return out
}

func pickupToGraphQL(p *domain.Pickup, currency string) *generated.Pickup {
	if p == nil {
		return nil
	}
	out := &generated.Pickup{
		ID:               p.ID,
		State:            string(p.State),
		Carrier:          p.Carrier,
		FulfillmentIDs:   p.FulfillmentIDs,
		BatchID:          strPtr(p.BatchID),
		ScanFormURL:      strPtr(p.ScanFormURL),
		ProviderPickupID: strPtr(p.ProviderPickupID),
	}
	if p.WindowStart != nil {
		ts := p.WindowStart.Format(time.RFC3339)
		out.WindowStart = &ts
	}
	if p.WindowEnd != nil {
		ts := p.WindowEnd.Format(time.RFC3339)
		out.WindowEnd = &ts
	}
	if p.CostCents > 0 {
		out.Cost = moneyFromCents(p.CostCents, currency)
	}
	return out
}

func quotesToGraphQL(quotes []rates.CarrierQuote) []*generated.CarrierQuote {
	out := make([]*generated.CarrierQuote, 0, len(quotes))
	for _, cq := range quotes {
		gcq := &generated.CarrierQuote{
			Code: cq.Code,
			Name: cq.Name,
		}
		for _, sq := range cq.Services {
			gcq.Services = append(gcq.Services, &generated.ServiceQuote{
				RateID:          sq.RateID,
				Service:         sq.Service,
				Total:           moneyFromCents(sq.AmountCents, sq.Currency),
				AmountToCollect: moneyFromCents(sq.Insurance.AmountToCollectCents, sq.Currency),
				InsuranceCost:   moneyFromCents(sq.Insurance.InsuranceCostCents, sq.Currency),
			})
		}
		out = append(out, gcq)
	}
	return out
}

func assignResultToGraphQL(res *pickups.AssignResult) *generated.AssignPickupResult {
	out := &generated.AssignPickupResult{}
	for fid, pid := range res.Assigned {
		out.Assigned = append(out.Assigned, &generated.PickupAssignment{
			FulfillmentID: fid,
			PickupID:      pid,
		})
	}
	for fid, reason := range res.Rejected {
		out.Rejected = append(out.Rejected, &generated.PickupRejection{
			FulfillmentID: fid,
			Reason:        reason,
		})
	}
	return out
}
