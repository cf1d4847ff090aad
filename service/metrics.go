package service

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
)

var metricsCtx = context.Background()

type metrics struct {
	auctionsCreated metric.Int64Counter
	bidsPlaced      metric.Int64Counter
	auctionsClosed  metric.Int64Counter
	reservedClaimed metric.Int64Counter
}

func (s *Service) initMetrics() {
	meter := metric.Must(global.Meter("auctiond"))
	s.metrics.auctionsCreated = meter.NewInt64Counter("auctiond.auctions_created_total")
	s.metrics.bidsPlaced = meter.NewInt64Counter("auctiond.bids_placed_total")
	s.metrics.auctionsClosed = meter.NewInt64Counter("auctiond.auctions_closed_total")
	s.metrics.reservedClaimed = meter.NewInt64Counter("auctiond.reserved_claimed_total")
}
