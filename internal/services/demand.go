package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/cache"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/metrics"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/models"
	"github.com/carlosccorreia5/gestao-saladas-sunset/internal/tracing"
)

// ProductTypeLister reads the product catalog
type ProductTypeLister interface {
	List(ctx context.Context) ([]models.ProductType, error)
}

// RequestAggregateReader exposes the request-side sums behind the summary
type RequestAggregateReader interface {
	PendingRequestIDs(ctx context.Context, day time.Time) ([]uuid.UUID, error)
	SumItemQuantities(ctx context.Context, productTypeID uuid.UUID, requestIDs []uuid.UUID) (int, error)
}

// DeliveryAggregateReader exposes the delivery-side sums behind the summary
type DeliveryAggregateReader interface {
	IDsForDate(ctx context.Context, day time.Time) ([]uuid.UUID, error)
	SumItemQuantities(ctx context.Context, productTypeID uuid.UUID, deliveryIDs []uuid.UUID) (int, error)
}

// SummaryViewReader reads the precomputed dashboard aggregate
type SummaryViewReader interface {
	DailySummaryView(ctx context.Context, day time.Time) ([]models.DailySummary, error)
}

const summaryCacheTTL = time.Minute

// DemandAggregator computes the requested/produced/remaining dashboard rows
// for a day. The precomputed view is the fast path; when it is unavailable
// the per-product fallback must land on the same numbers.
type DemandAggregator struct {
	productTypes ProductTypeLister
	requests     RequestAggregateReader
	deliveries   DeliveryAggregateReader
	summaryView  SummaryViewReader
	cache        *cache.RedisCache
	metrics      *metrics.Metrics
	tracer       tracing.Tracer
}

// NewDemandAggregator creates a new demand aggregator
func NewDemandAggregator(
	productTypes ProductTypeLister,
	requests RequestAggregateReader,
	deliveries DeliveryAggregateReader,
	summaryView SummaryViewReader,
	redisCache *cache.RedisCache,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *DemandAggregator {
	return &DemandAggregator{
		productTypes: productTypes,
		requests:     requests,
		deliveries:   deliveries,
		summaryView:  summaryView,
		cache:        redisCache,
		metrics:      metricsCollector,
		tracer:       tracer,
	}
}

// ComputeDailySummary returns one row per product type for the given day,
// sorted by remaining descending. The computation is a pure read.
func (a *DemandAggregator) ComputeDailySummary(ctx context.Context, day time.Time) ([]models.DailySummary, error) {
	day = models.Day(day)
	started := time.Now()

	if a.tracer != nil {
		txn := a.tracer.StartTransaction("compute-daily-summary")
		defer a.tracer.EndTransaction(txn)
	}

	if cached := a.fromCache(ctx, day); cached != nil {
		return cached, nil
	}

	summary, err := a.compute(ctx, day)
	if err != nil {
		return nil, err
	}

	a.toCache(ctx, day, summary)

	if a.metrics != nil {
		a.metrics.RecordTimer(metrics.TimerDailySummary, time.Since(started).Milliseconds())
	}

	return summary, nil
}

// InvalidateSummary drops the cached summary for a day. Called after every
// commit so the next read reflects the new deliveries.
func (a *DemandAggregator) InvalidateSummary(ctx context.Context, day time.Time) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Delete(ctx, cache.DailySummaryCacheKey(models.Day(day))); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate cached daily summary")
	}
}

// RefreshSummary recomputes the summary for a day and rewrites the cache,
// bypassing whatever is cached now. The worker runs this on a schedule.
func (a *DemandAggregator) RefreshSummary(ctx context.Context, day time.Time) error {
	day = models.Day(day)
	summary, err := a.compute(ctx, day)
	if err != nil {
		return err
	}
	a.toCache(ctx, day, summary)
	return nil
}

func (a *DemandAggregator) compute(ctx context.Context, day time.Time) ([]models.DailySummary, error) {
	// Fast path: the precomputed dashboard view
	if a.summaryView != nil {
		rows, err := a.summaryView.DailySummaryView(ctx, day)
		if err == nil {
			sortByRemaining(rows)
			return rows, nil
		}
		log.Warn().Err(err).Msg("Dashboard view unavailable, computing daily summary manually")
	}

	return a.computeManually(ctx, day)
}

// computeManually rebuilds the summary from the request and delivery tables.
// It must agree numerically with the view.
func (a *DemandAggregator) computeManually(ctx context.Context, day time.Time) ([]models.DailySummary, error) {
	productTypes, err := a.productTypes.List(ctx)
	if err != nil {
		// Without the catalog there is nothing to aggregate over
		return nil, errors.Wrap(err, "failed to fetch product catalog for daily summary")
	}

	summary := make([]models.DailySummary, 0, len(productTypes))
	for _, product := range productTypes {
		requestIDs, err := a.requests.PendingRequestIDs(ctx, day)
		if err != nil {
			log.Error().Err(err).Str("product", product.Name).Msg("Failed to fetch pending request ids, skipping product")
			continue
		}

		deliveryIDs, err := a.deliveries.IDsForDate(ctx, day)
		if err != nil {
			log.Error().Err(err).Str("product", product.Name).Msg("Failed to fetch delivery ids, skipping product")
			continue
		}

		// An empty id set means a zero sum; issuing a filter query against
		// no ids would be malformed and error out for nothing.
		requested := 0
		if len(requestIDs) > 0 {
			requested, err = a.requests.SumItemQuantities(ctx, product.ID, requestIDs)
			if err != nil {
				log.Error().Err(err).Str("product", product.Name).Msg("Failed to sum requested quantities, skipping product")
				continue
			}
		}

		produced := 0
		if len(deliveryIDs) > 0 {
			produced, err = a.deliveries.SumItemQuantities(ctx, product.ID, deliveryIDs)
			if err != nil {
				log.Error().Err(err).Str("product", product.Name).Msg("Failed to sum produced quantities, skipping product")
				continue
			}
		}

		summary = append(summary, models.DailySummary{
			ProductTypeID:  product.ID,
			ProductName:    product.Name,
			ProductEmoji:   product.Emoji,
			ProductColor:   product.Color,
			TotalRequested: requested,
			TotalProduced:  produced,
			// Over-delivery goes negative on purpose; the dashboard shows it
			Remaining: requested - produced,
		})
	}

	sortByRemaining(summary)
	return summary, nil
}

func (a *DemandAggregator) fromCache(ctx context.Context, day time.Time) []models.DailySummary {
	if a.cache == nil {
		return nil
	}
	var cached []models.DailySummary
	if err := a.cache.Get(ctx, cache.DailySummaryCacheKey(day), &cached); err != nil {
		return nil
	}
	return cached
}

func (a *DemandAggregator) toCache(ctx context.Context, day time.Time, summary []models.DailySummary) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Set(ctx, cache.DailySummaryCacheKey(day), summary, summaryCacheTTL); err != nil {
		log.Warn().Err(err).Msg("Failed to cache daily summary")
	}
}

func sortByRemaining(rows []models.DailySummary) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Remaining > rows[j].Remaining
	})
}
