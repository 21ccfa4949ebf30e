package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chinmina/chinmina-components/internal/audit"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce   sync.Once
	fetchCounter  metric.Int64Counter
	fetchDuration metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/chinmina/chinmina-components/internal/token")

		var err error
		fetchCounter, err = meter.Int64Counter(
			"token.fetch",
			metric.WithDescription("Total token fetches by outcome"),
		)
		if err != nil {
			otel.Handle(err)
		}

		fetchDuration, err = meter.Float64Histogram(
			"token.fetch.duration",
			metric.WithDescription("Token fetch duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// Audited wraps a Fetcher and records the outcome of each fetch in the log,
// the request audit entry and the token.fetch metric.
func Audited(f Fetcher) Fetcher {
	initMetrics()

	return func(ctx context.Context, opts Options) Result {
		start := time.Now()
		result := f(ctx, opts)
		record(ctx, opts, "", result, time.Since(start))
		return result
	}
}

// AuditedResource is Audited for resource scoped fetchers.
func AuditedResource(f ResourceFetcher) ResourceFetcher {
	initMetrics()

	return func(ctx context.Context, opts ResourceOptions) Result {
		start := time.Now()
		result := f(ctx, opts)
		record(ctx, opts.Options, opts.SiteURL, result, time.Since(start))
		return result
	}
}

// AuditedSharingLink is Audited for sharing link fetchers. The resource is
// recorded with its kind.
func AuditedSharingLink(f SharingLinkFetcher) SharingLinkFetcher {
	initMetrics()

	return func(ctx context.Context, opts SharingLinkOptions) Result {
		start := time.Now()
		result := f(ctx, opts)

		resource := opts.SiteURL
		if opts.Validate() == nil {
			resource = opts.Kind.String() + " " + opts.SiteURL
		}
		record(ctx, opts.Options, resource, result, time.Since(start))
		return result
	}
}

func record(ctx context.Context, opts Options, resource string, result Result, duration time.Duration) {
	outcome := result.Outcome()

	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("refresh", opts.Refresh),
	)
	if fetchCounter != nil {
		fetchCounter.Add(ctx, 1, attrs)
	}
	if fetchDuration != nil {
		fetchDuration.Record(ctx, duration.Seconds(), attrs)
	}

	entry := audit.Log(ctx)
	entry.TokenOutcome = outcome
	entry.TokenTenantID = opts.TenantID
	entry.TokenResource = resource
	entry.TokenRefresh = opts.Refresh
	if fromCache, known := IsFromCache(result); known {
		entry.TokenFromCache = &fromCache
	} else {
		entry.TokenFromCache = nil
	}

	if result.IsAbsent() {
		cause := "no token obtained"
		if err := result.Err(); err != nil {
			cause = err.Error()
		}
		entry.Error = fmt.Sprintf("token fetch failure: %s", cause)

		log.Ctx(ctx).Warn().
			EmbedObject(opts).
			Str("resource", resource).
			Dur("duration", duration).
			Str("cause", cause).
			Msg("token fetch failed")
		return
	}

	log.Ctx(ctx).Debug().
		EmbedObject(opts).
		Str("resource", resource).
		Str("outcome", outcome).
		Dur("duration", duration).
		Msg("token fetched")
}
