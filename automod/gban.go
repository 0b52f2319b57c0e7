package automod

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type GBanRequest struct {
	IDs []int64
	// Applied to every identity; DefaultReason when empty.
	Reason string
	// Report progress in ChatID while processing large batches.
	Verbose bool
	// Chat the request came from.
	ChatID int64
	// Account which asked for the ban.
	Issuer int64
}

type UnGBanRequest struct {
	IDs     []int64
	Verbose bool
	ChatID  int64
	Issuer  int64
}

// Globally bans every identity in the request.
//
// Each identity passes a precedence check against its current ban record, is written to the ban list, relayed to the coordination channels and mirrored to the reputation service. Identities are processed in chunks with pauses in between. The report is always returned; the error joins any store failures, which abort only the affected identity.
func (eng *Engine) GBan(ctx context.Context, req GBanRequest) (*Report, error) {
	ctx, span := otel.Tracer("automod").Start(ctx, "GBan")
	defer span.End()

	start := time.Now()
	defer func() {
		opDuration.WithLabelValues("gban").Observe(time.Since(start).Seconds())
	}()

	rep := newReport("gban")
	ids := normalizeIDs(req.IDs)
	if len(ids) == 0 {
		return rep, ErrNoIdentities
	}
	reason := req.Reason
	if reason == "" {
		reason = DefaultReason
	}
	span.SetAttributes(attribute.Int("identities", len(ids)), attribute.String("reason", reason))

	logger := eng.Logger.With("op", "gban", "chat", req.ChatID, "issuer", req.Issuer)
	logger.Info("processing gban", "identities", len(ids), "reason", reason)

	eng.runChunked(ctx, logger, "banning", ids, req.Verbose, req.ChatID, rep, func(ctx context.Context, id int64) {
		eng.gbanOne(ctx, logger.With("uid", id), rep, id, reason)
	})

	if eng.Counters != nil && req.ChatID != 0 && len(rep.Banned) > 0 {
		if err := eng.Counters.IncrementDistinct(ctx, CounterGBanChats, CounterAll, strconv.FormatInt(req.ChatID, 10)); err != nil {
			logger.Warn("failed to increment counter", "counter", CounterGBanChats, "err", err)
		}
	}

	rep.CanonicalLogLine(logger)
	err := rep.Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failures")
	}
	return rep, err
}

func (eng *Engine) gbanOne(ctx context.Context, logger *slog.Logger, rep *Report, id int64, requested string) {
	rec, err := eng.Store.GetBanRecord(ctx, id)
	if err != nil {
		logger.Error("failed to read ban record", "err", err)
		identityOutcomes.WithLabelValues("gban", "error").Inc()
		rep.addError(id, err)
		rep.addSkipped(SkipStoreFailed, id)
		return
	}

	reason := requested
	if rec != nil {
		if msg, skip := precedenceSkip(rec.Reason, requested); skip {
			logger.Info("skipping gban", "stored", rec.Reason, "why", msg)
			identityOutcomes.WithLabelValues("gban", "skipped").Inc()
			eng.increment(ctx, CounterGBanSkipped)
			rep.addSkipped(msg, id)
			return
		}
		reason = combineReasons(rec.Reason, requested)
	}

	if err := eng.Store.UpsertBanRecord(ctx, id, reason); err != nil {
		logger.Error("failed to write ban record", "err", err)
		identityOutcomes.WithLabelValues("gban", "error").Inc()
		rep.addError(id, err)
		rep.addSkipped(SkipStoreFailed, id)
		return
	}
	eng.purgeBanCache(ctx, id)
	eng.increment(ctx, CounterGBan)

	posted := eng.propagate(ctx, logger, "gban", eng.Coordination.GBanTemplates, id, reason)

	if eng.Reputation.CanWrite() {
		if err := eng.Reputation.AddBan(ctx, id, reason); err != nil {
			externalSyncs.WithLabelValues("gban", "error").Inc()
			logger.Warn("reputation sync failed", "err", fmt.Errorf("%w: %w", ErrExternalSync, err))
		} else {
			externalSyncs.WithLabelValues("gban", "ok").Inc()
		}
	}

	if !posted {
		identityOutcomes.WithLabelValues("gban", "propagation-failed").Inc()
		rep.addSkipped(SkipPropagationFailed, id)
		return
	}
	identityOutcomes.WithLabelValues("gban", "banned").Inc()
	logger.Info("gbanned identity", "reason", reason)
	rep.addBanned(reason, id)
}

// Lifts global bans. Identities without a ban record are skipped with no store mutation and nothing posted; the others are removed from the ban list, relayed to the coordination channels and removed from the reputation service. Paced like GBan.
func (eng *Engine) UnGBan(ctx context.Context, req UnGBanRequest) (*Report, error) {
	ctx, span := otel.Tracer("automod").Start(ctx, "UnGBan")
	defer span.End()

	start := time.Now()
	defer func() {
		opDuration.WithLabelValues("ungban").Observe(time.Since(start).Seconds())
	}()

	rep := newReport("ungban")
	ids := normalizeIDs(req.IDs)
	if len(ids) == 0 {
		return rep, ErrNoIdentities
	}
	span.SetAttributes(attribute.Int("identities", len(ids)))

	logger := eng.Logger.With("op", "ungban", "chat", req.ChatID, "issuer", req.Issuer)
	logger.Info("processing ungban", "identities", len(ids))

	eng.runChunked(ctx, logger, "unbanning", ids, req.Verbose, req.ChatID, rep, func(ctx context.Context, id int64) {
		eng.ungbanOne(ctx, logger.With("uid", id), rep, id)
	})

	rep.CanonicalLogLine(logger)
	err := rep.Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failures")
	}
	return rep, err
}

func (eng *Engine) ungbanOne(ctx context.Context, logger *slog.Logger, rep *Report, id int64) {
	rec, err := eng.Store.GetBanRecord(ctx, id)
	if err != nil {
		logger.Error("failed to read ban record", "err", err)
		identityOutcomes.WithLabelValues("ungban", "error").Inc()
		rep.addError(id, err)
		rep.addSkipped(SkipStoreFailed, id)
		return
	}
	if rec == nil {
		identityOutcomes.WithLabelValues("ungban", "skipped").Inc()
		rep.addSkipped(SkipNotBanned, id)
		return
	}

	if _, err := eng.Store.DeleteBanRecord(ctx, id); err != nil {
		logger.Error("failed to delete ban record", "err", err)
		identityOutcomes.WithLabelValues("ungban", "error").Inc()
		rep.addError(id, err)
		rep.addSkipped(SkipStoreFailed, id)
		return
	}
	eng.purgeBanCache(ctx, id)
	eng.increment(ctx, CounterUnGBan)

	posted := eng.propagate(ctx, logger, "ungban", eng.Coordination.UnGBanTemplates, id, rec.Reason)

	if eng.Reputation.CanWrite() {
		if err := eng.Reputation.DeleteBan(ctx, id); err != nil {
			externalSyncs.WithLabelValues("ungban", "error").Inc()
			logger.Warn("reputation sync failed", "err", fmt.Errorf("%w: %w", ErrExternalSync, err))
		} else {
			externalSyncs.WithLabelValues("ungban", "ok").Inc()
		}
	}

	if !posted {
		identityOutcomes.WithLabelValues("ungban", "propagation-failed").Inc()
		rep.addSkipped(SkipPropagationFailed, id)
		return
	}
	identityOutcomes.WithLabelValues("ungban", "unbanned").Inc()
	logger.Info("ungbanned identity", "previous_reason", rec.Reason)
	rep.addBanned(rec.Reason, id)
}
