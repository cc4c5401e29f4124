package relayer

import (
	"context"
	"time"

	"go.uber.org/zap"

	logDomain "github.com/davicafu/hexapost/internal/eventlog/domain"
)

// RetentionWorker compacta periódicamente cada partición del log dejando las
// últimas retain posiciones. El log nunca borra lo que algún grupo no confirmó.
type RetentionWorker struct {
	log      logDomain.Log
	retain   int
	interval time.Duration
	zlog     *zap.Logger
}

func NewRetentionWorker(l logDomain.Log, retain int, interval time.Duration, log *zap.Logger) *RetentionWorker {
	if retain < 0 {
		retain = 0
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &RetentionWorker{log: l, retain: retain, interval: interval, zlog: log}
}

// Start inicia el bucle del worker. Bloquea hasta que ctx se cancele.
func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.zlog.Info("🚀 Retention worker iniciado",
		zap.Duration("interval", w.interval),
		zap.Int("retain", w.retain),
	)

	for {
		select {
		case <-ctx.Done():
			w.zlog.Info("🛑 Retention worker detenido.")
			return
		case <-ticker.C:
			w.CompactAll(ctx)
		}
	}
}

// CompactAll recorre todas las particiones y devuelve cuántos registros se eliminaron.
func (w *RetentionWorker) CompactAll(ctx context.Context) int {
	total := 0
	for p := 0; p < w.log.Partitions(); p++ {
		earliest, latest, err := w.log.Bounds(ctx, p)
		if err != nil {
			w.zlog.Warn("⚠️ No se pudieron leer los límites de la partición", zap.Int("partition", p), zap.Error(err))
			continue
		}

		upTo := latest - logDomain.Position(w.retain)
		if upTo < earliest {
			continue
		}

		removed, err := w.log.Compact(ctx, p, upTo)
		if err != nil {
			w.zlog.Warn("⚠️ Error compactando partición", zap.Int("partition", p), zap.Error(err))
			continue
		}
		if removed > 0 {
			w.zlog.Info("🧹 Partición compactada",
				zap.Int("partition", p),
				zap.Int("removed", removed),
				zap.Int64("up_to", int64(upTo)),
			)
		}
		total += removed
	}
	return total
}
