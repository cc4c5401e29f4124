package utils

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff describe una espera exponencial acotada con jitter.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter es la fracción (0..1) de variación aleatoria sobre cada espera.
	Jitter float64
}

// DefaultBackoff es el que usan Publisher y Dispatcher si la config no dice otra cosa.
var DefaultBackoff = Backoff{
	Initial:    50 * time.Millisecond,
	Max:        5 * time.Second,
	Multiplier: 2,
	Jitter:     0.2,
}

// OrDefault devuelve DefaultBackoff cuando b no tiene retardo inicial; con Initial 0
// los bucles de reintento girarían sin pausa.
func (b Backoff) OrDefault() Backoff {
	if b.Initial <= 0 {
		return DefaultBackoff
	}
	return b
}

// Delay devuelve la espera antes del reintento número attempt (empezando en 1).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		j := math.Min(b.Jitter, 1)
		d = d * (1 - j + 2*j*rand.Float64())
		if b.Max > 0 && d > float64(b.Max) {
			d = float64(b.Max)
		}
	}
	return time.Duration(d)
}

// Sleep espera la duración indicada o hasta que el contexto se cancele.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry ejecuta fn hasta attempts veces mientras retryable(err) sea cierto,
// esperando b.Delay(i) entre intentos. Devuelve el último error de fn, o el del
// contexto si se canceló durante una espera.
func Retry(ctx context.Context, attempts int, b Backoff, retryable func(error) bool, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		err = fn(i)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if i == attempts {
			break
		}
		if sleepErr := Sleep(ctx, b.Delay(i)); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}
