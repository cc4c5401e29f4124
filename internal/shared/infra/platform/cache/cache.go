package cache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Cache es una caché clave-valor con TTL. Los valores viajan serializados en JSON.
type Cache interface {
	// Get rellena dest (puntero) y devuelve true si hubo hit.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set guarda val con un TTL en segundos; 0 usa el TTL por defecto del backend.
	Set(ctx context.Context, key string, val any, ttlSecs int) error

	Delete(ctx context.Context, key string) error
}

// versionTTLSecs debe superar con holgura el TTL de los valores: si la versión expira
// antes que un valor etiquetado con la versión vacía, ese valor volvería a ser válido.
const versionTTLSecs = 3600

// versioned etiqueta cada valor con la versión de la clave vigente antes de cargarlo.
type versioned[T any] struct {
	Version string `json:"v"`
	Value   T      `json:"value"`
}

func versionKey(key string) string { return key + ":version" }

func currentVersion(ctx context.Context, c Cache, key string) (string, error) {
	var v string
	if _, err := c.Get(ctx, versionKey(key), &v); err != nil {
		return "", err
	}
	return v, nil
}

// GetOrLoad aplica cache-aside: lee de c, y en miss llama a load y repuebla la clave
// en background. El valor se guarda con la versión leída antes de load, así una
// invalidación concurrente con la carga deja el valor viejo inservible.
// Con c nil, o si la caché falla, siempre llama a load.
func GetOrLoad[T any](ctx context.Context, c Cache, key string, ttlSecs int, log *zap.Logger, load func(context.Context) (*T, error)) (*T, error) {
	useCache := c != nil
	var version string
	if useCache {
		v, err := currentVersion(ctx, c, key)
		if err != nil {
			log.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
			useCache = false
		}
		version = v
	}

	if useCache {
		var cached versioned[T]
		hit, err := c.Get(ctx, key, &cached)
		if err != nil {
			log.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		} else if hit && cached.Version == version {
			return &cached.Value, nil
		}
	}

	val, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	if useCache {
		AsyncCacheSet(ctx, c, key, versioned[T]{Version: version, Value: *val}, ttlSecs, log)
	}
	return val, nil
}

// Invalidate cambia la versión de key y borra su valor. Las cargas en curso que leyeron
// la versión anterior ya no podrán servirse.
func Invalidate(ctx context.Context, c Cache, key string) error {
	if err := c.Set(ctx, versionKey(key), uuid.NewString(), versionTTLSecs); err != nil {
		return err
	}
	return c.Delete(ctx, key)
}
