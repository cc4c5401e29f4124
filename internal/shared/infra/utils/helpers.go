package utils

// OrDefault devuelve def cuando v es el valor cero de su tipo.
func OrDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
