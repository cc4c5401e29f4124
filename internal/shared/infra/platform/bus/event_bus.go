package bus

// Keyer lo implementa todo lo que sabe en qué partición debe caer.
// La clave determina el ámbito de orden: mismo key, misma partición, mismo orden.
type Keyer interface {
	PartitionKey() string
}
