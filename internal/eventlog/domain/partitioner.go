package domain

import "github.com/cespare/xxhash/v2"

// Partitioner reparte claves entre N particiones fijas con un hash estable.
type Partitioner struct {
	n int
}

func NewPartitioner(n int) Partitioner {
	if n < 1 {
		n = 1
	}
	return Partitioner{n: n}
}

func (p Partitioner) Partitions() int { return p.n }

// For es estable entre procesos y reinicios: xxhash64(key) mod N.
func (p Partitioner) For(key string) int {
	return int(xxhash.Sum64String(key) % uint64(p.n))
}
