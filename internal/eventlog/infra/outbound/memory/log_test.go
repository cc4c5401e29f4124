package memory

import (
	"testing"

	"github.com/davicafu/hexapost/internal/eventlog/domain"
	"github.com/davicafu/hexapost/internal/eventlog/infra/outbound/logtest"
)

func TestMemoryLog(t *testing.T) {
	logtest.Run(t, func(t *testing.T, partitions int) domain.Log {
		return NewLog(partitions)
	})
}
