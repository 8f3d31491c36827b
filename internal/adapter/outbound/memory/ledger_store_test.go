package memory

import (
	"testing"

	"github.com/quizforge/server/internal/adapter/outbound/storetest"
	"github.com/quizforge/server/internal/port/outbound"
)

func TestLedgerStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) outbound.LedgerStorePort {
		return NewLedgerStore()
	})
}
