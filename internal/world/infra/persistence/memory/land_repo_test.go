package memory_test

import (
	"testing"

	"LandVerse/internal/world/app/port"
	"LandVerse/internal/world/infra/persistence/memory"
	"LandVerse/internal/world/infra/persistence/repotest"
)

func TestLandRepository(t *testing.T) {
	repotest.Run(t, func(*testing.T) port.LandRepository {
		return memory.NewLandRepository()
	})
}
