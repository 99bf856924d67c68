package memstore_test

import (
	"testing"

	"github.com/stayline/concierge/internal/adapter/memstore"
	"github.com/stayline/concierge/internal/port/memorystore/memstoretest"
)

func TestStore_Compliance(t *testing.T) {
	memstoretest.RunComplianceTests(t, memstore.New())
}
