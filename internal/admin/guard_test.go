package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"gatekeeper/internal/platform/kv"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/audit"
	"gatekeeper/pkg/platform/audit/publisher"
	"gatekeeper/pkg/platform/audit/store/memory"
	"gatekeeper/pkg/requestcontext"
)

type GuardSuite struct {
	suite.Suite
	events *memory.InMemoryStore
	guard  *Guard
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	s.events = memory.NewInMemoryStore()
	auditor := audit.NewLogger(nil, publisher.NewPublisher(s.events), "claims")
	s.guard = NewGuard(kv.NewMemory(), "claims", auditor)
}

func as(caller string) context.Context {
	return requestcontext.WithCaller(context.Background(), domain.Address("G"+caller))
}

func (s *GuardSuite) TestInitializeIsFirstCallWins() {
	s.Require().NoError(s.guard.Initialize(context.Background(), "GADMIN"))

	err := s.guard.Initialize(context.Background(), "GMALLORY")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyInitialized))

	admin, err := s.guard.Admin(context.Background())
	s.Require().NoError(err)
	s.Equal("GADMIN", admin.String())

	events, err := s.events.ListRecent(context.Background(), audit.Filter{Action: string(audit.EventAdminInitialized)})
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *GuardSuite) TestRequire() {
	s.Run("uninitialized component rejects everyone", func() {
		s.True(dErrors.HasCode(s.guard.Require(as("ADMIN")), dErrors.CodeUnauthorized))
	})

	s.Require().NoError(s.guard.Initialize(context.Background(), "GADMIN"))

	s.Run("missing caller", func() {
		s.True(dErrors.HasCode(s.guard.Require(context.Background()), dErrors.CodeUnauthorized))
	})
	s.Run("wrong caller", func() {
		s.True(dErrors.HasCode(s.guard.Require(as("MALLORY")), dErrors.CodeUnauthorized))
	})
	s.Run("admin", func() {
		s.NoError(s.guard.Require(as("ADMIN")))
	})
}

func (s *GuardSuite) TestTransferAdmin() {
	s.Require().NoError(s.guard.Initialize(context.Background(), "GADMIN"))

	err := s.guard.TransferAdmin(as("MALLORY"), "GMALLORY")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	s.Require().NoError(s.guard.TransferAdmin(as("ADMIN"), "GNEXT"))
	s.True(dErrors.HasCode(s.guard.Require(as("ADMIN")), dErrors.CodeUnauthorized))
	s.NoError(s.guard.Require(as("NEXT")))

	events, err := s.events.ListRecent(context.Background(), audit.Filter{Action: string(audit.EventAdminTransferred)})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("GADMIN", events[0].Attributes["previous"])
	s.Equal("GADMIN", events[0].ActorID)
}
