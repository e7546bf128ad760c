package memory

import (
	"github.com/corefin/ledger/internal/service/account"
	"github.com/corefin/ledger/internal/service/allocation"
	"github.com/corefin/ledger/internal/service/balance"
	"github.com/corefin/ledger/internal/service/journal"
	"github.com/corefin/ledger/internal/service/period"
	"github.com/corefin/ledger/internal/service/posting"
	"github.com/corefin/ledger/internal/service/recurring"
	"github.com/corefin/ledger/internal/service/report"
)

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ account.Repo      = (*Store)(nil)
	_ account.Writer    = (*Store)(nil)
	_ period.Repo       = (*Store)(nil)
	_ period.Writer     = (*Store)(nil)
	_ journal.Repo      = (*Store)(nil)
	_ journal.Writer    = (*Store)(nil)
	_ balance.Store     = (*Store)(nil)
	_ balance.RebuildStore = (*Store)(nil)
	_ report.Repo       = (*Store)(nil)
	_ recurring.Repo    = (*Store)(nil)
	_ recurring.Writer  = (*Store)(nil)
	_ allocation.Repo   = (*Store)(nil)
	_ allocation.Writer = (*Store)(nil)
	_ posting.Store     = (*Store)(nil)
	_ posting.Tx        = (*memTx)(nil)
)
