// Package scenario owns the per-scenario state bundle and the registry that binds
// one bundle to each worker.
package scenario

import (
	"time"

	"github.com/ethereum-optimism/infra/op-uat/assertion"
	"github.com/ethereum-optimism/infra/op-uat/browser"
	"github.com/ethereum-optimism/infra/op-uat/locator"
	"github.com/ethereum-optimism/infra/op-uat/page"
	"github.com/ethereum-optimism/infra/op-uat/types"
	"github.com/ethereum-optimism/infra/op-uat/wait"
)

// Context is everything a running scenario may touch. Only Locators is shared
// with other contexts, and it is read-only.
type Context struct {
	Worker     types.WorkerID
	Session    browser.Session
	Waits      *wait.Engine
	Assertions *assertion.Log
	Locators   *locator.Tables
	Page       *page.Page
	Created    time.Time
}
