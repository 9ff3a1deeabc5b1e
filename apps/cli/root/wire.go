package root

import (
	planscmd "github.com/diploy/hostfleet/apps/cli/cmd/plans"
	sweepcmd "github.com/diploy/hostfleet/apps/cli/cmd/sweep"
	tenantcmd "github.com/diploy/hostfleet/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(tenantcmd.Command())
	Root().AddCommand(sweepcmd.Command())
	Root().AddCommand(planscmd.Command())
}
