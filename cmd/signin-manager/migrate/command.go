package migrate

import (
	"github.com/spf13/cobra"

	"github.com/corvauth/signin-manager/internal/business"
	"github.com/corvauth/signin-manager/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"Credential store migrations",
		"Applies the sql credential store schema migrations",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
	)
}
