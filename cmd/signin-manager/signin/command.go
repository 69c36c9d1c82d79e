package signin

import (
	"github.com/spf13/cobra"

	"github.com/corvauth/signin-manager/internal/business"
	"github.com/corvauth/signin-manager/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"signin",
		"Challenge-based sign-in",
		"Signs in through the challenge-response credential exchange, prompting for credentials and MFA codes on stdin",
		buildInfo,
		cmdutils.RunAsJob,
		business.SignInMain,
	)
}
