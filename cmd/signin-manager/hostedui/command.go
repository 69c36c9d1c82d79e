package hostedui

import (
	"github.com/spf13/cobra"

	"github.com/corvauth/signin-manager/internal/business"
	"github.com/corvauth/signin-manager/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"hosted-ui",
		"Browser-delegated sign-in",
		"Signs in through the provider's hosted UI, capturing the redirect on a local loopback listener",
		buildInfo,
		cmdutils.RunAsService,
		business.HostedUIMain,
	)
}
