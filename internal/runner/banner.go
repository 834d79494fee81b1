package runner

import (
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/lanwatch/pkg/version"
)

const banner = `
   __                             __       __
  / /___ _____ _      ______ _   / /______/ /_
 / / __ '/ __ \ | /| / / __ '/  / __/ ___/ __ \
/ / /_/ / / / / |/ |/ / /_/ /  / /_/ /__/ / / /
/_/\__,_/_/ /_/|__/|__/\__,_/   \__/\___/_/ /_/
`

// showBanner is used to show the banner to the user
func showBanner() {
	gologger.Print().Msgf("%s\n", banner)
	gologger.Print().Msgf("\t\tlanwatch %s\n\n", version.GetVersion())
}
