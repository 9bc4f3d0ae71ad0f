package banner

import (
	"fmt"
	"strings"

	"loadceiling/internal/runner"
	"loadceiling/internal/tui/styles"
)

// Version is set at build time with -ldflags "-X loadceiling/internal/banner.Version=...".
var Version = "dev"

const ascii = `
    __                  __        _ ___
   / /___  ____ _____/ /_______  (_) (_)___  ____ _
  / / __ \/ __ '/ __  / ___/ _ \/ / / / __ \/ __ '/
 / / /_/ / /_/ / /_/ / /__/  __/ / / / / / / /_/ /
/_/\____/\__,_/\__,_/\___/\___/_/_/_/_/ /_/\__, /
                                          /____/  `

// GetString renders the banner followed by the version and the default walk.
func GetString() string {
	def := runner.DefaultConfig()
	th := def.Thresholds

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(styles.Success.Render(ascii))
	b.WriteString("\n")
	b.WriteString(styles.Subtle.Render(fmt.Sprintf("  %s · default %s:%d · %d→%d workers step %d · stop < %.0f%% or > %d failed connections",
		Version, def.Host, def.Port, def.StartWorkers, def.MaxWorkers, def.Step, th.StopSuccessRate, th.StopConnFailures)))
	b.WriteString("\n")
	return b.String()
}
