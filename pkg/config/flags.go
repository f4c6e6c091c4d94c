package config

import "github.com/xplshn/gsc/pkg/cli"

// SetupFlagGroups registers -W<warning>/-Wno-<warning> and -F<feature>/-Fno-<feature>
// pairs on fs. The returned entries are indexed by Warning and Feature.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) ([]cli.FlagGroupEntry, []cli.FlagGroupEntry) {
	var warningFlags, featureFlags []cli.FlagGroupEntry

	for i := Warning(0); i < WarnCount; i++ {
		pEnable, pDisable := new(bool), new(bool)
		info := c.Warnings[i]
		warningFlags = append(warningFlags, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description, Enabled: pEnable, Disabled: pDisable,
		})
	}

	for i := Feature(0); i < FeatCount; i++ {
		pEnable, pDisable := new(bool), new(bool)
		info := c.Features[i]
		featureFlags = append(featureFlags, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description, Enabled: pEnable, Disabled: pDisable,
		})
	}

	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings", "warning flag", "Available Warning Flags:", warningFlags)
	fs.AddFlagGroup("Feature Flags", "Enable or disable specific features", "feature flag", "Available feature flags:", featureFlags)

	return warningFlags, featureFlags
}

// ApplyFlagGroups applies the parsed group entries on top of the defaults.
// umbrella lists the set catch-all flags (Wall, Wno-all, pedantic); they are
// applied first so a specific -W flag overrides them wherever it appears.
func (c *Config) ApplyFlagGroups(warningFlags, featureFlags []cli.FlagGroupEntry, umbrella ...string) {
	c.ProcessFlags(func(fn func(name string)) {
		for _, name := range umbrella {
			fn(name)
		}
		for _, group := range [][]cli.FlagGroupEntry{warningFlags, featureFlags} {
			for _, entry := range group {
				if entry.Enabled != nil && *entry.Enabled {
					fn(entry.Prefix + entry.Name)
				}
				if entry.Disabled != nil && *entry.Disabled {
					fn(entry.Prefix + "no-" + entry.Name)
				}
			}
		}
	})
}
