package loader

// Profiles is the external capability (spec §1, §6) backing the named
// profile/settings store. The core only ever asks it to expand a named
// profile into a flat key/value configuration, or to compute the final
// tree once command-line overrides are layered on.
type Profiles interface {
	// Lookup reports whether name is a known profile.
	Lookup(name string) (exists bool)

	// ExpandedBuildConfiguration returns the flat dotted-key map for
	// (profileName, configName), walking any base-profile chain.
	ExpandedBuildConfiguration(profileName, configName string) (map[string]string, error)

	// FinalBuildConfigurationTree turns a flat map plus dotted-key
	// overrides into a nested tree keyed by module/property segments,
	// ready for injection as VariantValues (spec §4.F "Profile
	// injection").
	FinalBuildConfigurationTree(flat map[string]string, overrides map[string]string) map[string]map[string]interface{}
}

// noneProfile is the fallback used when SetupProjectParameters.topLevelProfile
// is empty (SPEC_FULL.md "Supplemented features": default-profile
// resolution). It behaves as a profile that injects nothing.
type noneProfile struct{}

func (noneProfile) Lookup(name string) bool { return name == "none" }

func (noneProfile) ExpandedBuildConfiguration(profileName, configName string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (noneProfile) FinalBuildConfigurationTree(flat map[string]string, overrides map[string]string) map[string]map[string]interface{} {
	tree := map[string]map[string]interface{}{}
	for k, v := range overrides {
		mod, prop, ok := splitModuleProperty(k)
		if !ok {
			continue
		}
		if tree[mod] == nil {
			tree[mod] = map[string]interface{}{}
		}
		tree[mod][prop] = v
	}
	return tree
}
