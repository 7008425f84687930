package check

// Descriptor declares how a check instance is presented in the run
// output and the final report. Checks of the same type (e.g. the two
// table checks) differ only in their Descriptor and configuration.
type Descriptor struct {
	// Title is the progress heading printed before the check runs
	// (e.g. "Testing table_snapshots_index...").
	Title string

	// Label names the check in the report and in error entries
	// (e.g. "Snapshot Index").
	Label string

	// Remediation is the suggestion listed under the recommended fixes
	// when the check fails. Empty means the check has no suggestion.
	Remediation string
}

// applyDescriptor overrides d's fields with the optional "title",
// "label" and "remediation" keys of config.
func applyDescriptor(d *Descriptor, config map[string]any) error {
	fields := map[string]*string{
		"title":       &d.Title,
		"label":       &d.Label,
		"remediation": &d.Remediation,
	}
	for key, dst := range fields {
		v, ok, err := String(config, key)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}
	return nil
}

// DescriptorFrom returns def with any overrides present in config applied.
func DescriptorFrom(def Descriptor, config map[string]any) (Descriptor, error) {
	if err := applyDescriptor(&def, config); err != nil {
		return Descriptor{}, err
	}
	return def, nil
}
