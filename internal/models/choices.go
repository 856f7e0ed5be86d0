package models

// Choice pairs a local numeric code with its remote textual label.
// Code 0 is always the "unknown/n/a" sentinel: unrecognized remote
// values resolve to it instead of aborting a pull.
type Choice struct {
	Code  int
	Label string
}

// Legacy priority codes, kept for installations that map priorities
// to a fixed scale rather than the per-connection cache.
const (
	PriorityUnknown = iota
	PriorityMinor
	PriorityMajor
	PriorityCritical
)

// PriorityChoices is the ordered (code, label) table for legacy
// priority fields.
var PriorityChoices = []Choice{
	{PriorityUnknown, "n/a"},
	{PriorityMinor, "Minor"},
	{PriorityMajor, "Major"},
	{PriorityCritical, "Critical"},
}

// Impact codes.
const (
	ImpactUnknown = iota
	ImpactSmall
	ImpactMedium
	ImpactLarge
)

// ImpactChoices is the ordered (code, label) table for the impact
// custom field.
var ImpactChoices = []Choice{
	{ImpactUnknown, "n/a"},
	{ImpactSmall, "Small - Partial loss of service, one person affected"},
	{ImpactMedium, "Medium - One department or service is affected"},
	{ImpactLarge, "Large - Whole organization or all services are affected"},
}
