package enums

// LeadStatus is the lead's lifecycle tag. The sequencing core only ever writes
// LeadReplied; the rest are owned by the import/review surfaces.
type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadAccepted  LeadStatus = "accepted"
	LeadContacted LeadStatus = "contacted"
	LeadReplied   LeadStatus = "replied"
	LeadArchived  LeadStatus = "archived"
)

// IsValid reports whether the value matches a known lead status.
func (s LeadStatus) IsValid() bool {
	switch s {
	case LeadNew, LeadAccepted, LeadContacted, LeadReplied, LeadArchived:
		return true
	}
	return false
}
