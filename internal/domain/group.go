package domain

// Group is a platform group chat managed by the capacity manager. ID is
// assigned by the gateway at creation and never changes.
type Group struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	MemberCount       int      `json:"memberCount"`
	Admins            []string `json:"admins,omitempty"`
	PostingRestricted bool     `json:"postingRestricted"`
	InfoRestricted    bool     `json:"infoRestricted"`
}

func (g Group) HasCapacity(maxSize int) bool {
	return g.MemberCount < maxSize
}
