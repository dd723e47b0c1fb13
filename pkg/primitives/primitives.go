package primitives

import "fmt"

// PageID Methods
// =============================================================================

// IsValid reports whether the PageID refers to an actual page.
func (p PageID) IsValid() bool {
	return p != InvalidPageID
}

// String returns a string representation of the PageID.
func (p PageID) String() string {
	if !p.IsValid() {
		return "PageID(invalid)"
	}
	return fmt.Sprintf("PageID(%d)", p)
}

// FrameID Methods
// =============================================================================

// IsValid reports whether the FrameID refers to an actual frame.
func (f FrameID) IsValid() bool {
	return f != InvalidFrameID
}

// String returns a string representation of the FrameID.
func (f FrameID) String() string {
	if !f.IsValid() {
		return "FrameID(invalid)"
	}
	return fmt.Sprintf("FrameID(%d)", f)
}

// RID locates a record: the page that holds it and the slot within that
// page. It is the value type stored in index leaves.
type RID struct {
	PageID  PageID
	SlotNum SlotNumber
}

// NewRID creates a record identifier for the given page and slot.
func NewRID(pid PageID, slot SlotNumber) RID {
	return RID{PageID: pid, SlotNum: slot}
}

// Equals checks if two record identifiers point at the same slot.
func (r RID) Equals(other RID) bool {
	return r.PageID == other.PageID && r.SlotNum == other.SlotNum
}

// String returns a string representation of the RID.
func (r RID) String() string {
	return fmt.Sprintf("RID(page=%d, slot=%d)", r.PageID, r.SlotNum)
}
