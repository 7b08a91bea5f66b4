package types

// PageRef identifies one scanned page within a book.
type PageRef struct {
	// Key is the blob store locator for the page image.
	Key string `json:"key"`

	// Number is the 1-based position of the page within the book.
	Number int `json:"number"`
}

// StampDetection is one "filed for record" mark found on a page.
// Zero or more are produced per page; a detection is never mutated
// after the page has been analyzed.
type StampDetection struct {
	PageKey       string  `json:"pageKey"`
	YPosPercent   float64 `json:"yPosPercent"` // 0-100, top of page = 0
	Transcription string  `json:"transcription"`
	VisualContext string  `json:"visualContext"`
}

// Slice is a vertical region of a single page, owned by exactly one
// logical document. Bounds are percentages of page height.
type Slice struct {
	PageKey       string  `json:"pageKey"`
	PageNumber    int     `json:"pageNumber"`
	YStartPercent float64 `json:"yStartPercent"`
	YEndPercent   float64 `json:"yEndPercent"`
}

// LogicalDocument is the ordered set of page slices belonging to one
// recorded instrument, as delimited by filing stamps. It exists only
// between the slice planner and the artifact assembler; the persisted
// entity is the document record the assembler creates from it.
type LogicalDocument struct {
	Slices []Slice `json:"slices"`
}

// Empty reports whether the document carries no slices at all.
func (d LogicalDocument) Empty() bool {
	return len(d.Slices) == 0
}

// PartyRole distinguishes the two sides of a conveyance.
type PartyRole string

const (
	RoleGrantor PartyRole = "Grantor"
	RoleGrantee PartyRole = "Grantee"
)

// DocumentFacts is the structured fact set extracted from a document's
// pages. Scalar fields hold the first non-empty value seen across
// extraction batches; grantor/grantee are de-duplicated unions.
type DocumentFacts struct {
	Transcription    string   `json:"transcription,omitempty"`
	InstrumentNumber string   `json:"instrumentNumber,omitempty"`
	Book             string   `json:"book,omitempty"`
	Volume           string   `json:"volume,omitempty"`
	Page             string   `json:"page,omitempty"`
	Grantor          []string `json:"grantor,omitempty"`
	Grantee          []string `json:"grantee,omitempty"`
	InstrumentType   string   `json:"instrumentType,omitempty"`
	Remarks          string   `json:"remarks,omitempty"`
	Amount           string   `json:"amount,omitempty"`
	InstrumentDate   string   `json:"instrumentDate,omitempty"`
	FileDate         string   `json:"fileDate,omitempty"`
	LegalDescription string   `json:"legalDescription,omitempty"`
	Address          string   `json:"address,omitempty"`
	ReferenceNumbers string   `json:"referenceNumbers,omitempty"`
}
