package queue

import "github.com/landrecs/deedflow/internal/types"

// BookRequest asks the book processor to split one uploaded book.
type BookRequest struct {
	BookID     string `json:"bookId"`
	CountyID   string `json:"countyId"`
	CountyName string `json:"countyName"`
}

// ExtractionRequest announces one assembled artifact ready for
// structured extraction. Exactly one of BookID/BatchID is set,
// depending on whether the document came from a book split or an
// individually uploaded batch.
type ExtractionRequest struct {
	DocumentID  int64  `json:"documentId"`
	PRSERV      string `json:"PRSERV"`
	CountyID    string `json:"countyId"`
	CountyName  string `json:"countyName"`
	ArtifactKey string `json:"artifactKey"`
	BookID      string `json:"bookId,omitempty"`
	BatchID     string `json:"batchId,omitempty"`
}

// PersistenceRequest carries a merged fact set to the persistence
// worker along with the routing fields of the originating artifact.
type PersistenceRequest struct {
	DocumentID int64  `json:"documentId"`
	PRSERV     string `json:"PRSERV"`
	CountyID   string `json:"countyId"`
	CountyName string `json:"countyName"`
	BookID     string `json:"bookId,omitempty"`
	BatchID    string `json:"batchId,omitempty"`

	Facts types.DocumentFacts `json:"facts"`
}
