package extract

import "github.com/landrecs/deedflow/internal/types"

// Merge folds the partial results of all extraction batches into one
// fact set. Scalars keep the first non-empty value encountered, in
// batch order, so conflicting values resolve first-batch-wins. The
// grantor and grantee lists are de-duplicated unions preserving first
// appearance order.
func Merge(parts []types.DocumentFacts) types.DocumentFacts {
	var out types.DocumentFacts
	for _, p := range parts {
		fillScalar(&out.Transcription, p.Transcription)
		fillScalar(&out.InstrumentNumber, p.InstrumentNumber)
		fillScalar(&out.Book, p.Book)
		fillScalar(&out.Volume, p.Volume)
		fillScalar(&out.Page, p.Page)
		fillScalar(&out.InstrumentType, p.InstrumentType)
		fillScalar(&out.Remarks, p.Remarks)
		fillScalar(&out.Amount, p.Amount)
		fillScalar(&out.InstrumentDate, p.InstrumentDate)
		fillScalar(&out.FileDate, p.FileDate)
		fillScalar(&out.LegalDescription, p.LegalDescription)
		fillScalar(&out.Address, p.Address)
		fillScalar(&out.ReferenceNumbers, p.ReferenceNumbers)

		out.Grantor = appendUnique(out.Grantor, p.Grantor)
		out.Grantee = appendUnique(out.Grantee, p.Grantee)
	}
	return out
}

func fillScalar(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func appendUnique(dst, more []string) []string {
	for _, v := range more {
		if v == "" {
			continue
		}
		found := false
		for _, have := range dst {
			if have == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
