package extract

// factsSchemaName labels the structured-extraction response contract.
const factsSchemaName = "title_document_facts"

// factsSchema is the strict response contract for one extraction
// batch: a free-text transcription plus the typed fact fields. The
// model is instructed to answer null rather than invent a value.
const factsSchema = `{
  "type": "object",
  "properties": {
    "transcription": {"type": ["string", "null"]},
    "instrumentNumber": {"type": ["string", "null"]},
    "book": {"type": ["string", "null"]},
    "volume": {"type": ["string", "null"]},
    "page": {"type": ["string", "null"]},
    "grantor": {"type": "array", "items": {"type": "string"}},
    "grantee": {"type": "array", "items": {"type": "string"}},
    "instrumentType": {"type": ["string", "null"]},
    "remarks": {"type": ["string", "null"]},
    "amount": {"type": ["string", "null"]},
    "instrumentDate": {"type": ["string", "null"]},
    "fileDate": {"type": ["string", "null"]},
    "legalDescription": {"type": ["string", "null"]},
    "address": {"type": ["string", "null"]},
    "referenceNumbers": {"type": ["string", "null"]}
  },
  "required": [
    "transcription", "instrumentNumber", "book", "volume", "page",
    "grantor", "grantee", "instrumentType", "remarks", "amount",
    "instrumentDate", "fileDate", "legalDescription", "address",
    "referenceNumbers"
  ],
  "additionalProperties": false
}`

const factsInstructions = `You read scanned pages of one recorded land-title instrument ` +
	`(deed, deed of trust, lien, release, easement and similar). Transcribe the text and ` +
	`extract the recording facts: instrument number, book/volume/page, grantor and grantee ` +
	`names, instrument type, remarks, consideration amount, instrument date, file date, ` +
	`legal description, property address and cross-reference numbers. Dates as written on ` +
	`the document. Use null for any field the pages do not establish; never invent values.`
