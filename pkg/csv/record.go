package csv

// Record is one assembled logical CSV row. Exactly one of Object and Array
// is set, fixed by the parse call's output format.
type Record struct {
	// Object maps header name to field value.
	Object map[string]string `json:"object,omitempty"`
	// Array holds field values positionally.
	Array []string `json:"array,omitempty"`
}

// ObjectRecord builds an object-shaped record.
func ObjectRecord(fields map[string]string) Record {
	return Record{Object: fields}
}

// ArrayRecord builds an array-shaped record.
func ArrayRecord(values []string) Record {
	return Record{Array: values}
}
